package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r-efi/r-efi-alloc/internal/logger"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"layout", "simulate", "stress"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}
}

func TestVersionFlag(t *testing.T) {
	resetGlobalFlags(t)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	out, err := captureOutput(t, rootCmd.Execute)
	require.NoError(t, err)
	require.Equal(t, "efialloc dev (commit none, built unknown)\n", out)
}

func TestReportJSONIgnoresQuiet(t *testing.T) {
	resetGlobalFlags(t)
	quiet, jsonOut = true, true

	out, err := captureOutput(t, func() error {
		return report(map[string]int{"n": 1}, func(w io.Writer) { t.Fatal("text form rendered") })
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"n": 1}`, out)
}

func TestQuietSuppressesText(t *testing.T) {
	resetGlobalFlags(t)
	quiet = true
	layoutSize, layoutAlign, layoutNative = "100", 64, 8

	out, err := captureOutput(t, runLayout)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestVerboseEnablesDebugLogging(t *testing.T) {
	resetGlobalFlags(t)
	t.Cleanup(func() { logger.Init(logger.Options{}) })

	require.False(t, newLogger().Enabled(context.Background(), slog.LevelDebug))

	verbose = true
	l := newLogger()
	require.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	require.Same(t, logger.L, l)
}
