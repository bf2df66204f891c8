package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/r-efi/r-efi-alloc/internal/logger"
)

// Set by the release build through -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verbose bool
	quiet   bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "efialloc",
	Short: "Exercise an arbitrary-alignment allocator over a firmware-style pool",
	Long: `efialloc drives the alignment adapter, pool allocator and global bridge
against a simulated pool that only guarantees 8-byte alignment. It reports the
request sizes the adapter computes and verifies alignment and marker recovery
for real allocations.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("efialloc {{.Version}} (commit %s, built %s)\n", commit, date))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log allocator activity to stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print nothing on success")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "efialloc: %v\n", err)
		os.Exit(1)
	}
}

// newLogger configures the shared logger from the global flags and returns it.
// Records go to stderr so they never mix with report output.
func newLogger() *slog.Logger {
	logger.Init(logger.Options{
		Enabled: verbose,
		Out:     os.Stderr,
		Level:   slog.LevelDebug,
		JSON:    jsonOut,
	})
	return logger.L
}

// report writes v to stdout as indented JSON under --json, otherwise renders
// it with text. --quiet suppresses the text form only.
func report(v any, text func(w io.Writer)) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if !quiet {
		text(os.Stdout)
	}
	return nil
}
