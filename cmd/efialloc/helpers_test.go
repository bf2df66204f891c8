package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done

	return buf.String(), fnErr
}

// resetGlobalFlags restores the persistent flags to their defaults
func resetGlobalFlags(t *testing.T) {
	t.Helper()
	verbose, quiet, jsonOut = false, false, false
	t.Cleanup(func() {
		verbose, quiet, jsonOut = false, false, false
	})
}

// decodeJSON unmarshals command output into v
func decodeJSON(t *testing.T, output string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
