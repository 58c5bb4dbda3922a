// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdatedDuringSearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.xml")
	if err := os.WriteFile(path, []byte(sampleDump), 0644); err != nil {
		t.Fatal(err)
	}
	files, _, err := ResolveDumpFiles(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var out bytes.Buffer
	opts := NewSearchOptions().WithThreadCount(1).WithMetrics(metrics)
	if _, err := SearchDump(context.Background(), "Abc", files, &out, opts); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(metrics.FilesSearched); got != 1 {
		t.Errorf("FilesSearched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.MatchesFound); got != 1 {
		t.Errorf("MatchesFound = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.BytesProcessed); got <= 0 {
		t.Errorf("BytesProcessed = %v, want > 0", got)
	}
}

// TestMetricsDecompressFailureIncrements exercises the DecompressFailure
// counter end to end through SearchDump, the same way
// TestSpawnDecompressorNonzeroExit exercises the underlying non-zero
// exit path directly on spawnDecompressor.
func TestMetricsDecompressFailureIncrements(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available in this environment")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.xml.7z")
	if err := os.WriteFile(path, []byte("not actually 7z data"), 0644); err != nil {
		t.Fatal(err)
	}
	files, _, err := ResolveDumpFiles(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var out bytes.Buffer
	opts := NewSearchOptions().
		WithThreadCount(1).
		WithMetrics(metrics).
		WithBinary7z("sh").
		WithOptions7z([]string{"-c", "exit 3"})
	if _, err := SearchDump(context.Background(), "Abc", files, &out, opts); err == nil {
		t.Fatal("expected an error from the failing decompressor")
	}

	if got := testutil.ToFloat64(metrics.DecompressFailure); got != 1 {
		t.Errorf("DecompressFailure = %v, want 1", got)
	}
}
