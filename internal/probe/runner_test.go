package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fping")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFpingRunner_EmptyTargets_NoSpawn(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{Path: "/nonexistent/fping", Count: 5, PacketTimeoutMs: 500, Timeout: time.Second}
	out, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if out != "" {
		t.Fatalf("out=%q", out)
	}
}

func TestFpingRunner_PassesArgs(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{
		Path:            writeStub(t, `echo "$@"`),
		Count:           5,
		PacketTimeoutMs: 500,
		Timeout:         5 * time.Second,
	}
	out, err := r.Run(context.Background(), []string{"8.8.8.8", "1.1.1.1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "-C 5 -t 500 -q 8.8.8.8 1.1.1.1"; !strings.Contains(out, want) {
		t.Fatalf("out=%q", out)
	}
}

func TestFpingRunner_MergesStderr(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{
		Path:    writeStub(t, `echo "from stdout"; echo "8.8.8.8 : 12.3 14.1" 1>&2`),
		Count:   5,
		Timeout: 5 * time.Second,
	}
	out, err := r.Run(context.Background(), []string{"8.8.8.8"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "from stdout") || !strings.Contains(out, "8.8.8.8 : 12.3 14.1") {
		t.Fatalf("out=%q", out)
	}
}

func TestFpingRunner_NonZeroExitWithOutput(t *testing.T) {
	t.Parallel()

	// fping exits 1 when any target is unreachable; the per-target results
	// are still on stderr and must be returned, not discarded.
	r := &FpingRunner{
		Path:    writeStub(t, `echo "10.0.0.1 : - - -" 1>&2; exit 1`),
		Count:   3,
		Timeout: 5 * time.Second,
	}
	out, err := r.Run(context.Background(), []string{"10.0.0.1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "10.0.0.1 : - - -") {
		t.Fatalf("out=%q", out)
	}
}

func TestFpingRunner_NonZeroExitWithoutOutput(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{
		Path:    writeStub(t, `exit 3`),
		Count:   5,
		Timeout: 5 * time.Second,
	}
	_, err := r.Run(context.Background(), []string{"8.8.8.8"})
	if !errors.Is(err, ErrFailure) {
		t.Fatalf("err=%v", err)
	}
}

func TestFpingRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{Path: "/nonexistent/fping", Count: 5, Timeout: time.Second}
	_, err := r.Run(context.Background(), []string{"8.8.8.8"})
	if !errors.Is(err, ErrFailure) {
		t.Fatalf("err=%v", err)
	}
}

func TestFpingRunner_Timeout(t *testing.T) {
	t.Parallel()

	r := &FpingRunner{
		Path:    writeStub(t, `sleep 5`),
		Count:   5,
		Timeout: 100 * time.Millisecond,
	}
	start := time.Now()
	_, err := r.Run(context.Background(), []string{"8.8.8.8"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestFpingProber_RunsPipeline(t *testing.T) {
	t.Parallel()

	p := &FpingProber{
		Runner: &FpingRunner{
			Path:    writeStub(t, `echo "8.8.8.8 : 12.3 14.1 - 12.8 13.0" 1>&2; exit 1`),
			Count:   5,
			Timeout: 5 * time.Second,
		},
		Count: 5,
	}
	series, err := p.Probe(context.Background(), []string{"8.8.8.8"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	got, ok := series["8.8.8.8"]
	if !ok || len(got) != 4 {
		t.Fatalf("series=%v", series)
	}
}
