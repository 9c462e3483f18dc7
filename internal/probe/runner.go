package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var (
	// ErrTimeout means the probe invocation exceeded its overall bound.
	ErrTimeout = errors.New("probe timed out")
	// ErrFailure means the probe could not run or produced no usable output.
	ErrFailure = errors.New("probe failed")
)

// Runner executes one probe batch and returns the combined textual output.
// Implementations must return promptly once ctx is done.
type Runner interface {
	Run(ctx context.Context, targets []string) (string, error)
}

// FpingRunner invokes the external fping binary with a fixed packet count and
// per-packet timeout, merging stdout and stderr: under -q fping reports
// per-target results on stderr.
type FpingRunner struct {
	Path            string
	Count           int
	PacketTimeoutMs int
	Timeout         time.Duration
}

func (r *FpingRunner) Run(ctx context.Context, targets []string) (string, error) {
	if len(targets) == 0 {
		return "", nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"-C", strconv.Itoa(r.Count), "-t", strconv.Itoa(r.PacketTimeoutMs), "-q"}
	args = append(args, targets...)

	cmd := exec.CommandContext(ctx, r.Path, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	// A stray child holding the output pipes after the kill must not stall
	// the cycle.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	if err != nil {
		// fping exits 1 when any target is unreachable and 2 when an address
		// does not resolve; its output is still usable in both cases.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && buf.Len() > 0 {
			return buf.String(), nil
		}
		return "", fmt.Errorf("%w: %v", ErrFailure, err)
	}
	return buf.String(), nil
}
