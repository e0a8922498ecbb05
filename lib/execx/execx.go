// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package execx runs external commands behind an injectable capability
// interface. Everything in the bridge that shells out — tmux, ssh, ps,
// hostname — goes through a Runner, so tests substitute a Fake and
// assert on the exact command lines without spawning processes.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result holds the outcome of a command that actually ran. A non-zero
// ExitCode is data, not an error: callers decide whether it matters.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a single external command and captures its output.
// Implementations must honor context cancellation by killing the
// process and returning the context's error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// System is the production Runner backed by os/exec.
type System struct{}

// Run executes name with args, capturing stdout and stderr separately.
// A command that starts and exits non-zero returns a nil error with the
// exit code in the Result; errors are reserved for commands that could
// not run at all (not found, permission, context expiry).
func (System) Run(ctx context.Context, name string, args ...string) (Result, error) {
	command := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The kill from CommandContext surfaces as an ExitError;
		// report the deadline/cancellation instead.
		return result, fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("running %s: %w", name, err)
	}
	return result, nil
}
