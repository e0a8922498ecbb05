// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package pidfile records the bridge daemon's pid in a well-known file
// so the lifecycle commands can find it. Acquisition refuses to stomp
// a live daemon; everything else about a pid file is advisory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/claude-island/island/lib/liveness"
)

// Acquire writes the current process's pid to path. It fails when the
// file already names a live process; a stale file left by a crashed
// daemon is replaced silently.
func Acquire(path string) error {
	if pid, err := Read(path); err == nil && liveness.ProcessExists(pid) {
		return fmt.Errorf("%s: daemon already running (pid %d)", path, pid)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// Read returns the pid recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}

// Remove deletes the pid file. A file that is already gone is not an
// error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}
