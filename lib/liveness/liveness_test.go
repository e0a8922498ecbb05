// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestProcessExistsSelf(t *testing.T) {
	if !ProcessExists(os.Getpid()) {
		t.Error("ProcessExists(own pid) = false, want true")
	}
}

func TestProcessExistsInvalidPid(t *testing.T) {
	if ProcessExists(0) {
		t.Error("ProcessExists(0) = true, want false")
	}
	if ProcessExists(-1) {
		t.Error("ProcessExists(-1) = true, want false")
	}
}

func TestProcessExistsReaped(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting child: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("waiting for child: %v", err)
	}

	if ProcessExists(pid) {
		t.Errorf("ProcessExists(%d) = true for a reaped child, want false", pid)
	}
}

func TestTerminalWritableCharDevice(t *testing.T) {
	// /dev/null is a character device writable by everyone.
	if !TerminalWritable("/dev/null") {
		t.Error("TerminalWritable(/dev/null) = false, want true")
	}
}

func TestTerminalWritableRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-tty")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if TerminalWritable(path) {
		t.Error("TerminalWritable(regular file) = true, want false")
	}
}

func TestTerminalWritableMissingPath(t *testing.T) {
	if TerminalWritable(filepath.Join(t.TempDir(), "absent")) {
		t.Error("TerminalWritable(missing path) = true, want false")
	}
}

func TestIsActive(t *testing.T) {
	regular := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(regular, []byte("x"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	tests := []struct {
		name     string
		pid      int
		terminal string
		want     bool
	}{
		{"live pid, no terminal", os.Getpid(), "", true},
		{"live pid, char device", os.Getpid(), "/dev/null", true},
		{"live pid, regular file", os.Getpid(), regular, false},
		{"live pid, missing terminal", os.Getpid(), "/dev/claude-island-absent", false},
		{"dead pid", -1, "", false},
		{"dead pid, char device", -1, "/dev/null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsActive(tt.pid, tt.terminal); got != tt.want {
				t.Errorf("IsActive(%d, %q) = %v, want %v", tt.pid, tt.terminal, got, tt.want)
			}
		})
	}
}
