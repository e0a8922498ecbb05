// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness answers whether the process and terminal that
// produced a session event are still alive. The observer app uses the
// same checks to decide when to stop showing a session as live; inside
// this repository the process half guards the daemon pidfile and the
// terminal half validates discovered tty paths.
package liveness

import (
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessExists reports whether a process with the given pid is
// running. The probe is signal zero under the hood: a process we lack
// permission to signal still counts as running, a missing process does
// not.
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return exists
}

// TerminalWritable reports whether path names a character device this
// process can write to. Regular files, pipes, and missing paths all
// fail; a session whose tty vanished or was reallocated is no longer
// observable.
func TerminalWritable(path string) bool {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return false
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFCHR {
		return false
	}
	return unix.Access(path, unix.W_OK) == nil
}

// IsActive reports whether a session is still alive: its process must
// exist, and its terminal, when one is known, must still be a writable
// character device. An empty terminal path is not a failure; sessions
// driven by piped input have none.
func IsActive(pid int, terminalPath string) bool {
	if !ProcessExists(pid) {
		return false
	}
	if terminalPath == "" {
		return true
	}
	return TerminalWritable(terminalPath)
}
