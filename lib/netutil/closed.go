// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small networking helpers shared by the
// bridge and the hook.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These occur when the bus restarts under a live bridge
// connection, or when the observer app closes its socket while the
// hook's write is in flight.
//
// Peers that full-close (rather than half-close via CloseWrite)
// produce ECONNRESET and EPIPE instead of EOF on the surviving side.
// All four are expected and should trigger a reconnect, not an error
// log.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
