// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured loggers used by the island
// binaries. All diagnostic output goes to stderr so that stdout stays
// reserved for protocol payloads (the hook's decision envelope, command
// results).
package logging

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// New creates a structured logger writing to stderr at the given level.
// When stderr is a terminal, uses slog.TextHandler for human-readable
// output. When stderr is piped or redirected (launchd, log files,
// integration tests), uses slog.JSONHandler for machine-parseable
// output.
//
// Callers scope the logger with component-specific context via With():
//
//	logger := logging.New(slog.LevelInfo).With(
//	    "component", "bridge",
//	    "session_id", sessionID,
//	)
func New(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
