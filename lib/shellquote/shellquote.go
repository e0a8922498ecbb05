// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellquote builds POSIX shell command lines from untrusted
// pieces. The relay sends user keystrokes through two shell layers
// (ssh's remote command, then tmux send-keys arguments), so every
// interpolated value is single-quoted with embedded quotes escaped.
package shellquote

import "strings"

// metacharacters are the bytes that force quoting in Join. Anything
// else passes through bare to keep assembled command lines readable.
const metacharacters = " \t\n\"'\\$`!#&|;(){}[]<>?*~"

// Quote wraps s in single quotes, closing and reopening the quoted
// region around embedded single quotes. Always quotes, even when s is
// safe — suitable for values like keystroke text where readability of
// the assembled command does not matter.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join renders args as a single shell command line, quoting only the
// arguments that contain metacharacters.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, metacharacters) {
			quoted[i] = Quote(arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
