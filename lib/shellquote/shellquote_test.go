// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package shellquote

import "testing"

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"", "''"},
		{"two words", "'two words'"},
		{"don't", `'don'\''t'`},
		{"a'b'c", `'a'\''b'\''c'`},
		{"$HOME && rm -rf /", `'$HOME && rm -rf /'`},
	}
	for _, test := range tests {
		if got := Quote(test.in); got != test.want {
			t.Errorf("Quote(%q) = %s, want %s", test.in, got, test.want)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "bare arguments stay bare",
			args: []string{"tmux", "send-keys", "-t", "main:1.0"},
			want: "tmux send-keys -t main:1.0",
		},
		{
			name: "spaces force quoting",
			args: []string{"tmux", "send-keys", "-l", "ls -la"},
			want: "tmux send-keys -l 'ls -la'",
		},
		{
			name: "empty argument is preserved",
			args: []string{"echo", ""},
			want: "echo ''",
		},
		{
			name: "metacharacters force quoting",
			args: []string{"echo", "a;b", "c|d"},
			want: "echo 'a;b' 'c|d'",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Join(test.args); got != test.want {
				t.Errorf("Join(%v) = %s, want %s", test.args, got, test.want)
			}
		})
	}
}
