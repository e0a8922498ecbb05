// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package execx

import (
	"context"
	"strings"
	"sync"
)

// Call records one command executed through a Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call the way it would appear on a shell command
// line, for readable test failure messages.
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Fake is a Runner for tests. It records every call and answers with
// the Respond function when set, or an empty successful Result
// otherwise. Safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// Respond, when non-nil, supplies the Result and error for each
	// call. It runs with the fake's lock held, so it must not call
	// back into the Fake.
	Respond func(name string, args ...string) (Result, error)
}

// Run implements Runner.
func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	if f.Respond == nil {
		return Result{}, nil
	}
	return f.Respond(name, args...)
}

// Calls returns a copy of the recorded calls in execution order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Reset discards recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
