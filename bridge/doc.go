// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the home-machine daemon that relays
// session lifecycle events from remote Claude Code agents to the local
// observer app.
//
// The daemon subscribes to two bus subjects. State documents are
// mirrored into local transcript files, drive the proxy pane registry
// (a local tmux window shadowing each remote session, so the observer
// can focus it), and are forwarded to the observer's Unix socket.
// Permission requests are round-tripped to the observer and the
// decision is published back on the frame's reply subject; when the
// observer is unreachable or silent the reply degrades to
// {"decision":"ask"} so the agent falls back to its own prompt.
//
// Key exports:
//
//   - [Bridge]: the daemon. Populate Config and call Run; it serves
//     until the context is cancelled, reconnecting to the bus with
//     capped backoff whenever the connection drops.
//
// Concurrency: one goroutine reads bus frames and does nothing but
// parse and dispatch. State documents flow through a single worker so
// they are handled in arrival order; each permission request gets its
// own goroutine so a minutes-long decision wait never stalls state
// flow. The proxy pane registry serializes internally.
package bridge
