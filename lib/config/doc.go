// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the bridge
// daemon.
//
// Configuration is a single optional file, ~/.config/claude-island/
// bridge.yaml by default or an explicit path via the --config flag.
// Defaults cover a standard single-machine setup (observer socket in
// /tmp, bus on localhost:4222), so most installs run with no file at
// all; the file exists for nonstandard socket paths, bus addresses,
// and timeout tuning.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values; the hook binary's
// ISLAND_* overrides are its own, applied by cmd/island-hook on top
// of compiled-in defaults, never read here.
//
// Key exports:
//
//   - [Config] -- flat daemon settings, yaml-tagged
//   - [Duration] -- time.Duration that reads "5s"-style YAML strings
//   - [Default], [LoadFile], [LoadDefault] -- the loading entry points
//
// This package depends on no other island packages.
package config
