// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellenv reconstructs the environment an interactive login
// shell would see, for launching the assistant from a host process
// that was started with a minimal environment (a desktop launcher, an
// editor, a systemd user unit).
//
// [ShellProvider] runs the user's shell once, sources its profile and
// rc files, and parses the output of env. Any failure falls back to
// the host environment unmodified: callers never see an error, only a
// possibly less complete environment. [StaticProvider] returns a fixed
// map and is what tests use so they never depend on the host's shell
// configuration.
//
// [ResolveExecutable] finds the assistant binary on the resolved PATH,
// which frequently differs from the host process's PATH (npm global
// prefixes, ~/.local/bin, version managers).
package shellenv
