// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the quill binary: a tree of
// [Command] values dispatched by name, with flags declared as tagged
// struct fields ([FlagsFromParams]), typo suggestions for unknown
// commands and flags, a structured logger that switches between text
// and JSON by terminal detection, and [ExitError] for handled non-zero
// exits.
package cli
