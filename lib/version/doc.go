// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the quill binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/quill/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/quill
//
// When they are not injected (go install, go run, tests) the commit and
// dirty flag fall back to the VCS stamp the Go toolchain embeds in the
// binary's build info.
package version
