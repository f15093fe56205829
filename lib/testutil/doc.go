// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for quill packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. They are the only place
// in the test suite where real wall-clock timeouts are used.
//
// [WriteScript] writes an executable /bin/sh script into a test
// directory. Process tests use it to stand in for the assistant
// binary: the script prints canned stream-json records, reads its
// stdin record, and exits with a chosen status.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
