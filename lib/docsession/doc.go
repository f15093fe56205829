// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package docsession persists per-document conversation state.
//
// Each document identity (normally the document's path) maps to one
// session directory under <root>/<namespace>/, named by the keyed
// BLAKE3 digest of the identity so that two documents never share a
// directory. A session directory holds:
//
//	session_id.txt              resumable session token, plain text
//	conversation_history.json   last 20 turns, JSON array
//	stats.cbor                  cumulative run and token counters
//	transcripts/                per-run JSONL transcripts, compressed
//
// All operations are synchronous and unlocked. Concurrent runs against
// the same document are the caller's responsibility to prevent.
// Directories for different documents are disjoint and need no
// coordination.
package docsession
