// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is quill's CBOR encoding, configured once for
// deterministic output.
//
// Per-document run statistics are stored as CBOR so that the file is
// compact and byte-stable: the same counters always encode to the same
// bytes, which keeps the session directory diff-friendly for users who
// commit their vault. Consumers import this package, never
// fxamacker/cbor directly.
package codec
