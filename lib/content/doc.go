// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package content decides what an assistant response means for the
// document it was asked about.
//
// The prompt asks the assistant to separate any preamble from a full
// replacement of the document with [Delimiter]. A response with the
// delimiter is an edit: everything after its last occurrence is the new
// document. A response without it is conversational (an answer, an
// analysis) and leaves the document alone. Independently, a response
// containing [PermissionSentinel] is the assistant asking for approval
// before it acts.
//
// [UnwrapFence] and [Outline] inspect the extracted document as
// markdown using github.com/yuin/goldmark.
package content
