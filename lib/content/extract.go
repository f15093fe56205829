// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package content

import "strings"

// Delimiter separates preamble from replacement document content.
const Delimiter = "---FINAL-CONTENT---"

// PermissionSentinel marks a response that asks for user approval.
const PermissionSentinel = "REQUIRED_APPROVAL"

// Extraction is the outcome of ExtractFinalContent.
type Extraction struct {
	// Content is the replacement document, trimmed. Empty when
	// HasChanges is false, and possibly empty when the delimiter was
	// followed only by whitespace.
	Content string

	// HasChanges is true iff the delimiter was present.
	HasChanges bool

	// Preamble is the text before the last delimiter, trimmed. For a
	// conversational response it is the whole text.
	Preamble string
}

// ExtractFinalContent splits text at the last occurrence of Delimiter.
func ExtractFinalContent(text string) Extraction {
	index := strings.LastIndex(text, Delimiter)
	if index < 0 {
		return Extraction{Preamble: strings.TrimSpace(text)}
	}
	return Extraction{
		Content:    strings.TrimSpace(text[index+len(Delimiter):]),
		HasChanges: true,
		Preamble:   strings.TrimSpace(text[:index]),
	}
}

// DetectPermissionRequest reports whether text contains
// PermissionSentinel. It is independent of the delimiter.
func DetectPermissionRequest(text string) bool {
	return strings.Contains(text, PermissionSentinel)
}
