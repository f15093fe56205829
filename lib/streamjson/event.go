// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"encoding/json"
	"time"
)

// Kind classifies a decoded line.
type Kind string

const (
	// KindInit is the system init record carrying the session ID.
	KindInit Kind = "init"

	// KindStreamDelta is an incremental content fragment.
	KindStreamDelta Kind = "stream-delta"

	// KindAssistantMessage is a complete assistant message.
	KindAssistantMessage Kind = "assistant-message"

	// KindResult is the final record of a run, carrying usage.
	KindResult Kind = "result"

	// KindToolActivity reports a tool invocation or its progress.
	KindToolActivity Kind = "tool-activity"

	// KindUnrecognized is a line that did not decode to any of the
	// kinds above. The raw bytes are preserved.
	KindUnrecognized Kind = "unrecognized"
)

// Event is one decoded line. Exactly one payload pointer is non-nil,
// selected by Kind.
type Event struct {
	Kind Kind `json:"kind"`

	Init         *InitEvent         `json:"init,omitempty"`
	Delta        *DeltaEvent        `json:"delta,omitempty"`
	Message      *MessageEvent      `json:"message,omitempty"`
	Result       *ResultEvent       `json:"result,omitempty"`
	Activity     *ToolActivityEvent `json:"activity,omitempty"`
	Unrecognized *UnrecognizedEvent `json:"unrecognized,omitempty"`
}

// InitEvent is {"type":"system","subtype":"init",...}.
type InitEvent struct {
	SessionID        string   `json:"session_id"`
	Model            string   `json:"model,omitempty"`
	Tools            []string `json:"tools,omitempty"`
	WorkingDirectory string   `json:"cwd,omitempty"`
	PermissionMode   string   `json:"permission_mode,omitempty"`
}

// DeltaKind distinguishes what a stream delta carries.
type DeltaKind string

const (
	DeltaText      DeltaKind = "text"
	DeltaToolInput DeltaKind = "tool-input"
	DeltaThinking  DeltaKind = "thinking"
	DeltaOther     DeltaKind = "other"
)

// DeltaEvent is a content_block_delta from a partial message.
type DeltaEvent struct {
	Kind DeltaKind `json:"kind"`

	// Index is the content block the fragment belongs to.
	Index int `json:"index"`

	// Text is the fragment: assistant text, partial tool-input JSON,
	// or thinking text depending on Kind.
	Text string `json:"text,omitempty"`
}

// ContentBlock is one block of a complete assistant message.
type ContentBlock struct {
	// Type is "text", "tool_use", "thinking" and so on.
	Type string `json:"type"`

	// Text is set for text blocks.
	Text string `json:"text,omitempty"`

	// ToolUseID, ToolName and ToolInput are set for tool_use blocks.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// MessageEvent is {"type":"assistant","message":{...}}.
type MessageEvent struct {
	ID     string         `json:"id,omitempty"`
	Model  string         `json:"model,omitempty"`
	Blocks []ContentBlock `json:"blocks"`
}

// TokenUsage counts tokens for one run.
type TokenUsage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`

	// TotalTokens is InputTokens + OutputTokens. Cache counters are
	// reported separately and not included.
	TotalTokens int64 `json:"total_tokens"`
}

// NewTokenUsage returns usage with TotalTokens filled in.
func NewTokenUsage(input, output, cacheRead, cacheWrite int64) TokenUsage {
	return TokenUsage{
		InputTokens:      input,
		OutputTokens:     output,
		CacheReadTokens:  cacheRead,
		CacheWriteTokens: cacheWrite,
		TotalTokens:      input + output,
	}
}

// ResultEvent is {"type":"result",...}, the last record of a run.
type ResultEvent struct {
	// Subtype is "success" or an error_* outcome.
	Subtype string `json:"subtype,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// Text is the result's own copy of the final assistant text.
	Text string `json:"text,omitempty"`

	// Usage is nil when the record carried no usage object.
	Usage *TokenUsage `json:"usage,omitempty"`

	SessionID string        `json:"session_id,omitempty"`
	CostUSD   float64       `json:"cost_usd,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	NumTurns  int           `json:"num_turns,omitempty"`
}

// ToolActivityEvent reports tool use. Records that announce a tool
// call carry Tool and usually Input; progress records carry Duration;
// summary records carry Summary.
type ToolActivityEvent struct {
	Tool      string          `json:"tool,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
	Summary   string          `json:"summary,omitempty"`
}

// UnrecognizedEvent preserves a line that did not decode.
type UnrecognizedEvent struct {
	Raw    []byte `json:"raw"`
	Reason string `json:"reason"`
}
