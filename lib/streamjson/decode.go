// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ReasonUnhandled marks well-formed records this package does not
// interpret (user replays, other system subtypes, message_start and
// similar stream events).
const ReasonUnhandled = "unhandled record"

// recordEnvelope is the part every stream-json record shares.
type recordEnvelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// Decode maps one line to an Event. It never fails: anything it cannot
// interpret becomes KindUnrecognized with the line preserved.
func Decode(line []byte) Event {
	line = bytes.TrimSpace(line)

	var envelope recordEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return unrecognized(line, fmt.Sprintf("invalid JSON: %v", err))
	}

	switch envelope.Type {
	case "":
		return unrecognized(line, "record has no type")
	case "system":
		if envelope.Subtype == "init" {
			return decodeInit(line)
		}
	case "stream_event":
		return decodeStreamEvent(line)
	case "assistant":
		return decodeAssistant(line)
	case "result":
		return decodeResult(line)
	case "tool_progress":
		return decodeToolProgress(line)
	case "tool_use_summary":
		return decodeToolSummary(line)
	}
	return unrecognized(line, ReasonUnhandled)
}

func unrecognized(line []byte, reason string) Event {
	return Event{
		Kind: KindUnrecognized,
		Unrecognized: &UnrecognizedEvent{
			Raw:    bytes.Clone(line),
			Reason: reason,
		},
	}
}

func decodeInit(line []byte) Event {
	var record struct {
		SessionID      string   `json:"session_id"`
		Model          string   `json:"model"`
		Tools          []string `json:"tools"`
		CWD            string   `json:"cwd"`
		PermissionMode string   `json:"permissionMode"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding init record: %v", err))
	}
	return Event{
		Kind: KindInit,
		Init: &InitEvent{
			SessionID:        record.SessionID,
			Model:            record.Model,
			Tools:            record.Tools,
			WorkingDirectory: record.CWD,
			PermissionMode:   record.PermissionMode,
		},
	}
}

// streamPayload is the Anthropic streaming event wrapped by a
// stream_event record.
type streamPayload struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	Delta        *deltaPayload `json:"delta"`
	ContentBlock *blockPayload `json:"content_block"`
}

type deltaPayload struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	PartialJSON string `json:"partial_json"`
	Thinking    string `json:"thinking"`
}

type blockPayload struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Text  string          `json:"text"`
	Input json.RawMessage `json:"input"`
}

func decodeStreamEvent(line []byte) Event {
	var record struct {
		Event *streamPayload `json:"event"`

		// Older releases flattened the streaming event into the
		// record itself.
		EventType    string        `json:"event_type"`
		Index        int           `json:"index"`
		Delta        *deltaPayload `json:"delta"`
		ContentBlock *blockPayload `json:"content_block"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding stream_event record: %v", err))
	}

	payload := record.Event
	if payload == nil {
		payload = &streamPayload{
			Type:         record.EventType,
			Index:        record.Index,
			Delta:        record.Delta,
			ContentBlock: record.ContentBlock,
		}
	}

	switch payload.Type {
	case "content_block_delta":
		if payload.Delta == nil {
			return unrecognized(line, "content_block_delta without delta")
		}
		return Event{Kind: KindStreamDelta, Delta: decodeDelta(payload.Index, payload.Delta)}

	case "content_block_start":
		block := payload.ContentBlock
		if block != nil && (block.Type == "tool_use" || block.Type == "server_tool_use") {
			return Event{
				Kind: KindToolActivity,
				Activity: &ToolActivityEvent{
					Tool:      block.Name,
					ToolUseID: block.ID,
					Input:     nonEmptyInput(block.Input),
				},
			}
		}
	}
	return unrecognized(line, ReasonUnhandled)
}

func decodeDelta(index int, delta *deltaPayload) *DeltaEvent {
	switch delta.Type {
	case "text_delta":
		return &DeltaEvent{Kind: DeltaText, Index: index, Text: delta.Text}
	case "input_json_delta":
		return &DeltaEvent{Kind: DeltaToolInput, Index: index, Text: delta.PartialJSON}
	case "thinking_delta":
		return &DeltaEvent{Kind: DeltaThinking, Index: index, Text: delta.Thinking}
	default:
		return &DeltaEvent{Kind: DeltaOther, Index: index}
	}
}

// nonEmptyInput drops the placeholder "{}" input of a tool_use block
// whose arguments have not streamed yet.
func nonEmptyInput(input json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return input
}

func decodeAssistant(line []byte) Event {
	var record struct {
		Message *struct {
			ID      string         `json:"id"`
			Model   string         `json:"model"`
			Content []blockPayload `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding assistant record: %v", err))
	}
	if record.Message == nil {
		return unrecognized(line, "assistant record without message")
	}

	message := &MessageEvent{
		ID:     record.Message.ID,
		Model:  record.Message.Model,
		Blocks: make([]ContentBlock, 0, len(record.Message.Content)),
	}
	for _, block := range record.Message.Content {
		converted := ContentBlock{Type: block.Type}
		switch block.Type {
		case "text":
			converted.Text = block.Text
		case "tool_use", "server_tool_use":
			converted.ToolUseID = block.ID
			converted.ToolName = block.Name
			converted.ToolInput = nonEmptyInput(block.Input)
		}
		message.Blocks = append(message.Blocks, converted)
	}
	return Event{Kind: KindAssistantMessage, Message: message}
}

func decodeResult(line []byte) Event {
	var record struct {
		Subtype      string  `json:"subtype"`
		IsError      bool    `json:"is_error"`
		Result       any     `json:"result"`
		SessionID    string  `json:"session_id"`
		TotalCostUSD float64 `json:"total_cost_usd"`
		CostUSD      float64 `json:"cost_usd"`
		DurationMS   float64 `json:"duration_ms"`
		NumTurns     int     `json:"num_turns"`
		Usage        *struct {
			InputTokens      int64 `json:"input_tokens"`
			OutputTokens     int64 `json:"output_tokens"`
			CacheReadTokens  int64 `json:"cache_read_input_tokens"`
			CacheWriteTokens int64 `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding result record: %v", err))
	}

	result := &ResultEvent{
		Subtype:   record.Subtype,
		IsError:   record.IsError,
		SessionID: record.SessionID,
		CostUSD:   record.TotalCostUSD,
		Duration:  time.Duration(record.DurationMS * float64(time.Millisecond)),
		NumTurns:  record.NumTurns,
	}
	if result.CostUSD == 0 {
		result.CostUSD = record.CostUSD
	}
	if text, ok := record.Result.(string); ok {
		result.Text = text
	}
	if record.Usage != nil {
		usage := NewTokenUsage(
			record.Usage.InputTokens,
			record.Usage.OutputTokens,
			record.Usage.CacheReadTokens,
			record.Usage.CacheWriteTokens,
		)
		result.Usage = &usage
	}
	return Event{Kind: KindResult, Result: result}
}

func decodeToolProgress(line []byte) Event {
	var record struct {
		ToolUseID          string  `json:"tool_use_id"`
		ToolName           string  `json:"tool_name"`
		ElapsedTimeSeconds float64 `json:"elapsed_time_seconds"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding tool_progress record: %v", err))
	}
	return Event{
		Kind: KindToolActivity,
		Activity: &ToolActivityEvent{
			Tool:      record.ToolName,
			ToolUseID: record.ToolUseID,
			Duration:  time.Duration(record.ElapsedTimeSeconds * float64(time.Second)),
		},
	}
}

func decodeToolSummary(line []byte) Event {
	var record struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(line, &record); err != nil {
		return unrecognized(line, fmt.Sprintf("decoding tool_use_summary record: %v", err))
	}
	return Event{Kind: KindToolActivity, Activity: &ToolActivityEvent{Summary: record.Summary}}
}
