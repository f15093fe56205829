// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"fmt"
	"strings"
)

// NotificationKind classifies a Notification.
type NotificationKind string

const (
	// NotifySession reports the session ID from the init record.
	NotifySession NotificationKind = "session"

	// NotifyText is an incremental fragment of assistant text.
	NotifyText NotificationKind = "text"

	// NotifyMessage is the text of a complete assistant message whose
	// deltas were not streamed.
	NotifyMessage NotificationKind = "message"

	// NotifyActivity reports tool use.
	NotifyActivity NotificationKind = "activity"

	// NotifyComplete reports the result record.
	NotifyComplete NotificationKind = "complete"

	// NotifyRaw passes through a line that did not decode.
	NotifyRaw NotificationKind = "raw"

	// NotifyStatus is a progress message from the orchestrator.
	NotifyStatus NotificationKind = "status"

	// NotifyStderr is a line of the process's standard error.
	NotifyStderr NotificationKind = "stderr"
)

// Notification is a signal delivered to the caller while a run is in
// progress.
type Notification struct {
	Kind NotificationKind `json:"kind"`

	// Text is the display text.
	Text string `json:"text"`

	// Formatted is true when Text is markdown.
	Formatted bool `json:"formatted,omitempty"`

	// Incremental is true when Text continues the previous text
	// notification rather than standing alone.
	Incremental bool `json:"incremental,omitempty"`

	// Assistant is true when Text was written by the assistant.
	Assistant bool `json:"assistant,omitempty"`

	// Authoritative is false for raw passthrough of lines that did
	// not decode: their content is shown for diagnosis only.
	Authoritative bool `json:"authoritative"`

	// Activity is set for NotifyActivity.
	Activity *Activity `json:"activity,omitempty"`

	// Usage is set for NotifyComplete when the result carried usage.
	Usage *TokenUsage `json:"usage,omitempty"`
}

// ParsedOutput is the aggregate of a run's events.
type ParsedOutput struct {
	// AssistantText is every text contribution in order, trimmed.
	AssistantText string `json:"assistant_text"`

	// Usage is nil if no result record carried usage.
	Usage *TokenUsage `json:"usage,omitempty"`

	// Complete is true once a result record has been seen.
	Complete bool `json:"complete"`

	// Result is the last result record, if any.
	Result *ResultEvent `json:"result,omitempty"`
}

// Interpreter folds events into a ParsedOutput. It is not safe for
// concurrent use; one run feeds it from one goroutine.
type Interpreter struct {
	text      strings.Builder
	usage     *TokenUsage
	complete  bool
	result    *ResultEvent
	sessionID string

	// streamedText is true once a text delta has arrived since the
	// last complete assistant message.
	streamedText bool

	// announcedTools holds tool_use IDs already reported, so the
	// complete message does not repeat what content_block_start
	// announced.
	announcedTools map[string]bool

	unrecognized int
}

// NewInterpreter returns an empty Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{announcedTools: make(map[string]bool)}
}

// Interpret applies event and returns the notifications it produces,
// possibly none.
func (in *Interpreter) Interpret(event Event) []Notification {
	switch event.Kind {
	case KindInit:
		return in.interpretInit(event.Init)
	case KindStreamDelta:
		return in.interpretDelta(event.Delta)
	case KindAssistantMessage:
		return in.interpretMessage(event.Message)
	case KindResult:
		return in.interpretResult(event.Result)
	case KindToolActivity:
		return in.interpretActivity(event.Activity)
	case KindUnrecognized:
		in.unrecognized++
		return []Notification{{
			Kind:          NotifyRaw,
			Text:          "[raw] " + string(event.Unrecognized.Raw),
			Authoritative: false,
		}}
	}
	return nil
}

func (in *Interpreter) interpretInit(init *InitEvent) []Notification {
	if init.SessionID == "" {
		return nil
	}
	in.sessionID = init.SessionID
	return []Notification{{
		Kind:          NotifySession,
		Text:          "Session: " + init.SessionID,
		Authoritative: true,
	}}
}

func (in *Interpreter) interpretDelta(delta *DeltaEvent) []Notification {
	if delta.Kind != DeltaText || delta.Text == "" {
		return nil
	}
	in.text.WriteString(delta.Text)
	in.streamedText = true
	return []Notification{{
		Kind:          NotifyText,
		Text:          delta.Text,
		Formatted:     true,
		Incremental:   true,
		Assistant:     true,
		Authoritative: true,
	}}
}

func (in *Interpreter) interpretMessage(message *MessageEvent) []Notification {
	var notifications []Notification

	if !in.streamedText {
		var messageText strings.Builder
		for _, block := range message.Blocks {
			if block.Type != "text" {
				continue
			}
			in.text.WriteString(block.Text)
			in.text.WriteByte('\n')
			messageText.WriteString(block.Text)
			messageText.WriteByte('\n')
		}
		if messageText.Len() > 0 {
			notifications = append(notifications, Notification{
				Kind:          NotifyMessage,
				Text:          messageText.String(),
				Formatted:     true,
				Assistant:     true,
				Authoritative: true,
			})
		}
	}
	in.streamedText = false

	for _, block := range message.Blocks {
		if block.Type != "tool_use" && block.Type != "server_tool_use" {
			continue
		}
		if block.ToolUseID != "" && in.announcedTools[block.ToolUseID] {
			continue
		}
		notifications = append(notifications, in.announceTool(block.ToolUseID, describeTool(block.ToolName, block.ToolInput, 0)))
	}
	return notifications
}

func (in *Interpreter) interpretResult(result *ResultEvent) []Notification {
	in.complete = true
	in.result = result
	if result.Usage != nil {
		usage := *result.Usage
		in.usage = &usage
	}
	if in.sessionID == "" && result.SessionID != "" {
		in.sessionID = result.SessionID
	}

	text := "Completed"
	if result.IsError {
		text = "Finished with error"
		if result.Subtype != "" {
			text += " (" + result.Subtype + ")"
		}
	}
	if result.Usage != nil {
		text += fmt.Sprintf(": %d tokens (%d in, %d out)",
			result.Usage.TotalTokens, result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	return []Notification{{
		Kind:          NotifyComplete,
		Text:          text,
		Authoritative: true,
		Usage:         in.usage,
	}}
}

func (in *Interpreter) interpretActivity(activity *ToolActivityEvent) []Notification {
	if activity.Summary != "" {
		return []Notification{{
			Kind:          NotifyActivity,
			Text:          "📋 " + activity.Summary,
			Authoritative: true,
			Activity:      &Activity{Icon: "📋", Action: activity.Summary},
		}}
	}
	return []Notification{in.announceTool(activity.ToolUseID, describeTool(activity.Tool, activity.Input, activity.Duration))}
}

func (in *Interpreter) announceTool(toolUseID string, activity Activity) Notification {
	if toolUseID != "" {
		in.announcedTools[toolUseID] = true
	}
	return Notification{
		Kind:          NotifyActivity,
		Text:          activity.String(),
		Authoritative: true,
		Activity:      &activity,
	}
}

// Output returns the aggregate so far.
func (in *Interpreter) Output() ParsedOutput {
	output := ParsedOutput{
		AssistantText: strings.TrimSpace(in.text.String()),
		Complete:      in.complete,
		Result:        in.result,
	}
	if in.usage != nil {
		usage := *in.usage
		output.Usage = &usage
	}
	return output
}

// SessionID returns the session ID reported by the process, or "".
func (in *Interpreter) SessionID() string { return in.sessionID }

// UnrecognizedCount returns how many events did not decode.
func (in *Interpreter) UnrecognizedCount() int { return in.unrecognized }

// Fold interprets events in order and returns the aggregate.
func Fold(events []Event) ParsedOutput {
	interpreter := NewInterpreter()
	for _, event := range events {
		interpreter.Interpret(event)
	}
	return interpreter.Output()
}
