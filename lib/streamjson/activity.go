// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Activity describes one tool invocation for display.
type Activity struct {
	Icon     string        `json:"icon"`
	Action   string        `json:"action"`
	Tool     string        `json:"tool,omitempty"`
	Target   string        `json:"target,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// String renders the activity as one line, e.g.
// "📖 Reading notes/plan.md (1.2s)".
func (a Activity) String() string {
	var builder strings.Builder
	builder.WriteString(a.Icon)
	builder.WriteByte(' ')
	builder.WriteString(a.Action)
	if a.Target != "" {
		builder.WriteByte(' ')
		builder.WriteString(a.Target)
	}
	if a.Duration > 0 {
		fmt.Fprintf(&builder, " (%.1fs)", a.Duration.Seconds())
	}
	return builder.String()
}

type toolPresentation struct {
	icon   string
	action string
}

var toolPresentations = map[string]toolPresentation{
	"Read":         {"📖", "Reading"},
	"Write":        {"📝", "Writing"},
	"Edit":         {"✏️", "Editing"},
	"MultiEdit":    {"✏️", "Editing"},
	"NotebookEdit": {"✏️", "Editing notebook"},
	"Bash":         {"💻", "Running"},
	"Grep":         {"🔍", "Searching for"},
	"Glob":         {"🔍", "Finding"},
	"LS":           {"📂", "Listing"},
	"WebFetch":     {"🌐", "Fetching"},
	"WebSearch":    {"🌐", "Searching the web for"},
	"TodoWrite":    {"📋", "Updating the task list"},
	"Task":         {"🤖", "Delegating"},
}

// targetKeys are the tool-input fields that name what a tool acts on,
// in order of preference.
var targetKeys = []string{"file_path", "notebook_path", "path", "pattern", "command", "url", "query", "description"}

// maxTargetLength bounds the target text carried in an Activity.
const maxTargetLength = 200

// describeTool builds an Activity for a call to tool with input.
func describeTool(tool string, input json.RawMessage, duration time.Duration) Activity {
	presentation, known := toolPresentations[tool]
	if !known {
		presentation = toolPresentation{icon: "🔧", action: "Using " + tool}
		if tool == "" {
			presentation.action = "Working"
		}
	}
	return Activity{
		Icon:     presentation.icon,
		Action:   presentation.action,
		Tool:     tool,
		Target:   toolTarget(input),
		Duration: duration,
	}
}

// toolTarget extracts the first line of the preferred target field.
func toolTarget(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields map[string]any
	if json.Unmarshal(input, &fields) != nil {
		return ""
	}
	for _, key := range targetKeys {
		value, ok := fields[key].(string)
		if !ok || value == "" {
			continue
		}
		value, _, _ = strings.Cut(value, "\n")
		if len(value) > maxTargetLength {
			value = value[:maxTargetLength] + "…"
		}
		return value
	}
	return ""
}
