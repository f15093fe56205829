// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"time"

	"github.com/bureau-foundation/quill/lib/streamjson"
)

// Request is one instruction against one document. A Request drives
// exactly one Run.
type Request struct {
	// DocumentText is the full current text of the document.
	DocumentText string `json:"document_text"`

	// SelectedText, when non-empty, replaces DocumentText as the text
	// shown to the assistant.
	SelectedText string `json:"selected_text,omitempty"`

	// DocumentPath identifies the document. It selects the session
	// directory and is shown to the assistant.
	DocumentPath string `json:"document_path"`

	// RootDirectory is the workspace the document belongs to. It holds
	// the session namespace, is the assistant's working directory, and
	// is passed with --add-dir when root access is allowed. Empty uses
	// the document's directory.
	RootDirectory string `json:"root_directory,omitempty"`

	// Instruction is what the user asked for.
	Instruction string `json:"instruction"`

	// BypassPermissions runs this request with
	// --permission-mode bypassPermissions regardless of settings.
	BypassPermissions bool `json:"bypass_permissions,omitempty"`

	// ModelOverride takes priority over the configured model.
	ModelOverride string `json:"model_override,omitempty"`
}

// Response is the outcome of a Run.
type Response struct {
	// Success is true when the assistant produced either an edited
	// document or a conversational answer.
	Success bool `json:"success"`

	// Content is the edited document. Empty for conversational answers
	// and failures.
	Content string `json:"content,omitempty"`

	// AssistantMessage is the full assistant text, trimmed.
	AssistantMessage string `json:"assistant_message,omitempty"`

	// Error describes a failure. Empty on success.
	Error string `json:"error,omitempty"`

	// Err is the typed failure behind Error.
	Err error `json:"-"`

	// Output is every non-empty stdout line in arrival order, including
	// lines that did not decode.
	Output []string `json:"output"`

	// Usage is the token accounting of the result record, if any.
	Usage *streamjson.TokenUsage `json:"usage,omitempty"`

	// PermissionRequest is true when the assistant asked for approval
	// instead of acting.
	PermissionRequest bool `json:"permission_request,omitempty"`

	// Warnings lists persistence and transcript problems that did not
	// affect the answer.
	Warnings []string `json:"warnings,omitempty"`

	// ExitCode is the process exit status, or -1 when it did not exit
	// normally or never started.
	ExitCode int `json:"exit_code"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
}

// NotifyFunc receives notifications while a run is in progress. It is
// called from one goroutine at a time, in arrival order per stream.
type NotifyFunc func(streamjson.Notification)

// failure builds a failed Response around err.
func failure(err error, output []string) Response {
	return Response{
		Error:    err.Error(),
		Err:      err,
		Output:   output,
		ExitCode: -1,
	}
}
