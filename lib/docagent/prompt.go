// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/quill/lib/config"
	"github.com/bureau-foundation/quill/lib/content"
)

// BuildPrompt assembles the text written to the assistant's stdin: the
// custom system prompt, the permission mode, the document's location,
// the document (or selection), the user's instruction, and the output
// contract that separates conversational answers from edits.
func BuildPrompt(request Request, sessionDirectory string, settings *config.Settings) string {
	var builder strings.Builder

	if prompt := strings.TrimSpace(settings.CustomSystemPrompt); prompt != "" {
		builder.WriteString(prompt)
		builder.WriteString("\n\n")
	}

	writePermissionMode(&builder, request.BypassPermissions || settings.Permissionless)
	writeDocumentContext(&builder, request, sessionDirectory, settings.AllowRootAccess)

	text := request.SelectedText
	if text == "" {
		text = request.DocumentText
	}
	fmt.Fprintf(&builder, "Current document content:\n---\n%s\n---\n\n", text)
	fmt.Fprintf(&builder, "USER REQUEST: %s\n\n", request.Instruction)

	writeOutputContract(&builder)
	return builder.String()
}

func writePermissionMode(builder *strings.Builder, bypass bool) {
	if bypass {
		builder.WriteString("PERMISSION MODE: AUTONOMOUS\n")
		builder.WriteString("You may use every tool (reading, writing, editing, running commands, searching the web) without asking for approval. Act directly.\n\n")
		return
	}
	builder.WriteString("PERMISSION MODE: INTERACTIVE\n")
	fmt.Fprintf(builder, "When you need approval before acting, your response MUST contain the text %q.\n\n", content.PermissionSentinel)
}

func writeDocumentContext(builder *strings.Builder, request Request, sessionDirectory string, allowRootAccess bool) {
	builder.WriteString("You are helping to edit a markdown document. Answer in the language of the user's request.\n\n")
	builder.WriteString("DOCUMENT:\n")
	fmt.Fprintf(builder, "- Path: %s\n", request.DocumentPath)
	fmt.Fprintf(builder, "- Name: %s\n", filepath.Base(request.DocumentPath))
	fmt.Fprintf(builder, "- Session directory: %s\n", sessionDirectory)
	if allowRootAccess && request.RootDirectory != "" {
		fmt.Fprintf(builder, "- Workspace root: %s\n", request.RootDirectory)
		fmt.Fprintf(builder, "- Other documents are readable by absolute path under %s\n", request.RootDirectory)
	}
	builder.WriteString("\n")
}

func writeOutputContract(builder *strings.Builder) {
	builder.WriteString("DECIDE WHAT THE USER WANTS:\n")
	fmt.Fprintf(builder, "1. A question or a request for analysis: answer conversationally and do NOT write %s.\n", content.Delimiter)
	builder.WriteString("2. A change to the document: use the edit format below.\n\n")

	builder.WriteString("EDIT FORMAT:\n")
	builder.WriteString("[optional: one or two sentences describing the change]\n")
	builder.WriteString(content.Delimiter + "\n")
	builder.WriteString("[the complete new document]\n\n")

	builder.WriteString("RULES FOR EDITS:\n")
	fmt.Fprintf(builder, "- Everything that belongs in the document goes after %s, nothing before it.\n", content.Delimiter)
	builder.WriteString("- Do not wrap the document in a ```markdown fence.\n")
	builder.WriteString("- Do not add commentary after the document.\n")
	builder.WriteString("- Start the document with real content, not \".\" or \"---\".\n\n")

	builder.WriteString("EDIT EXAMPLE:\n")
	builder.WriteString("I'll add a sequence diagram.\n")
	builder.WriteString(content.Delimiter + "\n")
	builder.WriteString("# Payments\n\n```plantuml\n@startuml\nA -> B: Payment\n@enduml\n```\n\n")

	builder.WriteString("QUESTION EXAMPLE:\n")
	builder.WriteString("The structure is clear. Two suggestions: add an example to section 2, and a summary at the top.\n")
	fmt.Fprintf(builder, "(no %s for questions)\n", content.Delimiter)
}
