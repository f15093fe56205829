// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"github.com/bureau-foundation/quill/lib/config"
)

// BuildArguments returns the assistant's argument list. The stream-json
// flags are always present; --resume, --permission-mode, --add-dir and
// --model are added when token, bypass (or settings.Permissionless),
// settings.AllowRootAccess with a non-empty rootDirectory, and a model
// (modelOverride before settings.Model) call for them.
func BuildArguments(settings *config.Settings, token, rootDirectory string, bypass bool, modelOverride string) []string {
	arguments := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--replay-user-messages",
		"--include-partial-messages",
	}
	if token != "" {
		arguments = append(arguments, "--resume", token)
	}
	if bypass || settings.Permissionless {
		arguments = append(arguments, "--permission-mode", "bypassPermissions")
	}
	if settings.AllowRootAccess && rootDirectory != "" {
		arguments = append(arguments, "--add-dir", rootDirectory)
	}
	model := modelOverride
	if model == "" {
		model = settings.Model
	}
	if model != "" {
		arguments = append(arguments, "--model", model)
	}
	return arguments
}
