// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/lib/agentproc"
	"github.com/bureau-foundation/quill/lib/clock"
	"github.com/bureau-foundation/quill/lib/docagent"
	"github.com/bureau-foundation/quill/lib/shellenv"
)

type runParams struct {
	settingsParams
	documentParams
	cli.JSONOutput
	Selection string `json:"-" flag:"selection" desc:"file holding the part of the document to edit"`
	Bypass    bool   `json:"-" flag:"bypass-permissions" desc:"let the assistant use every tool without asking"`
	Model     string `json:"-" flag:"model,m" desc:"model alias for this run (sonnet, opus, haiku)"`
	Write     bool   `json:"-" flag:"write,w" desc:"write the edited document back to the file"`
	Quiet     bool   `json:"-" flag:"quiet,q" desc:"do not print progress"`
}

func runCommand() *cli.Command {
	var params runParams

	return &cli.Command{
		Name:    "run",
		Summary: "Send one instruction about a document to the assistant",
		Description: `Send one instruction about a document to the assistant and wait for
the answer.

The assistant either answers conversationally or returns a complete new
version of the document. An edited document is printed to stdout, or
written back to the file with --write. The document's session is
resumed, so follow-up instructions continue the same conversation.`,
		Usage:  "quill run <document> <instruction> [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Ask a question about a note",
				Command:     "quill run notes/plan.md 'what is missing from this plan?'",
			},
			{
				Description: "Edit in place with a specific model",
				Command:     "quill run notes/plan.md 'add a summary section' --write --model opus",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 2 {
				return cli.Usage("usage: quill run <document> <instruction>")
			}
			return executeRun(ctx, &params, args[0], strings.Join(args[1:], " "), logger)
		},
	}
}

func executeRun(ctx context.Context, params *runParams, document, instruction string, logger *slog.Logger) error {
	settings, err := params.load()
	if err != nil {
		return err
	}
	documentPath, root, err := params.resolve(document)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(documentPath)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	var selection string
	if params.Selection != "" {
		data, err := os.ReadFile(params.Selection)
		if err != nil {
			return fmt.Errorf("reading selection: %w", err)
		}
		selection = string(data)
		if !strings.Contains(string(text), selection) {
			return cli.Usage("the selection in %s does not occur in %s", params.Selection, documentPath)
		}
	}

	progress := cli.NewPrinter(os.Stderr, cli.DetectProfile(os.Stderr), cli.TerminalWidth(os.Stderr, 0))
	var notify docagent.NotifyFunc
	if !params.Quiet {
		notify = progress.Notify
	}

	realClock := clock.Real()
	runner := &docagent.Runner{
		Settings:    settings,
		Environment: &shellenv.ShellProvider{Shell: settings.Shell, Logger: logger},
		Supervisor:  &agentproc.Supervisor{Clock: realClock, Logger: logger},
		Sessions:    newStore(settings, logger),
		Clock:       realClock,
		Logger:      logger,
	}
	response := runner.Run(ctx, docagent.Request{
		DocumentText:      string(text),
		SelectedText:      selection,
		DocumentPath:      documentPath,
		RootDirectory:     root,
		Instruction:       instruction,
		BypassPermissions: params.Bypass,
		ModelOverride:     params.Model,
	}, notify)
	progress.Finish()

	for _, warning := range response.Warnings {
		logger.Warn("run completed with a warning", "warning", warning)
	}

	if done, err := params.EmitJSON(os.Stdout, response); done {
		if err != nil {
			return err
		}
		if !response.Success {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	if !response.Success {
		fmt.Fprintf(os.Stderr, "error: %s\n", response.Error)
		return &cli.ExitError{Code: 1}
	}

	switch {
	case response.Content != "" && params.Write:
		updated := replaceSelection(string(text), selection, response.Content)
		if err := os.WriteFile(documentPath, []byte(updated), 0o644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		if !params.Quiet {
			progress.Outline(updated)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", documentPath)
	case response.Content != "":
		cli.NewPrinter(os.Stdout, cli.DetectProfile(os.Stdout), 0).Document(response.Content)
	case params.Quiet:
		fmt.Fprintln(os.Stdout, response.AssistantMessage)
	}
	if response.PermissionRequest {
		fmt.Fprintln(os.Stderr, "The assistant is waiting for approval. Re-run with --bypass-permissions to allow it to act.")
	}
	return nil
}

// replaceSelection returns document with the first occurrence of
// selection replaced by edited, or edited itself when there is no
// selection.
func replaceSelection(document, selection, edited string) string {
	if selection == "" {
		if !strings.HasSuffix(edited, "\n") {
			edited += "\n"
		}
		return edited
	}
	return strings.Replace(document, selection, edited, 1)
}
