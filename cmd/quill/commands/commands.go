// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the quill command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/lib/version"
)

// Root returns the complete quill command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "quill",
		Description: `quill: edit and discuss documents with Claude Code.

Each document keeps its own assistant session, so a later instruction
continues the same conversation. Progress streams to stderr; the edited
document (or --json response) goes to stdout.`,
		Subcommands: []*cli.Command{
			runCommand(),
			sessionCommand(),
			envCommand(),
			transcriptCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(os.Stdout, "quill %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
