// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// quill sends instructions about a document to Claude Code and applies
// or prints the result. See "quill --help".
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/cmd/quill/commands"
	"github.com/bureau-foundation/quill/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that already reported their failure return an
		// ExitError; don't print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if os.Getenv("QUILL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return commands.Root().Execute(ctx, os.Args[1:], cli.NewCommandLogger(level))
}
