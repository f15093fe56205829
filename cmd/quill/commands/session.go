// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/lib/codec"
	"github.com/bureau-foundation/quill/lib/config"
	"github.com/bureau-foundation/quill/lib/docsession"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Summary: "Inspect or reset a document's conversation",
		Description: `Inspect or reset the persisted conversation of a document.

Each document has its own session directory under the workspace root,
holding the resume token, the recent conversation history, cumulative
usage statistics and the transcripts of recent runs.`,
		Subcommands: []*cli.Command{
			sessionShowCommand(),
			sessionHistoryCommand(),
			sessionResetCommand(),
		},
	}
}

type sessionShowParams struct {
	settingsParams
	documentParams
	cli.JSONOutput
	CBOR bool `json:"-" flag:"cbor" desc:"print the raw statistics record in CBOR diagnostic notation"`
}

// sessionSummary is the JSON form of "session show".
type sessionSummary struct {
	DocumentID  string           `json:"document_id"`
	Directory   string           `json:"directory"`
	Exists      bool             `json:"exists"`
	Token       string           `json:"token,omitempty"`
	Turns       int              `json:"turns"`
	Stats       docsession.Stats `json:"stats"`
	Transcripts []string         `json:"transcripts"`
}

func sessionShowCommand() *cli.Command {
	var params sessionShowParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show a document's session state",
		Usage:   "quill session show <document> [flags]",
		Params:  func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Show the session of a note",
				Command:     "quill session show notes/plan.md",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Usage("usage: quill session show <document>")
			}
			settings, err := params.load()
			if err != nil {
				return err
			}
			documentPath, root, err := params.resolve(args[0])
			if err != nil {
				return err
			}
			directory := newStore(settings, logger).SessionDirectory(documentPath, root)
			if params.CBOR {
				return writeStatsDiagnostic(os.Stdout, directory)
			}
			summary, err := summarizeSession(documentPath, directory)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(os.Stdout, summary); done {
				return err
			}
			writeSessionSummary(os.Stdout, summary)
			return nil
		},
	}
}

// summarizeSession reads everything persisted in directory. A missing
// directory is an empty session, not an error.
func summarizeSession(documentID, directory string) (sessionSummary, error) {
	summary := sessionSummary{DocumentID: documentID, Directory: directory}
	if _, err := os.Stat(directory); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return summary, nil
		}
		return summary, fmt.Errorf("checking session directory: %w", err)
	}
	summary.Exists = true

	var err error
	if summary.Token, err = docsession.ReadToken(directory); err != nil {
		return summary, err
	}
	history, err := docsession.LoadHistory(directory)
	if err != nil {
		return summary, err
	}
	summary.Turns = len(history)
	if summary.Stats, err = docsession.LoadStats(directory); err != nil {
		return summary, err
	}
	if summary.Transcripts, err = docsession.ListTranscripts(directory); err != nil {
		return summary, err
	}
	return summary, nil
}

func writeSessionSummary(w io.Writer, summary sessionSummary) {
	if !summary.Exists {
		fmt.Fprintf(w, "No session for %s\n", summary.DocumentID)
		return
	}
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(table, "Document:\t%s\n", summary.DocumentID)
	fmt.Fprintf(table, "Directory:\t%s\n", summary.Directory)
	token := summary.Token
	if token == "" {
		token = "(new session)"
	}
	fmt.Fprintf(table, "Token:\t%s\n", token)
	fmt.Fprintf(table, "History:\t%d turns\n", summary.Turns)
	stats := summary.Stats
	if stats.Runs > 0 {
		fmt.Fprintf(table, "Runs:\t%d (first %s, last %s)\n",
			stats.Runs,
			stats.FirstRunAt.Local().Format(time.DateTime),
			stats.LastRunAt.Local().Format(time.DateTime))
		fmt.Fprintf(table, "Tokens:\t%d in, %d out, %d cache read, %d cache write\n",
			stats.InputTokens, stats.OutputTokens, stats.CacheReadTokens, stats.CacheWriteTokens)
		if stats.CostUSD > 0 {
			fmt.Fprintf(table, "Cost:\t$%.4f\n", stats.CostUSD)
		}
	} else {
		fmt.Fprintf(table, "Runs:\t0\n")
	}
	fmt.Fprintf(table, "Transcripts:\t%d\n", len(summary.Transcripts))
	table.Flush()
	for _, transcript := range summary.Transcripts {
		fmt.Fprintf(w, "  %s\n", filepath.Base(transcript))
	}
}

// writeStatsDiagnostic prints the statistics record of directory in
// CBOR diagnostic notation.
func writeStatsDiagnostic(w io.Writer, directory string) error {
	data, err := os.ReadFile(filepath.Join(directory, docsession.StatsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no statistics recorded in %s", directory)
		}
		return fmt.Errorf("reading statistics: %w", err)
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Errorf("decoding statistics: %w", err)
	}
	fmt.Fprintln(w, diagnostic)
	return nil
}

type sessionHistoryParams struct {
	settingsParams
	documentParams
	cli.JSONOutput
}

func sessionHistoryCommand() *cli.Command {
	var params sessionHistoryParams

	return &cli.Command{
		Name:    "history",
		Summary: "Print a document's recent conversation",
		Usage:   "quill session history <document> [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Usage("usage: quill session history <document>")
			}
			settings, err := params.load()
			if err != nil {
				return err
			}
			documentPath, root, err := params.resolve(args[0])
			if err != nil {
				return err
			}
			history, err := docsession.LoadHistory(newStore(settings, logger).SessionDirectory(documentPath, root))
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(os.Stdout, history); done {
				return err
			}
			writeHistory(os.Stdout, history)
			return nil
		},
	}
}

func writeHistory(w io.Writer, history docsession.History) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No conversation yet")
		return
	}
	for index, turn := range history {
		if index > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "[%s] %s\n", turn.Timestamp.Local().Format(time.DateTime), turn.Role)
		fmt.Fprintln(w, turn.Content)
	}
}

type sessionResetParams struct {
	settingsParams
	documentParams
}

func sessionResetCommand() *cli.Command {
	var params sessionResetParams

	return &cli.Command{
		Name:    "reset",
		Summary: "Forget a document's conversation",
		Description: `Delete the session directory of a document. The next run starts a new
conversation with the assistant.`,
		Usage:  "quill session reset <document> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Usage("usage: quill session reset <document>")
			}
			settings, err := params.load()
			if err != nil {
				return err
			}
			documentPath, root, err := params.resolve(args[0])
			if err != nil {
				return err
			}
			return resetSession(os.Stdout, settings, logger, documentPath, root)
		},
	}
}

func resetSession(w io.Writer, settings *config.Settings, logger *slog.Logger, documentPath, root string) error {
	if err := newStore(settings, logger).Reset(documentPath, root); err != nil {
		return err
	}
	logger.Info("session reset", "document", documentPath)
	fmt.Fprintf(w, "Reset session for %s\n", documentPath)
	return nil
}
