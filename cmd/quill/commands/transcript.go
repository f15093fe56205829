// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/lib/docsession"
)

type transcriptParams struct {
	settingsParams
	documentParams
	cli.JSONOutput
	Raw   bool `json:"-" flag:"raw" desc:"print the raw process output instead of the rendered notifications"`
	Index int  `json:"-" flag:"index,n" desc:"which transcript to show, counting back from the newest (0 is the newest)"`
}

func transcriptCommand() *cli.Command {
	var params transcriptParams

	return &cli.Command{
		Name:    "transcript",
		Summary: "Replay the transcript of a recent run",
		Description: `Replay a recorded run of the assistant for a document.

Every run records the raw stream-json output, stderr and the
notifications derived from them. By default the newest transcript is
rendered the way "quill run" printed it; --raw prints the process
output verbatim.`,
		Usage:  "quill transcript <document> [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Replay the previous run of a note",
				Command:     "quill transcript notes/plan.md --index 1",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Usage("usage: quill transcript <document>")
			}
			if params.Index < 0 {
				return cli.Usage("--index must not be negative")
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
			path, err := selectTranscript(directory, params.Index)
			if err != nil {
				return err
			}
			entries, err := docsession.ReadTranscript(path)
			if err != nil {
				// A run killed mid-write leaves a truncated tail; show
				// what could be read.
				if len(entries) == 0 {
					return err
				}
				logger.Warn("transcript is incomplete", "path", path, "error", err)
			}
			if done, err := params.EmitJSON(os.Stdout, entries); done {
				return err
			}
			printer := cli.NewPrinter(os.Stdout, cli.DetectProfile(os.Stdout), cli.TerminalWidth(os.Stdout, 0))
			replayTranscript(os.Stdout, printer, entries, params.Raw)
			return nil
		},
	}
}

// selectTranscript returns the transcript index places back from the
// newest.
func selectTranscript(directory string, index int) (string, error) {
	paths, err := docsession.ListTranscripts(directory)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no transcripts in %s", directory)
	}
	if index >= len(paths) {
		return "", cli.Usage("--index %d out of range: %d transcripts recorded", index, len(paths))
	}
	return paths[len(paths)-1-index], nil
}

func replayTranscript(w io.Writer, printer *cli.Printer, entries []docsession.TranscriptEntry, raw bool) {
	for _, entry := range entries {
		switch entry.Kind {
		case docsession.EntryLine:
			if raw {
				fmt.Fprintln(w, entry.Line)
			}
		case docsession.EntryStderr:
			if raw {
				fmt.Fprintf(w, "[stderr] %s\n", entry.Line)
			}
		case docsession.EntryNotification:
			if !raw && entry.Notification != nil {
				printer.Notify(*entry.Notification)
			}
		case docsession.EntrySummary:
			if entry.Summary != nil {
				printer.Finish()
				writeTranscriptSummary(w, *entry.Summary)
			}
		}
	}
	printer.Finish()
}

func writeTranscriptSummary(w io.Writer, summary docsession.TranscriptSummary) {
	fmt.Fprintf(w, "--- %d lines, %d stderr, %d tool calls, %d unrecognized; %d in / %d out tokens",
		summary.LineCount, summary.StderrLineCount, summary.ToolActivityCount, summary.UnrecognizedCount,
		summary.InputTokens, summary.OutputTokens)
	if summary.CostUSD > 0 {
		fmt.Fprintf(w, "; $%.4f", summary.CostUSD)
	}
	fmt.Fprintf(w, "; %s\n", summary.Duration.Round(time.Millisecond))
}
