// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/bureau-foundation/quill/cmd/quill/cli"
	"github.com/bureau-foundation/quill/lib/shellenv"
)

type envParams struct {
	settingsParams
	cli.JSONOutput
	All bool `json:"-" flag:"all,a" desc:"print every variable, with secret-looking values masked"`
}

// environmentReport is the JSON form of "env".
type environmentReport struct {
	Shell      string            `json:"shell"`
	Executable string            `json:"executable"`
	Found      bool              `json:"found"`
	Variables  map[string]string `json:"variables,omitempty"`
}

func envCommand() *cli.Command {
	var params envParams

	return &cli.Command{
		Name:    "env",
		Summary: "Show the environment the assistant is started with",
		Description: `Load the login-shell environment the assistant is started with and
report which executable would be run.

This is the first thing to check when the assistant cannot be found or
fails to authenticate: it shows the PATH and HOME the process sees.`,
		Usage:  "quill env [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Usage("unexpected argument: %s", args[0])
			}
			settings, err := params.load()
			if err != nil {
				return err
			}
			provider := &shellenv.ShellProvider{Shell: settings.Shell, Logger: logger}
			if !params.OutputJSON {
				provider.Diagnostic = func(line string) { fmt.Fprintln(os.Stderr, line) }
			}
			environment := provider.Environment(ctx)
			report := buildEnvironmentReport(settings.ClaudePath, environment, params.All)
			report.Shell = settings.Shell
			if done, err := params.EmitJSON(os.Stdout, report); done {
				return err
			}
			writeEnvironmentReport(os.Stdout, report)
			return nil
		},
	}
}

func buildEnvironmentReport(executable string, environment map[string]string, all bool) environmentReport {
	resolved := shellenv.ResolveExecutable(executable, environment, environment["HOME"])
	report := environmentReport{
		Executable: resolved,
		Found:      shellenv.IsExecutable(resolved),
	}
	if all {
		report.Variables = make(map[string]string, len(environment))
		for key, value := range environment {
			report.Variables[key] = shellenv.MaskValue(key, value)
		}
	}
	return report
}

func writeEnvironmentReport(w io.Writer, report environmentReport) {
	status := "found"
	if !report.Found {
		status = "not found"
	}
	fmt.Fprintf(w, "Executable: %s (%s)\n", report.Executable, status)
	if len(report.Variables) == 0 {
		return
	}
	keys := make([]string, 0, len(report.Variables))
	for key := range report.Variables {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "%s=%s\n", key, report.Variables[key])
	}
}
