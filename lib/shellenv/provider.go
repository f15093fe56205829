// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Default limits for the shell invocation.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxOutput = 10 << 20
)

// Provider produces the environment for the assistant process.
// Implementations must not return an error: on failure they degrade
// to whatever environment they can produce.
type Provider interface {
	Environment(ctx context.Context) map[string]string
}

// StaticProvider returns a copy of a fixed map.
type StaticProvider map[string]string

// Environment returns a copy of the map so callers may modify it.
func (p StaticProvider) Environment(context.Context) map[string]string {
	return maps.Clone(map[string]string(p))
}

// ShellProvider sources the user's shell startup files and captures
// the resulting environment.
type ShellProvider struct {
	// Shell is the shell binary. Empty means $SHELL, then /bin/zsh.
	Shell string

	// Timeout bounds the shell invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxOutput bounds the bytes read from the shell's stdout. Zero
	// means DefaultMaxOutput.
	MaxOutput int

	// Fallback returns the environment used when the shell cannot be
	// run. Nil means os.Environ.
	Fallback func() []string

	// Logger receives debug-level records about the load. Nil
	// disables logging.
	Logger *slog.Logger

	// Diagnostic, when set, receives human-readable lines describing
	// what was loaded. Secret-looking values are masked.
	Diagnostic func(string)
}

// importantVariables are reported first in diagnostics.
var importantVariables = []string{"PATH", "HOME", "SHELL", "USER", "ANTHROPIC_API_KEY", "NODE_ENV"}

// Environment runs the shell and returns its environment, or the
// fallback environment if anything goes wrong.
func (p *ShellProvider) Environment(ctx context.Context) map[string]string {
	shell := p.shell()
	p.diagnose("Loading environment from shell: %s", shell)

	start := time.Now()
	environment, err := p.load(ctx, shell)
	duration := time.Since(start)

	if err != nil {
		p.diagnose("Failed to load shell environment: %v", err)
		p.diagnose("Falling back to the host environment")
		if p.Logger != nil {
			p.Logger.Debug("shell environment unavailable, using host environment",
				"shell", shell,
				"duration", duration,
				"error", err,
			)
		}
		return p.fallback()
	}

	p.diagnose("Shell environment loaded in %dms (%d variables)", duration.Milliseconds(), len(environment))
	if p.Diagnostic != nil {
		for _, key := range importantVariables {
			if value, ok := environment[key]; ok {
				p.diagnose("  %s=%s", key, MaskValue(key, value))
			}
		}
	}
	if p.Logger != nil {
		p.Logger.Debug("loaded shell environment",
			"shell", shell,
			"duration", duration,
			"variable_count", len(environment),
		)
	}
	return environment
}

func (p *ShellProvider) shell() string {
	if p.Shell != "" {
		return p.Shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/zsh"
}

// shellArguments returns the arguments that make shell print its
// fully initialized environment. zsh and bash source their startup
// files explicitly because -l -i is unreliable without a terminal.
func shellArguments(shell string) []string {
	name := filepath.Base(shell)
	switch {
	case strings.Contains(name, "zsh"):
		return []string{"-c", "source ~/.zprofile 2>/dev/null; source ~/.zshrc 2>/dev/null; env"}
	case strings.Contains(name, "bash"):
		return []string{"-c", "source ~/.bash_profile 2>/dev/null; source ~/.bashrc 2>/dev/null; env"}
	default:
		return []string{"-l", "-i", "-c", "env"}
	}
}

var errOutputTooLarge = errors.New("shell output exceeds limit")

func (p *ShellProvider) load(ctx context.Context, shell string) (map[string]string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := p.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := exec.CommandContext(ctx, shell, shellArguments(shell)...)
	command.Stdin = nil
	command.Stderr = io.Discard
	// Startup files may background helpers that inherit stdout.
	command.WaitDelay = timeout / 5
	stdout := &limitedBuffer{limit: maxOutput}
	command.Stdout = stdout

	if err := command.Run(); err != nil {
		if stdout.overflowed {
			return nil, fmt.Errorf("running %s: %w", shell, errOutputTooLarge)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("running %s: timed out after %s", shell, timeout)
		}
		return nil, fmt.Errorf("running %s: %w", shell, err)
	}

	environment := Parse(stdout.Bytes())
	if len(environment) == 0 {
		return nil, fmt.Errorf("running %s: no environment variables in output", shell)
	}
	return environment, nil
}

func (p *ShellProvider) fallback() map[string]string {
	fallback := p.Fallback
	if fallback == nil {
		fallback = os.Environ
	}
	return Parse([]byte(strings.Join(fallback(), "\n")))
}

func (p *ShellProvider) diagnose(format string, args ...any) {
	if p.Diagnostic != nil {
		p.Diagnostic(fmt.Sprintf(format, args...))
	}
}

// Parse parses KEY=VALUE lines. The first "=" separates key from
// value; lines without one or with an empty key are skipped. Later
// duplicates win.
func Parse(output []byte) map[string]string {
	environment := make(map[string]string)
	for line := range strings.SplitSeq(string(output), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found || key == "" {
			continue
		}
		environment[key] = value
	}
	return environment
}

// limitedBuffer is a bytes.Buffer that refuses writes past limit.
type limitedBuffer struct {
	bytes.Buffer
	limit      int
	overflowed bool
}

func (b *limitedBuffer) Write(data []byte) (int, error) {
	if b.Len()+len(data) > b.limit {
		b.overflowed = true
		return 0, errOutputTooLarge
	}
	return b.Buffer.Write(data)
}
