// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/quill/lib/agentproc"
	"github.com/bureau-foundation/quill/lib/clock"
	"github.com/bureau-foundation/quill/lib/config"
	"github.com/bureau-foundation/quill/lib/content"
	"github.com/bureau-foundation/quill/lib/docsession"
	"github.com/bureau-foundation/quill/lib/shellenv"
	"github.com/bureau-foundation/quill/lib/streamjson"
)

// maxStderrLine bounds one line of the assistant's standard error.
// Longer lines end line-oriented reading; the rest of the stream is
// discarded.
const maxStderrLine = 1024 * 1024

// Runner executes requests against one document at a time.
type Runner struct {
	// Settings configures the assistant. Nil means config.Default().
	Settings *config.Settings

	// Environment supplies the assistant's environment. Nil means a
	// ShellProvider using Settings.Shell.
	Environment shellenv.Provider

	// Supervisor starts the assistant. Nil means a Supervisor using
	// Clock and Logger, created on first use.
	Supervisor *agentproc.Supervisor

	// Sessions persists per-document state. Nil means a Store using
	// Settings.SessionNamespace.
	Sessions *docsession.Store

	// Clock measures run duration. Nil means the real clock.
	Clock clock.Clock

	// Logger receives lifecycle records. Nil disables logging.
	Logger *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Run executes request and blocks until the assistant has exited and
// its output has been processed. notify, if non-nil, receives
// notifications while the run is in progress. A second Run while one
// is in progress fails immediately with ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, request Request, notify NotifyFunc) Response {
	if !r.running.CompareAndSwap(false, true) {
		return failure(ErrRunInProgress, nil)
	}
	defer r.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	if notify == nil {
		notify = func(streamjson.Notification) {}
	}
	if r.Supervisor == nil {
		r.Supervisor = &agentproc.Supervisor{Clock: r.Clock, Logger: r.Logger}
	}

	start := r.clock().Now()
	execution := &execution{
		runner:      r,
		request:     request,
		settings:    r.settings(),
		notify:      notify,
		logger:      r.logger().With("document", request.DocumentPath),
		start:       start,
		interpreter: streamjson.NewInterpreter(),
	}
	response := execution.run(ctx)
	response.Duration = clock.Since(r.clock(), start)
	return response
}

// Terminate cancels the run in progress, if any. The process group is
// killed and Run returns a failure carrying ErrCancelled.
func (r *Runner) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// IsRunning reports whether a Run is in progress.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) settings() *config.Settings {
	if r.Settings == nil {
		return config.Default()
	}
	return r.Settings
}

func (r *Runner) clock() clock.Clock {
	if r.Clock == nil {
		return clock.Real()
	}
	return r.Clock
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) environment(settings *config.Settings) shellenv.Provider {
	if r.Environment != nil {
		return r.Environment
	}
	return &shellenv.ShellProvider{Shell: settings.Shell, Logger: r.Logger}
}

func (r *Runner) sessions(settings *config.Settings) *docsession.Store {
	if r.Sessions != nil {
		return r.Sessions
	}
	return &docsession.Store{Namespace: settings.SessionNamespace, Clock: r.Clock, Logger: r.Logger}
}

// execution is the state of one Run. Its methods run on the Run
// goroutine except the stream readers, which only send on a channel.
type execution struct {
	runner      *Runner
	request     Request
	settings    *config.Settings
	notify      NotifyFunc
	logger      *slog.Logger
	start       time.Time
	interpreter *streamjson.Interpreter

	output     []string
	stderr     strings.Builder
	warnings   []string
	transcript *docsession.TranscriptWriter
}

// streamItem is one line read from the process, or a diagnostic about
// a stream that could not be read to the end.
type streamItem struct {
	kind streamItemKind
	text string
}

type streamItemKind int

const (
	itemStdout streamItemKind = iota
	itemStderr
	itemDiagnostic
)

func (e *execution) run(ctx context.Context) Response {
	request := e.request
	settings := e.settings

	if request.DocumentPath == "" {
		return failure(ErrMissingDocument, nil)
	}
	if strings.TrimSpace(settings.ClaudePath) == "" {
		return failure(&ConfigurationError{Setting: "claude_path", Reason: "not set"}, nil)
	}

	environment := e.runner.environment(settings).Environment(ctx)
	home := environment["HOME"]
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	executable := shellenv.ResolveExecutable(settings.ClaudePath, environment, home)
	if strings.ContainsRune(executable, filepath.Separator) {
		// The child runs in another directory; pin a relative path to
		// ours so the check below and exec see the same file.
		absolute, err := filepath.Abs(executable)
		if err != nil {
			return failure(&ConfigurationError{Setting: "claude_path", Reason: err.Error()}, nil)
		}
		executable = absolute
	}
	if strings.ContainsRune(executable, filepath.Separator) && !shellenv.IsExecutable(executable) {
		return failure(&ConfigurationError{
			Setting: "claude_path",
			Reason:  fmt.Sprintf("%s is not an executable file", executable),
		}, nil)
	}

	store := e.runner.sessions(settings)
	session, err := store.GetSessionInfo(request.DocumentPath, request.RootDirectory)
	if err != nil {
		return failure(fmt.Errorf("resolving session: %w", err), nil)
	}
	e.openTranscript(store, session.Directory)

	if session.IsNew {
		e.status("Starting new session")
	} else {
		e.status("Resuming session: " + session.Token)
	}
	bypass := request.BypassPermissions || settings.Permissionless
	if bypass {
		e.status("Permission mode: bypassPermissions")
	} else {
		e.status("Permission mode: interactive")
	}
	if settings.AllowRootAccess && request.RootDirectory != "" {
		e.status("Root access enabled: " + request.RootDirectory)
	}
	workingDirectory := request.RootDirectory
	if workingDirectory == "" {
		workingDirectory = filepath.Dir(request.DocumentPath)
	}
	e.status("Working directory: " + workingDirectory)

	prompt := BuildPrompt(request, session.Directory, settings)
	arguments := BuildArguments(settings, session.Token, request.RootDirectory, request.BypassPermissions, request.ModelOverride)

	if ctx.Err() != nil {
		return e.fail(failure(ErrCancelled, nil), store, session.Directory)
	}

	handle, err := e.runner.Supervisor.Start(ctx, agentproc.Spec{
		Executable:       executable,
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
		Environment:      shellenv.Environ(environment),
		Timeout:          settings.Timeout(),
	})
	if err != nil {
		return e.fail(failure(fmt.Errorf("starting assistant: %w", err), nil), store, session.Directory)
	}
	e.logger.Info("assistant started",
		"pid", handle.PID(),
		"session_dir", session.Directory,
		"resumed", !session.IsNew,
	)

	// The prompt is written while both pipes are read: a child that
	// fills stdout or stderr before draining stdin would otherwise
	// block against us.
	written := make(chan error, 1)
	go func() {
		written <- handle.WriteInitialInput(prompt)
	}()

	e.consume(handle)
	if err := <-written; err != nil {
		// The exit status explains why.
		e.logger.Warn("writing prompt", "error", err)
	}
	exit := handle.Wait()

	parsed := e.interpreter.Output()
	response := Response{
		AssistantMessage: parsed.AssistantText,
		Output:           e.output,
		Usage:            parsed.Usage,
		ExitCode:         exit.Code,
	}

	if exitErr := classifyExit(exit, settings.Timeout(), e.stderr.String()); exitErr != nil {
		response.Error = exitErr.Error()
		response.Err = exitErr
		return e.fail(response, store, session.Directory)
	}

	e.persist(store, session, parsed)
	e.complete(&response, parsed.AssistantText)
	e.closeTranscript(store, session.Directory)
	response.Warnings = e.warnings

	e.logger.Info("run finished",
		"success", response.Success,
		"exit_code", exit.Code,
		"output_lines", len(e.output),
		"warnings", len(e.warnings),
		"duration", clock.Since(e.runner.clock(), e.start),
	)
	return response
}

// classifyExit returns the error for an exit that is not a clean
// success, or nil. Our own kills take precedence over the status they
// caused.
func classifyExit(exit agentproc.Exit, timeout time.Duration, stderr string) error {
	switch {
	case exit.Reason == agentproc.TerminationTimeout:
		return &TimeoutError{Timeout: timeout}
	case exit.Reason == agentproc.TerminationCancelled:
		return ErrCancelled
	case exit.Err != nil || exit.Code != 0 || exit.Signaled:
		return &ProcessExitError{Code: exit.Code, Signaled: exit.Signaled, Stderr: stderr, Err: exit.Err}
	}
	return nil
}

// consume reads stdout and stderr concurrently until both reach EOF,
// handling every line on the calling goroutine.
func (e *execution) consume(handle *agentproc.Handle) {
	items := make(chan streamItem, 64)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readStdout(handle.Stdout(), items)
	}()
	go func() {
		defer readers.Done()
		readStderr(handle.Stderr(), items)
	}()
	go func() {
		readers.Wait()
		close(items)
	}()

	for item := range items {
		switch item.kind {
		case itemStdout:
			e.handleLine(item.text)
		case itemStderr:
			e.handleStderr(item.text)
		case itemDiagnostic:
			e.logger.Warn("reading assistant output", "detail", item.text)
			e.status(item.text)
		}
	}
}

func readStdout(stdout io.Reader, items chan<- streamItem) {
	decoder := streamjson.NewDecoder(stdout)
	for line := range decoder.Lines() {
		items <- streamItem{kind: itemStdout, text: line}
	}
	if err := decoder.Err(); err != nil {
		items <- streamItem{kind: itemDiagnostic, text: fmt.Sprintf("reading stdout: %v", err)}
		_, _ = io.Copy(io.Discard, stdout)
	}
	if truncated := decoder.Truncated(); truncated > 0 {
		items <- streamItem{kind: itemDiagnostic, text: fmt.Sprintf("discarded %d bytes of incomplete output", truncated)}
	}
}

func readStderr(stderr io.Reader, items chan<- streamItem) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		items <- streamItem{kind: itemStderr, text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		items <- streamItem{kind: itemDiagnostic, text: fmt.Sprintf("reading stderr: %v", err)}
		_, _ = io.Copy(io.Discard, stderr)
	}
}

func (e *execution) handleLine(line string) {
	e.output = append(e.output, line)
	event := streamjson.Decode([]byte(line))
	if e.transcript != nil {
		if err := e.transcript.WriteLine(line, event); err != nil {
			e.transcriptFailed(err)
		}
	}
	if event.Kind == streamjson.KindUnrecognized && event.Unrecognized.Reason != streamjson.ReasonUnhandled {
		e.logger.Debug("undecodable output line", "reason", event.Unrecognized.Reason)
	}
	for _, notification := range e.interpreter.Interpret(event) {
		e.deliver(notification)
	}
}

func (e *execution) handleStderr(line string) {
	e.stderr.WriteString(line)
	e.stderr.WriteByte('\n')
	if e.transcript != nil {
		if err := e.transcript.WriteStderr(line); err != nil {
			e.transcriptFailed(err)
		}
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	e.deliver(streamjson.Notification{
		Kind:          streamjson.NotifyStderr,
		Text:          "[stderr] " + line,
		Authoritative: true,
	})
}

func (e *execution) status(text string) {
	e.deliver(streamjson.Notification{
		Kind:          streamjson.NotifyStatus,
		Text:          text,
		Authoritative: true,
	})
}

func (e *execution) deliver(notification streamjson.Notification) {
	if e.transcript != nil {
		if err := e.transcript.WriteNotification(notification); err != nil {
			e.transcriptFailed(err)
		}
	}
	e.notify(notification)
}

func (e *execution) warn(message string, err error) {
	e.logger.Warn(message, "error", err)
	e.warnings = append(e.warnings, fmt.Sprintf("%s: %v", message, err))
}

// persist saves the session token, history and stats after a clean
// exit. Failures become warnings.
func (e *execution) persist(store *docsession.Store, session docsession.Session, parsed streamjson.ParsedOutput) {
	if token := e.interpreter.SessionID(); token != "" {
		if err := store.SaveSessionToken(session.Directory, token); err != nil {
			e.warn("saving session token", err)
		} else if token != session.Token {
			e.status("Session saved: " + token)
		}
	}

	if parsed.AssistantText != "" {
		if err := store.AppendHistory(session.Directory, e.request.Instruction, parsed.AssistantText); err != nil {
			e.warn("saving conversation history", err)
		}
	}

	var cost float64
	if parsed.Result != nil {
		cost = parsed.Result.CostUSD
	}
	if _, err := store.RecordRun(session.Directory, e.request.DocumentPath, parsed.Usage, cost); err != nil {
		e.warn("recording run statistics", err)
	}
}

// complete classifies the assistant's text into an edit, a
// conversational answer or a failure.
func (e *execution) complete(response *Response, text string) {
	extraction := content.ExtractFinalContent(text)
	response.PermissionRequest = content.DetectPermissionRequest(text)
	elapsed := clock.Since(e.runner.clock(), e.start).Seconds()

	switch {
	case extraction.HasChanges && extraction.Content == "":
		response.Error = ErrEmptyContent.Error()
		response.Err = ErrEmptyContent
		e.status("✗ " + response.Error)
	case extraction.HasChanges:
		document := extraction.Content
		if e.settings.UnwrapFencedContent {
			document = content.UnwrapFence(document)
		}
		response.Success = true
		response.Content = document
		e.status(fmt.Sprintf("✓ Completed successfully in %.2fs", elapsed))
	case text != "":
		response.Success = true
		if response.PermissionRequest {
			e.status("⚠ Permission request detected, waiting for approval")
		} else {
			e.status(fmt.Sprintf("✓ Analysis completed (no document changes) in %.2fs", elapsed))
		}
	default:
		response.Error = ErrNoAnswer.Error()
		response.Err = ErrNoAnswer
		e.status("✗ " + response.Error)
	}
}

// fail reports a failed response, closes the transcript and attaches
// warnings.
func (e *execution) fail(response Response, store *docsession.Store, directory string) Response {
	e.status("✗ " + response.Error)
	e.logger.Warn("assistant failed",
		"error", response.Err,
		"stderr", strings.TrimSpace(e.stderr.String()),
	)
	e.closeTranscript(store, directory)
	if response.Output == nil {
		response.Output = e.output
	}
	response.Warnings = e.warnings
	return response
}

func (e *execution) openTranscript(store *docsession.Store, directory string) {
	if e.settings.TranscriptRetention <= 0 {
		return
	}
	compression, err := docsession.ParseCompression(e.settings.TranscriptCompression)
	if err != nil {
		e.warn("opening transcript", err)
		return
	}
	transcript, err := store.CreateTranscript(directory, compression)
	if err != nil {
		e.warn("opening transcript", err)
		return
	}
	e.transcript = transcript
}

// transcriptFailed stops transcript recording after the first write
// error.
func (e *execution) transcriptFailed(err error) {
	e.warn("writing transcript", err)
	_ = e.transcript.Close()
	e.transcript = nil
}

func (e *execution) closeTranscript(store *docsession.Store, directory string) {
	if e.transcript == nil {
		return
	}
	transcript := e.transcript
	e.transcript = nil
	if err := transcript.Close(); err != nil {
		e.warn("closing transcript", err)
	}
	if err := store.PruneTranscripts(directory, e.settings.TranscriptRetention); err != nil {
		e.warn("pruning transcripts", err)
	}
}
