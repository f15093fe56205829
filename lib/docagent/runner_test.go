// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/quill/lib/agentproc"
	"github.com/bureau-foundation/quill/lib/clock"
	"github.com/bureau-foundation/quill/lib/config"
	"github.com/bureau-foundation/quill/lib/docsession"
	"github.com/bureau-foundation/quill/lib/shellenv"
	"github.com/bureau-foundation/quill/lib/streamjson"
	"github.com/bureau-foundation/quill/lib/testutil"
)

const (
	initRecord   = `{"type":"system","subtype":"init","session_id":"sess-1","model":"sonnet"}`
	resultRecord = `{"type":"result","subtype":"success","session_id":"sess-1","total_cost_usd":0.01,"usage":{"input_tokens":100,"output_tokens":50}}`
)

// textRecord returns a text delta record. text must already be
// JSON-escaped.
func textRecord(text string) string {
	return `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"` + text + `"}}}`
}

// testHarness is a Runner wired to a fake assistant script and a
// temporary workspace.
type testHarness struct {
	runner    *Runner
	root      string
	scriptDir string
	document  string
	store     *docsession.Store
}

func newHarness(t *testing.T, scriptBody string) *testHarness {
	t.Helper()
	root := t.TempDir()
	scriptDir := t.TempDir()
	script := testutil.WriteScript(t, scriptDir, "claude", scriptBody)

	settings := config.Default()
	settings.ClaudePath = script
	store := &docsession.Store{}
	return &testHarness{
		runner: &Runner{
			Settings:    settings,
			Environment: shellenv.StaticProvider{"PATH": "/usr/bin:/bin", "HOME": root},
			Sessions:    store,
		},
		root:      root,
		scriptDir: scriptDir,
		document:  filepath.Join(root, "note.md"),
		store:     store,
	}
}

func (h *testHarness) request(instruction string) Request {
	return Request{
		DocumentText:  "# Note\n\nBody.\n",
		DocumentPath:  h.document,
		RootDirectory: h.root,
		Instruction:   instruction,
	}
}

// recordingScript wraps a StreamScript so the fake assistant saves its
// arguments and stdin in the script directory.
func recordingScript(scriptDir string, exitCode int, records ...string) string {
	body := testutil.StreamScript(exitCode, records...)
	body = strings.Replace(body, "cat > /dev/null", "cat > "+filepath.Join(scriptDir, "stdin.json"), 1)
	return "printf '%s\\n' \"$@\" > " + filepath.Join(scriptDir, "args.txt") + "\n" + body
}

// collector records notifications.
type collector struct {
	mu            sync.Mutex
	notifications []streamjson.Notification
}

func (c *collector) notify(notification streamjson.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, notification)
}

func (c *collector) find(kind streamjson.NotificationKind, substring string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, notification := range c.notifications {
		if notification.Kind == kind && strings.Contains(notification.Text, substring) {
			return true
		}
	}
	return false
}

func TestRunEditSuccess(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	harness := newHarness(t, recordingScript(scriptDir, 0,
		initRecord,
		textRecord(`I will add a heading.\n`),
		textRecord(`---FINAL-CONTENT---\n# Note\n\n## Summary\n`),
		resultRecord,
	))

	var notes collector
	response := harness.runner.Run(context.Background(), harness.request("add a summary heading"), notes.notify)

	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if response.Content != "# Note\n\n## Summary" {
		t.Errorf("Content = %q", response.Content)
	}
	if !strings.HasPrefix(response.AssistantMessage, "I will add a heading.") {
		t.Errorf("AssistantMessage = %q", response.AssistantMessage)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 150 {
		t.Errorf("Usage = %+v, want 150 total tokens", response.Usage)
	}
	if len(response.Output) != 4 {
		t.Errorf("Output has %d lines, want 4", len(response.Output))
	}
	if response.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", response.ExitCode)
	}
	if len(response.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", response.Warnings)
	}

	for _, want := range []struct {
		kind streamjson.NotificationKind
		text string
	}{
		{streamjson.NotifyStatus, "Starting new session"},
		{streamjson.NotifyStatus, "Permission mode: interactive"},
		{streamjson.NotifyStatus, "Root access enabled: " + harness.root},
		{streamjson.NotifySession, "sess-1"},
		{streamjson.NotifyText, "I will add a heading."},
		{streamjson.NotifyComplete, "150 tokens"},
		{streamjson.NotifyStatus, "Completed successfully"},
	} {
		if !notes.find(want.kind, want.text) {
			t.Errorf("missing %s notification containing %q", want.kind, want.text)
		}
	}

	// The assistant received the prompt as one user record.
	stdin, err := os.ReadFile(filepath.Join(scriptDir, "stdin.json"))
	if err != nil {
		t.Fatalf("reading recorded stdin: %v", err)
	}
	if !strings.HasPrefix(string(stdin), `{"type":"user"`) || !strings.Contains(string(stdin), "add a summary heading") {
		t.Errorf("stdin = %q", stdin)
	}
	arguments, err := os.ReadFile(filepath.Join(scriptDir, "args.txt"))
	if err != nil {
		t.Fatalf("reading recorded arguments: %v", err)
	}
	if strings.Contains(string(arguments), "--resume") {
		t.Errorf("new session passed --resume: %q", arguments)
	}

	directory := harness.store.SessionDirectory(harness.document, harness.root)
	token, err := docsession.ReadToken(directory)
	if err != nil || token != "sess-1" {
		t.Errorf("saved token = %q, %v; want sess-1", token, err)
	}
	history, err := docsession.LoadHistory(directory)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 2 || history[0].Content != "add a summary heading" {
		t.Errorf("history = %+v", history)
	}
	stats, err := docsession.LoadStats(directory)
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if stats.Runs != 1 || stats.TotalTokens() != 150 {
		t.Errorf("stats = %+v, want 1 run and 150 tokens", stats)
	}
	transcripts, err := docsession.ListTranscripts(directory)
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	if len(transcripts) != 1 {
		t.Fatalf("transcripts = %v, want 1", transcripts)
	}
	entries, err := docsession.ReadTranscript(transcripts[0])
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Kind != docsession.EntrySummary || last.Summary == nil || last.Summary.LineCount != 4 {
		t.Errorf("last transcript entry = %+v, want summary of 4 lines", last)
	}
}

func TestRunResumesSession(t *testing.T) {
	t.Parallel()

	scriptDir := t.TempDir()
	harness := newHarness(t, recordingScript(scriptDir, 0,
		`{"type":"system","subtype":"init","session_id":"sess-new"}`,
		textRecord("Still here."),
		resultRecord,
	))
	session, err := harness.store.GetSessionInfo(harness.document, harness.root)
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if err := harness.store.SaveSessionToken(session.Directory, "sess-old"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}

	var notes collector
	response := harness.runner.Run(context.Background(), harness.request("are you there?"), notes.notify)
	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if !notes.find(streamjson.NotifyStatus, "Resuming session: sess-old") {
		t.Error("missing resume status")
	}

	arguments, err := os.ReadFile(filepath.Join(scriptDir, "args.txt"))
	if err != nil {
		t.Fatalf("reading recorded arguments: %v", err)
	}
	if !strings.Contains(string(arguments), "--resume\nsess-old\n") {
		t.Errorf("arguments = %q, want --resume sess-old", arguments)
	}

	token, err := docsession.ReadToken(session.Directory)
	if err != nil || token != "sess-new" {
		t.Errorf("saved token = %q, %v; want sess-new", token, err)
	}
}

func TestRunClassifiesAnswers(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name       string
		records    []string
		success    bool
		content    string
		permission bool
		err        error
		status     string
	}
	tests := []testCase{
		{
			name:    "conversational",
			records: []string{initRecord, textRecord("The structure is clear."), resultRecord},
			success: true,
			status:  "Analysis completed",
		},
		{
			name:       "permission request",
			records:    []string{initRecord, textRecord("I need to run a command. REQUIRED_APPROVAL"), resultRecord},
			success:    true,
			permission: true,
			status:     "Permission request detected",
		},
		{
			name:    "empty document after delimiter",
			records: []string{initRecord, textRecord(`Done.\n---FINAL-CONTENT---\n   \n`), resultRecord},
			err:     ErrEmptyContent,
		},
		{
			name:    "no text",
			records: []string{initRecord, resultRecord},
			err:     ErrNoAnswer,
		},
		{
			name: "message without deltas",
			records: []string{
				initRecord,
				`{"type":"assistant","message":{"content":[{"type":"text","text":"Edited.\n---FINAL-CONTENT---\nNew body"}]}}`,
				resultRecord,
			},
			success: true,
			content: "New body",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			harness := newHarness(t, testutil.StreamScript(0, test.records...))
			var notes collector
			response := harness.runner.Run(context.Background(), harness.request("check"), notes.notify)

			if response.Success != test.success {
				t.Fatalf("Success = %v, want %v (error %q)", response.Success, test.success, response.Error)
			}
			if response.Content != test.content {
				t.Errorf("Content = %q, want %q", response.Content, test.content)
			}
			if response.PermissionRequest != test.permission {
				t.Errorf("PermissionRequest = %v, want %v", response.PermissionRequest, test.permission)
			}
			if test.err != nil && !errors.Is(response.Err, test.err) {
				t.Errorf("Err = %v, want %v", response.Err, test.err)
			}
			if test.status != "" && !notes.find(streamjson.NotifyStatus, test.status) {
				t.Errorf("missing status containing %q", test.status)
			}
		})
	}
}

func TestRunUnwrapsFencedContent(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, testutil.StreamScript(0,
		initRecord,
		textRecord("---FINAL-CONTENT---\\n```markdown\\n# Title\\n\\nText.\\n```\\n"),
		resultRecord,
	))
	harness.runner.Settings.UnwrapFencedContent = true

	response := harness.runner.Run(context.Background(), harness.request("rewrite"), nil)
	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if response.Content != "# Title\n\nText." {
		t.Errorf("Content = %q, want fence removed", response.Content)
	}
}

func TestRunMalformedLineDoesNotStopStream(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, testutil.StreamScript(0,
		initRecord,
		`{not json`,
		textRecord("Answer."),
		resultRecord,
	))
	var notes collector
	response := harness.runner.Run(context.Background(), harness.request("question"), notes.notify)

	if !response.Success || response.AssistantMessage != "Answer." {
		t.Fatalf("response = %+v, want conversational success", response)
	}
	if len(response.Output) != 4 || response.Output[1] != "{not json" {
		t.Errorf("Output = %q, want the malformed line preserved in order", response.Output)
	}

	notes.mu.Lock()
	defer notes.mu.Unlock()
	var raw []streamjson.Notification
	for _, notification := range notes.notifications {
		if notification.Kind == streamjson.NotifyRaw {
			raw = append(raw, notification)
		}
	}
	if len(raw) != 1 {
		t.Fatalf("got %d raw notifications, want 1", len(raw))
	}
	if raw[0].Authoritative {
		t.Error("raw notification marked authoritative")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, "echo 'authentication failed' >&2\n"+testutil.StreamScript(3, initRecord))
	var notes collector
	response := harness.runner.Run(context.Background(), harness.request("edit"), notes.notify)

	if response.Success {
		t.Fatal("Success = true for exit code 3")
	}
	var exitErr *ProcessExitError
	if !errors.As(response.Err, &exitErr) {
		t.Fatalf("Err = %v, want *ProcessExitError", response.Err)
	}
	if exitErr.Code != 3 || response.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", exitErr.Code, response.ExitCode)
	}
	if !strings.Contains(response.Error, "authentication failed") {
		t.Errorf("Error = %q, want stderr included", response.Error)
	}
	if len(response.Output) != 1 {
		t.Errorf("Output = %q, want the captured init line", response.Output)
	}
	if !notes.find(streamjson.NotifyStderr, "[stderr] authentication failed") {
		t.Error("stderr line was not forwarded")
	}

	// A failed run does not record the session token.
	token, err := docsession.ReadToken(harness.store.SessionDirectory(harness.document, harness.root))
	if err != nil || token != "" {
		t.Errorf("token = %q, %v; want none saved", token, err)
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	harness := newHarness(t, blockingScript)
	harness.runner.Settings.TimeoutSeconds = 30
	harness.runner.Supervisor = &agentproc.Supervisor{Clock: fakeClock}

	responses := startBlockingRun(t, harness.runner, harness.request("slow"))
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(30 * time.Second)

	response := testutil.RequireReceive(t, responses, 10*time.Second, "waiting for timed-out run")
	if response.Success {
		t.Fatal("Success = true after timeout")
	}
	var timeoutErr *TimeoutError
	if !errors.As(response.Err, &timeoutErr) {
		t.Fatalf("Err = %v, want *TimeoutError", response.Err)
	}
	if timeoutErr.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", timeoutErr.Timeout)
	}
	if !strings.Contains(response.Error, "timed out") {
		t.Errorf("Error = %q", response.Error)
	}
	if len(response.Output) != 1 {
		t.Errorf("Output = %q, want the line captured before the timeout", response.Output)
	}
}

// startBlockingRun starts a run whose assistant prints its init record
// and then sleeps, and returns once the init notification arrived.
func startBlockingRun(t *testing.T, runner *Runner, request Request) <-chan Response {
	t.Helper()
	started := make(chan struct{})
	var once sync.Once
	responses := make(chan Response, 1)
	go func() {
		responses <- runner.Run(context.Background(), request, func(notification streamjson.Notification) {
			if notification.Kind == streamjson.NotifySession {
				once.Do(func() { close(started) })
			}
		})
	}()
	testutil.RequireClosed(t, started, 10*time.Second, "waiting for assistant to start")
	return responses
}

const blockingScript = "cat > /dev/null\nprintf '%s\\n' '" + initRecord + "'\nsleep 60\n"

func TestRunTerminate(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, blockingScript)
	responses := startBlockingRun(t, harness.runner, harness.request("long task"))
	if !harness.runner.IsRunning() {
		t.Fatal("IsRunning = false during a run")
	}

	harness.runner.Terminate()
	response := testutil.RequireReceive(t, responses, 10*time.Second, "waiting for terminated run")
	if !errors.Is(response.Err, ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", response.Err)
	}
	if harness.runner.IsRunning() {
		t.Error("IsRunning = true after the run returned")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, blockingScript)
	responses := startBlockingRun(t, harness.runner, harness.request("first"))

	second := harness.runner.Run(context.Background(), harness.request("second"), nil)
	if second.Success || !errors.Is(second.Err, ErrRunInProgress) {
		t.Errorf("second Run = %+v, want ErrRunInProgress", second)
	}

	harness.runner.Terminate()
	testutil.RequireReceive(t, responses, 10*time.Second, "waiting for first run")
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name       string
		claudePath string
	}
	tests := []testCase{
		{name: "empty path", claudePath: "  "},
		{name: "missing file", claudePath: "/nonexistent/quill-test/claude"},
		{name: "missing relative file", claudePath: "quill-test-missing/claude"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			harness := newHarness(t, "exit 0\n")
			harness.runner.Settings.ClaudePath = test.claudePath

			response := harness.runner.Run(context.Background(), harness.request("edit"), nil)
			var configErr *ConfigurationError
			if !errors.As(response.Err, &configErr) {
				t.Fatalf("Err = %v, want *ConfigurationError", response.Err)
			}
			if configErr.Setting != "claude_path" {
				t.Errorf("Setting = %q, want claude_path", configErr.Setting)
			}
			if strings.Contains(test.claudePath, "/") && !strings.Contains(configErr.Reason, string(filepath.Separator)+strings.TrimPrefix(test.claudePath, "/")) {
				t.Errorf("Reason = %q, want the resolved path", configErr.Reason)
			}
		})
	}
}

func TestRunSpawnError(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, "exit 0\n")
	harness.runner.Settings.ClaudePath = "quill-test-no-such-assistant"

	response := harness.runner.Run(context.Background(), harness.request("edit"), nil)
	var spawnErr *agentproc.SpawnError
	if !errors.As(response.Err, &spawnErr) {
		t.Fatalf("Err = %v, want *agentproc.SpawnError", response.Err)
	}
	if response.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", response.ExitCode)
	}
}

func TestRunPersistenceFailureIsWarning(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, testutil.StreamScript(0, initRecord, textRecord("Fine."), resultRecord))
	directory := harness.store.SessionDirectory(harness.document, harness.root)
	// A directory where the history file belongs makes the write fail.
	blocker := filepath.Join(directory, docsession.HistoryFile)
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatalf("creating blocker: %v", err)
	}
	if err := os.WriteFile(filepath.Join(blocker, "keep"), nil, 0o644); err != nil {
		t.Fatalf("populating blocker: %v", err)
	}

	response := harness.runner.Run(context.Background(), harness.request("question"), nil)
	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if len(response.Warnings) == 0 {
		t.Fatal("Warnings empty, want the history failure")
	}
	if !strings.Contains(strings.Join(response.Warnings, "\n"), "conversation history") {
		t.Errorf("Warnings = %q", response.Warnings)
	}
	token, err := docsession.ReadToken(directory)
	if err != nil || token != "sess-1" {
		t.Errorf("token = %q, %v; want sess-1 saved despite history failure", token, err)
	}
}

func TestRunMissingDocument(t *testing.T) {
	t.Parallel()

	harness := newHarness(t, "exit 0\n")
	request := harness.request("edit")
	request.DocumentPath = ""
	response := harness.runner.Run(context.Background(), request, nil)
	if !errors.Is(response.Err, ErrMissingDocument) {
		t.Errorf("Err = %v, want ErrMissingDocument", response.Err)
	}
}

// TestRunRelativeExecutable runs the assistant through a relative path
// while the child's working directory is somewhere else. It changes the
// process working directory, so it cannot run in parallel.
func TestRunRelativeExecutable(t *testing.T) {
	harness := newHarness(t, testutil.StreamScript(0, initRecord, textRecord("Looks fine."), resultRecord))
	t.Chdir(filepath.Dir(harness.scriptDir))
	harness.runner.Settings.ClaudePath = filepath.Join(filepath.Base(harness.scriptDir), "claude")

	response := harness.runner.Run(context.Background(), harness.request("review"), nil)
	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if response.AssistantMessage != "Looks fine." {
		t.Errorf("AssistantMessage = %q, want %q", response.AssistantMessage, "Looks fine.")
	}
}

func TestRunLargePromptWhileStderrFloods(t *testing.T) {
	t.Parallel()

	// The assistant fills the stderr pipe several times over before it
	// reads any of its input.
	body := "yes 'warning: indexing workspace files before reading input' | head -n 5000 >&2\n" +
		testutil.StreamScript(0, initRecord, textRecord("Read it all."), resultRecord)
	harness := newHarness(t, body)
	harness.runner.Settings.TimeoutSeconds = 20

	request := harness.request("summarize")
	request.DocumentText = strings.Repeat("A line of a long document that keeps going.\n", 6000)
	if len(request.DocumentText) < 256*1024 {
		t.Fatalf("document is %d bytes, want more than 256 KiB", len(request.DocumentText))
	}

	var notes collector
	response := harness.runner.Run(context.Background(), request, notes.notify)
	if !response.Success {
		t.Fatalf("Success = false, error = %q", response.Error)
	}
	if response.AssistantMessage != "Read it all." {
		t.Errorf("AssistantMessage = %q", response.AssistantMessage)
	}
	if !notes.find(streamjson.NotifyStderr, "[stderr] warning: indexing workspace files") {
		t.Error("stderr lines were not forwarded")
	}
}

func TestClassifyExit(t *testing.T) {
	t.Parallel()

	waitErr := errors.New("no child processes")
	type testCase struct {
		name    string
		exit    agentproc.Exit
		wantNil bool
		target  error
		message string
	}
	tests := []testCase{
		{name: "clean exit", exit: agentproc.Exit{}, wantNil: true},
		{
			name:    "timeout beats the kill status",
			exit:    agentproc.Exit{Code: -1, Signaled: true, Reason: agentproc.TerminationTimeout},
			message: "timed out after 30s",
		},
		{
			name:   "cancelled",
			exit:   agentproc.Exit{Code: -1, Signaled: true, Reason: agentproc.TerminationCancelled},
			target: ErrCancelled,
		},
		{
			name:    "non-zero exit carries stderr",
			exit:    agentproc.Exit{Code: 2},
			message: "assistant exited with code 2: rate limited",
		},
		{
			name:    "wait failure carries stderr",
			exit:    agentproc.Exit{Code: -1, Err: waitErr},
			target:  waitErr,
			message: "waiting for assistant: no child processes: rate limited",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := classifyExit(test.exit, 30*time.Second, "rate limited\n")
			if test.wantNil {
				if err != nil {
					t.Fatalf("classifyExit = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("classifyExit = nil, want an error")
			}
			if test.target != nil && !errors.Is(err, test.target) {
				t.Errorf("classifyExit = %v, want it to wrap %v", err, test.target)
			}
			if test.message != "" && err.Error() != test.message && !strings.Contains(err.Error(), test.message) {
				t.Errorf("message = %q, want %q", err.Error(), test.message)
			}
		})
	}
}
