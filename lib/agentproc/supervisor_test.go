// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentproc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quill/lib/clock"
	"github.com/bureau-foundation/quill/lib/testutil"
)

// drainAndWait reads both streams to EOF and reaps the process.
func drainAndWait(t *testing.T, handle *Handle) (string, string, Exit) {
	t.Helper()

	stderrDone := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(handle.Stderr())
		stderrDone <- string(data)
	}()
	stdout, err := io.ReadAll(handle.Stdout())
	if err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	stderr := testutil.RequireReceive(t, stderrDone, 10*time.Second, "waiting for stderr EOF")
	return string(stdout), stderr, handle.Wait()
}

func TestStartWriteAndWait(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	inputPath := filepath.Join(directory, "stdin.json")
	script := testutil.WriteScript(t, directory, "assistant",
		"cat > "+inputPath+"\n"+
			"echo \"args: $*\"\n"+
			"echo \"cwd: $(pwd)\"\n"+
			"echo \"env: $QUILL_TEST_VALUE\"\n"+
			"echo warning >&2\n")

	supervisor := &Supervisor{}
	handle, err := supervisor.Start(context.Background(), Spec{
		Executable:       script,
		Arguments:        []string{"--print", "--verbose"},
		WorkingDirectory: directory,
		Environment:      []string{"QUILL_TEST_VALUE=present", "PATH=/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !supervisor.IsRunning() {
		t.Error("IsRunning() = false while a handle is live")
	}

	if err := handle.WriteInitialInput("Fix the typo in \"intro\"."); err != nil {
		t.Fatalf("WriteInitialInput: %v", err)
	}
	if err := handle.WriteInitialInput("again"); err == nil {
		t.Error("second WriteInitialInput succeeded")
	}

	stdout, stderr, exit := drainAndWait(t, handle)
	if !exit.Success() {
		t.Fatalf("exit = %+v, want success", exit)
	}
	if supervisor.IsRunning() {
		t.Error("IsRunning() = true after Wait")
	}

	resolvedDirectory, _ := filepath.EvalSymlinks(directory)
	for _, want := range []string{"args: --print --verbose", "cwd: " + resolvedDirectory, "env: present"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.TrimSpace(stderr) != "warning" {
		t.Errorf("stderr = %q, want %q", stderr, "warning")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		t.Fatalf("reading captured stdin: %v", err)
	}
	if !strings.HasSuffix(string(data), "}\n") || strings.Count(string(data), "\n") != 1 {
		t.Errorf("stdin is not one newline-terminated record: %q", data)
	}
	var record struct {
		Type    string `json:"type"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decoding stdin record: %v", err)
	}
	if record.Type != "user" || record.Message.Role != "user" || record.Message.Content != "Fix the typo in \"intro\"." {
		t.Errorf("unexpected stdin record: %+v", record)
	}
}

func TestNonZeroExit(t *testing.T) {
	t.Parallel()

	script := testutil.WriteScript(t, t.TempDir(), "assistant", "echo partial\necho boom >&2\nexit 7\n")
	handle, err := (&Supervisor{}).Start(context.Background(), Spec{Executable: script})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stdout, stderr, exit := drainAndWait(t, handle)

	if exit.Code != 7 || exit.Signaled || exit.Reason != TerminationNone {
		t.Errorf("exit = %+v, want code 7 without termination", exit)
	}
	if stdout != "partial\n" || stderr != "boom\n" {
		t.Errorf("captured stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestSpawnError(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	notExecutable := filepath.Join(directory, "assistant")
	if err := os.WriteFile(notExecutable, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	for _, executable := range []string{filepath.Join(directory, "missing"), notExecutable, ""} {
		supervisor := &Supervisor{}
		_, err := supervisor.Start(context.Background(), Spec{Executable: executable})
		var spawnError *SpawnError
		if !errors.As(err, &spawnError) {
			t.Errorf("Start(%q) error = %v, want *SpawnError", executable, err)
		}
		if supervisor.IsRunning() {
			t.Errorf("IsRunning() = true after failed Start(%q)", executable)
		}
	}
}

func TestAlreadyRunning(t *testing.T) {
	t.Parallel()

	script := testutil.WriteScript(t, t.TempDir(), "assistant", "cat > /dev/null\n")
	supervisor := &Supervisor{}
	handle, err := supervisor.Start(context.Background(), Spec{Executable: script})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := supervisor.Start(context.Background(), Spec{Executable: script}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	if err := handle.WriteInitialInput("done"); err != nil {
		t.Fatalf("WriteInitialInput: %v", err)
	}
	drainAndWait(t, handle)

	next, err := supervisor.Start(context.Background(), Spec{Executable: script})
	if err != nil {
		t.Fatalf("Start after Wait: %v", err)
	}
	next.WriteInitialInput("")
	drainAndWait(t, next)
}

func TestTimeoutTerminatesProcessGroup(t *testing.T) {
	t.Parallel()

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	// The sleep is a grandchild holding stdout open; only a
	// process-group kill lets the reads below reach EOF.
	script := testutil.WriteScript(t, t.TempDir(), "assistant", "echo started\nsleep 60\necho finished\n")

	supervisor := &Supervisor{Clock: fakeClock}
	handle, err := supervisor.Start(context.Background(), Spec{Executable: script, Timeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fakeClock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1 deadline timer", fakeClock.PendingCount())
	}

	fakeClock.Advance(29 * time.Second)
	if !supervisor.IsRunning() {
		t.Fatal("process ended before the deadline")
	}
	fakeClock.Advance(time.Second)

	stdout, _, exit := drainAndWait(t, handle)
	if exit.Reason != TerminationTimeout {
		t.Errorf("Reason = %q, want %q", exit.Reason, TerminationTimeout)
	}
	if !exit.Signaled || exit.Success() {
		t.Errorf("exit = %+v, want signaled failure", exit)
	}
	if strings.Contains(stdout, "finished") {
		t.Errorf("process ran past its deadline: %q", stdout)
	}
}

func TestCancellation(t *testing.T) {
	t.Parallel()

	t.Run("context", func(t *testing.T) {
		t.Parallel()
		script := testutil.WriteScript(t, t.TempDir(), "assistant", "sleep 60\n")
		ctx, cancel := context.WithCancel(context.Background())
		handle, err := (&Supervisor{}).Start(ctx, Spec{Executable: script})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		cancel()
		_, _, exit := drainAndWait(t, handle)
		if exit.Reason != TerminationCancelled {
			t.Errorf("Reason = %q, want %q", exit.Reason, TerminationCancelled)
		}
	})

	t.Run("supervisor", func(t *testing.T) {
		t.Parallel()
		script := testutil.WriteScript(t, t.TempDir(), "assistant", "sleep 60\n")
		supervisor := &Supervisor{}
		handle, err := supervisor.Start(context.Background(), Spec{Executable: script})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		supervisor.Terminate()
		supervisor.Terminate()
		handle.Terminate(TerminationTimeout)

		_, _, exit := drainAndWait(t, handle)
		if exit.Reason != TerminationCancelled {
			t.Errorf("Reason = %q, want first reason %q", exit.Reason, TerminationCancelled)
		}
		// Nothing running: must be a no-op.
		supervisor.Terminate()
		handle.Terminate(TerminationCancelled)
	})
}

func TestDeadlineStoppedOnExit(t *testing.T) {
	t.Parallel()

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	script := testutil.WriteScript(t, t.TempDir(), "assistant", "exit 0\n")
	handle, err := (&Supervisor{Clock: fakeClock}).Start(context.Background(), Spec{Executable: script, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, exit := drainAndWait(t, handle)
	if !exit.Success() {
		t.Fatalf("exit = %+v, want success", exit)
	}
	if fakeClock.PendingCount() != 0 {
		t.Errorf("deadline timer still armed after exit")
	}
	fakeClock.Advance(time.Hour)
	if exit := handle.Wait(); exit.Reason != TerminationNone {
		t.Errorf("late deadline changed exit reason to %q", exit.Reason)
	}
}
