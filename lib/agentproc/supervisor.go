// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/quill/lib/clock"
)

// TerminationReason records why a process was killed.
type TerminationReason string

const (
	// TerminationNone means the process exited on its own.
	TerminationNone TerminationReason = ""

	// TerminationTimeout means the deadline timer fired.
	TerminationTimeout TerminationReason = "timeout"

	// TerminationCancelled means the caller cancelled the run, either
	// through the context passed to Start or an explicit Terminate.
	TerminationCancelled TerminationReason = "cancelled"
)

// Spec describes the process to start.
type Spec struct {
	// Executable is the path (or bare name, resolved by exec) of the
	// binary.
	Executable string

	// Arguments excludes the executable name.
	Arguments []string

	// WorkingDirectory is the child's cwd. Empty inherits ours.
	WorkingDirectory string

	// Environment is the child's complete environment in KEY=VALUE
	// form. Nil inherits ours.
	Environment []string

	// Timeout is the wall-clock limit. Zero disables the deadline.
	Timeout time.Duration
}

// Supervisor starts processes and enforces single ownership: at most
// one Handle is live between Start and the end of its Wait.
type Supervisor struct {
	// Clock arms deadline timers. Nil means the real clock.
	Clock clock.Clock

	// Logger receives lifecycle records. Nil disables logging.
	Logger *slog.Logger

	mu      sync.Mutex
	current *Handle
}

// Start spawns the process described by spec. Cancelling ctx
// terminates the process with TerminationCancelled; the context is not
// otherwise retained.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, ErrAlreadyRunning
	}
	if spec.Executable == "" {
		return nil, &SpawnError{Executable: spec.Executable, Err: errors.New("no executable given")}
	}

	command := exec.Command(spec.Executable, spec.Arguments...)
	command.Dir = spec.WorkingDirectory
	command.Env = spec.Environment
	// Own process group: a kill of -pid reaches every descendant.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("creating stdin pipe: %w", err)}
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("creating stdout pipe: %w", err)}
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("creating stderr pipe: %w", err)}
	}

	if err := command.Start(); err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}

	handle := &Handle{
		supervisor: s,
		command:    command,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		logger:     s.logger(),
		done:       make(chan struct{}),
	}
	s.current = handle

	handle.logger.Debug("assistant process started",
		"pid", command.Process.Pid,
		"executable", spec.Executable,
		"working_directory", spec.WorkingDirectory,
		"timeout", spec.Timeout,
	)

	if spec.Timeout > 0 {
		handle.deadline = s.clock().AfterFunc(spec.Timeout, func() {
			handle.Terminate(TerminationTimeout)
		})
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				handle.Terminate(TerminationCancelled)
			case <-handle.done:
			}
		}()
	}

	return handle, nil
}

// Terminate kills the current process, if any, with
// TerminationCancelled. Safe to call when nothing is running.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	handle := s.current
	s.mu.Unlock()
	if handle != nil {
		handle.Terminate(TerminationCancelled)
	}
}

// IsRunning reports whether a Handle is live.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Supervisor) release(handle *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == handle {
		s.current = nil
	}
}

func (s *Supervisor) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Exit describes how a process ended.
type Exit struct {
	// Code is the exit status, or -1 when the process was killed by
	// a signal or never produced a status.
	Code int

	// Signaled is true when a signal ended the process.
	Signaled bool

	// Reason is why we killed the process, or TerminationNone.
	Reason TerminationReason

	// Err is a wait failure other than a non-zero exit status.
	Err error
}

// Success reports a clean zero exit that we did not cause.
func (e Exit) Success() bool {
	return e.Code == 0 && !e.Signaled && e.Reason == TerminationNone && e.Err == nil
}

// Handle is one live process. It is owned by the caller that started
// it: the caller reads Stdout and Stderr to EOF and then calls Wait.
type Handle struct {
	supervisor *Supervisor
	command    *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.Reader
	stderr     io.Reader
	logger     *slog.Logger
	deadline   *clock.Timer

	inputOnce     sync.Once
	terminateOnce sync.Once
	waitOnce      sync.Once

	mu     sync.Mutex
	reason TerminationReason
	exited bool
	exit   Exit

	done chan struct{}
}

// Stdout returns the process's standard output.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// Stderr returns the process's standard error.
func (h *Handle) Stderr() io.Reader { return h.stderr }

// PID returns the process ID.
func (h *Handle) PID() int { return h.command.Process.Pid }

// userTurn is the single stdin record of the stream-json input format.
type userTurn struct {
	Type    string          `json:"type"`
	Message userTurnMessage `json:"message"`
}

type userTurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WriteInitialInput writes payload as one user-turn record followed by
// a newline and closes stdin. Only the first call writes; later calls
// return an error.
func (h *Handle) WriteInitialInput(payload string) error {
	err := errors.New("initial input already written")
	h.inputOnce.Do(func() {
		err = h.writeInitialInput(payload)
	})
	return err
}

func (h *Handle) writeInitialInput(payload string) error {
	record, err := json.Marshal(userTurn{
		Type:    "user",
		Message: userTurnMessage{Role: "user", Content: payload},
	})
	if err != nil {
		h.stdin.Close()
		return fmt.Errorf("encoding user turn: %w", err)
	}
	record = append(record, '\n')

	_, writeErr := h.stdin.Write(record)
	closeErr := h.stdin.Close()
	if writeErr != nil {
		return fmt.Errorf("writing user turn: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing stdin: %w", closeErr)
	}
	return nil
}

// Terminate kills the process group with SIGKILL and records reason.
// Only the first call has any effect, and a call after the process
// has been reaped is a no-op.
func (h *Handle) Terminate(reason TerminationReason) {
	h.terminateOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.exited {
			return
		}
		h.reason = reason

		pid := h.command.Process.Pid
		h.logger.Info("terminating assistant process", "pid", pid, "reason", string(reason))
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			h.logger.Warn("killing process group failed", "pid", pid, "error", err)
			// Fall back to the leader alone.
			_ = h.command.Process.Kill()
		}
	})
}

// Wait blocks until the process exits and returns how it ended. The
// caller must have finished reading Stdout and Stderr first. Wait may
// be called more than once; every call returns the same Exit.
func (h *Handle) Wait() Exit {
	h.waitOnce.Do(func() {
		err := h.command.Wait()
		if h.deadline != nil {
			h.deadline.Stop()
		}

		h.mu.Lock()
		h.exited = true
		exit := Exit{Code: -1, Reason: h.reason}
		h.mu.Unlock()

		var exitError *exec.ExitError
		switch {
		case err == nil:
			exit.Code = 0
		case errors.As(err, &exitError):
			exit.Code = exitError.ExitCode()
			if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				exit.Signaled = true
			}
		default:
			exit.Err = err
		}

		h.mu.Lock()
		h.exit = exit
		h.mu.Unlock()

		close(h.done)
		h.supervisor.release(h)

		h.logger.Debug("assistant process exited",
			"pid", h.command.Process.Pid,
			"exit_code", exit.Code,
			"signaled", exit.Signaled,
			"reason", string(exit.Reason),
		)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

// Done is closed once Wait has reaped the process.
func (h *Handle) Done() <-chan struct{} { return h.done }
