// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docagent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunInProgress is returned (through Response.Err) when Run is
// called on a Runner that is already running a request.
var ErrRunInProgress = errors.New("a run is already in progress for this document")

// ErrCancelled is returned when the caller's context was cancelled or
// Terminate was called before the process exited.
var ErrCancelled = errors.New("run cancelled")

// ConfigurationError reports settings that make a run impossible. No
// process is started.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Setting, e.Reason)
}

// TimeoutError reports that the deadline fired before the process
// exited.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("assistant timed out after %s", e.Timeout)
}

// ProcessExitError reports a non-zero exit, a kill by a signal we did
// not send, or a failure waiting for the process. Stderr is whatever
// the process wrote to standard error before it ended.
type ProcessExitError struct {
	Code     int
	Signaled bool
	Stderr   string

	// Err is set when waiting for the process failed.
	Err error
}

func (e *ProcessExitError) Error() string {
	var message string
	switch {
	case e.Err != nil:
		message = fmt.Sprintf("waiting for assistant: %v", e.Err)
	case e.Signaled:
		message = "assistant was killed by a signal"
	default:
		message = fmt.Sprintf("assistant exited with code %d", e.Code)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		message += ": " + stderr
	}
	return message
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// ErrMissingDocument is returned for a Request without a DocumentPath.
var ErrMissingDocument = errors.New("request has no document path")

// ErrEmptyContent is returned when the assistant wrote the content
// delimiter but nothing after it.
var ErrEmptyContent = errors.New("assistant wrote the content delimiter but no document after it")

// ErrNoAnswer is returned when the assistant exited cleanly without
// producing any text.
var ErrNoAnswer = errors.New("assistant produced no text")
