// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError ends the process with Code without printing an error
// line. The command has already reported the outcome itself, as
// "quill run" does for a failed assistant run.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this method to tell
// a handled exit from an error that still needs printing.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError reports invalid arguments. main prints it like any other
// error; the distinct type lets tests check for it.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// Usage returns a UsageError with a formatted message.
func Usage(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
