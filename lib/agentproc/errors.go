// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentproc

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when the supervisor already
// owns a live process.
var ErrAlreadyRunning = errors.New("a process is already running")

// SpawnError reports that the process could not be started: the
// executable does not exist, is not executable, or the OS refused to
// create the process.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
