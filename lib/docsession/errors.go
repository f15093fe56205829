// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"errors"
	"fmt"
)

// ErrEmptyToken is returned when saving an empty session token. A
// token, once stored, is only ever replaced by another token.
var ErrEmptyToken = errors.New("session token is empty")

// PersistenceError reports a failed read or write of session state.
type PersistenceError struct {
	// Operation names what was attempted, e.g. "saving session token".
	Operation string
	Path      string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
