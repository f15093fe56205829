// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// fatalHelper is the subset of testing.TB the require helpers use.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch. The test fails if
// ch is closed first or nothing arrives within timeout; format and
// args describe what was being waited for.
//
//	response := testutil.RequireReceive(t, responses, 10*time.Second, "waiting for run")
func RequireReceive[T any](t fatalHelper, ch <-chan T, timeout time.Duration, format string, args ...any) T {
	t.Helper()
	var zero T
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed without a value", fmt.Sprintf(format, args...))
			return zero
		}
		return value
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: nothing received after %v", fmt.Sprintf(format, args...), timeout)
		return zero
	}
}

// RequireClosed waits until ch is closed or receives a value. The test
// fails after timeout.
func RequireClosed(t fatalHelper, ch <-chan struct{}, timeout time.Duration, format string, args ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: channel still open after %v", fmt.Sprintf(format, args...), timeout)
	}
}
