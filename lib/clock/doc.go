// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for run deadlines
// and persisted timestamps.
//
// The process supervisor arms its wall-clock deadline through
// [Clock.AfterFunc], and the session store stamps conversation turns
// through [Clock.Now]. Production code uses [Real]; tests use [Fake],
// which only moves when [FakeClock.Advance] is called, so a timeout
// test never sleeps.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	supervisor := &agentproc.Supervisor{Clock: fake}
//	handle, _ := supervisor.Start(ctx, spec)
//	fake.WaitForTimers(1)          // deadline armed
//	fake.Advance(spec.Timeout)     // deadline fires, process killed
package clock
