// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentproc spawns and supervises the assistant process.
//
// A [Supervisor] owns at most one live process at a time. [Supervisor.Start]
// returns a [Handle] exposing the process's output streams, a one-shot
// write of the initial user turn, forced termination, and Wait. The
// child runs in its own process group so termination also reaches any
// tools the assistant spawned (shells, language servers, MCP servers)
// that would otherwise keep the output pipes open.
//
// Termination is always SIGKILL of the process group and is
// idempotent. The reason for the first termination (deadline expiry or
// caller cancellation) is recorded in the [Exit] returned by
// [Handle.Wait] so callers can tell the two apart. Nothing is retried.
package agentproc
