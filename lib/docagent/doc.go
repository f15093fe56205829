// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package docagent runs one assistant request against one document.
//
// A [Runner] resolves the document's session, builds the prompt and
// argument list, starts the assistant through an
// [agentproc.Supervisor], decodes its stream-json output with
// [streamjson], forwards notifications to the caller as they arrive,
// and on a clean exit extracts the edited document with [content] and
// persists the session token, history, stats and transcript through a
// [docsession.Store].
//
// Run never returns an error: every outcome, including spawn failure,
// timeout and cancellation, is described by the returned [Response].
// Failures are typed ([ConfigurationError], [TimeoutError],
// [ProcessExitError], [agentproc.SpawnError]) and available through
// Response.Err for errors.As. Persistence failures after a clean exit
// become Response.Warnings and never turn a successful answer into a
// failure.
//
// A Runner executes one request at a time. [Pool] keeps one Runner per
// document so that requests for different documents proceed in
// parallel while requests for the same document are mutually
// exclusive.
package docagent
