// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamjson decodes and interprets the assistant's stream-json
// output: one JSON record per line on stdout.
//
// Decoding happens in two layers. [LineSplitter] reassembles arbitrary
// byte chunks into complete lines, holding back the trailing partial
// line until its terminator arrives; a partial line still buffered when
// the stream closes is a truncated record and is discarded. [Decode]
// maps one line to an [Event], a closed tagged variant. A line that is
// not JSON, or JSON of a shape this package does not handle, becomes a
// [KindUnrecognized] event carrying the raw bytes: it is never dropped
// and never stops decoding of the lines after it.
//
// [Interpreter] folds events, in order, into a [ParsedOutput] (the
// assistant's text and token usage) and produces [Notification] values
// for the caller to display as they happen. Text arrives twice when
// partial messages are enabled: incrementally as text deltas and again
// in the complete assistant message. The interpreter uses the complete
// message only for messages whose deltas it did not see, so the text
// is never doubled.
package streamjson
