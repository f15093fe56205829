// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the logger may not be
// initialized.
func Fatal(err error) {
	WriteError(os.Stderr, err)
	os.Exit(1)
}

// WriteError writes the standard "error: err" line to w.
func WriteError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
