// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteScript writes body as an executable /bin/sh script named name
// inside directory and returns its absolute path. The "#!/bin/sh"
// line is prepended.
func WriteScript(t *testing.T, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}

// StreamScript returns a script body that prints each record on its
// own line (single-quoted, so records must not contain single quotes),
// discards stdin, and exits with exitCode.
func StreamScript(exitCode int, records ...string) string {
	body := "cat > /dev/null\n"
	for _, record := range records {
		body += "printf '%s\\n' '" + record + "'\n"
	}
	return body + "exit " + strconv.Itoa(exitCode) + "\n"
}
