// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellenv

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ResolveExecutable turns a configured executable path into the path
// to spawn. A leading "~" expands to home. A relative or bare name is
// searched for in each directory of env["PATH"]; the first existing,
// executable regular file wins. If nothing matches, the (expanded)
// input is returned unchanged so exec can still try its own lookup.
func ResolveExecutable(path string, env map[string]string, home string) string {
	path = expandHome(path, home)
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	for directory := range strings.SplitSeq(env["PATH"], string(os.PathListSeparator)) {
		if directory == "" {
			continue
		}
		candidate := filepath.Join(expandHome(directory, home), path)
		if IsExecutable(candidate) {
			return candidate
		}
	}
	return path
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

// IsExecutable reports whether path is a regular file with an execute bit.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Environ converts an environment map to the sorted KEY=VALUE form
// exec.Cmd expects.
func Environ(environment map[string]string) []string {
	result := make([]string, 0, len(environment))
	for key, value := range environment {
		result = append(result, key+"="+value)
	}
	slices.Sort(result)
	return result
}

// sensitiveMarkers identify variables whose values are masked in
// diagnostics.
var sensitiveMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD"}

// MaskValue returns value with everything after the first eight
// characters replaced by "..." when key looks like a credential.
func MaskValue(key, value string) string {
	upper := strings.ToUpper(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(upper, marker) {
			if value == "" {
				return ""
			}
			if len(value) > 8 {
				value = value[:8]
			}
			return value + "..."
		}
	}
	return value
}
