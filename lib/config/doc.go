// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads quill's runner settings.
//
// Settings come from a single file named by the --config flag or the
// QUILL_CONFIG environment variable. YAML files (.yaml, .yml) are
// decoded with gopkg.in/yaml.v3. JSON files (.json, .jsonc) may carry
// comments and trailing commas, which are stripped with
// github.com/tidwall/jsonc before decoding; this accepts settings
// exported from an editor plugin's data file as-is.
//
// Values absent from the file keep the [Default] value. Environment
// variables never override file values; the only expansion performed
// is ${VAR} and ${VAR:-default} in path-valued fields.
package config
