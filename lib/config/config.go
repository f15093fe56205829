// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the settings path
// from.
const EnvironmentVariable = "QUILL_CONFIG"

// Compression algorithms accepted for TranscriptCompression.
const (
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Model aliases accepted by the assistant's --model flag. The empty
// string leaves model selection to the assistant.
var modelAliases = []string{"", "sonnet", "opus", "haiku"}

// Settings configures how quill drives the assistant process and where
// it keeps per-document state.
type Settings struct {
	// ClaudePath is the assistant executable. A bare name is searched
	// for in the PATH of the resolved login-shell environment; a
	// leading "~" expands to the home directory.
	ClaudePath string `yaml:"claude_path" json:"claude_path"`

	// Model is the default model alias. A per-request override takes
	// priority.
	Model string `yaml:"model" json:"model"`

	// CustomSystemPrompt is prepended to every prompt.
	CustomSystemPrompt string `yaml:"custom_system_prompt" json:"custom_system_prompt"`

	// TimeoutSeconds is the wall-clock limit for one run. Zero
	// disables the deadline.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// AllowRootAccess passes the request's root directory to the
	// assistant via --add-dir so it can read sibling documents.
	AllowRootAccess bool `yaml:"allow_root_access" json:"allow_root_access"`

	// Permissionless runs every request with
	// --permission-mode bypassPermissions.
	Permissionless bool `yaml:"permissionless" json:"permissionless"`

	// SessionNamespace is the directory, relative to the request's
	// root directory, that holds per-document session directories.
	SessionNamespace string `yaml:"session_namespace" json:"session_namespace"`

	// TranscriptCompression selects how per-run transcripts are
	// stored: "zstd", "lz4" or "none".
	TranscriptCompression string `yaml:"transcript_compression" json:"transcript_compression"`

	// TranscriptRetention is the number of transcripts kept per
	// document. Older transcripts are pruned after each run. Zero
	// disables transcripts entirely.
	TranscriptRetention int `yaml:"transcript_retention" json:"transcript_retention"`

	// UnwrapFencedContent strips a single ```markdown fence that the
	// assistant sometimes wraps around the whole edited document.
	UnwrapFencedContent bool `yaml:"unwrap_fenced_content" json:"unwrap_fenced_content"`

	// Shell overrides $SHELL when reconstructing the login-shell
	// environment.
	Shell string `yaml:"shell" json:"shell"`
}

// Default returns the settings used before any file is applied.
func Default() *Settings {
	return &Settings{
		ClaudePath:            "claude",
		TimeoutSeconds:        300,
		AllowRootAccess:       true,
		SessionNamespace:      filepath.Join(".quill", "sessions"),
		TranscriptCompression: CompressionZstd,
		TranscriptRetention:   10,
	}
}

// Timeout returns TimeoutSeconds as a duration.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Load loads settings from the file named by QUILL_CONFIG. There is no
// discovery: if the variable is unset, Load fails.
func Load() (*Settings, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your quill settings file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads settings from path, choosing the decoder by file
// extension.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), settings); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q (want .yaml, .yml, .json or .jsonc)", filepath.Ext(path))
	}

	settings.expandVariables()
	return settings, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (s *Settings) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	s.ClaudePath = expandVars(s.ClaudePath, vars)
	s.Shell = expandVars(s.Shell, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.ClaudePath) == "" {
		errs = append(errs, errors.New("claude_path is required"))
	}
	if !slices.Contains(modelAliases, s.Model) {
		errs = append(errs, fmt.Errorf("model must be one of %q, got %q", modelAliases[1:], s.Model))
	}
	if s.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must not be negative, got %d", s.TimeoutSeconds))
	}
	if s.SessionNamespace == "" {
		errs = append(errs, errors.New("session_namespace is required"))
	} else if filepath.IsAbs(s.SessionNamespace) || strings.HasPrefix(filepath.Clean(s.SessionNamespace), "..") {
		errs = append(errs, fmt.Errorf("session_namespace must be a relative path inside the root directory, got %q", s.SessionNamespace))
	}
	switch s.TranscriptCompression {
	case CompressionZstd, CompressionLZ4, CompressionNone:
	default:
		errs = append(errs, fmt.Errorf("transcript_compression must be one of zstd, lz4, none; got %q", s.TranscriptCompression))
	}
	if s.TranscriptRetention < 0 {
		errs = append(errs, fmt.Errorf("transcript_retention must not be negative, got %d", s.TranscriptRetention))
	}

	return errors.Join(errs...)
}
