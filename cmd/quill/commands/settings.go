// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/quill/lib/config"
	"github.com/bureau-foundation/quill/lib/docsession"
)

// settingsParams is embedded by every command that reads settings.
type settingsParams struct {
	Config string `json:"-" flag:"config,c" desc:"settings file (.yaml, .json or .jsonc); default $QUILL_CONFIG"`
}

// load reads --config, then $QUILL_CONFIG, and falls back to the
// defaults when neither is set.
func (p *settingsParams) load() (*config.Settings, error) {
	var settings *config.Settings
	var err error
	switch {
	case p.Config != "":
		settings, err = config.LoadFile(p.Config)
	case os.Getenv(config.EnvironmentVariable) != "":
		settings, err = config.Load()
	default:
		settings = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// documentParams locates a document and its workspace root.
type documentParams struct {
	Root string `json:"root" flag:"root,r" desc:"workspace root holding the session namespace (default: the document's directory)"`
}

// resolve returns the absolute document path, which is the document's
// session identity, and the absolute root directory.
func (p *documentParams) resolve(document string) (string, string, error) {
	documentPath, err := filepath.Abs(document)
	if err != nil {
		return "", "", fmt.Errorf("resolving document path %q: %w", document, err)
	}
	root := filepath.Dir(documentPath)
	if p.Root != "" {
		root, err = filepath.Abs(p.Root)
		if err != nil {
			return "", "", fmt.Errorf("resolving root %q: %w", p.Root, err)
		}
	}
	return documentPath, root, nil
}

func newStore(settings *config.Settings, logger *slog.Logger) *docsession.Store {
	return &docsession.Store{Namespace: settings.SessionNamespace, Logger: logger}
}
