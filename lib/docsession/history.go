// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// HistoryLimit is the number of turns kept: ten exchanges.
const HistoryLimit = 20

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the stored conversation, oldest first.
type History []Turn

// LoadHistory reads the history in directory. A missing file is an
// empty history; a corrupt file is an error.
func LoadHistory(directory string) (History, error) {
	path := filepath.Join(directory, HistoryFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Operation: "reading conversation history", Path: path, Err: err}
	}
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, &PersistenceError{Operation: "parsing conversation history", Path: path, Err: err}
	}
	return history, nil
}

// AppendHistory appends one user turn and one assistant turn and keeps
// the most recent HistoryLimit entries. An unreadable or corrupt
// history file is replaced rather than treated as fatal.
func (s *Store) AppendHistory(directory, userTurn, assistantTurn string) error {
	history, err := LoadHistory(directory)
	if err != nil {
		s.logger().Warn("discarding unreadable conversation history",
			"session_dir", directory,
			"error", err,
		)
		history = nil
	}

	now := s.clock().Now().UTC()
	history = append(history,
		Turn{Role: RoleUser, Content: userTurn, Timestamp: now},
		Turn{Role: RoleAssistant, Content: assistantTurn, Timestamp: now},
	)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	path := filepath.Join(directory, HistoryFile)
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return &PersistenceError{Operation: "encoding conversation history", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &PersistenceError{Operation: "saving conversation history", Path: path, Err: err}
	}
	return nil
}
