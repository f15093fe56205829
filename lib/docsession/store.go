// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/quill/lib/clock"
)

// File names inside a session directory.
const (
	TokenFile           = "session_id.txt"
	HistoryFile         = "conversation_history.json"
	StatsFile           = "stats.cbor"
	TranscriptDirectory = "transcripts"
)

// DefaultNamespace is the session root relative to a document's root
// directory.
var DefaultNamespace = filepath.Join(".quill", "sessions")

// identityDomainKey separates session-directory digests from any other
// BLAKE3 use of the same bytes. ASCII, zero-padded to 32 bytes.
var identityDomainKey = [32]byte{
	'q', 'u', 'i', 'l', 'l', '.', 'd', 'o', 'c', 's', 'e', 's', 's', 'i', 'o', 'n',
	'.', 'i', 'd', 'e', 'n', 't', 'i', 't', 'y', 0, 0, 0, 0, 0, 0, 0,
}

// Session is the persisted state of one document's conversation.
type Session struct {
	// DocumentID is the identity the directory was derived from.
	DocumentID string

	// Directory holds the session's files. It exists once
	// GetSessionInfo returns.
	Directory string

	// Token resumes the assistant's conversation. Empty for a new
	// session.
	Token string

	// IsNew is true when no token has been saved yet.
	IsNew bool
}

// Store locates and updates session directories.
type Store struct {
	// Root is the root directory used when a request supplies none.
	// If both are empty, the document's parent directory is used.
	Root string

	// Namespace is the session root relative to the root directory.
	// Empty means DefaultNamespace.
	Namespace string

	// Clock stamps history turns, transcripts and stats. Nil means
	// the real clock.
	Clock clock.Clock

	// Logger receives warnings about recoverable corruption. Nil
	// disables logging.
	Logger *slog.Logger
}

// DirectoryName returns the session directory name for documentID:
// the hex keyed BLAKE3 digest of the identity.
func DirectoryName(documentID string) string {
	hasher, err := blake3.NewKeyed(identityDomainKey[:])
	if err != nil {
		panic("docsession: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(documentID))
	return hex.EncodeToString(hasher.Sum(nil))
}

// SessionDirectory returns the directory for documentID without
// creating it.
func (s *Store) SessionDirectory(documentID, rootDir string) string {
	return filepath.Join(s.sessionsRoot(documentID, rootDir), DirectoryName(documentID))
}

func (s *Store) sessionsRoot(documentID, rootDir string) string {
	root := rootDir
	if root == "" {
		root = s.Root
	}
	if root == "" {
		root = filepath.Dir(documentID)
	}
	namespace := s.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return filepath.Join(root, namespace)
}

// GetSessionInfo ensures the session directory for documentID exists
// and reads its token.
func (s *Store) GetSessionInfo(documentID, rootDir string) (Session, error) {
	directory := s.SessionDirectory(documentID, rootDir)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return Session{}, &PersistenceError{Operation: "creating session directory", Path: directory, Err: err}
	}

	session := Session{DocumentID: documentID, Directory: directory, IsNew: true}
	token, err := ReadToken(directory)
	if err != nil {
		return Session{}, err
	}
	if token != "" {
		session.Token = token
		session.IsNew = false
	}
	return session, nil
}

// ReadToken returns the saved token in directory, or "" if none.
func ReadToken(directory string) (string, error) {
	path := filepath.Join(directory, TokenFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &PersistenceError{Operation: "reading session token", Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveSessionToken replaces the token in directory. Empty tokens are
// rejected with ErrEmptyToken.
func (s *Store) SaveSessionToken(directory, token string) error {
	path := filepath.Join(directory, TokenFile)
	token = strings.TrimSpace(token)
	if token == "" {
		return &PersistenceError{Operation: "saving session token", Path: path, Err: ErrEmptyToken}
	}
	if err := writeFileAtomic(path, []byte(token)); err != nil {
		return &PersistenceError{Operation: "saving session token", Path: path, Err: err}
	}
	return nil
}

// Reset deletes the session directory for documentID. The next run
// starts a new conversation.
func (s *Store) Reset(documentID, rootDir string) error {
	directory := s.SessionDirectory(documentID, rootDir)
	if err := os.RemoveAll(directory); err != nil {
		return &PersistenceError{Operation: "removing session directory", Path: directory, Err: err}
	}
	return nil
}

func (s *Store) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// writeFileAtomic writes data to a temporary file in the same
// directory and renames it over path, so readers never see a partial
// file.
func writeFileAtomic(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	temporaryPath := temporary.Name()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Chmod(temporaryPath, 0o644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
