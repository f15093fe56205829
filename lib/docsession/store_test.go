// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docsession

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quill/lib/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	return &Store{Root: t.TempDir(), Clock: fakeClock}, fakeClock
}

func TestGetSessionInfoNewSession(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	rootDir := t.TempDir()

	session, err := store.GetSessionInfo("notes/plan.md", rootDir)
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if !session.IsNew || session.Token != "" {
		t.Errorf("session = %+v, want new without token", session)
	}
	wantDirectory := filepath.Join(rootDir, ".quill", "sessions", DirectoryName("notes/plan.md"))
	if session.Directory != wantDirectory {
		t.Errorf("Directory = %q, want %q", session.Directory, wantDirectory)
	}
	if info, err := os.Stat(session.Directory); err != nil || !info.IsDir() {
		t.Errorf("session directory not created: %v", err)
	}

	// Idempotent.
	again, err := store.GetSessionInfo("notes/plan.md", rootDir)
	if err != nil {
		t.Fatalf("second GetSessionInfo: %v", err)
	}
	if again.Directory != session.Directory {
		t.Errorf("directory changed between calls: %q vs %q", again.Directory, session.Directory)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	session, err := store.GetSessionInfo("/vault/a.md", "")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if !strings.HasPrefix(session.Directory, store.Root) {
		t.Errorf("empty rootDir should fall back to Store.Root, got %q", session.Directory)
	}

	if err := store.SaveSessionToken(session.Directory, "sess-1\n"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}
	resumed, err := store.GetSessionInfo("/vault/a.md", "")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if resumed.IsNew || resumed.Token != "sess-1" {
		t.Errorf("resumed = %+v, want token sess-1", resumed)
	}

	if err := store.SaveSessionToken(session.Directory, "sess-2"); err != nil {
		t.Fatalf("SaveSessionToken overwrite: %v", err)
	}
	if token, _ := ReadToken(session.Directory); token != "sess-2" {
		t.Errorf("token = %q, want sess-2", token)
	}
}

func TestSaveSessionTokenRejectsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	session, err := store.GetSessionInfo("doc.md", "")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if err := store.SaveSessionToken(session.Directory, "kept"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}

	err = store.SaveSessionToken(session.Directory, "  ")
	var persistenceError *PersistenceError
	if !errors.As(err, &persistenceError) || !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("error = %v, want PersistenceError wrapping ErrEmptyToken", err)
	}
	if token, _ := ReadToken(session.Directory); token != "kept" {
		t.Errorf("token reverted to %q", token)
	}
}

func TestSaveSessionTokenFailure(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	err := store.SaveSessionToken(missing, "sess")
	var persistenceError *PersistenceError
	if !errors.As(err, &persistenceError) {
		t.Fatalf("error = %v, want *PersistenceError", err)
	}
	if persistenceError.Operation != "saving session token" {
		t.Errorf("Operation = %q", persistenceError.Operation)
	}
}

func TestDifferentDocumentsNeverShareDirectories(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	rootDir := t.TempDir()
	documents := []string{"a.md", "b.md", "notes/a.md", "notes/a.md ", "A.md", ""}

	seen := make(map[string]string)
	for _, document := range documents {
		session, err := store.GetSessionInfo(document, rootDir)
		if err != nil {
			t.Fatalf("GetSessionInfo(%q): %v", document, err)
		}
		if previous, ok := seen[session.Directory]; ok {
			t.Fatalf("documents %q and %q share %s", previous, document, session.Directory)
		}
		seen[session.Directory] = document
	}

	first, _ := store.GetSessionInfo("a.md", rootDir)
	if err := store.SaveSessionToken(first.Directory, "token-a"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}
	if err := store.AppendHistory(first.Directory, "q", "a"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	second, _ := store.GetSessionInfo("b.md", rootDir)
	if !second.IsNew {
		t.Errorf("writing a.md's session changed b.md's: %+v", second)
	}
	if history, _ := LoadHistory(second.Directory); len(history) != 0 {
		t.Errorf("b.md history has %d entries", len(history))
	}
}

func TestDirectoryNameStable(t *testing.T) {
	t.Parallel()

	name := DirectoryName("notes/plan.md")
	if name != DirectoryName("notes/plan.md") {
		t.Error("DirectoryName is not deterministic")
	}
	if len(name) != 64 {
		t.Errorf("len(DirectoryName) = %d, want 64 hex characters", len(name))
	}
}

func TestNamespaceOverride(t *testing.T) {
	t.Parallel()

	rootDir := t.TempDir()
	store := &Store{Namespace: "state"}
	session, err := store.GetSessionInfo("x.md", rootDir)
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if filepath.Dir(session.Directory) != filepath.Join(rootDir, "state") {
		t.Errorf("Directory = %q, want under %s/state", session.Directory, rootDir)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	session, err := store.GetSessionInfo("doc.md", "")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if err := store.SaveSessionToken(session.Directory, "sess"); err != nil {
		t.Fatalf("SaveSessionToken: %v", err)
	}
	if err := store.Reset("doc.md", ""); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fresh, err := store.GetSessionInfo("doc.md", "")
	if err != nil {
		t.Fatalf("GetSessionInfo: %v", err)
	}
	if !fresh.IsNew {
		t.Errorf("session survived Reset: %+v", fresh)
	}
}
