// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fathom-im/fathom/lib/codec"
)

// CursorStore persists the sync cursor so a restarted process resumes
// from its last consumed position instead of replaying from scratch.
type CursorStore interface {
	// Load returns the saved cursor, or "" when none has been saved.
	Load() (string, error)

	// Save replaces the saved cursor.
	Save(cursor string) error
}

// cursorCheckpoint is the on-disk shape of a saved cursor.
type cursorCheckpoint struct {
	Cursor string `cbor:"cursor"`
}

// FileCursorStore persists the cursor to a single CBOR file, replaced
// atomically on each save.
type FileCursorStore struct {
	path string
}

// NewFileCursorStore creates a store backed by the given file path.
// The file and its parent directory are created on first save.
func NewFileCursorStore(path string) *FileCursorStore {
	return &FileCursorStore{path: path}
}

// Load reads the saved cursor. A missing file is not an error — it
// means the engine starts with an initial sync.
func (s *FileCursorStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("syncer: reading cursor file: %w", err)
	}

	var checkpoint cursorCheckpoint
	if err := codec.Unmarshal(data, &checkpoint); err != nil {
		return "", fmt.Errorf("syncer: decoding cursor file %s: %w", s.path, err)
	}
	return checkpoint.Cursor, nil
}

// Save writes the cursor via a temporary file and rename, so a crash
// mid-write never leaves a truncated checkpoint.
func (s *FileCursorStore) Save(cursor string) error {
	data, err := codec.Marshal(cursorCheckpoint{Cursor: cursor})
	if err != nil {
		return fmt.Errorf("syncer: encoding cursor: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("syncer: creating cursor directory: %w", err)
	}

	temp := s.path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return fmt.Errorf("syncer: writing cursor file: %w", err)
	}
	if err := os.Rename(temp, s.path); err != nil {
		return fmt.Errorf("syncer: replacing cursor file: %w", err)
	}
	return nil
}
