// Package storage persists uploaded artifacts on the local filesystem.
//
// Artifacts live under <root>/<session_id>/ with fixed names:
// question.pdf, answer.pdf, and page_<n>.jpg. Writing an artifact that
// already exists replaces it; no history is retained.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scanmark/backend/internal/domain"
)

// Fixed artifact names for the per-session document pair.
const (
	QuestionArtifact = "question.pdf"
	AnswerArtifact   = "answer.pdf"
)

// PageArtifact returns the fixed artifact name for a page number.
func PageArtifact(page string) string {
	return "page_" + page + ".jpg"
}

// Store is an overwrite-only artifact store keyed by session id and
// artifact name.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Store{root: dir}, nil
}

// sessionDir maps a session id to its directory. Ids that would escape
// the root are rejected; valid ids are used byte-for-byte, so ids that
// differ in case or whitespace address distinct sessions.
func (s *Store) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) || strings.ContainsRune(sessionID, 0) {
		return "", &domain.ValidationError{Field: "session_id", Reason: "must not contain path separators"}
	}
	return filepath.Join(s.root, sessionID), nil
}

// Write persists one artifact for a session, replacing any previous
// bytes under the same name. The bytes land in a temp file first and
// are renamed into place, so a concurrent reader never observes a
// partially written artifact. Concurrent writers to the same key are
// not serialized: the last rename wins.
func (s *Store) Write(sessionID, name string, data []byte) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}
	return nil
}

// Read returns the stored bytes for one artifact.
func (s *Store) Read(sessionID, name string) ([]byte, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, &domain.StorageError{SessionID: sessionID, Artifact: name, Err: err}
	}
	return data, nil
}

// Path returns the on-disk location of a stored artifact without
// checking that it exists.
func (s *Store) Path(sessionID, name string) (string, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// RemoveSession deletes every artifact stored for a session. Removing
// a session that has no artifacts is a no-op.
func (s *Store) RemoveSession(sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &domain.StorageError{SessionID: sessionID, Artifact: "", Err: err}
	}
	return nil
}
