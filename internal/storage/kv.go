// Package storage provides the key-value persistence adapter used by the
// Drift client. State is snapshotted as four independently loadable named
// records (current identity, user directory, group directory, conversation
// directory), each JSON-encoded. Two durable backends are provided: a JSON
// file store and a Redis store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Record names for the four persisted snapshots.
const (
	KeyCurrentUser = "currentUser"
	KeyUsers       = "users"
	KeyGroups      = "groups"
	KeyChats       = "chats"
)

// KV is the persistence contract. Load decodes the named record into v and
// reports whether it existed. Save replaces the record. Delete removes it;
// deleting a missing record is not an error.
type KV interface {
	Load(ctx context.Context, key string, v interface{}) (bool, error)
	Save(ctx context.Context, key string, v interface{}) error
	Delete(ctx context.Context, key string) error
}

// FileStore persists each record as <key>.json inside a data directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns a store
// rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads and decodes the record. Returns (false, nil) when the record
// file does not exist.
func (s *FileStore) Load(_ context.Context, key string, v interface{}) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

// Save encodes v and atomically replaces the record file.
func (s *FileStore) Save(_ context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("storage: replace %s: %w", key, err)
	}
	return nil
}

// Delete removes the record file if present.
func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
