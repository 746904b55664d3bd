package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists and restores ledger snapshots.
// Load returns (nil, nil) when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// JSONFileStore keeps the snapshot as a single indented JSON document,
// rewritten in full on every save.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore returns a Store backed by the file at path.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the snapshot file location.
func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return &snap, nil
}

func (s *JSONFileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore holds the last saved snapshot in memory. Useful in tests and
// for running without a data directory.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	// Err, when set, is returned by every Save.
	Err error
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(m.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
