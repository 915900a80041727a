// Package storage is a small file-backed key/value store for the handful
// of items the client persists between runs: the session token and the
// cached player record.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store reads and writes string pairs to one JSON file. A missing or
// corrupt file is treated as empty rather than an error, so a damaged
// storage file never blocks the client from starting.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// Open loads the store at path, starting empty when the file is missing
// or unreadable.
func Open(path string) *Store {
	s := &Store{path: path, data: map[string]string{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return s
	}
	s.data = data
	return s
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok
}

// Set stores the pair and writes the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.save()
}

// Delete removes the pair and writes the file. Deleting a missing key is
// a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write storage: %w", err)
	}
	return nil
}
