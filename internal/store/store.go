// Package store defines the Persistent Store collaborator contract and
// provides a default JSON-file-backed implementation, grounded on the
// same buffered-writer-over-file idiom as internal/telemetry.Emitter
// but adapted to a get/update/delete path contract rather than
// append-only JSONL.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Path is an ordered sequence of string keys locating a JSON value in the
// store, e.g. []string{"events", "metrics"}.
type Path []string

// Mutator transforms the current value at a path (nil if absent) into the
// next value to persist. Returning nil deletes the path.
type Mutator func(current json.RawMessage) (next json.RawMessage, err error)

// Store is the narrow key/value collaborator the events subsystem
// depends on. Atomicity is guaranteed per single Update call; Get/Delete
// have no atomicity requirement beyond not tearing a single document.
type Store interface {
	Get(path Path) (json.RawMessage, bool, error)
	Update(path Path, mutate Mutator) error
	Delete(path Path) error
}

// FileStore persists the whole tree as one JSON document on disk behind a
// mutex: a single buffered writer owning one file (internal/telemetry.Emitter's
// pattern) rather than one file per key.
type FileStore struct {
	mu   sync.Mutex
	path string
	tree map[string]interface{}
}

// NewFileStore opens (or creates) the JSON document at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, tree: map[string]interface{}{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.tree); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return fs, nil
}

// NewMemStore returns a FileStore that never touches disk; useful for
// tests and as an in-process default when no platform driver is wired.
func NewMemStore() *FileStore {
	return &FileStore{tree: map[string]interface{}{}}
}

func navigate(tree map[string]interface{}, path Path, create bool) (map[string]interface{}, string, bool) {
	if len(path) == 0 {
		return nil, "", false
	}
	node := tree
	for _, key := range path[:len(path)-1] {
		next, ok := node[key].(map[string]interface{})
		if !ok {
			if !create {
				return nil, "", false
			}
			next = map[string]interface{}{}
			node[key] = next
		}
		node = next
	}
	return node, path[len(path)-1], true
}

// Get returns the JSON value at path, if present.
func (s *FileStore) Get(path Path) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, leaf, ok := navigate(s.tree, path, false)
	if !ok {
		return nil, false, nil
	}
	v, ok := node[leaf]
	if !ok {
		return nil, false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Update atomically reads the current value at path, runs mutate, and
// persists the result (or deletes path if mutate returns nil).
func (s *FileStore) Update(path Path, mutate Mutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, leaf, ok := navigate(s.tree, path, true)
	if !ok {
		return fmt.Errorf("store: empty path")
	}

	var current json.RawMessage
	if v, present := node[leaf]; present {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		current = data
	}

	next, err := mutate(current)
	if err != nil {
		return err
	}

	if next == nil {
		delete(node, leaf)
	} else {
		var decoded interface{}
		if err := json.Unmarshal(next, &decoded); err != nil {
			return err
		}
		node[leaf] = decoded
	}

	return s.flushLocked()
}

// Delete removes the value at path.
func (s *FileStore) Delete(path Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, leaf, ok := navigate(s.tree, path, false)
	if !ok {
		return nil
	}
	delete(node, leaf)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.tree, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
