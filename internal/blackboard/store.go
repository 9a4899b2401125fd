// Package blackboard provides the persistent key/value store that work units
// use to publish contracts (identifiers, routes, exported names) to the units
// that run after them.
package blackboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/ShayCichocki/matrioska/internal/fsutil"
)

// FileName is the name of the store file inside the checkpoints directory.
const FileName = "shared_state.json"

// Store is a JSON-file-backed key/value store. Writes are last-writer-wins per
// key and every successful write is on disk before Write returns.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

// Open loads the store at path. A missing or unreadable file yields an empty
// store; the condition is logged, not returned.
func Open(path string) *Store {
	s := &Store{
		path: path,
		data: make(map[string]any),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[blackboard] read %s: %v, starting empty", path, err)
		}
		return s
	}

	var loaded map[string]any
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Printf("[blackboard] corrupt store %s: %v, starting empty", path, err)
		return s
	}
	if loaded != nil {
		s.data = loaded
	}

	log.Printf("[blackboard] loaded %d keys from %s", len(s.data), path)
	return s
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Read returns copies of the values for keys present in the store. Missing
// keys are omitted.
func (s *Store) Read(keys []string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = deepCopy(v)
		}
	}
	return out
}

// Write merges updates into the store and persists the result. The in-memory
// state only changes once the file has been written. An empty update set is
// a no-op.
func (s *Store) Write(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(s.data)+len(updates))
	for k, v := range s.data {
		next[k] = v
	}
	for k, v := range updates {
		next[k] = deepCopy(v)
	}

	if err := persist(s.path, next); err != nil {
		return fmt.Errorf("persist shared state: %w", err)
	}
	s.data = next

	log.Printf("[blackboard] wrote %d keys (%d total)", len(updates), len(next))
	return nil
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = deepCopy(v)
	}
	return out
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func persist(path string, data map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("marshal shared state: %w", err)
	}
	return fsutil.AtomicWriteFile(path, buf.Bytes(), 0644)
}

// deepCopy copies the JSON value tree so callers cannot mutate stored state.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return v
	}
}
