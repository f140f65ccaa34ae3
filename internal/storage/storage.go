package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"supportwidget/internal/lib/sl"
)

// Store is the durable per-profile key/value store backing guest identity
// and the device id, the widget's stand-in for browser localStorage.
// Values survive restarts within the same profile (file path).
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	values map[string]string
}

func New(path string, log *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		log:    log.With(sl.Module("storage")),
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading profile store: %w", err)
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		// A corrupt profile file is discarded rather than made fatal,
		// identities are regenerated on the next resolution.
		s.log.Warn("corrupt profile store, starting empty", sl.Err(err))
		s.values = make(map[string]string)
	}
	return s, nil
}

// Get returns the stored value for key, or "" if absent.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores the value and flushes the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flush()
}

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profile store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating profile dir: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing profile store: %w", err)
	}
	return nil
}
