// Package offsets persists the long-polling offset so a restarted bot does not ask Telegram
// for updates it already handled.
package offsets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidOffset is returned when a negative offset is saved or loaded.
var ErrInvalidOffset = errors.New("offsets: offset must not be negative")

// State is the persisted document.
type State struct {
	Offset    int       `yaml:"offset"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// FileStore keeps the offset in a YAML file, replaced atomically on every save.
type FileStore struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	last int
}

// NewFileStore creates a store for path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now, last: -1}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored offset, or 0 when nothing was saved yet.
func (s *FileStore) Load() (int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("offsets: read %s: %w", s.path, err)
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return 0, fmt.Errorf("offsets: decode %s: %w", s.path, err)
	}
	if state.Offset < 0 {
		return 0, ErrInvalidOffset
	}
	s.mu.Lock()
	s.last = state.Offset
	s.mu.Unlock()
	return state.Offset, nil
}

// Save writes offset unless it equals the last saved or loaded value.
func (s *FileStore) Save(offset int) error {
	if offset < 0 {
		return ErrInvalidOffset
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset == s.last {
		return nil
	}
	data, err := yaml.Marshal(State{Offset: offset, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("offsets: encode: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.last = offset
	return nil
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("offsets: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("offsets: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("offsets: write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("offsets: sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("offsets: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("offsets: rename %s: %w", tmpPath, err)
	}
	return nil
}
