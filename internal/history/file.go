package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// FileStore keeps the history as a JSON array in a single file. A missing
// file reads as an empty history. Read-modify-write cycles are serialised
// within the process and each write replaces the file atomically.
type FileStore struct {
	mu    sync.Mutex
	path  string
	limit int
	now   func() time.Time
}

// NewFileStore constructs a FileStore writing to path.
func NewFileStore(path string, limit int) *FileStore {
	return &FileStore{path: path, limit: normalizeLimit(limit), now: time.Now}
}

// NewFileStoreWithClock constructs a FileStore with an injected clock (for tests).
func NewFileStoreWithClock(path string, limit int, now func() time.Time) *FileStore {
	s := NewFileStore(path, limit)
	s.now = now
	return s
}

// Append adds a record and truncates the file to the most recent limit records.
func (s *FileStore) Append(_ context.Context, location string, snapshot weather.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	records = append(records, NewRecord(location, snapshot, s.now()))
	records = keepLast(records, s.limit)

	return s.write(records)
}

// All returns the stored records verbatim.
func (s *FileStore) All(_ context.Context) ([]weather.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Ping checks that the history directory exists.
func (s *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat history dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("history dir %s is not a directory", dir)
	}
	return nil
}

func (s *FileStore) read() ([]weather.HistoryRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []weather.HistoryRecord{}, nil
		}
		return nil, fmt.Errorf("reading history file %s: %w", s.path, err)
	}

	records := []weather.HistoryRecord{}
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling history file %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) write(records []weather.HistoryRecord) error {
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp history file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing history file %s: %w", s.path, err)
	}
	return nil
}
