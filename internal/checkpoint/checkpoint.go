// Package checkpoint persists per-row completion state so an interrupted
// batch can resume without redoing finished work.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the current checkpoint file schema version.
const SchemaVersion = 1

// ErrCorrupt is returned when a checkpoint file exists but cannot be
// parsed. Callers must treat this as fatal rather than discard progress.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// Status is a persisted terminal row status. In-flight rows are never
// written; a crash mid-row leaves the row absent and it is retried whole.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RowState is the durable record for one row.
type RowState struct {
	Status    Status    `json:"status"`
	Link      string    `json:"link,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// document is the on-disk layout.
type document struct {
	Version   int              `json:"version"`
	SheetID   string           `json:"sheet_id,omitempty"`
	Rows      map[int]RowState `json:"rows"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store handles checkpoint persistence and retrieval.
type Store interface {
	// Load reads all recorded row states.
	Load(ctx context.Context) (map[int]RowState, error)

	// Save persists one row's terminal state. It returns only after the
	// state is durable; a crash immediately after return loses nothing.
	Save(ctx context.Context, rowIndex int, state RowState) error

	// Path returns the backing file path, or "" when checkpointing is off.
	Path() string

	// Clear removes the checkpoint entirely.
	Clear() error
}

// Config configures the checkpoint store.
type Config struct {
	Enabled bool
	Path    string // checkpoint file path
	SheetID string // recorded for operator inspection
}

// NewStore creates a checkpoint store based on configuration.
func NewStore(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return &noopStore{}, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
		}
	}

	return &fileStore{path: cfg.Path, sheetID: cfg.SheetID}, nil
}

// Exists reports whether a checkpoint file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// fileStore persists row states to a single JSON file. The full document is
// held in memory and rewritten atomically on every save; concurrent savers
// are serialized by the mutex.
type fileStore struct {
	path    string
	sheetID string

	mu     sync.Mutex
	rows   map[int]RowState
	loaded bool
}

// Load reads the checkpoint from file.
func (s *fileStore) Load(ctx context.Context) (map[int]RowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	out := make(map[int]RowState, len(s.rows))
	for idx, st := range s.rows {
		out[idx] = st
	}
	return out, nil
}

// loadLocked populates s.rows from disk once. Callers hold s.mu.
func (s *fileStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.rows = make(map[int]RowState)
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read checkpoint file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if doc.Version != SchemaVersion {
		return fmt.Errorf("%w: %s: unsupported schema version %d", ErrCorrupt, s.path, doc.Version)
	}

	if doc.Rows == nil {
		doc.Rows = make(map[int]RowState)
	}
	s.rows = doc.Rows
	s.loaded = true
	return nil
}

// Save persists one row's state. Once a row is recorded succeeded it is
// never downgraded.
func (s *fileStore) Save(ctx context.Context, rowIndex int, state RowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	if prev, ok := s.rows[rowIndex]; ok && prev.Status == StatusSucceeded && state.Status != StatusSucceeded {
		return nil
	}

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.rows[rowIndex] = state

	return s.writeLocked()
}

// writeLocked rewrites the whole document atomically. Callers hold s.mu.
func (s *fileStore) writeLocked() error {
	doc := document{
		Version:   SchemaVersion,
		SheetID:   s.sheetID,
		Rows:      s.rows,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// Path returns the backing file path.
func (s *fileStore) Path() string {
	return s.path
}

// Clear removes the checkpoint file and in-memory state.
func (s *fileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[int]RowState)
	s.loaded = true

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}

// noopStore is a no-op store for when checkpointing is disabled.
type noopStore struct{}

func (s *noopStore) Load(ctx context.Context) (map[int]RowState, error) {
	return map[int]RowState{}, nil
}

func (s *noopStore) Save(ctx context.Context, rowIndex int, state RowState) error {
	return nil
}

func (s *noopStore) Path() string { return "" }

func (s *noopStore) Clear() error { return nil }
