package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes audio files to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store. The base directory is
// resolved to an absolute path so the file:// links written back to the
// sheet stay valid regardless of the working directory.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", absDir, err)
	}

	return &LocalStore{
		baseDir: absDir,
		prefix:  prefix,
	}, nil
}

// Upload writes the audio bytes to disk and returns a file:// link.
func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path := filepath.Join(s.baseDir, s.prefix+key)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Write atomically using temp file + rename
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return s.URI(s.prefix + key), nil
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath := filepath.Join(s.baseDir, key)
	return "file://" + absPath
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
