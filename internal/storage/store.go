// Package storage persists synthesized audio and hands back shareable links.
package storage

import (
	"context"
	"fmt"
	"time"
)

// AudioStore abstracts writing audio payloads to a storage backend.
type AudioStore interface {
	// Upload writes the audio bytes under key and returns a shareable link.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Common
	Prefix  string        // path prefix within bucket or local dir
	LinkTTL time.Duration // lifetime of signed links, 0 = backend default
}

// NewAudioStore creates a storage backend based on configuration.
func NewAudioStore(cfg Config) (AudioStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix, cfg.LinkTTL)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region, cfg.LinkTTL)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
