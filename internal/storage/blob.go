package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	_ "gocloud.dev/blob/s3blob"  // S3 driver
	"gocloud.dev/gcerrors"
)

// defaultLinkTTL bounds signed links when no TTL is configured.
const defaultLinkTTL = 7 * 24 * time.Hour

// blobStore writes audio files to a cloud bucket through gocloud.dev.
type blobStore struct {
	bucket  *blob.Bucket
	scheme  string // "gs" | "s3"
	name    string
	prefix  string
	linkTTL time.Duration
}

// NewGCSStore creates a Google Cloud Storage backed store.
func NewGCSStore(bucketName, prefix string, linkTTL time.Duration) (AudioStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return &blobStore{
		bucket:  bucket,
		scheme:  "gs",
		name:    bucketName,
		prefix:  prefix,
		linkTTL: linkTTL,
	}, nil
}

// NewS3Store creates an S3-compatible store.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Store(bucketName, prefix, endpoint, region string, linkTTL time.Duration) (AudioStore, error) {
	ctx := context.Background()

	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return &blobStore{
		bucket:  bucket,
		scheme:  "s3",
		name:    bucketName,
		prefix:  prefix,
		linkTTL: linkTTL,
	}, nil
}

// Upload writes the audio bytes to the bucket and returns a shareable link:
// a signed URL when the backend can mint one, the canonical URI otherwise.
func (s *blobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := s.prefix + key

	w, err := s.bucket.NewWriter(ctx, fullKey, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("create writer for %s: %w", fullKey, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write data to %s: %w", fullKey, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", fullKey, err)
	}

	return s.link(ctx, fullKey)
}

// link returns a signed URL for the key, falling back to the canonical URI
// for credentials that cannot sign.
func (s *blobStore) link(ctx context.Context, fullKey string) (string, error) {
	ttl := s.linkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}

	signed, err := s.bucket.SignedURL(ctx, fullKey, &blob.SignedURLOptions{Expiry: ttl})
	if err != nil {
		if gcerrors.Code(err) == gcerrors.Unimplemented {
			return s.URI(fullKey), nil
		}
		return "", fmt.Errorf("sign url for %s: %w", fullKey, err)
	}
	return signed, nil
}

// URI returns the canonical URI for the given key.
func (s *blobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}

// Close releases the bucket connection.
func (s *blobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// Verify blobStore implements AudioStore.
var _ AudioStore = (*blobStore)(nil)
