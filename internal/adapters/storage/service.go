// Package storage wraps S3-compatible object storage. It holds the archived
// JSON reports of reconciliation runs.
package storage

import (
	"context"
	"io"
	"time"
)

// PresignedURL contains the URL and metadata for a presigned download.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StorageService defines the object storage operations the application uses.
type StorageService interface {
	// PutObject writes reader under key, replacing any existing object.
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error

	// GenerateDownloadURL creates a presigned URL for downloading an object.
	GenerateDownloadURL(ctx context.Context, bucket, key string) (*PresignedURL, error)

	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	IsMinIOEnabled() bool
}
