// Package objstore provides access to the screenshot object store
// (MinIO or any S3-compatible service) behind a small interface.
package objstore

import (
	"context"
	"time"

	"github.com/hyperjump/sokkuri/internal/models"
)

// Store abstracts blob access by bucket and key.
type Store interface {
	// Get returns the full object bytes. Missing objects yield a
	// not-found error; transport failures yield an upstream error.
	Get(ctx context.Context, ref models.ObjectRef) ([]byte, error)
	// Put writes the object bytes with the given content type.
	Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error
	// Stat verifies the object exists without reading it.
	Stat(ctx context.Context, ref models.ObjectRef) error
	// EnsureBucket creates the bucket if it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error
	// PresignGet returns a time-limited GET URL for the object.
	PresignGet(ctx context.Context, ref models.ObjectRef, expiry time.Duration) (string, error)
}
