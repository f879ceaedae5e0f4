package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned when no object exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore defines the durable image byte store.
// Keys are flat names of the form "<image_id>.<extension>".
type BlobStore interface {
	// Put writes data under key and returns the object's public address.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get reads the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Locate finds the key stored for an image id regardless of its extension.
	Locate(ctx context.Context, imageID string) (string, error)

	// PresignGet returns a time-limited read URL for key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// GetURL returns the public address for key.
	GetURL(key string) string

	Exists(ctx context.Context, key string) (bool, error)
}
