package storage

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a BlobStore backend.
type Config struct {
	S3Config
	LocalPath string
}

// NewStorage creates the BlobStore selected by cfg.Type.
// An empty type is detected from the endpoint; no endpoint means local storage.
func NewStorage(ctx context.Context, cfg *Config) (BlobStore, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.PublicURL)
	case StorageTypeR2, StorageTypeS3, StorageTypeS3Compatible, "s3-compatible":
		return NewS3Storage(ctx, &cfg.S3Config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	switch {
	case endpoint == "":
		return StorageTypeLocal
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
