package repository

import (
	"context"

	"github.com/engelke/fashion-hack-2024/internal/domain"
)

// AttributeStore persists attribute records with create-once semantics.
type AttributeStore interface {
	// CreateOnce inserts rec unless a non-failed record already exists for
	// rec.ImageID, in which case it returns *domain.AlreadyExistsError.
	// Backend failures are returned as *domain.StoreWriteError.
	CreateOnce(ctx context.Context, rec *domain.AttributeRecord) error

	// Get returns the active record for imageID, falling back to the most
	// recent failed one. domain.ErrNotFound when the image has no record.
	Get(ctx context.Context, imageID string) (*domain.AttributeRecord, error)

	// ListByStatus pages through records in creation order. An empty status lists all.
	ListByStatus(ctx context.Context, status domain.RecordStatus, limit, offset int) ([]domain.AttributeRecord, error)

	// CountByStatus counts records. An empty status counts all.
	CountByStatus(ctx context.Context, status domain.RecordStatus) (int64, error)

	Close() error
}
