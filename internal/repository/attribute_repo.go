package repository

import (
	"context"
	"errors"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"gorm.io/gorm"
)

// GormAttributeStore implements AttributeStore on SQLite or PostgreSQL.
// A partial unique index on image_id (status <> 'failed') backs the
// create-once check when two writers race past the lookup.
type GormAttributeStore struct {
	db *gorm.DB
}

// NewGormAttributeStore creates a store bound to db.
// Parameters:
//   - db: GORM database handle, already migrated.
// Returns:
//   - *GormAttributeStore: store instance bound to db.
func NewGormAttributeStore(db *gorm.DB) *GormAttributeStore {
	return &GormAttributeStore{db: db}
}

// CreateOnce inserts rec unless the image already has a non-failed record.
// The partial unique index on image_id decides races between writers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: terminal record to persist.
// Returns:
//   - error: *domain.AlreadyExistsError on a duplicate, *domain.StoreWriteError on failure.
func (r *GormAttributeStore) CreateOnce(ctx context.Context, rec *domain.AttributeRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.AttributeRecord
		err := tx.Where("image_id = ? AND status <> ?", rec.ImageID, domain.RecordStatusFailed).
			Take(&existing).Error
		if err == nil {
			return &domain.AlreadyExistsError{ImageID: rec.ImageID, ExistingStatus: existing.Status}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(rec).Error
	})

	var exists *domain.AlreadyExistsError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exists):
		return exists
	case errors.Is(err, gorm.ErrDuplicatedKey):
		status := domain.RecordStatusPending
		if cur, getErr := r.Get(ctx, rec.ImageID); getErr == nil {
			status = cur.Status
		}
		return &domain.AlreadyExistsError{ImageID: rec.ImageID, ExistingStatus: status}
	default:
		return &domain.StoreWriteError{ImageID: rec.ImageID, Err: err}
	}
}

// Get retrieves the record for an image, preferring the active one over
// the most recent failed attempt.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageID: image identifier.
// Returns:
//   - *domain.AttributeRecord: record if found.
//   - error: domain.ErrNotFound when the image has no record.
func (r *GormAttributeStore) Get(ctx context.Context, imageID string) (*domain.AttributeRecord, error) {
	db := r.db.WithContext(ctx)

	var rec domain.AttributeRecord
	err := db.Where("image_id = ? AND status <> ?", imageID, domain.RecordStatusFailed).Take(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = db.Where("image_id = ?", imageID).Order("created_at DESC").Order("id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByStatus retrieves records in creation order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty lists all records.
//   - limit: maximum number of records; zero or less means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.AttributeRecord: records in the requested page.
//   - error: non-nil if the query fails.
func (r *GormAttributeStore) ListByStatus(ctx context.Context, status domain.RecordStatus, limit, offset int) ([]domain.AttributeRecord, error) {
	query := r.db.WithContext(ctx).Model(&domain.AttributeRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var records []domain.AttributeRecord
	if err := query.Order("created_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByStatus counts records with the given status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty counts all records.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *GormAttributeStore) CountByStatus(ctx context.Context, status domain.RecordStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.AttributeRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// Close closes the underlying connection pool.
func (r *GormAttributeStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
