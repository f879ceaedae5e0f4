package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
)

const (
	activeRecordPrefix = "attr/active/"
	failedRecordPrefix = "attr/failed/"

	maxConflictRetries = 3
)

// BadgerAttributeStore implements AttributeStore on an embedded BadgerDB.
// The active record of an image lives under a single key, so create-once
// is one serializable transaction; failed records are appended under
// attr/failed/<image_id>/<created_at>-<id>.
type BadgerAttributeStore struct {
	db *badger.DB
}

// OpenBadgerAttributeStore opens (or creates) a store under dir.
// Parameters:
//   - dir: database directory; ignored when inMemory is set.
//   - inMemory: keep everything in memory (tests).
//   - log: logger for badger's own messages; nil uses the default logger.
// Returns:
//   - *BadgerAttributeStore: open store.
//   - error: non-nil if badger cannot open dir.
func OpenBadgerAttributeStore(dir string, inMemory bool, log *logger.Logger) (*BadgerAttributeStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Compression = options.None
	if log != nil {
		opts.Logger = log.WithField(logger.FieldComponent, "badger")
	} else {
		opts.Logger = nil
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerAttributeStore{db: db}, nil
}

func activeKey(imageID string) []byte {
	return []byte(activeRecordPrefix + imageID)
}

func failedPrefix(imageID string) []byte {
	return []byte(failedRecordPrefix + imageID + "/")
}

func failedKey(rec *domain.AttributeRecord) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d-%s", failedRecordPrefix, rec.ImageID, rec.CreatedAt.UnixNano(), rec.ID))
}

// CreateOnce writes rec in one transaction. A complete record becomes the
// image's active key; failed records are appended to its history.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: terminal record to persist.
// Returns:
//   - error: *domain.AlreadyExistsError when an active record exists,
//     *domain.StoreWriteError otherwise. Conflicting transactions are retried.
func (s *BadgerAttributeStore) CreateOnce(ctx context.Context, rec *domain.AttributeRecord) error {
	if err := ctx.Err(); err != nil {
		return &domain.StoreWriteError{ImageID: rec.ImageID, Err: err}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &domain.StoreWriteError{ImageID: rec.ImageID, Err: err}
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(activeKey(rec.ImageID))
			switch {
			case err == nil:
				existing, decErr := decodeRecord(item)
				if decErr != nil {
					return decErr
				}
				return &domain.AlreadyExistsError{ImageID: rec.ImageID, ExistingStatus: existing.Status}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			if rec.Status == domain.RecordStatusFailed {
				return txn.Set(failedKey(rec), data)
			}
			return txn.Set(activeKey(rec.ImageID), data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}

	var exists *domain.AlreadyExistsError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exists):
		return exists
	default:
		return &domain.StoreWriteError{ImageID: rec.ImageID, Err: err}
	}
}

// Get retrieves the active record for an image, falling back to the newest
// failed one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageID: image identifier.
// Returns:
//   - *domain.AttributeRecord: record if found.
//   - error: domain.ErrNotFound when the image has no record.
func (s *BadgerAttributeStore) Get(ctx context.Context, imageID string) (*domain.AttributeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *domain.AttributeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(activeKey(imageID))
		if err == nil {
			rec, err = decodeRecord(item)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		prefix := failedPrefix(imageID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// seek past the last key under prefix
		it.Seek(append(bytes.Clone(prefix), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return domain.ErrNotFound
		}
		rec, err = decodeRecord(it.Item())
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByStatus retrieves records ordered by creation time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty lists all records.
//   - limit: maximum number of records; zero or less means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.AttributeRecord: records in the requested page.
//   - error: non-nil if the scan fails.
func (s *BadgerAttributeStore) ListByStatus(ctx context.Context, status domain.RecordStatus, limit, offset int) ([]domain.AttributeRecord, error) {
	var records []domain.AttributeRecord
	skipped := 0
	err := s.scan(ctx, status, func(rec *domain.AttributeRecord) bool {
		if skipped < offset {
			skipped++
			return true
		}
		records = append(records, *rec)
		return limit <= 0 || len(records) < limit
	})
	return records, err
}

// CountByStatus counts records with the given status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty counts all records.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the scan fails.
func (s *BadgerAttributeStore) CountByStatus(ctx context.Context, status domain.RecordStatus) (int64, error) {
	var n int64
	err := s.scan(ctx, status, func(*domain.AttributeRecord) bool {
		n++
		return true
	})
	return n, err
}

// scan visits records matching status until fn returns false.
// Failed records are only visited when status is failed or empty.
func (s *BadgerAttributeStore) scan(ctx context.Context, status domain.RecordStatus, fn func(*domain.AttributeRecord) bool) error {
	prefixes := [][]byte{[]byte(activeRecordPrefix), []byte(failedRecordPrefix)}
	switch status {
	case domain.RecordStatusFailed:
		prefixes = prefixes[1:]
	case domain.RecordStatusPending, domain.RecordStatusComplete:
		prefixes = prefixes[:1]
	}

	return s.db.View(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				rec, err := decodeRecord(it.Item())
				if err != nil {
					it.Close()
					return err
				}
				if status != "" && rec.Status != status {
					continue
				}
				if !fn(rec) {
					it.Close()
					return nil
				}
			}
			it.Close()
		}
		return nil
	})
}

func decodeRecord(item *badger.Item) (*domain.AttributeRecord, error) {
	var rec domain.AttributeRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", item.Key(), err)
	}
	return &rec, nil
}

// Close closes the badger database.
func (s *BadgerAttributeStore) Close() error {
	return s.db.Close()
}
