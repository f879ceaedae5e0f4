package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/prompts"
	"github.com/engelke/fashion-hack-2024/internal/repository"
	"github.com/engelke/fashion-hack-2024/internal/source"
	"github.com/engelke/fashion-hack-2024/internal/storage"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// IngestService runs the ingestion pipeline: blob put, model call, parse,
// and a single create-once commit of the resulting attribute record.
type IngestService struct {
	storage storage.BlobStore
	store   repository.AttributeStore
	model   ModelClient
	indexer Indexer
	logger  *logger.Logger
	retry   RetryPolicy
	workers int
	prompt  string
	newID   func() string
	now     func() time.Time
}

// IngestConfig holds configuration for the ingest service.
type IngestConfig struct {
	MaxRetries       int // total model attempts per analysis
	RetryBackoffBase time.Duration
	Workers          int
	Prompt           string // instruction sent with each image; empty uses the default
}

// IngestOption customizes an IngestService.
type IngestOption func(*IngestService)

// WithModelClient enables the analysis stage. Without it the service only stores uploads.
func WithModelClient(m ModelClient) IngestOption {
	return func(s *IngestService) { s.model = m }
}

// WithIndexer adds completed records to a search index after commit.
func WithIndexer(ix Indexer) IngestOption {
	return func(s *IngestService) { s.indexer = ix }
}

// WithIDGenerator replaces the UUID generator for image and record ids.
func WithIDGenerator(fn func() string) IngestOption {
	return func(s *IngestService) { s.newID = fn }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(fn func() time.Time) IngestOption {
	return func(s *IngestService) { s.now = fn }
}

// NewIngestService creates a new ingest service.
// Parameters:
//   - blobs: blob store for image bytes.
//   - store: attribute record store.
//   - log: service logger; nil uses the default logger.
//   - cfg: retry, worker and prompt settings.
//   - opts: optional model client, indexer, id generator and clock.
// Returns:
//   - *IngestService: initialized service.
func NewIngestService(
	blobs storage.BlobStore,
	store repository.AttributeStore,
	log *logger.Logger,
	cfg *IngestConfig,
	opts ...IngestOption,
) *IngestService {
	if log == nil {
		log = logger.GetDefault()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = prompts.AttributeExtractionPrompt
	}

	s := &IngestService{
		storage: blobs,
		store:   store,
		logger:  log,
		retry:   RetryPolicy{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryBackoffBase},
		workers: workers,
		prompt:  prompt,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the context logger, falling back to the service logger.
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != logger.GetDefault() {
		return l
	}
	return s.logger
}

// IngestResult reports the outcome of one ingestion or re-analysis.
type IngestResult struct {
	ImageID        string                  `json:"image_id"`
	StorageKey     string                  `json:"storage_key"`
	StorageAddress string                  `json:"storage_address"`
	Asset          *domain.ImageAsset      `json:"asset,omitempty"`
	Record         *domain.AttributeRecord `json:"record,omitempty"`
	ModelCalls     int                     `json:"model_calls"`
	Reused         bool                    `json:"reused"` // an existing complete record was returned
	Err            error                   `json:"-"`      // analysis failure recorded on a failed record
	IndexErr       error                   `json:"-"`      // search indexing failure after commit
}

// Ingest stores data as a new image and, when a model client is configured,
// extracts and commits its attribute record.
//
// An analysis failure commits a failed record, sets result.Err and returns
// a nil error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - data: image bytes.
//   - filename: original file name, used when the format cannot be sniffed.
// Returns:
//   - *IngestResult: stored asset and committed record.
//   - error: non-nil only when no record was committed: an empty payload, a
//     *domain.StorageWriteError, a commit failure, or cancellation.
func (s *IngestService) Ingest(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyPayload
	}

	imageID := s.newID()
	ctx = logger.SetImageID(s.log(ctx).WithContext(ctx), imageID)

	format := detectImageFormat(filename, data)
	asset := &domain.ImageAsset{
		ID:          imageID,
		StorageKey:  domain.StorageKeyFor(imageID, format.Extension),
		Extension:   format.Extension,
		ContentType: format.ContentType,
		Size:        int64(len(data)),
		Width:       format.Width,
		Height:      format.Height,
	}
	result := &IngestResult{ImageID: imageID, StorageKey: asset.StorageKey, Asset: asset}

	start := time.Now()
	addr, err := s.storage.Put(ctx, asset.StorageKey, data, asset.ContentType)
	if err != nil {
		werr := &domain.StorageWriteError{Key: asset.StorageKey, Err: err}
		result.Err = werr
		s.log(ctx).WithError(err).Error("Failed to store image")
		return result, werr
	}
	asset.StorageAddress = addr
	result.StorageAddress = addr

	logger.With(logger.Fields{"storage_key": asset.StorageKey}).
		WithSize(asset.Size).
		WithDuration(time.Since(start)).
		Info(ctx, "Image stored")

	if s.model == nil {
		return result, nil
	}
	return s.analyze(ctx, asset, data, result)
}

// RetryAnalysis re-runs extraction for a stored image.
//
// An existing complete record is returned as-is (Reused) without a model
// call; a pending one is refused with *domain.AlreadyExistsError. Otherwise
// the blob is read back and analyzed into a new record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageID: image identifier (canonical UUID).
// Returns:
//   - *IngestResult: reused or newly committed record.
//   - error: domain.ErrNotFound for malformed or unknown ids,
//     domain.ErrModelUnavailable without a model client.
func (s *IngestService) RetryAnalysis(ctx context.Context, imageID string) (*IngestResult, error) {
	if s.model == nil {
		return nil, domain.ErrModelUnavailable
	}
	if err := checkImageID(imageID); err != nil {
		return nil, err
	}
	ctx = logger.SetImageID(s.log(ctx).WithContext(ctx), imageID)

	existing, err := s.store.Get(ctx, imageID)
	switch {
	case err == nil && existing.Status == domain.RecordStatusComplete:
		return &IngestResult{
			ImageID:        imageID,
			StorageKey:     existing.StorageKey,
			StorageAddress: existing.ImageURL,
			Record:         existing,
			Reused:         true,
		}, nil
	case err == nil && existing.Status == domain.RecordStatusPending:
		return nil, &domain.AlreadyExistsError{ImageID: imageID, ExistingStatus: existing.Status}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to load attribute record: %w", err)
	}

	key, addr := "", ""
	if existing != nil {
		key, addr = existing.StorageKey, existing.ImageURL
	}
	if key == "" {
		key, err = s.storage.Locate(ctx, imageID)
		if err != nil {
			return nil, notFoundOr(err, imageID)
		}
	}
	if addr == "" {
		addr = s.storage.GetURL(key)
	}

	data, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, notFoundOr(err, imageID)
	}

	ext := extensionOfKey(key)
	asset := &domain.ImageAsset{
		ID:             imageID,
		StorageKey:     key,
		StorageAddress: addr,
		Extension:      ext,
		ContentType:    getContentType(ext),
		Size:           int64(len(data)),
	}
	result := &IngestResult{ImageID: imageID, StorageKey: key, StorageAddress: addr, Asset: asset}
	return s.analyze(ctx, asset, data, result)
}

// checkImageID accepts only canonical uuids, the form Ingest issues.
func checkImageID(imageID string) error {
	if id, err := uuid.Parse(imageID); err != nil || id.String() != imageID {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, imageID)
	}
	return nil
}

func notFoundOr(err error, imageID string) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, imageID)
	}
	return fmt.Errorf("failed to read image %s: %w", imageID, err)
}

// analyze runs model, parse and commit for an image already in blob storage.
// The record stays in memory until it is terminal and is written exactly once.
func (s *IngestService) analyze(ctx context.Context, asset *domain.ImageAsset, data []byte, result *IngestResult) (*IngestResult, error) {
	rec := domain.NewPendingRecord(s.newID(), asset, s.model.GetModel(), s.now())

	start := time.Now()
	var raw string
	attempts, err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var callErr error
		raw, callErr = s.model.Analyze(ctx, data, asset.Extension, s.prompt)
		return callErr
	})
	result.ModelCalls = attempts
	rec.Attempts = attempts

	var (
		attrs  domain.Attributes
		rawOut *string
	)
	if err == nil {
		rawOut = &raw
		attrs, err = ParseAttributes(raw)
	}

	if cerr := ctx.Err(); cerr != nil {
		s.log(ctx).WithError(cerr).Warn("Analysis canceled, no record written")
		result.Err = cerr
		return result, cerr
	}

	now := s.now()
	if err != nil {
		_ = rec.Fail(err, rawOut, now)
		result.Err = err
	} else {
		_ = rec.Complete(attrs, raw, now)
	}

	if cerr := s.store.CreateOnce(ctx, rec); cerr != nil {
		s.log(ctx).WithError(cerr).Error("Failed to commit attribute record")
		result.Err = cerr
		return result, cerr
	}
	result.Record = rec

	entry := logger.With(logger.Fields{"record_id": rec.ID}).
		WithStatus(string(rec.Status)).
		WithAttempt(attempts).
		WithDuration(time.Since(start))
	if rec.Status == domain.RecordStatusFailed {
		entry.WithField("error_kind", rec.ErrorKind).Warn(ctx, "Attribute extraction failed: %v", err)
		return result, nil
	}
	entry.Info(ctx, "Attributes extracted")

	if s.indexer != nil {
		if ierr := s.indexer.Index(ctx, rec); ierr != nil {
			result.IndexErr = &domain.IndexError{ImageID: rec.ImageID, Err: ierr}
			s.log(ctx).WithError(ierr).Warn("Failed to index attribute record")
		}
	}
	return result, nil
}

// IngestStats holds statistics for a batch run.
type IngestStats struct {
	TotalItems     int64     `json:"total_items"`
	CompletedItems int64     `json:"completed_items"` // committed complete records
	AnalysisFailed int64     `json:"analysis_failed"` // committed failed records
	FailedItems    int64     `json:"failed_items"`    // nothing committed
	SkippedItems   int64     `json:"skipped_items"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

func (st *IngestStats) record(result *IngestResult, err error) {
	switch {
	case err != nil:
		atomic.AddInt64(&st.FailedItems, 1)
	case result.Reused:
		atomic.AddInt64(&st.SkippedItems, 1)
	case result.Record == nil:
		atomic.AddInt64(&st.CompletedItems, 1)
	case result.Record.Status == domain.RecordStatusComplete:
		atomic.AddInt64(&st.CompletedItems, 1)
	default:
		atomic.AddInt64(&st.AnalysisFailed, 1)
	}
}

// BatchIngest ingests local image files on a bounded worker pool.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - items: files to ingest.
// Returns:
//   - *IngestStats: per-outcome counts.
//   - error: non-nil if the pool fails or ctx ends.
func (s *IngestService) BatchIngest(ctx context.Context, items []source.ImageItem) (*IngestStats, error) {
	stats := &IngestStats{TotalItems: int64(len(items)), StartTime: time.Now()}

	err := s.runPool(ctx, len(items), func(ctx context.Context, i int) {
		item := items[i]
		itemCtx := logger.WithField(ctx, logger.FieldSource, item.SourceID)

		data, err := os.ReadFile(item.LocalPath)
		if err != nil {
			s.log(itemCtx).WithError(err).Error("Failed to read image file")
			stats.record(nil, err)
			return
		}
		result, err := s.Ingest(itemCtx, data, item.Filename)
		stats.record(result, err)
	})
	stats.EndTime = time.Now()

	s.log(ctx).WithFields(logger.Fields{
		"total":           stats.TotalItems,
		"completed":       stats.CompletedItems,
		"analysis_failed": stats.AnalysisFailed,
		"failed":          stats.FailedItems,
		"duration":        stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Batch ingestion completed")
	return stats, err
}

// IngestFromSource pages through src and ingests its items.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: image source to enumerate.
//   - limit: maximum number of items; zero or less ingests all.
// Returns:
//   - *IngestStats: per-outcome counts.
//   - error: non-nil if listing fails or ctx ends.
func (s *IngestService) IngestFromSource(ctx context.Context, src source.Source, limit int) (*IngestStats, error) {
	ctx = logger.SetJobID(s.log(ctx).WithContext(ctx), uuid.New().String())
	s.log(ctx).WithFields(logger.Fields{"source": src.GetSourceID(), "limit": limit}).Info("Starting ingestion")

	const pageSize = 100
	var (
		items  []source.ImageItem
		cursor string
	)
	for {
		want := pageSize
		if limit > 0 {
			want = min(pageSize, limit-len(items))
			if want <= 0 {
				break
			}
		}
		batch, next, err := src.FetchBatch(ctx, cursor, want)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch batch: %w", err)
		}
		items = append(items, batch...)
		if next == "" || len(batch) == 0 {
			break
		}
		cursor = next
	}
	return s.BatchIngest(ctx, items)
}

// RetryFailed re-runs analysis for images whose latest record failed.
// Images that meanwhile hold a complete record are counted as skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of distinct images; zero or less retries all.
// Returns:
//   - *IngestStats: per-outcome counts.
//   - error: non-nil if listing fails or ctx ends.
func (s *IngestService) RetryFailed(ctx context.Context, limit int) (*IngestStats, error) {
	failed, err := s.store.ListByStatus(ctx, domain.RecordStatusFailed, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed records: %w", err)
	}

	seen := make(map[string]bool, len(failed))
	var imageIDs []string
	for _, rec := range failed {
		if seen[rec.ImageID] {
			continue
		}
		seen[rec.ImageID] = true
		imageIDs = append(imageIDs, rec.ImageID)
		if limit > 0 && len(imageIDs) >= limit {
			break
		}
	}

	stats := &IngestStats{TotalItems: int64(len(imageIDs)), StartTime: time.Now()}
	err = s.runPool(ctx, len(imageIDs), func(ctx context.Context, i int) {
		result, err := s.RetryAnalysis(ctx, imageIDs[i])
		if errors.Is(err, domain.ErrAlreadyExists) {
			atomic.AddInt64(&stats.SkippedItems, 1)
			return
		}
		stats.record(result, err)
	})
	stats.EndTime = time.Now()
	return stats, err
}

// runPool calls fn for indexes [0, n) on an ants pool of s.workers goroutines.
// Items not yet started when ctx ends are dropped.
func (s *IngestService) runPool(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if n == 0 {
		return nil
	}
	pool, err := ants.NewPool(min(s.workers, n))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		i := i
		if err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i)
		}); err != nil {
			wg.Done()
			return fmt.Errorf("failed to submit task: %w", err)
		}
	}
	wg.Wait()
	return ctx.Err()
}

// reindexBatchSize is the number of descriptions embedded per request.
const reindexBatchSize = 32

// Reindex adds complete records to the search index. Records are embedded
// in batches; a failed batch counts its remaining records as failed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records; zero or less reindexes all.
// Returns:
//   - *IngestStats: per-outcome counts.
//   - error: domain.ErrSearchUnavailable without an indexer, or a listing error.
func (s *IngestService) Reindex(ctx context.Context, limit int) (*IngestStats, error) {
	if s.indexer == nil {
		return nil, domain.ErrSearchUnavailable
	}
	records, err := s.store.ListByStatus(ctx, domain.RecordStatusComplete, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list complete records: %w", err)
	}

	stats := &IngestStats{TotalItems: int64(len(records)), StartTime: time.Now()}
	batches := (len(records) + reindexBatchSize - 1) / reindexBatchSize
	err = s.runPool(ctx, batches, func(ctx context.Context, i int) {
		end := min((i+1)*reindexBatchSize, len(records))
		batch := records[i*reindexBatchSize : end]
		n, err := s.indexer.IndexBatch(ctx, batch)
		if err != nil {
			s.log(ctx).WithError(err).Warnf("Failed to index batch %d", i)
			atomic.AddInt64(&stats.FailedItems, int64(len(batch)-n))
		} else {
			atomic.AddInt64(&stats.SkippedItems, int64(len(batch)-n))
		}
		atomic.AddInt64(&stats.CompletedItems, int64(n))
	})
	stats.EndTime = time.Now()

	logger.With(logger.Fields{"failed": stats.FailedItems}).
		WithCount(int(stats.CompletedItems)).
		WithDuration(stats.EndTime.Sub(stats.StartTime)).
		Info(ctx, "Reindex finished")
	return stats, err
}
