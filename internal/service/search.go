package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/repository"
	"github.com/engelke/fashion-hack-2024/internal/storage"
)

const (
	defaultTopK      = 20
	maxTopK          = 100
	defaultSignedTTL = 15 * time.Minute
	defaultListLimit = 20
	maxListLimit     = 100
)

// SearchConfig holds configuration for search service.
type SearchConfig struct {
	ScoreThreshold float32
	SignedURLTTL   time.Duration
}

// SearchService serves the read side: record lookup, signed URLs,
// statistics and attribute search.
type SearchService struct {
	store          repository.AttributeStore
	storage        storage.BlobStore
	index          VectorIndex
	embedding      Embedder
	logger         *logger.Logger
	scoreThreshold float32
	signedTTL      time.Duration
}

// NewSearchService creates a new search service.
// Parameters:
//   - store: attribute record store.
//   - blobs: blob store used for signed URLs.
//   - index: vector index; nil disables Search.
//   - embedding: query embedder; nil disables Search.
//   - log: service logger; nil uses the default logger.
//   - cfg: score threshold and signed URL TTL; nil uses defaults.
// Returns:
//   - *SearchService: initialized service.
func NewSearchService(
	store repository.AttributeStore,
	blobs storage.BlobStore,
	index VectorIndex,
	embedding Embedder,
	log *logger.Logger,
	cfg *SearchConfig,
) *SearchService {
	if log == nil {
		log = logger.GetDefault()
	}
	s := &SearchService{
		store:     store,
		storage:   blobs,
		index:     index,
		embedding: embedding,
		logger:    log,
		signedTTL: defaultSignedTTL,
	}
	if cfg != nil {
		s.scoreThreshold = cfg.ScoreThreshold
		if cfg.SignedURLTTL > 0 {
			s.signedTTL = cfg.SignedURLTTL
		}
	}
	return s
}

// SearchEnabled reports whether a vector index is configured.
func (s *SearchService) SearchEnabled() bool {
	return s.index != nil && s.embedding != nil
}

// SearchRequest represents a text search request.
type SearchRequest struct {
	Query   string            `json:"query" binding:"required"`
	TopK    int               `json:"top_k"`
	Filters map[string]string `json:"filters,omitempty"` // attribute name -> exact value
}

// SearchResult represents a single search result.
type SearchResult struct {
	ImageID     string                  `json:"image_id"`
	URL         string                  `json:"url"`
	Score       float32                 `json:"score"`
	Description string                  `json:"description"`
	Record      *domain.AttributeRecord `json:"record,omitempty"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
}

// Search embeds the query and returns the closest images, hydrated with their
// current attribute records. Hits without a complete record are dropped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: query text, result count and attribute filters.
// Returns:
//   - *SearchResponse: matching records ordered by score.
//   - error: domain.ErrSearchUnavailable without an index, or a validation,
//     embedding or index error.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if !s.SearchEnabled() {
		return nil, domain.ErrSearchUnavailable
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	filters := repository.SearchFilters{}
	for key, value := range req.Filters {
		if !isAttributeKey(key) {
			return nil, fmt.Errorf("unknown filter %q", key)
		}
		if value != "" {
			filters[key] = value
		}
	}

	ctx = logger.SetComponent(ctx, "search")
	logger.CtxInfo(ctx, "Performing search: query=%q, top_k=%d, filters=%v", req.Query, req.TopK, filters)

	vector, err := s.embedding.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := s.index.Search(ctx, vector, req.TopK, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Qdrant: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil {
			continue
		}
		if s.scoreThreshold > 0 && hit.Score < s.scoreThreshold {
			continue
		}
		rec, err := s.store.Get(ctx, hit.Payload.ImageID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.CtxWarn(ctx, "Failed to load record for hit: image_id=%s, error=%v", hit.Payload.ImageID, err)
			}
			continue
		}
		if rec.Status != domain.RecordStatusComplete {
			continue
		}
		results = append(results, SearchResult{
			ImageID:     rec.ImageID,
			URL:         rec.ImageURL,
			Score:       hit.Score,
			Description: hit.Payload.Description,
			Record:      rec,
		})
	}

	return &SearchResponse{Results: results, Total: len(results), Query: req.Query}, nil
}

func isAttributeKey(key string) bool {
	for _, k := range domain.AttributeKeys {
		if k == key {
			return true
		}
	}
	return false
}

// GetRecord returns the current attribute record of an image: the active
// one if present, otherwise its latest failed record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageID: image identifier.
// Returns:
//   - *domain.AttributeRecord: record if found.
//   - error: domain.ErrNotFound when the image has no record.
func (s *SearchService) GetRecord(ctx context.Context, imageID string) (*domain.AttributeRecord, error) {
	return s.store.Get(ctx, imageID)
}

// SignedURL is a time-limited read URL for a stored image.
type SignedURL struct {
	ImageID   string    `json:"image_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignedURL presigns a read URL for imageID. The image need not have an
// attribute record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageID: image identifier (canonical UUID).
//   - ttl: URL lifetime; zero or less uses the configured default.
// Returns:
//   - *SignedURL: URL and its expiry.
//   - error: domain.ErrNotFound for malformed or unknown ids.
func (s *SearchService) SignedURL(ctx context.Context, imageID string, ttl time.Duration) (*SignedURL, error) {
	if err := checkImageID(imageID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.signedTTL
	}

	var key string
	if rec, err := s.store.Get(ctx, imageID); err == nil {
		key = rec.StorageKey
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load attribute record: %w", err)
	}
	if key == "" {
		var err error
		key, err = s.storage.Locate(ctx, imageID)
		if err != nil {
			return nil, notFoundOr(err, imageID)
		}
	}

	url, err := s.storage.PresignGet(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return &SignedURL{ImageID: imageID, URL: url, ExpiresAt: time.Now().Add(ttl)}, nil
}

// RecordListResponse represents the response for listing records.
type RecordListResponse struct {
	Results []domain.AttributeRecord `json:"results"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// ListRecords pages through records with the given status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty lists all records.
//   - limit: page size, defaulted and capped.
//   - offset: number of records to skip.
// Returns:
//   - *RecordListResponse: the page and the total count.
//   - error: non-nil for an unknown status or a store failure.
func (s *SearchService) ListRecords(ctx context.Context, status domain.RecordStatus, limit, offset int) (*RecordListResponse, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return &RecordListResponse{Results: records, Total: total, Limit: limit, Offset: offset}, nil
}

// GetStats returns record counts per status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[string]interface{}: counts and whether search is enabled.
//   - error: non-nil if a count fails.
func (s *SearchService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{}, 4)
	for _, status := range []domain.RecordStatus{domain.RecordStatusPending, domain.RecordStatusComplete, domain.RecordStatusFailed} {
		n, err := s.store.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats["total_"+string(status)] = n
	}
	stats["search_enabled"] = s.SearchEnabled()
	return stats, nil
}
