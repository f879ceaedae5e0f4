package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/repository"
)

// Indexer adds completed attribute records to the search index.
type Indexer interface {
	Index(ctx context.Context, rec *domain.AttributeRecord) error
	IndexBatch(ctx context.Context, recs []domain.AttributeRecord) (int, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorIndex is the subset of the Qdrant repository used by the services.
type VectorIndex interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.AttributePayload) error
	Search(ctx context.Context, vector []float32, topK int, filters repository.SearchFilters) ([]repository.SearchResult, error)
}

// AttributeIndexer embeds an attribute description and stores it as the
// single vector of its image.
type AttributeIndexer struct {
	embedder Embedder
	index    VectorIndex
}

// NewAttributeIndexer creates an indexer.
func NewAttributeIndexer(embedder Embedder, index VectorIndex) *AttributeIndexer {
	return &AttributeIndexer{embedder: embedder, index: index}
}

// Index embeds rec and upserts it under its image id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to index; only complete records with attributes are indexed.
// Returns:
//   - error: non-nil if embedding or the upsert fails.
func (ix *AttributeIndexer) Index(ctx context.Context, rec *domain.AttributeRecord) error {
	if rec.Status != domain.RecordStatusComplete {
		return nil
	}
	desc := DescribeAttributes(rec.Attributes)
	if desc == "" {
		return nil
	}

	vector, err := ix.embedder.Embed(ctx, desc)
	if err != nil {
		return fmt.Errorf("failed to embed description: %w", err)
	}
	return ix.index.Upsert(ctx, rec.ImageID, vector, attributePayload(rec, desc))
}

// IndexBatch embeds the descriptions of recs in one call and upserts them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - recs: records to index; incomplete ones and empty descriptions are skipped.
// Returns:
//   - int: number of records upserted before any error.
//   - error: non-nil if embedding or an upsert fails.
func (ix *AttributeIndexer) IndexBatch(ctx context.Context, recs []domain.AttributeRecord) (int, error) {
	var (
		batch []*domain.AttributeRecord
		texts []string
	)
	for i := range recs {
		rec := &recs[i]
		if rec.Status != domain.RecordStatusComplete {
			continue
		}
		if desc := DescribeAttributes(rec.Attributes); desc != "" {
			batch = append(batch, rec)
			texts = append(texts, desc)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed descriptions: %w", err)
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
	}
	for i, rec := range batch {
		if err := ix.index.Upsert(ctx, rec.ImageID, vectors[i], attributePayload(rec, texts[i])); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}

func attributePayload(rec *domain.AttributeRecord, desc string) *repository.AttributePayload {
	return &repository.AttributePayload{
		ImageID:     rec.ImageID,
		ImageURL:    rec.ImageURL,
		Description: desc,
		Attributes:  rec.Attributes,
	}
}

// DescribeAttributes renders the non-empty attributes as one line of text,
// e.g. "clothing_type: dress; color: red".
func DescribeAttributes(a domain.Attributes) string {
	var parts []string
	for _, key := range domain.AttributeKeys {
		if v := a.Get(key); v != "" {
			parts = append(parts, key+": "+v)
		}
	}
	return strings.Join(parts, "; ")
}
