package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeRecord(t *testing.T, store *memStore, imageID string, attrs domain.Attributes) *domain.AttributeRecord {
	t.Helper()
	now := time.Now()
	asset := &domain.ImageAsset{ID: imageID, StorageKey: imageID + ".jpg", StorageAddress: "mem://bucket/" + imageID + ".jpg"}
	rec := domain.NewPendingRecord("rec-"+imageID, asset, "test-vlm", now)
	require.NoError(t, rec.Complete(attrs, "{}", now))
	require.NoError(t, store.CreateOnce(context.Background(), rec))
	return rec
}

func TestAttributeIndexer_Index(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeVectorIndex{}
	ix := NewAttributeIndexer(embedder, index)

	store := &memStore{}
	rec := completeRecord(t, store, "img-1", domain.Attributes{ClothingType: "Dress", Color: "red", Occasion: "party"})

	require.NoError(t, ix.Index(context.Background(), rec))
	assert.Equal(t, "clothing_type: Dress; color: red; occasion: party", embedder.lastText)

	payload := index.upserts["img-1"]
	require.NotNil(t, payload)
	assert.Equal(t, "img-1", payload.ImageID)
	assert.Equal(t, rec.ImageURL, payload.ImageURL)
	assert.Equal(t, "Dress", payload.Attributes.ClothingType)
}

func TestAttributeIndexer_SkipsFailedAndEmpty(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeVectorIndex{}
	ix := NewAttributeIndexer(embedder, index)

	failed := &domain.AttributeRecord{ImageID: "a", Status: domain.RecordStatusFailed}
	empty := &domain.AttributeRecord{ImageID: "b", Status: domain.RecordStatusComplete}

	require.NoError(t, ix.Index(context.Background(), failed))
	require.NoError(t, ix.Index(context.Background(), empty))
	assert.Empty(t, index.upserts)
}

func TestAttributeIndexer_IndexBatch(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeVectorIndex{}
	ix := NewAttributeIndexer(embedder, index)

	store := &memStore{}
	red := completeRecord(t, store, "img-1", domain.Attributes{Color: "red"})
	blue := completeRecord(t, store, "img-2", domain.Attributes{Color: "blue"})
	recs := []domain.AttributeRecord{
		*red,
		{ImageID: "img-3", Status: domain.RecordStatusFailed},
		{ImageID: "img-4", Status: domain.RecordStatusComplete},
		*blue,
	}

	n, err := ix.IndexBatch(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]string{{"color: red", "color: blue"}}, embedder.batches)
	assert.Len(t, index.upserts, 2)
	assert.Equal(t, "color: blue", index.upserts["img-2"].Description)

	embedder.err = errors.New("quota")
	n, err = ix.IndexBatch(context.Background(), recs)
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestSearchService_Search(t *testing.T) {
	store := &memStore{}
	completeRecord(t, store, "img-1", domain.Attributes{ClothingType: "dress", Color: "red"})
	completeRecord(t, store, "img-2", domain.Attributes{ClothingType: "dress", Color: "blue"})

	embedder := &fakeEmbedder{}
	index := &fakeVectorIndex{hits: []repository.SearchResult{
		{ID: "img-1", Score: 0.9, Payload: &repository.AttributePayload{ImageID: "img-1", Description: "clothing_type: dress; color: red"}},
		{ID: "img-gone", Score: 0.8, Payload: &repository.AttributePayload{ImageID: "img-gone"}},
		{ID: "img-2", Score: 0.2, Payload: &repository.AttributePayload{ImageID: "img-2"}},
		{ID: "nil-payload", Score: 0.7},
	}}
	svc := NewSearchService(store, newMemBlobStore(), index, embedder, nil, &SearchConfig{ScoreThreshold: 0.5})

	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query:   "red summer dress",
		TopK:    500,
		Filters: map[string]string{"clothing_type": "dress", "color": ""},
	})
	require.NoError(t, err)

	assert.Equal(t, "red summer dress", embedder.lastQuery)
	assert.Equal(t, maxTopK, index.lastTopK)
	assert.Equal(t, repository.SearchFilters{"clothing_type": "dress"}, index.lastFilters)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "img-1", resp.Results[0].ImageID)
	assert.Equal(t, "mem://bucket/img-1.jpg", resp.Results[0].URL)
	assert.Equal(t, "red", resp.Results[0].Record.Color)
	assert.Equal(t, 1, resp.Total)
}

func TestSearchService_SearchValidation(t *testing.T) {
	disabled := NewSearchService(&memStore{}, newMemBlobStore(), nil, nil, nil, nil)
	_, err := disabled.Search(context.Background(), &SearchRequest{Query: "x"})
	assert.ErrorIs(t, err, domain.ErrSearchUnavailable)

	svc := NewSearchService(&memStore{}, newMemBlobStore(), &fakeVectorIndex{}, &fakeEmbedder{}, nil, nil)
	_, err = svc.Search(context.Background(), &SearchRequest{Query: "x", Filters: map[string]string{"brand": "acme"}})
	assert.ErrorContains(t, err, "unknown filter")
}

func TestSearchService_SignedURL(t *testing.T) {
	const (
		recorded = "0b1f6a52-5c1e-4a8e-9a55-1f0c9d3b7e21"
		stored   = "7d2c9e40-3b6f-4f1a-8c2d-5e9a0b4c6d13"
	)
	store := &memStore{}
	blobs := newMemBlobStore()
	_, err := blobs.Put(context.Background(), recorded+".jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	_, err = blobs.Put(context.Background(), stored+".png", []byte("x"), "image/png")
	require.NoError(t, err)
	completeRecord(t, store, recorded, domain.Attributes{Color: "red"})

	svc := NewSearchService(store, blobs, nil, nil, nil, &SearchConfig{SignedURLTTL: time.Minute})

	t.Run("from record", func(t *testing.T) {
		signed, err := svc.SignedURL(context.Background(), recorded, 0)
		require.NoError(t, err)
		assert.Equal(t, "mem://bucket/"+recorded+".jpg?expires=60", signed.URL)
		assert.WithinDuration(t, time.Now().Add(time.Minute), signed.ExpiresAt, 5*time.Second)
	})

	t.Run("located without record", func(t *testing.T) {
		signed, err := svc.SignedURL(context.Background(), stored, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "mem://bucket/"+stored+".png?expires=30", signed.URL)
	})

	t.Run("unknown image", func(t *testing.T) {
		_, err := svc.SignedURL(context.Background(), "1c9e8a2b-0000-4000-8000-000000000000", 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed ids", func(t *testing.T) {
		for _, id := range []string{"nope", "*", "7d2c9e40*", "{" + stored + "}"} {
			_, err := svc.SignedURL(context.Background(), id, 0)
			assert.ErrorIs(t, err, domain.ErrNotFound, id)
		}
	})
}

func TestSearchService_ListAndStats(t *testing.T) {
	store := &memStore{}
	completeRecord(t, store, "img-1", domain.Attributes{Color: "red"})
	completeRecord(t, store, "img-2", domain.Attributes{Color: "blue"})
	failed := domain.NewPendingRecord("rec-3", &domain.ImageAsset{ID: "img-3", StorageKey: "img-3.jpg"}, "m", time.Now())
	require.NoError(t, failed.Fail(terminalErr(), nil, time.Now()))
	require.NoError(t, store.CreateOnce(context.Background(), failed))

	svc := NewSearchService(store, newMemBlobStore(), nil, nil, nil, nil)

	list, err := svc.ListRecords(context.Background(), domain.RecordStatusComplete, 1, 0)
	require.NoError(t, err)
	assert.Len(t, list.Results, 1)
	assert.Equal(t, int64(2), list.Total)

	_, err = svc.ListRecords(context.Background(), "bogus", 0, 0)
	assert.Error(t, err)

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["total_complete"])
	assert.Equal(t, int64(1), stats["total_failed"])
	assert.Equal(t, int64(0), stats["total_pending"])
	assert.Equal(t, false, stats["search_enabled"])
}
