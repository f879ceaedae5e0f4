package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/repository"
	"github.com/engelke/fashion-hack-2024/internal/storage"
)

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return m.GetURL(key), nil
}

func (m *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (m *memBlobStore) Locate(_ context.Context, imageID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, imageID+".") {
			return key, nil
		}
	}
	return "", storage.ErrObjectNotFound
}

func (m *memBlobStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", m.GetURL(key), int(ttl.Seconds())), nil
}

func (m *memBlobStore) GetURL(key string) string {
	return "mem://bucket/" + key
}

func (m *memBlobStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// memStore mirrors the create-once contract of the real stores.
type memStore struct {
	mu        sync.Mutex
	records   []domain.AttributeRecord
	createErr error
}

func (m *memStore) CreateOnce(_ context.Context, rec *domain.AttributeRecord) error {
	if m.createErr != nil {
		return &domain.StoreWriteError{ImageID: rec.ImageID, Err: m.createErr}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ImageID == rec.ImageID && r.IsActive() {
			return &domain.AlreadyExistsError{ImageID: rec.ImageID, ExistingStatus: r.Status}
		}
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) Get(_ context.Context, imageID string) (*domain.AttributeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latestFailed *domain.AttributeRecord
	for i := range m.records {
		r := m.records[i]
		if r.ImageID != imageID {
			continue
		}
		if r.IsActive() {
			return &r, nil
		}
		latestFailed = &r
	}
	if latestFailed == nil {
		return nil, domain.ErrNotFound
	}
	return latestFailed, nil
}

func (m *memStore) ListByStatus(_ context.Context, status domain.RecordStatus, limit, offset int) ([]domain.AttributeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AttributeRecord
	for _, r := range m.records {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountByStatus(ctx context.Context, status domain.RecordStatus) (int64, error) {
	recs, err := m.ListByStatus(ctx, status, 0, 0)
	return int64(len(recs)), err
}

func (m *memStore) Close() error { return nil }

func (m *memStore) forImage(imageID string) []domain.AttributeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AttributeRecord
	for _, r := range m.records {
		if r.ImageID == imageID {
			out = append(out, r)
		}
	}
	return out
}

type modelReply struct {
	text string
	err  error
}

// scriptedModel replays replies in order and repeats the last one.
type scriptedModel struct {
	mu      sync.Mutex
	replies []modelReply
	calls   int
	block   bool // wait for ctx to end instead of replying
}

func newScriptedModel(replies ...modelReply) *scriptedModel {
	return &scriptedModel{replies: replies}
}

func (m *scriptedModel) Analyze(ctx context.Context, _ []byte, _, _ string) (string, error) {
	return m.next(ctx)
}

func (m *scriptedModel) Complete(ctx context.Context, _, _ string) (string, error) {
	return m.next(ctx)
}

func (m *scriptedModel) next(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", &domain.ModelCallError{Err: ctx.Err()}
	}
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	idx := n - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	r := m.replies[idx]
	return r.text, r.err
}

func (m *scriptedModel) GetModel() string { return "test-vlm" }

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func transientErr() error {
	return &domain.ModelCallError{Transient: true, StatusCode: 503, Err: errors.New("service unavailable")}
}

func terminalErr() error {
	return &domain.ModelCallError{StatusCode: 400, Err: errors.New("bad request")}
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, rec *domain.AttributeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, rec.ImageID)
	return nil
}

func (f *fakeIndexer) IndexBatch(_ context.Context, recs []domain.AttributeRecord) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		f.indexed = append(f.indexed, rec.ImageID)
	}
	return len(recs), nil
}

func (f *fakeIndexer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.indexed...)
	sort.Strings(out)
	return out
}

type fakeEmbedder struct {
	lastText  string
	lastQuery string
	batches   [][]string
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.lastText = text
	return []float32{0.1, 0.2, 0.3}, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	f.lastQuery = query
	return []float32{0.3, 0.2, 0.1}, f.err
}

type fakeVectorIndex struct {
	upserts     map[string]*repository.AttributePayload
	hits        []repository.SearchResult
	lastFilters repository.SearchFilters
	lastTopK    int
}

func (f *fakeVectorIndex) Upsert(_ context.Context, pointID string, _ []float32, payload *repository.AttributePayload) error {
	if f.upserts == nil {
		f.upserts = make(map[string]*repository.AttributePayload)
	}
	f.upserts[pointID] = payload
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, _ []float32, topK int, filters repository.SearchFilters) ([]repository.SearchResult, error) {
	f.lastTopK = topK
	f.lastFilters = filters
	return f.hits, nil
}
