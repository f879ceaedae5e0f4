package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingService_JinaRequest(t *testing.T) {
	var req embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, `{"data":[{"index":1,"embedding":[0.2]},{"index":0,"embedding":[0.1]}]}`)
	}))
	defer srv.Close()

	svc := NewEmbeddingService(&EmbeddingConfig{Provider: "jina", Model: "jina-embeddings-v3", APIKey: "k", BaseURL: srv.URL + "/v1", Dimensions: 1})

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, vecs)
	assert.Equal(t, "retrieval.passage", req.Task)
	assert.Equal(t, "float", req.EmbeddingType)
	assert.Equal(t, 1, req.Dimensions)
}

func TestEmbeddingService_QueryTaskAndOpenAIMode(t *testing.T) {
	var req embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, `{"data":[{"index":0,"embedding":[0.5,0.5]}]}`)
	}))
	defer srv.Close()

	jina := NewEmbeddingService(&EmbeddingConfig{Provider: "jina", Model: "m", BaseURL: srv.URL})
	_, err := jina.EmbedQuery(context.Background(), "red dress")
	require.NoError(t, err)
	assert.Equal(t, "retrieval.query", req.Task)

	req = embeddingRequest{}
	openai := NewEmbeddingService(&EmbeddingConfig{Provider: "openai-compatible", Model: "text-embedding-3-small", BaseURL: srv.URL})
	vec, err := openai.Embed(context.Background(), "red dress")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Empty(t, req.Task)
	assert.Empty(t, req.EmbeddingType)
}

func TestEmbeddingService_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"jina detail", http.StatusUnauthorized, `{"detail":"invalid key"}`, "invalid key"},
		{"openai error", http.StatusBadRequest, `{"error":{"message":"too long"}}`, "too long"},
		{"count mismatch", http.StatusOK, `{"data":[]}`, "unexpected number of embeddings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			svc := NewEmbeddingService(&EmbeddingConfig{Provider: "jina", Model: "m", BaseURL: srv.URL})
			_, err := svc.Embed(context.Background(), "x")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
