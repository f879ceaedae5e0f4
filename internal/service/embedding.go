package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	jinaEndpoint       = "https://api.jina.ai/v1"
	openAIEmbeddingURL = "https://api.openai.com/v1"
)

// EmbeddingService generates text embeddings through a Jina or
// OpenAI-compatible /embeddings endpoint.
type EmbeddingService struct {
	client     *resty.Client
	provider   string
	model      string
	dimensions int
	endpoint   string
}

// EmbeddingConfig holds configuration for embedding service
type EmbeddingConfig struct {
	Provider   string // jina or openai-compatible
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingService creates a new embedding service.
// Parameters:
//   - cfg: provider, model, API key, base URL and vector size.
// Returns:
//   - *EmbeddingService: initialized embedding client.
func NewEmbeddingService(cfg *EmbeddingConfig) *EmbeddingService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().SetTimeout(timeout)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	base := cfg.BaseURL
	if base == "" {
		base = jinaEndpoint
		if cfg.Provider == "openai-compatible" {
			base = openAIEmbeddingURL
		}
	}

	return &EmbeddingService{
		client:     client,
		provider:   cfg.Provider,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		endpoint:   strings.TrimRight(base, "/") + "/embeddings",
	}
}

// GetModel returns the model name being used
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// Dimensions returns the configured vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

type embeddingRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates a passage embedding for a single text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: passage to embed.
// Returns:
//   - []float32: embedding vector.
//   - error: non-nil if the API request fails.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.embed(ctx, []string{text}, "retrieval.passage")
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates passage embeddings for multiple texts in one request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - texts: passages to embed.
// Returns:
//   - [][]float32: embedding vectors in input order.
//   - error: non-nil if the API request fails or returns a different count.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return s.embed(ctx, texts, "retrieval.passage")
}

// EmbedQuery generates an embedding optimized for query/search
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: search text.
// Returns:
//   - []float32: embedding vector.
//   - error: non-nil if the API request fails.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := s.embed(ctx, []string{query}, "retrieval.query")
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (s *EmbeddingService) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	req := embeddingRequest{
		Model:      s.model,
		Dimensions: s.dimensions,
		Input:      texts,
	}
	// task and embedding_type are Jina extensions
	if s.provider != "openai-compatible" {
		req.Task = task
		req.EmbeddingType = "float"
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}

	if httpResp.StatusCode() != http.StatusOK {
		switch {
		case resp.Detail != "":
			return nil, fmt.Errorf("embedding API error: %s", resp.Detail)
		case resp.Error != nil && resp.Error.Message != "":
			return nil, fmt.Errorf("embedding API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}
