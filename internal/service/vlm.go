package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/prompts"
	"github.com/go-resty/resty/v2"
)

// ModelClient sends one image plus an instruction to a vision model and
// returns the model's text reply. Failures are *domain.ModelCallError.
type ModelClient interface {
	Analyze(ctx context.Context, image []byte, format, instruction string) (string, error)
	GetModel() string
}

// TextModel completes a text-only chat prompt.
type TextModel interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// VLMService talks to an OpenAI-compatible /chat/completions endpoint.
type VLMService struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// VLMConfig holds configuration for VLM service.
type VLMConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// NewVLMService creates a new VLM service.
// Parameters:
//   - cfg: VLM configuration including provider, model, API key and base URL
//     (OpenAI when empty).
//
// Returns:
//   - *VLMService: initialized VLM client wrapper.
func NewVLMService(cfg *VLMConfig) *VLMService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	client := resty.New().
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &VLMService{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

// GetModel returns the model name being used.
// Parameters: none.
// Returns:
//   - string: model identifier.
func (s *VLMService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []interface{} for image parts
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error *struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error,omitempty"`
}

// Analyze sends image as a base64 data URL together with instruction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - image: raw image bytes.
//   - format: image format extension (jpg, png, gif, webp).
//   - instruction: user prompt sent with the image.
//
// Returns:
//   - string: raw model output.
//   - error: *domain.ModelCallError classified as transient or terminal.
func (s *VLMService) Analyze(ctx context.Context, image []byte, format, instruction string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", getContentType(format), base64.StdEncoding.EncodeToString(image))

	return s.chat(ctx, []openAIMessage{
		{Role: "system", Content: prompts.AttributeSystemPrompt},
		{
			Role: "user",
			Content: []interface{}{
				openAITextContent{Type: "text", Text: instruction},
				openAIImageContent{Type: "image_url", ImageURL: openAIImageURL{URL: dataURL, Detail: "auto"}},
			},
		},
	})
}

// Complete sends a text-only prompt.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - system: system prompt.
//   - prompt: user prompt.
//
// Returns:
//   - string: model output.
//   - error: *domain.ModelCallError classified as transient or terminal.
func (s *VLMService) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openAIMessage, 0, 2)
	if system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})
	return s.chat(ctx, messages)
}

func (s *VLMService) chat(ctx context.Context, messages []openAIMessage) (string, error) {
	var (
		result  openAIResponse
		errBody openAIErrorResponse
	)
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(openAIRequest{Model: s.model, Messages: messages, MaxTokens: s.maxTokens}).
		SetResult(&result).
		SetError(&errBody).
		Post(s.endpoint)
	if err != nil {
		return "", &domain.ModelCallError{
			Transient: !errors.Is(err, context.Canceled),
			Err:       fmt.Errorf("failed to call VLM API: %w", err),
		}
	}

	status := httpResp.StatusCode()
	if status < 200 || status >= 300 {
		msg := strings.TrimSpace(string(httpResp.Body()))
		var code, errType string
		if errBody.Error != nil {
			msg = errBody.Error.Message
			errType = errBody.Error.Type
			if errBody.Error.Code != nil {
				code = fmt.Sprint(errBody.Error.Code)
			}
		}
		return "", &domain.ModelCallError{
			Transient:  isTransientStatus(status, code, errType),
			StatusCode: status,
			Err:        fmt.Errorf("VLM API returned HTTP %d: %s", status, msg),
		}
	}

	if len(result.Choices) == 0 {
		return "", &domain.ModelCallError{
			StatusCode: status,
			Err:        fmt.Errorf("no choices in response: %s", string(httpResp.Body())),
		}
	}
	return result.Choices[0].Message.Content, nil
}

// isTransientStatus decides whether a non-2xx reply is worth retrying.
// Quota exhaustion arrives as 429 but will not clear on retry.
func isTransientStatus(status int, code, errType string) bool {
	if code == "insufficient_quota" || errType == "insufficient_quota" {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func getContentType(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "heic":
		return "image/heic"
	case "heif":
		return "image/heif"
	case "avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
