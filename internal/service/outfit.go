package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/prompts"
)

// ErrMissingOutfitParams is returned when an outfit request lacks a field.
var ErrMissingOutfitParams = errors.New("missing required parameters: item, expression, temperature, season")

// OutfitRequest describes the piece to style and the situation.
type OutfitRequest struct {
	Item        string `form:"item" json:"item"`
	Expression  string `form:"expression" json:"expression"`
	Temperature string `form:"temperature" json:"temperature"`
	Season      string `form:"season" json:"season"`
}

// OutfitSuggestion is the stylist's markdown answer.
type OutfitSuggestion struct {
	Suggestions string `json:"suggestions"`
	Model       string `json:"model,omitempty"`
}

// OutfitService asks a chat model for outfit ideas built around one item.
type OutfitService struct {
	model TextModel
	name  string
	retry RetryPolicy
}

// NewOutfitService creates an outfit service.
// Parameters:
//   - model: text model; nil makes Suggest return domain.ErrModelUnavailable.
//   - modelName: model name reported with each suggestion.
//   - retry: retry policy for transient model failures.
// Returns:
//   - *OutfitService: initialized service.
func NewOutfitService(model TextModel, modelName string, retry RetryPolicy) *OutfitService {
	return &OutfitService{model: model, name: modelName, retry: retry}
}

// Suggest returns outfit suggestions for req. Transient model failures are
// retried under the service's retry policy.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: item, expression, temperature and season; all are required.
// Returns:
//   - *OutfitSuggestion: markdown suggestions and the model name.
//   - error: ErrMissingOutfitParams, domain.ErrModelUnavailable or a model error.
func (s *OutfitService) Suggest(ctx context.Context, req OutfitRequest) (*OutfitSuggestion, error) {
	req.Item = strings.TrimSpace(req.Item)
	req.Expression = strings.TrimSpace(req.Expression)
	req.Temperature = strings.TrimSpace(req.Temperature)
	req.Season = strings.TrimSpace(req.Season)
	if req.Item == "" || req.Expression == "" || req.Temperature == "" || req.Season == "" {
		return nil, ErrMissingOutfitParams
	}
	if s.model == nil {
		return nil, domain.ErrModelUnavailable
	}

	prompt := prompts.OutfitPrompt(req.Item, req.Expression, req.Temperature, req.Season)

	start := time.Now()
	var text string
	attempts, err := s.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var callErr error
		text, callErr = s.model.Complete(ctx, prompts.OutfitSystemPrompt, prompt)
		return callErr
	})
	entry := logger.With(logger.Fields{"item": req.Item, "season": req.Season}).
		WithAttempt(attempts).
		WithDuration(time.Since(start))
	if err != nil {
		entry.Warn(ctx, "Outfit suggestion failed: %v", err)
		return nil, fmt.Errorf("failed to generate outfit suggestions: %w", err)
	}
	entry.Info(ctx, "Outfit suggestion generated")

	return &OutfitSuggestion{Suggestions: strings.TrimSpace(text), Model: s.name}, nil
}
