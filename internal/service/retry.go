package service

import (
	"context"
	"time"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/sethvargo/go-retry"
)

const maxRetryDelay = 30 * time.Second

// RetryPolicy retries transient model failures with exponential backoff
// (factor 2, ±20% jitter). MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Nanosecond
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Do calls fn until it succeeds, fails terminally, attempts run out, or ctx
// ends. It returns how many times fn ran and the final error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx, attempts)
		if err == nil {
			return nil
		}
		if domain.IsTransientModelError(err) {
			logger.With(logger.Fields{logger.FieldAttempt: attempts}).
				Warn(ctx, "Transient model failure: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}
