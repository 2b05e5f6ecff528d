package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

type RetryLedger struct {
	inner      application.Ledger
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
}

func NewRetryLedger(inner application.Ledger, cfg config.RetryConfig) application.Ledger {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryLedger{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		maxRetries: maxRetries,
	}
}

// HasPaid with retry logic
func (r *RetryLedger) HasPaid(ctx context.Context, requestID string) (bool, error) {
	paid, err := retry(r, ctx, func(ctx context.Context) (*bool, error) {
		ok, err := r.inner.HasPaid(ctx, requestID)
		return &ok, err
	})
	if err != nil {
		return false, err
	}
	return *paid, nil
}

// GetPayment with retry logic
func (r *RetryLedger) GetPayment(ctx context.Context, requestID string) (*application.LedgerPayment, error) {
	return retry(r, ctx, func(ctx context.Context) (*application.LedgerPayment, error) {
		return r.inner.GetPayment(ctx, requestID)
	})
}

// Price with retry logic
func (r *RetryLedger) Price(ctx context.Context) (domain.Amount, error) {
	price, err := retry(r, ctx, func(ctx context.Context) (*domain.Amount, error) {
		p, err := r.inner.Price(ctx)
		return &p, err
	})
	if err != nil {
		return domain.Amount{}, err
	}
	return *price, nil
}

func (r *RetryLedger) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := retry(r, ctx, func(ctx context.Context) (*uint64, error) {
		block, err := r.inner.BlockNumber(ctx)
		return &block, err
	})
	if err != nil {
		return 0, err
	}
	return *n, nil
}

// Generic retry helper
func retry[T any](r *RetryLedger, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// Helper: to check retryable errors
func isRetryable(err error) bool {
	if ledgerErr, ok := IsLedgerError(err); ok {
		return ledgerErr.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryLedger) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	if r.maxDelay > 0 && base > r.maxDelay {
		base = r.maxDelay
	}

	if r.baseDelay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(r.baseDelay)))

	return base + jitter
}
