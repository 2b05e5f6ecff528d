package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// SweepResult counts what a single SweepExpired pass changed.
type SweepResult struct {
	Expired          int
	EvictedExpired   int
	EvictedFulfilled int
}

type RegistryOption func(*RequestRegistry)

// WithClock replaces time.Now as the registry's time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *RequestRegistry) {
		r.now = now
	}
}

// WithIDGenerator replaces domain.NewRequestID.
func WithIDGenerator(gen func() (string, error)) RegistryOption {
	return func(r *RequestRegistry) {
		r.newID = gen
	}
}

// RequestRegistry owns the lifecycle of every issued request ID.
// All state changes go through RequestStore.Update, which serializes them per ID.
type RequestRegistry struct {
	store  application.RequestStore
	cfg    config.RegistryConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() (string, error)
}

func NewRequestRegistry(
	store application.RequestStore,
	cfg config.RegistryConfig,
	logger *slog.Logger,
	opts ...RegistryOption,
) *RequestRegistry {
	r := &RequestRegistry{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  domain.NewRequestID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now is the registry's current time in UTC.
func (r *RequestRegistry) Now() time.Time {
	return r.now().UTC()
}

func (r *RequestRegistry) TTL() time.Duration {
	return r.cfg.TTL
}

// Create mints a fresh ID and stores it as PENDING, regenerating on collision.
func (r *RequestRegistry) Create(ctx context.Context) (*domain.PaymentRequest, error) {
	attempts := max(r.cfg.MaxIDAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		id, err := r.newID()
		if err != nil {
			return nil, fmt.Errorf("generate request id: %w", err)
		}

		req, err := domain.NewPaymentRequest(id, r.Now())
		if err != nil {
			return nil, err
		}

		err = r.store.Insert(ctx, req)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, domain.ErrDuplicateRequestID) {
			return nil, fmt.Errorf("store request: %w", err)
		}

		r.logger.Warn("request id collision, regenerating", "attempt", attempt)
	}

	return nil, fmt.Errorf("no unique request id after %d attempts: %w", attempts, domain.ErrDuplicateRequestID)
}

func (r *RequestRegistry) Get(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	return r.store.FindByID(ctx, id)
}

// IsExpired reports whether req is EXPIRED or a PENDING record past its TTL.
func (r *RequestRegistry) IsExpired(req *domain.PaymentRequest, now time.Time) bool {
	return req.Status == domain.StatusExpired || req.IsPastTTL(now, r.cfg.TTL)
}

// TransitionToVerified records the ledger payment on a PENDING request.
// Exactly one caller can win for a given ID; every other caller gets INVALID_STATE.
func (r *RequestRegistry) TransitionToVerified(ctx context.Context, id string, receipt domain.PaymentReceipt) (*domain.PaymentRequest, error) {
	now := r.Now()

	req, err := r.store.Update(ctx, id, func(req *domain.PaymentRequest) error {
		if r.IsExpired(req, now) {
			return domain.NewRequestExpiredError(id)
		}
		if req.Status != domain.StatusPending {
			return domain.NewInvalidStateError(id, req.Status, domain.StatusPending, nil)
		}
		return req.Verify(receipt, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			return nil, domain.NewUnknownRequestStateError(id)
		}
		return nil, err
	}

	r.logger.Info("request verified", "request_id", id, "payer", receipt.Payer, "amount", receipt.Amount.String())
	return req, nil
}

// TransitionToFulfilled stores the delivered payload on a VERIFIED request.
func (r *RequestRegistry) TransitionToFulfilled(ctx context.Context, id string, resource []byte) (*domain.PaymentRequest, error) {
	now := r.Now()

	req, err := r.store.Update(ctx, id, func(req *domain.PaymentRequest) error {
		if req.Status != domain.StatusVerified {
			return domain.NewInvalidStateError(id, req.Status, domain.StatusVerified, nil)
		}
		return req.Fulfill(resource, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			return nil, domain.NewUnknownRequestStateError(id)
		}
		return nil, err
	}

	r.logger.Info("request fulfilled", "request_id", id)
	return req, nil
}

// SweepExpired expires stale PENDING records and evicts records past their retention.
func (r *RequestRegistry) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	now = now.UTC()

	if r.cfg.TTL > 0 {
		n, err := r.store.ExpirePending(ctx, now.Add(-r.cfg.TTL), now)
		if err != nil {
			return result, fmt.Errorf("expire pending: %w", err)
		}
		result.Expired = n
	}

	n, err := r.store.DeleteExpired(ctx, now.Add(-r.cfg.ExpiredGrace))
	if err != nil {
		return result, fmt.Errorf("evict expired: %w", err)
	}
	result.EvictedExpired = n

	if r.cfg.FulfilledRetention > 0 {
		n, err := r.store.DeleteFulfilled(ctx, now.Add(-r.cfg.FulfilledRetention))
		if err != nil {
			return result, fmt.Errorf("evict fulfilled: %w", err)
		}
		result.EvictedFulfilled = n
	}

	return result, nil
}

func (r *RequestRegistry) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	return r.store.CountByStatus(ctx)
}
