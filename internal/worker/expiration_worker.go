package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
)

// ExpirationWorker periodically expires stale PENDING requests and evicts
// records whose retention has run out.
type ExpirationWorker struct {
	registry *services.RequestRegistry
	interval time.Duration
	logger   *slog.Logger
}

func NewExpirationWorker(
	registry *services.RequestRegistry,
	interval time.Duration,
	logger *slog.Logger,
) *ExpirationWorker {
	return &ExpirationWorker{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *ExpirationWorker) Start(ctx context.Context) {
	w.logger.Info("expiration worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("expiration sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiration worker stopping")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("expiration sweep failed", "error", err)
			}
		}
	}
}

func (w *ExpirationWorker) RunOnce(ctx context.Context) (services.SweepResult, error) {
	result, err := w.registry.SweepExpired(ctx, w.registry.Now())
	if err != nil {
		return result, err
	}

	metrics.SweptRequests.WithLabelValues("expired").Add(float64(result.Expired))
	metrics.SweptRequests.WithLabelValues("evicted_expired").Add(float64(result.EvictedExpired))
	metrics.SweptRequests.WithLabelValues("evicted_fulfilled").Add(float64(result.EvictedFulfilled))

	if result.Expired+result.EvictedExpired+result.EvictedFulfilled > 0 {
		w.logger.Info("processed expiration sweep",
			"expired", result.Expired,
			"evicted_expired", result.EvictedExpired,
			"evicted_fulfilled", result.EvictedFulfilled,
		)
	}

	counts, err := w.registry.CountByStatus(ctx)
	if err != nil {
		w.logger.Warn("failed to count requests", "error", err)
		return result, nil
	}
	metrics.SetRequestCounts(counts)

	return result, nil
}
