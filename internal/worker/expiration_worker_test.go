package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	"github.com/DanielPopoola/x402-gateway/internal/testhelpers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*services.RequestRegistry, *atomic.Int64) {
	t.Helper()
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var offset atomic.Int64

	cfg := config.RegistryConfig{
		Backend:       config.BackendMemory,
		TTL:           time.Hour,
		ExpiredGrace:  time.Hour,
		MaxIDAttempts: 3,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := services.NewRequestRegistry(memory.NewRequestStore(), cfg, logger,
		services.WithClock(func() time.Time { return start.Add(time.Duration(offset.Load())) }),
	)
	return registry, &offset
}

func TestExpirationWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	registry, offset := newTestRegistry(t)
	w := NewExpirationWorker(registry, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	stale, err := registry.Create(ctx)
	require.NoError(t, err)
	paid, err := registry.Create(ctx)
	require.NoError(t, err)

	_, err = registry.TransitionToVerified(ctx, paid.ID, testhelpers.DefaultReceipt("0.01"))
	require.NoError(t, err)
	_, err = registry.TransitionToFulfilled(ctx, paid.ID, []byte(`{"ok":true}`))
	require.NoError(t, err)

	result, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.SweepResult{}, result, "nothing is stale yet")

	offset.Store(int64(2 * time.Hour))
	result, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Zero(t, result.EvictedExpired)

	got, err := registry.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.Equal(t, float64(1), requestGauge(domain.StatusExpired))
	assert.Equal(t, float64(0), requestGauge(domain.StatusPending))

	offset.Store(int64(4 * time.Hour))
	result, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Expired)
	assert.Equal(t, 1, result.EvictedExpired)

	_, err = registry.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	assert.Equal(t, float64(0), requestGauge(domain.StatusExpired), "evicted status is reset")
	assert.Equal(t, float64(1), requestGauge(domain.StatusFulfilled))

	got, err = registry.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, got.Status, "fulfilled records are retained")
}

func TestExpirationWorker_StopsOnCancel(t *testing.T) {
	registry, _ := newTestRegistry(t)
	w := NewExpirationWorker(registry, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func requestGauge(status domain.RequestStatus) float64 {
	return testutil.ToFloat64(metrics.RequestsByStatus.WithLabelValues(string(status)))
}
