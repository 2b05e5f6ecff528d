package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/x402-gateway/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

const testTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registryConfig() config.RegistryConfig {
	return config.RegistryConfig{
		Backend:       config.BackendMemory,
		TTL:           time.Hour,
		ExpiredGrace:  time.Minute,
		MaxIDAttempts: 3,
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, clock *fakeClock, opts ...services.RegistryOption) (*services.RequestRegistry, *memory.RequestStore) {
	t.Helper()
	store := memory.NewRequestStore()
	opts = append([]services.RegistryOption{services.WithClock(clock.Now)}, opts...)
	return services.NewRequestRegistry(store, registryConfig(), discardLogger(), opts...), store
}

func ledgerPayment(amount string) *application.LedgerPayment {
	return &application.LedgerPayment{
		Payer:     testhelpers.TestPayer,
		Amount:    domain.MustParseAmount(amount),
		Timestamp: time.Date(2026, 1, 15, 8, 59, 30, 0, time.UTC),
		Exists:    true,
	}
}

func verifyRequest(t *testing.T, registry *services.RequestRegistry) *domain.PaymentRequest {
	t.Helper()
	req, err := registry.Create(context.Background())
	require.NoError(t, err)
	verified, err := registry.TransitionToVerified(context.Background(), req.ID, testhelpers.DefaultReceipt("0.01"))
	require.NoError(t, err)
	return verified
}

// countingProvider returns a different payload on every call.
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Generate(ctx context.Context, req *domain.PaymentRequest) (json.RawMessage, error) {
	n := p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return json.RawMessage(fmt.Sprintf(`{"generation":%d,"request":%q}`, n, req.ID)), nil
}
