package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	registry, _ := newRegistry(t, clock)

	req, err := registry.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, clock.Now(), req.CreatedAt)
	require.NoError(t, domain.ValidateRequestID(req.ID))

	stored, err := registry.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, stored.ID)
}

func TestRequestRegistry_Create_ConcurrentIDsAreDistinct(t *testing.T) {
	ctx := context.Background()
	registry, _ := newRegistry(t, newFakeClock())

	const n = 1000
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := registry.Create(ctx)
			if assert.NoError(t, err) {
				ids <- req.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestRequestRegistry_Create_RegeneratesOnCollision(t *testing.T) {
	ctx := context.Background()
	taken := "0x" + "aa00000000000000000000000000000000000000000000000000000000000000"
	fresh := "0x" + "bb00000000000000000000000000000000000000000000000000000000000000"

	var calls atomic.Int32
	gen := func() (string, error) {
		if calls.Add(1) <= 2 {
			return taken, nil
		}
		return fresh, nil
	}
	registry, _ := newRegistry(t, newFakeClock(), services.WithIDGenerator(gen))

	first, err := registry.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, taken, first.ID)

	second, err := registry.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, second.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestRegistry_Create_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	constant := "0x" + "cc00000000000000000000000000000000000000000000000000000000000000"
	registry, _ := newRegistry(t, newFakeClock(), services.WithIDGenerator(func() (string, error) {
		return constant, nil
	}))

	_, err := registry.Create(ctx)
	require.NoError(t, err)

	_, err = registry.Create(ctx)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequestID)
}

func TestRequestRegistry_Create_GeneratorFailure(t *testing.T) {
	registry, _ := newRegistry(t, newFakeClock(), services.WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))

	_, err := registry.Create(context.Background())
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestRequestRegistry_TransitionToVerified(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	t.Run("pending request is verified once", func(t *testing.T) {
		registry, _ := newRegistry(t, clock)
		req, err := registry.Create(ctx)
		require.NoError(t, err)

		receipt := testhelpers.DefaultReceipt("0.01")
		verified, err := registry.TransitionToVerified(ctx, req.ID, receipt)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusVerified, verified.Status)
		assert.Equal(t, testhelpers.TestPayer, *verified.Payer)
		assert.Equal(t, receipt.SettlementRef, *verified.SettlementRef)

		_, err = registry.TransitionToVerified(ctx, req.ID, testhelpers.DefaultReceipt("0.02"))
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		stored, err := registry.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.01", stored.Amount.String(), "payment fields are immutable after verification")
	})

	t.Run("unknown request is an invalid state", func(t *testing.T) {
		registry, _ := newRegistry(t, clock)
		id, err := domain.NewRequestID()
		require.NoError(t, err)

		_, err = registry.TransitionToVerified(ctx, id, testhelpers.DefaultReceipt("0.01"))
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.NotErrorIs(t, err, domain.ErrRequestNotFound)
	})

	t.Run("request past its TTL is expired", func(t *testing.T) {
		clock := newFakeClock()
		registry, _ := newRegistry(t, clock)
		req, err := registry.Create(ctx)
		require.NoError(t, err)

		clock.Advance(registryConfig().TTL)

		_, err = registry.TransitionToVerified(ctx, req.ID, testhelpers.DefaultReceipt("0.01"))
		assert.ErrorIs(t, err, domain.ErrRequestExpired)

		stored, err := registry.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, stored.Status)
	})
}

func TestRequestRegistry_TransitionToVerified_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	registry, _ := newRegistry(t, newFakeClock())
	req, err := registry.Create(ctx)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		rejected atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.TransitionToVerified(ctx, req.ID, testhelpers.DefaultReceipt("0.01"))
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, domain.ErrInvalidState):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(49), rejected.Load())
}

func TestRequestRegistry_SweepRacesVerificationAtTTLBoundary(t *testing.T) {
	ctx := context.Background()
	ttl := registryConfig().TTL

	for range 20 {
		clock := newFakeClock()
		created := clock.Now()
		registry, _ := newRegistry(t, clock)

		ids := make([]string, 10)
		for i := range ids {
			req, err := registry.Create(ctx)
			require.NoError(t, err)
			ids[i] = req.ID
		}
		clock.Advance(ttl - time.Nanosecond)

		var (
			wg       sync.WaitGroup
			start    = make(chan struct{})
			errs     = make([]error, len(ids))
			result   services.SweepResult
			sweepErr error
		)
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[i] = registry.TransitionToVerified(ctx, id, testhelpers.DefaultReceipt("0.01"))
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, sweepErr = registry.SweepExpired(ctx, created.Add(ttl+time.Second))
		}()
		close(start)
		wg.Wait()
		require.NoError(t, sweepErr)

		expired := 0
		for i, id := range ids {
			stored, err := registry.Get(ctx, id)
			require.NoError(t, err)

			switch stored.Status {
			case domain.StatusVerified:
				require.NoError(t, errs[i])
				assert.NotNil(t, stored.Payer)
				assert.NotNil(t, stored.Amount)
				assert.NotNil(t, stored.PaidAt)
				assert.NotNil(t, stored.SettlementRef)
				assert.Nil(t, stored.ExpiredAt)
			case domain.StatusExpired:
				expired++
				require.Error(t, errs[i])
				assert.True(t, errors.Is(errs[i], domain.ErrRequestExpired) || errors.Is(errs[i], domain.ErrInvalidState), errs[i].Error())
				assert.Nil(t, stored.Payer)
				assert.Nil(t, stored.Amount)
				assert.Nil(t, stored.PaidAt)
				assert.Nil(t, stored.SettlementRef)
				assert.NotNil(t, stored.ExpiredAt)
			default:
				t.Fatalf("request %s ended in %s", id, stored.Status)
			}
		}
		assert.Equal(t, expired, result.Expired)
	}
}

func TestRequestRegistry_TransitionToFulfilled(t *testing.T) {
	ctx := context.Background()
	registry, _ := newRegistry(t, newFakeClock())

	pending, err := registry.Create(ctx)
	require.NoError(t, err)
	_, err = registry.TransitionToFulfilled(ctx, pending.ID, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	verified := verifyRequest(t, registry)
	fulfilled, err := registry.TransitionToFulfilled(ctx, verified.ID, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, fulfilled.Status)
	assert.Equal(t, []byte(`{"ok":true}`), fulfilled.Resource)

	_, err = registry.TransitionToFulfilled(ctx, verified.ID, []byte(`{"ok":false}`))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRequestRegistry_SweepExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	registry, _ := newRegistry(t, clock)

	stale, err := registry.Create(ctx)
	require.NoError(t, err)
	paid := verifyRequest(t, registry)

	clock.Advance(2 * time.Hour)
	fresh, err := registry.Create(ctx)
	require.NoError(t, err)

	result, err := registry.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Zero(t, result.EvictedExpired)

	expired, err := registry.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, expired.Status)
	assert.True(t, registry.IsExpired(expired, clock.Now()))

	_, err = registry.TransitionToVerified(ctx, stale.ID, testhelpers.DefaultReceipt("0.01"))
	assert.ErrorIs(t, err, domain.ErrRequestExpired)

	clock.Advance(registryConfig().ExpiredGrace + time.Second)
	result, err = registry.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.EvictedExpired)

	_, err = registry.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	stillPaid, err := registry.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, stillPaid.Status)

	stillFresh, err := registry.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stillFresh.Status)

	counts, err := registry.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusPending])
	assert.Equal(t, 1, counts[domain.StatusVerified])
}
