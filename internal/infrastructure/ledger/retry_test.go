package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/application/mocks"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testRequestID = "0x1111111111111111111111111111111111111111111111111111111111111111"

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxRetries: 3,
	}
}

func TestRetryLedger_HasPaid_Success(t *testing.T) {
	mockLedger := mocks.NewMockLedger(t)
	retryLedger := ledger.NewRetryLedger(mockLedger, fastRetry())

	mockLedger.EXPECT().
		HasPaid(mock.Anything, testRequestID).
		Return(true, nil).
		Once()

	paid, err := retryLedger.HasPaid(context.Background(), testRequestID)

	require.NoError(t, err)
	assert.True(t, paid)
}

func TestRetryLedger_GetPayment_RetriesTransientFaults(t *testing.T) {
	mockLedger := mocks.NewMockLedger(t)
	retryLedger := ledger.NewRetryLedger(mockLedger, fastRetry())

	transient := &ledger.LedgerError{Op: "getPayment", Err: errors.New("connection reset"), Retryable: true}
	expected := &application.LedgerPayment{
		Payer:  "0x9aE2d3f4b5C6a7e8D9f0A1b2C3d4E5f6a7B8c9D0",
		Amount: domain.MustParseAmount("0.01"),
		Exists: true,
	}

	mockLedger.EXPECT().
		GetPayment(mock.Anything, testRequestID).
		Return(nil, transient).
		Twice()
	mockLedger.EXPECT().
		GetPayment(mock.Anything, testRequestID).
		Return(expected, nil).
		Once()

	payment, err := retryLedger.GetPayment(context.Background(), testRequestID)

	require.NoError(t, err)
	assert.Equal(t, expected, payment)
}

func TestRetryLedger_Price_DoesNotRetryPermanentFaults(t *testing.T) {
	mockLedger := mocks.NewMockLedger(t)
	retryLedger := ledger.NewRetryLedger(mockLedger, fastRetry())

	reverted := &ledger.LedgerError{Op: "price", Err: errors.New("execution reverted"), Retryable: false}

	mockLedger.EXPECT().
		Price(mock.Anything).
		Return(domain.Amount{}, reverted).
		Once()

	_, err := retryLedger.Price(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, reverted)
}

func TestRetryLedger_BlockNumber_GivesUpAfterMaxRetries(t *testing.T) {
	mockLedger := mocks.NewMockLedger(t)
	retryLedger := ledger.NewRetryLedger(mockLedger, fastRetry())

	transient := &ledger.LedgerError{Op: "blockNumber", Err: errors.New("503"), Retryable: true}

	mockLedger.EXPECT().
		BlockNumber(mock.Anything).
		Return(uint64(0), transient).
		Times(3)

	_, err := retryLedger.BlockNumber(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum retries exceeded")
	assert.ErrorIs(t, err, transient)
}

func TestRetryLedger_StopsWhenContextCancelled(t *testing.T) {
	mockLedger := mocks.NewMockLedger(t)
	retryLedger := ledger.NewRetryLedger(mockLedger, config.RetryConfig{
		BaseDelay:  time.Second,
		MaxRetries: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	transient := &ledger.LedgerError{Op: "hasPaid", Err: errors.New("timeout"), Retryable: true}
	mockLedger.EXPECT().
		HasPaid(mock.Anything, testRequestID).
		Return(false, transient).
		Once()

	start := time.Now()
	_, err := retryLedger.HasPaid(ctx, testRequestID)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
