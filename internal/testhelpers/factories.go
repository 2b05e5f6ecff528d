package testhelpers

import (
	"testing"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/stretchr/testify/require"
)

const TestPayer = "0x9aE2d3f4b5C6a7e8D9f0A1b2C3d4E5f6a7B8c9D0"

// NewPendingRequest builds a fresh PENDING request created at createdAt.
func NewPendingRequest(t *testing.T, createdAt time.Time) *domain.PaymentRequest {
	t.Helper()
	id, err := domain.NewRequestID()
	require.NoError(t, err)
	req, err := domain.NewPaymentRequest(id, createdAt)
	require.NoError(t, err)
	return req
}

// DefaultReceipt returns a receipt for amount paid by TestPayer.
func DefaultReceipt(amount string) domain.PaymentReceipt {
	return domain.PaymentReceipt{
		Payer:         TestPayer,
		Amount:        domain.MustParseAmount(amount),
		PaidAt:        time.Now().UTC().Truncate(time.Second),
		SettlementRef: "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
	}
}
