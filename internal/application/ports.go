package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// LedgerPayment is the ledger's view of a payment keyed by request ID.
type LedgerPayment struct {
	Payer     string
	Amount    domain.Amount
	Timestamp time.Time
	Exists    bool
}

// Ledger is the port for the external settlement contract.
type Ledger interface {
	HasPaid(ctx context.Context, requestID string) (bool, error)
	GetPayment(ctx context.Context, requestID string) (*LedgerPayment, error)
	Price(ctx context.Context) (domain.Amount, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// RequestStore is the port for request persistence.
//
// Update must run mutate and persist its result atomically with respect to
// every other Update, ExpirePending and Delete* call for the same ID. When
// mutate returns an error nothing is written.
type RequestStore interface {
	Insert(ctx context.Context, req *domain.PaymentRequest) error
	FindByID(ctx context.Context, id string) (*domain.PaymentRequest, error)
	Update(ctx context.Context, id string, mutate func(req *domain.PaymentRequest) error) (*domain.PaymentRequest, error)
	ExpirePending(ctx context.Context, createdBefore, expiredAt time.Time) (int, error)
	DeleteExpired(ctx context.Context, expiredBefore time.Time) (int, error)
	DeleteFulfilled(ctx context.Context, fulfilledBefore time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error)
}

// ResourceProvider produces the protected payload for a verified request.
type ResourceProvider interface {
	Generate(ctx context.Context, req *domain.PaymentRequest) (json.RawMessage, error)
}
