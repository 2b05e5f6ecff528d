package postgres

import (
	"time"
)

// RequestModel is the row layout of payment_requests.
// Amounts are stored as base-10 wei strings to keep full uint256 precision.
type RequestModel struct {
	ID            string
	Status        string
	CreatedAt     time.Time
	Payer         *string
	AmountWei     *string
	PaidAt        *time.Time
	SettlementRef *string
	VerifiedAt    *time.Time
	FulfilledAt   *time.Time
	ExpiredAt     *time.Time
	Resource      []byte
}
