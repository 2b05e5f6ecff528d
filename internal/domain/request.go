// Package domain encodes a paid-access request and its lifecycle
package domain

import (
	"bytes"
	"slices"
	"time"
)

// RequestStatus represents the current state of a request in its lifecycle
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusVerified  RequestStatus = "VERIFIED"
	StatusFulfilled RequestStatus = "FULFILLED"
	StatusExpired   RequestStatus = "EXPIRED"
)

// Statuses lists every lifecycle state.
func Statuses() []RequestStatus {
	return []RequestStatus{StatusPending, StatusVerified, StatusFulfilled, StatusExpired}
}

// PaymentRequest is the gateway's record of an issued request identifier.
// Payer, Amount, PaidAt and SettlementRef are written once on verification.
type PaymentRequest struct {
	ID        string
	Status    RequestStatus
	CreatedAt time.Time

	Payer         *string
	Amount        *Amount
	PaidAt        *time.Time
	SettlementRef *string

	VerifiedAt  *time.Time
	FulfilledAt *time.Time
	ExpiredAt   *time.Time

	// Resource is the payload snapshot delivered on fulfilment.
	Resource []byte
}

// PaymentReceipt is what the ledger told us about a settled payment.
type PaymentReceipt struct {
	Payer         string
	Amount        Amount
	PaidAt        time.Time
	SettlementRef string
}

func NewPaymentRequest(id string, createdAt time.Time) (*PaymentRequest, error) {
	if err := ValidateRequestID(id); err != nil {
		return nil, err
	}

	return &PaymentRequest{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: createdAt,
	}, nil
}

// Verify records the settled payment and moves the request to VERIFIED.
func (r *PaymentRequest) Verify(receipt PaymentReceipt, verifiedAt time.Time) error {
	if receipt.Payer == "" {
		return NewMissingRequiredFieldError("payer")
	}
	if err := r.transition(StatusVerified); err != nil {
		return err
	}

	payer := receipt.Payer
	amount := receipt.Amount
	paidAt := receipt.PaidAt
	r.Payer = &payer
	r.Amount = &amount
	r.PaidAt = &paidAt
	if receipt.SettlementRef != "" {
		ref := receipt.SettlementRef
		r.SettlementRef = &ref
	}
	r.VerifiedAt = &verifiedAt
	return nil
}

// Fulfill stores the delivered payload and moves the request to FULFILLED.
func (r *PaymentRequest) Fulfill(resource []byte, fulfilledAt time.Time) error {
	if len(resource) == 0 {
		return NewMissingRequiredFieldError("resource")
	}
	if err := r.transition(StatusFulfilled); err != nil {
		return err
	}
	r.Resource = bytes.Clone(resource)
	r.FulfilledAt = &fulfilledAt
	return nil
}

func (r *PaymentRequest) MarkExpired(expiredAt time.Time) error {
	if err := r.transition(StatusExpired); err != nil {
		return err
	}
	r.ExpiredAt = &expiredAt
	return nil
}

// IsPastTTL reports whether a still-pending request has outlived ttl at now.
func (r *PaymentRequest) IsPastTTL(now time.Time, ttl time.Duration) bool {
	return r.Status == StatusPending && ttl > 0 && !now.Before(r.CreatedAt.Add(ttl))
}

// IsPaid is true once the ledger payment has been recorded locally.
func (r *PaymentRequest) IsPaid() bool {
	return r.Status == StatusVerified || r.Status == StatusFulfilled
}

func (r *PaymentRequest) IsTerminal() bool {
	return r.Status == StatusFulfilled || r.Status == StatusExpired
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *PaymentRequest) Clone() *PaymentRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payer != nil {
		v := *r.Payer
		c.Payer = &v
	}
	if r.Amount != nil {
		v := r.Amount.Clone()
		c.Amount = &v
	}
	c.PaidAt = cloneTime(r.PaidAt)
	if r.SettlementRef != nil {
		v := *r.SettlementRef
		c.SettlementRef = &v
	}
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.FulfilledAt = cloneTime(r.FulfilledAt)
	c.ExpiredAt = cloneTime(r.ExpiredAt)
	c.Resource = bytes.Clone(r.Resource)
	return &c
}

func (r *PaymentRequest) transition(target RequestStatus) error {
	if err := r.canTransitionTo(target); err != nil {
		return err
	}
	r.Status = target
	return nil
}

// defines the request statuses that can be transitioned to
func (r *PaymentRequest) canTransitionTo(target RequestStatus) error {
	switch r.Status {
	case StatusPending:
		return r.allow(target, StatusVerified, StatusExpired)
	case StatusVerified:
		return r.allow(target, StatusFulfilled)
	}
	return NewInvalidTransitionError(r.Status, target)
}

func (r *PaymentRequest) allow(target RequestStatus, allowed ...RequestStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(r.Status, target)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
