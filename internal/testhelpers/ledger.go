package testhelpers

import (
	"context"
	"sync"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// FakeLedger is an in-memory stand-in for the payment contract.
type FakeLedger struct {
	mu       sync.Mutex
	price    domain.Amount
	payments map[string]application.LedgerPayment
	block    uint64
	err      error
	calls    map[string]int
}

func NewFakeLedger(price string) *FakeLedger {
	return &FakeLedger{
		price:    domain.MustParseAmount(price),
		payments: make(map[string]application.LedgerPayment),
		block:    1,
		calls:    make(map[string]int),
	}
}

// Pay records a payment for requestID as the contract's pay() would.
func (l *FakeLedger) Pay(requestID, payer, amount string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments[requestID] = application.LedgerPayment{
		Payer:     payer,
		Amount:    domain.MustParseAmount(amount),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Exists:    true,
	}
	l.block++
}

func (l *FakeLedger) SetPrice(price string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.price = domain.MustParseAmount(price)
}

// Fail makes every subsequent call return err until Fail(nil).
func (l *FakeLedger) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *FakeLedger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *FakeLedger) HasPaid(ctx context.Context, requestID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["HasPaid"]++
	if l.err != nil {
		return false, l.err
	}
	_, ok := l.payments[requestID]
	return ok, nil
}

func (l *FakeLedger) GetPayment(ctx context.Context, requestID string) (*application.LedgerPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["GetPayment"]++
	if l.err != nil {
		return nil, l.err
	}
	p, ok := l.payments[requestID]
	if !ok {
		return &application.LedgerPayment{Exists: false}, nil
	}
	return &p, nil
}

func (l *FakeLedger) Price(ctx context.Context) (domain.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["Price"]++
	if l.err != nil {
		return domain.Amount{}, l.err
	}
	return l.price, nil
}

func (l *FakeLedger) BlockNumber(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["BlockNumber"]++
	if l.err != nil {
		return 0, l.err
	}
	return l.block, nil
}

var _ application.Ledger = (*FakeLedger)(nil)
