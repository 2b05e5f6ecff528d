package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type VerificationStatus string

const (
	VerificationConfirmed           VerificationStatus = "CONFIRMED"
	VerificationNotPaid             VerificationStatus = "NOT_PAID"
	VerificationInsufficientPayment VerificationStatus = "INSUFFICIENT_PAYMENT"
)

// VerificationOutcome is the typed result of a verify call. Paid, Price and
// Shortfall are only set for INSUFFICIENT_PAYMENT.
type VerificationOutcome struct {
	Status    VerificationStatus
	Request   *domain.PaymentRequest
	Paid      domain.Amount
	Price     domain.Amount
	Shortfall domain.Amount
}

type ledgerSnapshot struct {
	payment *application.LedgerPayment
	price   domain.Amount
}

// PaymentVerifier checks the ledger for a request's payment and promotes the
// request to VERIFIED when it covers the current price.
type PaymentVerifier struct {
	registry *RequestRegistry
	ledger   application.Ledger
	timeout  time.Duration
	logger   *slog.Logger
	inflight singleflight.Group
}

func NewPaymentVerifier(
	registry *RequestRegistry,
	ledger application.Ledger,
	timeout time.Duration,
	logger *slog.Logger,
) *PaymentVerifier {
	return &PaymentVerifier{
		registry: registry,
		ledger:   ledger,
		timeout:  timeout,
		logger:   logger,
	}
}

func (v *PaymentVerifier) Verify(ctx context.Context, cmd VerifyCommand) (*VerificationOutcome, error) {
	req, err := v.registry.Get(ctx, cmd.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			v.record("unknown")
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}

	if v.registry.IsExpired(req, v.registry.Now()) {
		v.record("expired")
		return nil, domain.NewRequestExpiredError(req.ID)
	}

	// Already paid locally: nothing left to grant, so the ledger is not consulted.
	if req.IsPaid() {
		v.record("confirmed")
		return &VerificationOutcome{Status: VerificationConfirmed, Request: req}, nil
	}

	snapshot, err := v.queryLedger(ctx, req.ID)
	if err != nil {
		v.record("ledger_unavailable")
		v.logger.Warn("ledger query failed",
			"request_id", req.ID,
			"error", err,
		)
		return nil, application.NewLedgerUnavailableError(err)
	}

	if snapshot.payment == nil || !snapshot.payment.Exists {
		v.record("not_paid")
		return &VerificationOutcome{Status: VerificationNotPaid, Request: req}, nil
	}

	paid := snapshot.payment.Amount
	if paid.LessThan(snapshot.price) {
		v.record("insufficient")
		v.logger.Info("insufficient payment",
			"request_id", req.ID,
			"paid", paid.String(),
			"required", snapshot.price.String(),
		)
		return &VerificationOutcome{
			Status:    VerificationInsufficientPayment,
			Request:   req,
			Paid:      paid,
			Price:     snapshot.price,
			Shortfall: snapshot.price.Shortfall(paid),
		}, nil
	}

	receipt := domain.PaymentReceipt{
		Payer:         snapshot.payment.Payer,
		Amount:        paid,
		PaidAt:        snapshot.payment.Timestamp,
		SettlementRef: cmd.TxHash,
	}

	verified, err := v.registry.TransitionToVerified(ctx, req.ID, receipt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Another caller won the transition; report what it left behind.
			current, getErr := v.registry.Get(ctx, req.ID)
			if getErr == nil && current.IsPaid() {
				v.record("confirmed")
				return &VerificationOutcome{Status: VerificationConfirmed, Request: current}, nil
			}
			v.logger.Error("verification transition rejected",
				"request_id", req.ID,
				"error", err,
			)
			return nil, err
		}
		if errors.Is(err, domain.ErrRequestExpired) {
			v.record("expired")
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}

	v.record("confirmed")
	return &VerificationOutcome{Status: VerificationConfirmed, Request: verified}, nil
}

// queryLedger runs at most one ledger round trip per request ID at a time.
// The round trip is detached from the first caller's cancellation and bounded
// by the ledger timeout; each caller still stops waiting when its own ctx ends.
func (v *PaymentVerifier) queryLedger(ctx context.Context, requestID string) (*ledgerSnapshot, error) {
	ch := v.inflight.DoChan(requestID, func() (any, error) {
		ctx, cancel := withLedgerTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()

		paid, err := v.ledger.HasPaid(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if !paid {
			return &ledgerSnapshot{}, nil
		}

		var snapshot ledgerSnapshot
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			payment, err := v.ledger.GetPayment(gctx, requestID)
			snapshot.payment = payment
			return err
		})
		g.Go(func() error {
			price, err := v.ledger.Price(gctx)
			snapshot.price = price
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &snapshot, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			v.logger.Debug("joined in-flight ledger query", "request_id", requestID)
		}
		return res.Val.(*ledgerSnapshot), nil
	}
}

func (v *PaymentVerifier) record(outcome string) {
	metrics.Verifications.WithLabelValues(outcome).Inc()
}

func withLedgerTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
