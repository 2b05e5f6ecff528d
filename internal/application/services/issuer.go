package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
)

// Resource is a delivered payload plus the payment it was bought with.
type Resource struct {
	RequestID     string
	Payload       json.RawMessage
	Payer         string
	Amount        domain.Amount
	PaidAt        time.Time
	SettlementRef string
	FulfilledAt   time.Time
	Redelivered   bool
}

type ResourceIssuer struct {
	registry *RequestRegistry
	provider application.ResourceProvider
	logger   *slog.Logger
}

func NewResourceIssuer(registry *RequestRegistry, provider application.ResourceProvider, logger *slog.Logger) *ResourceIssuer {
	return &ResourceIssuer{
		registry: registry,
		provider: provider,
		logger:   logger,
	}
}

// Issue delivers the resource for a VERIFIED request and marks it FULFILLED.
// A FULFILLED request gets the stored payload back unchanged.
func (i *ResourceIssuer) Issue(ctx context.Context, id string) (*Resource, error) {
	req, err := i.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}

	switch req.Status {
	case domain.StatusFulfilled:
		return i.redeliver(req), nil
	case domain.StatusVerified:
	default:
		return nil, domain.NewPaymentNotVerifiedError(id, req.Status)
	}

	payload, err := i.provider.Generate(ctx, req)
	if err != nil {
		i.logger.Error("failed to generate resource", "request_id", id, "error", err)
		return nil, application.NewInternalError(err)
	}

	fulfilled, err := i.registry.TransitionToFulfilled(ctx, id, payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			current, getErr := i.registry.Get(ctx, id)
			if getErr == nil && current.Status == domain.StatusFulfilled {
				return i.redeliver(current), nil
			}
			i.logger.Error("fulfilment transition rejected", "request_id", id, "error", err)
		}
		return nil, err
	}

	metrics.ResourcesIssued.WithLabelValues("first").Inc()
	return toResource(fulfilled, false), nil
}

func (i *ResourceIssuer) redeliver(req *domain.PaymentRequest) *Resource {
	metrics.ResourcesIssued.WithLabelValues("redelivery").Inc()
	i.logger.Info("redelivering fulfilled resource", "request_id", req.ID)
	return toResource(req, true)
}

func toResource(req *domain.PaymentRequest, redelivered bool) *Resource {
	res := &Resource{
		RequestID:   req.ID,
		Payload:     json.RawMessage(req.Resource),
		Redelivered: redelivered,
	}
	if req.Payer != nil {
		res.Payer = *req.Payer
	}
	if req.Amount != nil {
		res.Amount = *req.Amount
	}
	if req.PaidAt != nil {
		res.PaidAt = *req.PaidAt
	}
	if req.SettlementRef != nil {
		res.SettlementRef = *req.SettlementRef
	}
	if req.FulfilledAt != nil {
		res.FulfilledAt = *req.FulfilledAt
	}
	return res
}
