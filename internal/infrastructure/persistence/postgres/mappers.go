package postgres

import (
	"fmt"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// toDomainModel: maps db model to domain entity
func toDomainModel(m RequestModel) (*domain.PaymentRequest, error) {
	req := &domain.PaymentRequest{
		ID:            m.ID,
		Status:        domain.RequestStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		Payer:         m.Payer,
		PaidAt:        m.PaidAt,
		SettlementRef: m.SettlementRef,
		VerifiedAt:    m.VerifiedAt,
		FulfilledAt:   m.FulfilledAt,
		ExpiredAt:     m.ExpiredAt,
		Resource:      m.Resource,
	}

	if m.AmountWei != nil {
		amount, err := domain.ParseWei(*m.AmountWei)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", m.ID, err)
		}
		req.Amount = &amount
	}

	return req, nil
}

// toDBModel: maps domain entity to db model
func toDBModel(r *domain.PaymentRequest) *RequestModel {
	m := &RequestModel{
		ID:            r.ID,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		Payer:         r.Payer,
		PaidAt:        r.PaidAt,
		SettlementRef: r.SettlementRef,
		VerifiedAt:    r.VerifiedAt,
		FulfilledAt:   r.FulfilledAt,
		ExpiredAt:     r.ExpiredAt,
		Resource:      r.Resource,
	}

	if r.Amount != nil {
		wei := r.Amount.Wei().String()
		m.AmountWei = &wei
	}

	return m
}
