// Package memory keeps request records in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// RequestStore guards every mutation with a single mutex, which makes each
// Update linearizable. Records are cloned on the way in and out.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string]*domain.PaymentRequest
}

func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]*domain.PaymentRequest),
	}
}

func (s *RequestStore) Insert(ctx context.Context, req *domain.PaymentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return domain.ErrDuplicateRequestID
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *RequestStore) FindByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, domain.NewRequestNotFoundError(id)
	}
	return req.Clone(), nil
}

func (s *RequestStore) Update(ctx context.Context, id string, mutate func(req *domain.PaymentRequest) error) (*domain.PaymentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[id]
	if !ok {
		return nil, domain.NewRequestNotFoundError(id)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.requests[id] = next
	return next.Clone(), nil
}

func (s *RequestStore) ExpirePending(ctx context.Context, createdBefore, expiredAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, req := range s.requests {
		if req.Status != domain.StatusPending || !req.CreatedAt.Before(createdBefore) {
			continue
		}
		if err := req.MarkExpired(expiredAt); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *RequestStore) DeleteExpired(ctx context.Context, expiredBefore time.Time) (int, error) {
	return s.deleteWhere(ctx, func(req *domain.PaymentRequest) bool {
		return req.Status == domain.StatusExpired && req.ExpiredAt != nil && req.ExpiredAt.Before(expiredBefore)
	})
}

func (s *RequestStore) DeleteFulfilled(ctx context.Context, fulfilledBefore time.Time) (int, error) {
	return s.deleteWhere(ctx, func(req *domain.PaymentRequest) bool {
		return req.Status == domain.StatusFulfilled && req.FulfilledAt != nil && req.FulfilledAt.Before(fulfilledBefore)
	})
}

func (s *RequestStore) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.RequestStatus]int, 4)
	for _, req := range s.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (s *RequestStore) deleteWhere(ctx context.Context, match func(req *domain.PaymentRequest) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for id, req := range s.requests {
		if match(req) {
			delete(s.requests, id)
			n++
		}
	}
	return n, nil
}

var _ application.RequestStore = (*RequestStore)(nil)
