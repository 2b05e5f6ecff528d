package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
)

const selectColumns = `
	SELECT id, status, created_at, payer, amount_wei, paid_at, settlement_ref,
	       verified_at, fulfilled_at, expired_at, resource
	FROM payment_requests`

type RequestRepository struct {
	db *DB
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Insert(ctx context.Context, req *domain.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (
			id, status, created_at, payer, amount_wei, paid_at, settlement_ref,
			verified_at, fulfilled_at, expired_at, resource
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	m := toDBModel(req)
	_, err := r.db.Pool.Exec(ctx, query,
		m.ID,
		m.Status,
		m.CreatedAt,
		m.Payer,
		m.AmountWei,
		m.PaidAt,
		m.SettlementRef,
		m.VerifiedAt,
		m.FulfilledAt,
		m.ExpiredAt,
		m.Resource,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateRequestID
		}
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

// FindByID retrieves a request
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	row := r.db.Pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	return scanRequest(row, id)
}

// Update locks the row, applies mutate and writes the result in one transaction.
func (r *RequestRepository) Update(ctx context.Context, id string, mutate func(req *domain.PaymentRequest) error) (*domain.PaymentRequest, error) {
	var updated *domain.PaymentRequest

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := scanRequest(tx.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id), id)
		if err != nil {
			return err
		}

		if err := mutate(req); err != nil {
			return err
		}

		query := `
			UPDATE payment_requests
			SET status = $1, payer = $2, amount_wei = $3, paid_at = $4, settlement_ref = $5,
			    verified_at = $6, fulfilled_at = $7, expired_at = $8, resource = $9
			WHERE id = $10
		`
		m := toDBModel(req)
		if _, err := tx.Exec(ctx, query,
			m.Status,
			m.Payer,
			m.AmountWei,
			m.PaidAt,
			m.SettlementRef,
			m.VerifiedAt,
			m.FulfilledAt,
			m.ExpiredAt,
			m.Resource,
			m.ID,
		); err != nil {
			return fmt.Errorf("failed to update payment request: %w", err)
		}

		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExpirePending marks PENDING rows created before the cutoff as EXPIRED.
// Rows locked by a concurrent Update are re-checked after the lock is released.
func (r *RequestRepository) ExpirePending(ctx context.Context, createdBefore, expiredAt time.Time) (int, error) {
	query := `
		UPDATE payment_requests
		SET status = 'EXPIRED', expired_at = $2
		WHERE status = 'PENDING' AND created_at < $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, createdBefore, expiredAt)
	if err != nil {
		return 0, fmt.Errorf("expire pending requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RequestRepository) DeleteExpired(ctx context.Context, expiredBefore time.Time) (int, error) {
	query := `DELETE FROM payment_requests WHERE status = 'EXPIRED' AND expired_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("delete expired requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RequestRepository) DeleteFulfilled(ctx context.Context, fulfilledBefore time.Time) (int, error) {
	query := `DELETE FROM payment_requests WHERE status = 'FULFILLED' AND fulfilled_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, fulfilledBefore)
	if err != nil {
		return 0, fmt.Errorf("delete fulfilled requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RequestRepository) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, count(*) FROM payment_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RequestStatus]int, 4)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.RequestStatus(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func scanRequest(row pgx.Row, id string) (*domain.PaymentRequest, error) {
	var m RequestModel
	err := row.Scan(
		&m.ID, &m.Status, &m.CreatedAt, &m.Payer, &m.AmountWei, &m.PaidAt, &m.SettlementRef,
		&m.VerifiedAt, &m.FulfilledAt, &m.ExpiredAt, &m.Resource,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewRequestNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan payment request: %w", err)
	}
	return toDomainModel(m)
}

var _ application.RequestStore = (*RequestRepository)(nil)
