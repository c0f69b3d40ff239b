package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// IssuanceStore implements domain.IssuanceStore using PostgreSQL.
type IssuanceStore struct {
	pool *pgxpool.Pool
}

// NewIssuanceStore creates a new IssuanceStore.
func NewIssuanceStore(pool *pgxpool.Pool) *IssuanceStore {
	return &IssuanceStore{pool: pool}
}

const selectIssuanceSQL = `
	SELECT id, bond_id, wallet, amount, state, tx_hash, error, attempts, created_at, updated_at
	FROM issuances`

// Create inserts a new issuance record.
func (s *IssuanceStore) Create(ctx context.Context, iss domain.Issuance) error {
	const query = `
		INSERT INTO issuances (id, bond_id, wallet, amount, state, tx_hash, error, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		iss.ID, iss.BondID, iss.Wallet, iss.Amount, string(iss.State),
		iss.TxHash, iss.Error, iss.Attempts, iss.CreatedAt, iss.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create issuance %s: %w", iss.ID, err)
	}
	return nil
}

// UpdateState records a lifecycle transition. Entering loading counts as a
// new attempt.
func (s *IssuanceStore) UpdateState(ctx context.Context, id string, state domain.TxState, txHash, errMsg string) error {
	const query = `
		UPDATE issuances SET
			state      = $2,
			tx_hash    = $3,
			error      = $4,
			attempts   = attempts + CASE WHEN $2 = 'loading' THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(state), txHash, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: update issuance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one issuance.
func (s *IssuanceStore) GetByID(ctx context.Context, id string) (domain.Issuance, error) {
	iss, err := scanIssuance(s.pool.QueryRow(ctx, selectIssuanceSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Issuance{}, domain.ErrNotFound
		}
		return domain.Issuance{}, fmt.Errorf("postgres: get issuance %s: %w", id, err)
	}
	return iss, nil
}

// ListByWallet returns a wallet's issuances, newest first.
func (s *IssuanceStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Issuance, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := selectIssuanceSQL + `
		WHERE wallet = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	return s.query(ctx, query, wallet, opts.Since, opts.Until, limit, opts.Offset)
}

// ListBefore returns settled issuances last updated before the cutoff,
// oldest first.
func (s *IssuanceStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Issuance, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := selectIssuanceSQL + `
		WHERE updated_at < $1 AND state IN ('success', 'error')
		ORDER BY updated_at
		LIMIT $2`
	return s.query(ctx, query, before, limit)
}

// DeleteByIDs removes the given issuances.
func (s *IssuanceStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM issuances WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete issuances: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *IssuanceStore) query(ctx context.Context, query string, args ...any) ([]domain.Issuance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query issuances: %w", err)
	}
	defer rows.Close()

	var list []domain.Issuance
	for rows.Next() {
		iss, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan issuance: %w", err)
		}
		list = append(list, iss)
	}
	return list, rows.Err()
}

func scanIssuance(row pgx.Row) (domain.Issuance, error) {
	var (
		iss   domain.Issuance
		state string
	)
	err := row.Scan(
		&iss.ID, &iss.BondID, &iss.Wallet, &iss.Amount, &state,
		&iss.TxHash, &iss.Error, &iss.Attempts, &iss.CreatedAt, &iss.UpdatedAt,
	)
	iss.State = domain.TxState(state)
	return iss, err
}
