package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondd/internal/domain"
)

// BondStore implements domain.BondStore using PostgreSQL.
type BondStore struct {
	pool *pgxpool.Pool
}

// NewBondStore creates a new BondStore backed by the given connection pool.
func NewBondStore(pool *pgxpool.Pool) *BondStore {
	return &BondStore{pool: pool}
}

const upsertBondSQL = `
	INSERT INTO bonds (
		id, name, maturity, price, total_supply, margin_ratio, fixed_apy, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (id) DO UPDATE SET
		name         = EXCLUDED.name,
		maturity     = EXCLUDED.maturity,
		price        = EXCLUDED.price,
		total_supply = EXCLUDED.total_supply,
		margin_ratio = EXCLUDED.margin_ratio,
		fixed_apy    = EXCLUDED.fixed_apy,
		updated_at   = NOW()`

const selectBondSQL = `
	SELECT id, name, maturity, price, total_supply, margin_ratio, fixed_apy, updated_at
	FROM bonds`

func bondArgs(b domain.Bond) []any {
	return []any{b.ID, b.Name, b.Maturity, b.Price, b.TotalSupply, b.MarginRatio, b.FixedAPY}
}

// Upsert inserts or updates a single bond.
func (s *BondStore) Upsert(ctx context.Context, b domain.Bond) error {
	if _, err := s.pool.Exec(ctx, upsertBondSQL, bondArgs(b)...); err != nil {
		return fmt.Errorf("postgres: upsert bond %s: %w", b.ID, err)
	}
	return nil
}

// UpsertBatch writes the whole catalog in one batch.
func (s *BondStore) UpsertBatch(ctx context.Context, bonds []domain.Bond) error {
	if len(bonds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range bonds {
		batch.Queue(upsertBondSQL, bondArgs(b)...)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, b := range bonds {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: batch upsert bond %s: %w", b.ID, err)
		}
	}
	return nil
}

// GetByID returns the bond with the given id.
func (s *BondStore) GetByID(ctx context.Context, id string) (domain.Bond, error) {
	b, err := scanBond(s.pool.QueryRow(ctx, selectBondSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("postgres: get bond %s: %w", id, err)
	}
	return b, nil
}

// List returns the catalog ordered by maturity.
func (s *BondStore) List(ctx context.Context) ([]domain.Bond, error) {
	rows, err := s.pool.Query(ctx, selectBondSQL+` ORDER BY maturity, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bonds: %w", err)
	}
	defer rows.Close()

	var bonds []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		bonds = append(bonds, b)
	}
	return bonds, rows.Err()
}

func scanBond(row pgx.Row) (domain.Bond, error) {
	var b domain.Bond
	err := row.Scan(&b.ID, &b.Name, &b.Maturity, &b.Price, &b.TotalSupply, &b.MarginRatio, &b.FixedAPY, &b.UpdatedAt)
	return b, err
}
