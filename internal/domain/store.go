package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BondStore persists the bond catalog.
type BondStore interface {
	Upsert(ctx context.Context, bond Bond) error
	UpsertBatch(ctx context.Context, bonds []Bond) error
	GetByID(ctx context.Context, id string) (Bond, error)
	List(ctx context.Context) ([]Bond, error)
}

// IssuanceStore persists issuance attempts.
type IssuanceStore interface {
	Create(ctx context.Context, iss Issuance) error
	UpdateState(ctx context.Context, id string, state TxState, txHash, errMsg string) error
	GetByID(ctx context.Context, id string) (Issuance, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Issuance, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Issuance, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
