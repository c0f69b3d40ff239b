package domain

import (
	"context"
	"time"
)

// Audit events written for every operator-signed action.
const (
	AuditIssuanceSubmitted = "issuance_submitted"
	AuditIssuanceConfirmed = "issuance_confirmed"
	AuditIssuanceFailed    = "issuance_failed"
	AuditSwapExecuted      = "swap_executed"
	AuditCatalogSynced     = "catalog_synced"
	AuditIssuancesArchived = "issuances_archived"
)

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists the audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
