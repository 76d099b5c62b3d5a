package repository

import (
	"context"

	"vaultcore/internal/model"
)

// LedgerRepository defines data access for the append-only usage ledger and
// auto top-up settings. Ledger rows are never updated or deleted.
type LedgerRepository interface {
	// Append inserts a ledger entry.
	Append(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error)

	// List returns a tenant's entries for a cycle, newest first.
	List(ctx context.Context, tenantID, cycleKey string, pq PageQuery) (*PageResult[model.LedgerEntry], error)

	// SumUnits totals the units of one entry kind over a cycle.
	SumUnits(ctx context.Context, tenantID, cycleKey, kind string) (int64, error)

	// HasTopUp reports whether a top-up with the given reason already exists
	// in the cycle. Auto top-up uses it for per-cycle idempotency.
	HasTopUp(ctx context.Context, tenantID, cycleKey, reason string) (bool, error)

	// CountTopUps counts top-up entries in a cycle, for the monthly
	// auto top-up cap.
	CountTopUps(ctx context.Context, tenantID, cycleKey string) (int, error)

	// GetAutoTopUp returns a tenant's auto top-up settings, or ErrNotFound.
	GetAutoTopUp(ctx context.Context, tenantID string) (*model.AutoTopUpSettings, error)

	// SaveAutoTopUp upserts a tenant's auto top-up settings.
	SaveAutoTopUp(ctx context.Context, s *model.AutoTopUpSettings) error
}
