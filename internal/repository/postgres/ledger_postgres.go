package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// LedgerPostgres is a PostgreSQL implementation of repository.LedgerRepository.
// Ledger rows are append-only: there are no UPDATE or DELETE statements here
// apart from the settings upsert.
type LedgerPostgres struct {
	db *sql.DB
}

// NewLedgerPostgres creates a new LedgerPostgres repository.
func NewLedgerPostgres(db *sql.DB) *LedgerPostgres {
	return &LedgerPostgres{db: db}
}

var _ repository.LedgerRepository = (*LedgerPostgres)(nil)

const ledgerColumns = `id, tenant_id, kind, units, reason, cycle_key, created_at`

// Append inserts a ledger entry and returns the stored record.
func (r *LedgerPostgres) Append(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	const q = `
		INSERT INTO ledger_entries (id, tenant_id, kind, units, reason, cycle_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + ledgerColumns
	row := r.db.QueryRowContext(ctx, q,
		e.ID,
		e.TenantID,
		e.Kind,
		e.Units,
		e.Reason,
		e.CycleKey,
		e.CreatedAt,
	)
	var out model.LedgerEntry
	if err := row.Scan(&out.ID, &out.TenantID, &out.Kind, &out.Units, &out.Reason, &out.CycleKey, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a tenant's entries for a cycle using LIMIT/OFFSET pagination.
func (r *LedgerPostgres) List(ctx context.Context, tenantID, cycleKey string, pq repository.PageQuery) (*repository.PageResult[model.LedgerEntry], error) {
	const qCount = `SELECT COUNT(*) FROM ledger_entries WHERE tenant_id = $1 AND cycle_key = $2`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, tenantID, cycleKey).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1 AND cycle_key = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, qList, tenantID, cycleKey, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.LedgerEntry, 0)
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Kind, &e.Units, &e.Reason, &e.CycleKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.LedgerEntry]{Items: items, Total: total}, nil
}

// SumUnits totals the units of one entry kind over a cycle.
func (r *LedgerPostgres) SumUnits(ctx context.Context, tenantID, cycleKey, kind string) (int64, error) {
	const q = `
		SELECT COALESCE(SUM(units), 0)
		FROM ledger_entries
		WHERE tenant_id = $1 AND cycle_key = $2 AND kind = $3
	`
	var sum int64
	err := r.db.QueryRowContext(ctx, q, tenantID, cycleKey, kind).Scan(&sum)
	return sum, err
}

// HasTopUp reports whether a top-up with the given reason exists in the cycle.
func (r *LedgerPostgres) HasTopUp(ctx context.Context, tenantID, cycleKey, reason string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE tenant_id = $1 AND cycle_key = $2 AND kind = $3 AND reason = $4
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, tenantID, cycleKey, model.LedgerTopUp, reason).Scan(&exists)
	return exists, err
}

// CountTopUps counts top-up entries in a cycle.
func (r *LedgerPostgres) CountTopUps(ctx context.Context, tenantID, cycleKey string) (int, error) {
	const q = `
		SELECT COUNT(*) FROM ledger_entries
		WHERE tenant_id = $1 AND cycle_key = $2 AND kind = $3
	`
	var n int
	err := r.db.QueryRowContext(ctx, q, tenantID, cycleKey, model.LedgerTopUp).Scan(&n)
	return n, err
}

// GetAutoTopUp returns a tenant's auto top-up settings.
func (r *LedgerPostgres) GetAutoTopUp(ctx context.Context, tenantID string) (*model.AutoTopUpSettings, error) {
	const q = `
		SELECT tenant_id, enabled, pack_id, threshold_percent, max_per_month, used_this_month
		FROM auto_topup_settings
		WHERE tenant_id = $1
	`
	var s model.AutoTopUpSettings
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(
		&s.TenantID,
		&s.Enabled,
		&s.PackID,
		&s.ThresholdPercent,
		&s.MaxPerMonth,
		&s.UsedThisMonth,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// SaveAutoTopUp upserts a tenant's auto top-up settings.
func (r *LedgerPostgres) SaveAutoTopUp(ctx context.Context, s *model.AutoTopUpSettings) error {
	const q = `
		INSERT INTO auto_topup_settings (tenant_id, enabled, pack_id, threshold_percent, max_per_month, used_this_month)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    pack_id = EXCLUDED.pack_id,
		    threshold_percent = EXCLUDED.threshold_percent,
		    max_per_month = EXCLUDED.max_per_month,
		    used_this_month = EXCLUDED.used_this_month
	`
	_, err := r.db.ExecContext(ctx, q,
		s.TenantID,
		s.Enabled,
		s.PackID,
		s.ThresholdPercent,
		s.MaxPerMonth,
		s.UsedThisMonth,
	)
	return err
}
