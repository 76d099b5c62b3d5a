package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// TenantPostgres is a PostgreSQL implementation of repository.TenantRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type TenantPostgres struct {
	db *sql.DB
}

// NewTenantPostgres creates a new TenantPostgres repository.
func NewTenantPostgres(db *sql.DB) *TenantPostgres {
	return &TenantPostgres{db: db}
}

var _ repository.TenantRepository = (*TenantPostgres)(nil)

const tenantColumns = `id, name, plan, personal, seat_count, storage_used_bytes, units_used_month, units_used_today, bonus_units, created_at`

func scanTenant(row *sql.Row) (*model.Tenant, error) {
	var t model.Tenant
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Plan,
		&t.Personal,
		&t.SeatCount,
		&t.StorageUsedBytes,
		&t.UnitsUsedThisMonth,
		&t.UnitsUsedToday,
		&t.BonusUnits,
		&t.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Create inserts a new tenant row and returns the stored record.
func (r *TenantPostgres) Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error) {
	const q = `
		INSERT INTO tenants (id, name, plan, personal, seat_count, storage_used_bytes, units_used_month, units_used_today, bonus_units, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + tenantColumns
	row := r.db.QueryRowContext(ctx, q,
		t.ID,
		t.Name,
		t.Plan,
		t.Personal,
		t.SeatCount,
		t.StorageUsedBytes,
		t.UnitsUsedThisMonth,
		t.UnitsUsedToday,
		t.BonusUnits,
		t.CreatedAt,
	)
	return scanTenant(row)
}

// FindByID fetches a single tenant with its usage counters.
func (r *TenantPostgres) FindByID(ctx context.Context, id string) (*model.Tenant, error) {
	const q = `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.db.QueryRowContext(ctx, q, id))
}

// AddStorageUsed atomically adjusts the storage counter, floored at zero.
func (r *TenantPostgres) AddStorageUsed(ctx context.Context, id string, delta int64) error {
	const q = `
		UPDATE tenants
		SET storage_used_bytes = GREATEST(storage_used_bytes + $2, 0)
		WHERE id = $1
	`
	return r.execOne(ctx, q, id, delta)
}

// AddUnitsUsed atomically adds units to both the monthly and daily counters.
func (r *TenantPostgres) AddUnitsUsed(ctx context.Context, id string, units int64) error {
	const q = `
		UPDATE tenants
		SET units_used_month = units_used_month + $2,
		    units_used_today = units_used_today + $2
		WHERE id = $1
	`
	return r.execOne(ctx, q, id, units)
}

// AddBonusUnits credits purchased top-up units.
func (r *TenantPostgres) AddBonusUnits(ctx context.Context, id string, units int64) error {
	const q = `UPDATE tenants SET bonus_units = bonus_units + $2 WHERE id = $1`
	return r.execOne(ctx, q, id, units)
}

// ResetCycle zeroes the monthly counters and bonus carry-over.
func (r *TenantPostgres) ResetCycle(ctx context.Context, id string) error {
	const q = `
		UPDATE tenants
		SET units_used_month = 0, units_used_today = 0, bonus_units = 0
		WHERE id = $1
	`
	return r.execOne(ctx, q, id)
}

// FindMembership returns the membership row linking a user to a tenant.
func (r *TenantPostgres) FindMembership(ctx context.Context, userID, tenantID string) (*model.Membership, error) {
	const q = `
		SELECT user_id, tenant_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND tenant_id = $2
	`
	var m model.Membership
	if err := r.db.QueryRowContext(ctx, q, userID, tenantID).Scan(
		&m.UserID,
		&m.TenantID,
		&m.Role,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// AddMembership inserts a membership row.
func (r *TenantPostgres) AddMembership(ctx context.Context, m *model.Membership) error {
	const q = `
		INSERT INTO memberships (user_id, tenant_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, q, m.UserID, m.TenantID, m.Role, m.CreatedAt)
	return err
}

func (r *TenantPostgres) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
