package repository

import (
	"context"

	"vaultcore/internal/model"
)

// TenantRepository defines data access for tenants, their usage counters and
// memberships. Counter mutations are atomic in-database increments; the
// admission service brackets them with its own reservation discipline.
type TenantRepository interface {
	// Create inserts a new tenant record.
	Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error)

	// FindByID returns a tenant with its current usage counters.
	FindByID(ctx context.Context, id string) (*model.Tenant, error)

	// AddStorageUsed atomically adjusts the storage counter by delta bytes.
	// Negative deltas release a reservation; the counter is floored at zero.
	AddStorageUsed(ctx context.Context, id string, delta int64) error

	// AddUnitsUsed atomically adds units to both the monthly and daily
	// processing counters.
	AddUnitsUsed(ctx context.Context, id string, units int64) error

	// AddBonusUnits credits purchased top-up units.
	AddBonusUnits(ctx context.Context, id string, units int64) error

	// ResetCycle zeroes the monthly counters and bonus carry-over at the
	// start of a new billing cycle.
	ResetCycle(ctx context.Context, id string) error

	// FindMembership returns the membership linking a user to a tenant,
	// or ErrNotFound when the user does not belong to it.
	FindMembership(ctx context.Context, userID, tenantID string) (*model.Membership, error)

	// AddMembership inserts a membership row.
	AddMembership(ctx context.Context, m *model.Membership) error
}
