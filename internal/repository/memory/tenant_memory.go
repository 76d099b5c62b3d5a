package memory

import (
	"context"
	"sync"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// TenantMemory is an in-memory repository.TenantRepository for development
// and tests. Counter mutations are atomic under one mutex, mirroring the
// atomicity the SQL implementation gets from single UPDATE statements.
type TenantMemory struct {
	mu          sync.Mutex
	tenants     map[string]model.Tenant
	memberships map[string]model.Membership // key: userID + "/" + tenantID
}

// NewTenantMemory creates an empty in-memory tenant repository.
func NewTenantMemory() *TenantMemory {
	return &TenantMemory{
		tenants:     make(map[string]model.Tenant),
		memberships: make(map[string]model.Membership),
	}
}

var _ repository.TenantRepository = (*TenantMemory)(nil)

func (r *TenantMemory) Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = *t
	out := *t
	return &out, nil
}

func (r *TenantMemory) FindByID(ctx context.Context, id string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := t
	return &out, nil
}

func (r *TenantMemory) AddStorageUsed(ctx context.Context, id string, delta int64) error {
	return r.update(id, func(t *model.Tenant) {
		t.StorageUsedBytes += delta
		if t.StorageUsedBytes < 0 {
			t.StorageUsedBytes = 0
		}
	})
}

func (r *TenantMemory) AddUnitsUsed(ctx context.Context, id string, units int64) error {
	return r.update(id, func(t *model.Tenant) {
		t.UnitsUsedThisMonth += units
		t.UnitsUsedToday += units
	})
}

func (r *TenantMemory) AddBonusUnits(ctx context.Context, id string, units int64) error {
	return r.update(id, func(t *model.Tenant) {
		t.BonusUnits += units
	})
}

func (r *TenantMemory) ResetCycle(ctx context.Context, id string) error {
	return r.update(id, func(t *model.Tenant) {
		t.UnitsUsedThisMonth = 0
		t.UnitsUsedToday = 0
		t.BonusUnits = 0
	})
}

func (r *TenantMemory) FindMembership(ctx context.Context, userID, tenantID string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[userID+"/"+tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := m
	return &out, nil
}

func (r *TenantMemory) AddMembership(ctx context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[m.UserID+"/"+m.TenantID] = *m
	return nil
}

func (r *TenantMemory) update(id string, fn func(*model.Tenant)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&t)
	r.tenants[id] = t
	return nil
}
