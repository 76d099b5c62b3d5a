package memory

import (
	"context"
	"sort"
	"sync"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// LedgerMemory is an in-memory repository.LedgerRepository.
type LedgerMemory struct {
	mu       sync.Mutex
	entries  []model.LedgerEntry
	settings map[string]model.AutoTopUpSettings
}

// NewLedgerMemory creates an empty in-memory ledger repository.
func NewLedgerMemory() *LedgerMemory {
	return &LedgerMemory{settings: make(map[string]model.AutoTopUpSettings)}
}

var _ repository.LedgerRepository = (*LedgerMemory)(nil)

func (r *LedgerMemory) Append(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	out := *e
	return &out, nil
}

func (r *LedgerMemory) List(ctx context.Context, tenantID, cycleKey string, pq repository.PageQuery) (*repository.PageResult[model.LedgerEntry], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.LedgerEntry, 0)
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.CycleKey == cycleKey {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})

	total := len(items)
	items = page(items, pq)
	return &repository.PageResult[model.LedgerEntry]{Items: items, Total: total}, nil
}

func (r *LedgerMemory) SumUnits(ctx context.Context, tenantID, cycleKey, kind string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.CycleKey == cycleKey && e.Kind == kind {
			sum += e.Units
		}
	}
	return sum, nil
}

func (r *LedgerMemory) HasTopUp(ctx context.Context, tenantID, cycleKey, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.CycleKey == cycleKey && e.Kind == model.LedgerTopUp && e.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (r *LedgerMemory) CountTopUps(ctx context.Context, tenantID, cycleKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.CycleKey == cycleKey && e.Kind == model.LedgerTopUp {
			n++
		}
	}
	return n, nil
}

func (r *LedgerMemory) GetAutoTopUp(ctx context.Context, tenantID string) (*model.AutoTopUpSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := s
	return &out, nil
}

func (r *LedgerMemory) SaveAutoTopUp(ctx context.Context, s *model.AutoTopUpSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.TenantID] = *s
	return nil
}
