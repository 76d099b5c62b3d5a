package memory

import (
	"context"
	"sort"
	"sync"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// PortalMemory is an in-memory repository.PortalRepository. The uploaded
// flag is derived by scanning submissions, matching the SQL EXISTS query.
type PortalMemory struct {
	mu          sync.Mutex
	portals     map[string]model.Portal
	items       map[string]model.RequestItem
	submissions map[string]model.Submission
}

// NewPortalMemory creates an empty in-memory portal repository.
func NewPortalMemory() *PortalMemory {
	return &PortalMemory{
		portals:     make(map[string]model.Portal),
		items:       make(map[string]model.RequestItem),
		submissions: make(map[string]model.Submission),
	}
}

var _ repository.PortalRepository = (*PortalMemory)(nil)

func (r *PortalMemory) Create(ctx context.Context, p *model.Portal) (*model.Portal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portals[p.ID] = *p
	out := *p
	return &out, nil
}

func (r *PortalMemory) FindByID(ctx context.Context, id string) (*model.Portal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.portals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := p
	return &out, nil
}

func (r *PortalMemory) ListByTenant(ctx context.Context, tenantID string, pq repository.PageQuery) (*repository.PageResult[model.Portal], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Portal, 0)
	for _, p := range r.portals {
		if p.TenantID == tenantID {
			items = append(items, p)
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
	return &repository.PageResult[model.Portal]{Items: items, Total: total}, nil
}

func (r *PortalMemory) UpdateStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.portals[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	r.portals[id] = p
	return nil
}

func (r *PortalMemory) CountOpenByTenant(ctx context.Context, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.portals {
		if p.TenantID == tenantID && p.Status != model.PortalClosed {
			n++
		}
	}
	return n, nil
}

func (r *PortalMemory) AddItem(ctx context.Context, item *model.RequestItem) (*model.RequestItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = *item
	out := *item
	return &out, nil
}

func (r *PortalMemory) FindItem(ctx context.Context, id string) (*model.RequestItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := item
	return &out, nil
}

func (r *PortalMemory) ListItemViews(ctx context.Context, portalID string) ([]model.RequestItemView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]model.RequestItemView, 0)
	for _, item := range r.items {
		if item.PortalID != portalID {
			continue
		}
		uploaded := false
		for _, s := range r.submissions {
			if s.ItemID == item.ID {
				uploaded = true
				break
			}
		}
		views = append(views, model.RequestItemView{RequestItem: item, Uploaded: uploaded})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].OrderKey != views[j].OrderKey {
			return views[i].OrderKey < views[j].OrderKey
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

func (r *PortalMemory) MaxOrderKey(ctx context.Context, portalID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, item := range r.items {
		if item.PortalID == portalID && item.OrderKey > max {
			max = item.OrderKey
		}
	}
	return max, nil
}

func (r *PortalMemory) DeleteItem(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, s := range r.submissions {
		if s.ItemID == id {
			delete(r.submissions, sid)
		}
	}
	delete(r.items, id)
	return nil
}

func (r *PortalMemory) AddSubmission(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[s.ID] = *s
	out := *s
	return &out, nil
}

func (r *PortalMemory) ListSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Submission, 0)
	for _, s := range r.submissions {
		if s.ItemID == itemID {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (r *PortalMemory) DeleteSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]model.Submission, 0)
	for sid, s := range r.submissions {
		if s.ItemID == itemID {
			removed = append(removed, s)
			delete(r.submissions, sid)
		}
	}
	return removed, nil
}
