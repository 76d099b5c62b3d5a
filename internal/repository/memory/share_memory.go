package memory

import (
	"context"
	"sync"
	"time"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// ShareMemory is an in-memory repository.ShareRepository. IncrementDownload
// performs its check-and-bump under the mutex so the ceiling holds under
// concurrent redemptions, mirroring the conditional UPDATE in SQL.
type ShareMemory struct {
	mu    sync.Mutex
	links map[string]model.ShareLink
}

// NewShareMemory creates an empty in-memory share repository.
func NewShareMemory() *ShareMemory {
	return &ShareMemory{links: make(map[string]model.ShareLink)}
}

var _ repository.ShareRepository = (*ShareMemory)(nil)

func (r *ShareMemory) Create(ctx context.Context, link *model.ShareLink) (*model.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[link.Token] = *link
	out := *link
	return &out, nil
}

func (r *ShareMemory) FindByToken(ctx context.Context, token string) (*model.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := link
	out.DocumentIDs = append([]string(nil), link.DocumentIDs...)
	return &out, nil
}

func (r *ShareMemory) CountActiveByTenant(ctx context.Context, tenantID string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, link := range r.links {
		if link.TenantID != tenantID {
			continue
		}
		if link.Expired(now) || link.Exhausted() {
			continue
		}
		n++
	}
	return n, nil
}

func (r *ShareMemory) IncrementDownload(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return false, nil
	}
	if link.Exhausted() {
		return false, nil
	}
	link.DownloadCount++
	r.links[token] = link
	return true, nil
}

func (r *ShareMemory) Delete(ctx context.Context, tenantID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link, ok := r.links[token]; ok && link.TenantID == tenantID {
		delete(r.links, token)
	}
	return nil
}
