package memory

import (
	"context"
	"sort"
	"sync"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// DocumentMemory is an in-memory repository.DocumentRepository.
type DocumentMemory struct {
	mu   sync.Mutex
	docs map[string]model.Document
}

// NewDocumentMemory creates an empty in-memory document repository.
func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{docs: make(map[string]model.Document)}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func (r *DocumentMemory) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	out := *doc
	return &out, nil
}

func (r *DocumentMemory) FindByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	out := d
	return &out, nil
}

func (r *DocumentMemory) List(ctx context.Context, tenantID string, folderID *string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Document, 0)
	for _, d := range r.docs {
		if d.TenantID == tenantID && sameFolder(d.FolderID, folderID) {
			items = append(items, d)
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
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *DocumentMemory) NamesInFolder(ctx context.Context, tenantID string, folderID *string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0)
	for _, d := range r.docs {
		if d.TenantID == tenantID && sameFolder(d.FolderID, folderID) {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func (r *DocumentMemory) UpdateOCRStatus(ctx context.Context, tenantID, id, status string) error {
	return r.update(tenantID, id, func(d *model.Document) { d.OCRStatus = status })
}

func (r *DocumentMemory) MoveToFolder(ctx context.Context, tenantID, id string, folderID *string) error {
	return r.update(tenantID, id, func(d *model.Document) { d.FolderID = folderID })
}

func (r *DocumentMemory) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[id]; ok && d.TenantID == tenantID {
		delete(r.docs, id)
	}
	return nil
}

func (r *DocumentMemory) update(tenantID, id string, fn func(*model.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.TenantID != tenantID {
		return repository.ErrNotFound
	}
	fn(&d)
	r.docs[id] = d
	return nil
}

func sameFolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func page[T any](items []T, pq repository.PageQuery) []T {
	if pq.Offset >= len(items) {
		return []T{}
	}
	items = items[pq.Offset:]
	if pq.Limit > 0 && pq.Limit < len(items) {
		items = items[:pq.Limit]
	}
	return items
}
