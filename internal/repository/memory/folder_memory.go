package memory

import (
	"context"
	"sort"
	"sync"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// FolderMemory is an in-memory repository.FolderRepository.
type FolderMemory struct {
	mu      sync.Mutex
	folders map[string]model.Folder
}

// NewFolderMemory creates an empty in-memory folder repository.
func NewFolderMemory() *FolderMemory {
	return &FolderMemory{folders: make(map[string]model.Folder)}
}

var _ repository.FolderRepository = (*FolderMemory)(nil)

func (r *FolderMemory) Create(ctx context.Context, f *model.Folder) (*model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders[f.ID] = *f
	out := *f
	return &out, nil
}

func (r *FolderMemory) FindByID(ctx context.Context, tenantID, id string) (*model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok || f.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	out := f
	return &out, nil
}

func (r *FolderMemory) FindByName(ctx context.Context, tenantID string, parentID *string, name string) (*model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.folders {
		if f.TenantID == tenantID && sameFolder(f.ParentID, parentID) && f.Name == name {
			out := f
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *FolderMemory) List(ctx context.Context, tenantID string, parentID *string) ([]model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Folder, 0)
	for _, f := range r.folders {
		if f.TenantID == tenantID && sameFolder(f.ParentID, parentID) {
			items = append(items, f)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (r *FolderMemory) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.folders[id]; ok && f.TenantID == tenantID {
		delete(r.folders, id)
	}
	return nil
}
