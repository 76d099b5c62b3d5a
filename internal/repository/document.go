package repository

import (
	"context"

	"vaultcore/internal/model"
)

// DocumentRepository defines data access for documents using SQL queries only.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by ID, scoped to the tenant.
	FindByID(ctx context.Context, tenantID, id string) (*model.Document, error)

	// List returns a paginated list of a tenant's documents, optionally
	// filtered to one folder (nil folderID means the root).
	List(ctx context.Context, tenantID string, folderID *string, pq PageQuery) (*PageResult[model.Document], error)

	// NamesInFolder returns the document names already present in a folder,
	// used for collision-free naming on admission.
	NamesInFolder(ctx context.Context, tenantID string, folderID *string) ([]string, error)

	// UpdateOCRStatus transitions the recognition status.
	UpdateOCRStatus(ctx context.Context, tenantID, id, status string) error

	// MoveToFolder reassigns a document to a folder (nil means the root).
	MoveToFolder(ctx context.Context, tenantID, id string, folderID *string) error

	// Delete removes a document row. It returns nil if the row did not exist.
	Delete(ctx context.Context, tenantID, id string) error
}

// FolderRepository defines data access for folders.
type FolderRepository interface {
	// Create inserts a new folder record.
	Create(ctx context.Context, f *model.Folder) (*model.Folder, error)

	// FindByID returns a folder by ID, scoped to the tenant.
	FindByID(ctx context.Context, tenantID, id string) (*model.Folder, error)

	// FindByName returns the folder with the given name under a parent,
	// or ErrNotFound. The pipeline uses it for find-or-create placement.
	FindByName(ctx context.Context, tenantID string, parentID *string, name string) (*model.Folder, error)

	// List returns a tenant's folders under a parent (nil means the root).
	List(ctx context.Context, tenantID string, parentID *string) ([]model.Folder, error)

	// Delete removes an empty folder. It returns nil if the row did not exist.
	Delete(ctx context.Context, tenantID, id string) error
}
