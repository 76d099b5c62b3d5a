package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// FolderPostgres is a PostgreSQL implementation of repository.FolderRepository.
type FolderPostgres struct {
	db *sql.DB
}

// NewFolderPostgres creates a new FolderPostgres repository.
func NewFolderPostgres(db *sql.DB) *FolderPostgres {
	return &FolderPostgres{db: db}
}

var _ repository.FolderRepository = (*FolderPostgres)(nil)

const folderColumns = `id, tenant_id, name, parent_id, created_at`

func scanFolder(s interface{ Scan(...any) error }) (*model.Folder, error) {
	var f model.Folder
	if err := s.Scan(&f.ID, &f.TenantID, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// Create inserts a new folder row and returns the stored record.
func (r *FolderPostgres) Create(ctx context.Context, f *model.Folder) (*model.Folder, error) {
	const q = `
		INSERT INTO folders (id, tenant_id, name, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + folderColumns
	row := r.db.QueryRowContext(ctx, q, f.ID, f.TenantID, f.Name, f.ParentID, f.CreatedAt)
	return scanFolder(row)
}

// FindByID fetches a single folder scoped to the tenant.
func (r *FolderPostgres) FindByID(ctx context.Context, tenantID, id string) (*model.Folder, error) {
	const q = `SELECT ` + folderColumns + ` FROM folders WHERE tenant_id = $1 AND id = $2`
	return scanFolder(r.db.QueryRowContext(ctx, q, tenantID, id))
}

// FindByName fetches the folder with a given name under a parent.
func (r *FolderPostgres) FindByName(ctx context.Context, tenantID string, parentID *string, name string) (*model.Folder, error) {
	const q = `
		SELECT ` + folderColumns + `
		FROM folders
		WHERE tenant_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND name = $3
	`
	return scanFolder(r.db.QueryRowContext(ctx, q, tenantID, parentID, name))
}

// List returns a tenant's folders under a parent, ordered by name.
func (r *FolderPostgres) List(ctx context.Context, tenantID string, parentID *string) ([]model.Folder, error) {
	const q = `
		SELECT ` + folderColumns + `
		FROM folders
		WHERE tenant_id = $1 AND parent_id IS NOT DISTINCT FROM $2
		ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, q, tenantID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *f)
	}
	return items, rows.Err()
}

// Delete removes a folder by ID. It does not return an error if the row does not exist.
func (r *FolderPostgres) Delete(ctx context.Context, tenantID, id string) error {
	const q = `DELETE FROM folders WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, id)
	return err
}
