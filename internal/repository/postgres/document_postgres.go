package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, tenant_id, name, storage_key, size_bytes, content_type, folder_id, ocr_status, upload_status, uploaded_by_id, created_at`

func scanDocument(s interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	if err := s.Scan(
		&d.ID,
		&d.TenantID,
		&d.Name,
		&d.StorageKey,
		&d.SizeBytes,
		&d.ContentType,
		&d.FolderID,
		&d.OCRStatus,
		&d.UploadStatus,
		&d.UploadedByID,
		&d.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, tenant_id, name, storage_key, size_bytes, content_type, folder_id, ocr_status, upload_status, uploaded_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.TenantID,
		doc.Name,
		doc.StorageKey,
		doc.SizeBytes,
		doc.ContentType,
		doc.FolderID,
		doc.OCRStatus,
		doc.UploadStatus,
		doc.UploadedByID,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// FindByID fetches a single document scoped to the tenant.
func (r *DocumentPostgres) FindByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = $1 AND id = $2`
	return scanDocument(r.db.QueryRowContext(ctx, q, tenantID, id))
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, tenantID string, folderID *string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `
		SELECT COUNT(*) FROM documents
		WHERE tenant_id = $1 AND folder_id IS NOT DISTINCT FROM $2
	`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, tenantID, folderID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND folder_id IS NOT DISTINCT FROM $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, qList, tenantID, folderID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// NamesInFolder returns the document names present in a folder.
func (r *DocumentPostgres) NamesInFolder(ctx context.Context, tenantID string, folderID *string) ([]string, error) {
	const q = `
		SELECT name FROM documents
		WHERE tenant_id = $1 AND folder_id IS NOT DISTINCT FROM $2
	`
	rows, err := r.db.QueryContext(ctx, q, tenantID, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// UpdateOCRStatus transitions the recognition status of a document.
func (r *DocumentPostgres) UpdateOCRStatus(ctx context.Context, tenantID, id, status string) error {
	const q = `UPDATE documents SET ocr_status = $3 WHERE tenant_id = $1 AND id = $2`
	return r.execOne(ctx, q, tenantID, id, status)
}

// MoveToFolder reassigns a document to a folder.
func (r *DocumentPostgres) MoveToFolder(ctx context.Context, tenantID, id string, folderID *string) error {
	const q = `UPDATE documents SET folder_id = $3 WHERE tenant_id = $1 AND id = $2`
	return r.execOne(ctx, q, tenantID, id, folderID)
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, tenantID, id string) error {
	const q = `DELETE FROM documents WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, id)
	return err
}

func (r *DocumentPostgres) execOne(ctx context.Context, q string, args ...any) error {
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
