package postgres

import (
	"context"
	"database/sql"
	"errors"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// PortalPostgres is a PostgreSQL implementation of repository.PortalRepository.
// The uploaded flag on items is derived with an EXISTS subquery, never stored.
type PortalPostgres struct {
	db *sql.DB
}

// NewPortalPostgres creates a new PortalPostgres repository.
func NewPortalPostgres(db *sql.DB) *PortalPostgres {
	return &PortalPostgres{db: db}
}

var _ repository.PortalRepository = (*PortalPostgres)(nil)

const portalColumns = `id, tenant_id, name, contact_name, contact_email, pin_hash, expires_at, status, created_by_id, created_at`

func scanPortal(s interface{ Scan(...any) error }) (*model.Portal, error) {
	var p model.Portal
	if err := s.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.ContactName,
		&p.ContactEmail,
		&p.PINHash,
		&p.ExpiresAt,
		&p.Status,
		&p.CreatedByID,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new portal row and returns the stored record.
func (r *PortalPostgres) Create(ctx context.Context, p *model.Portal) (*model.Portal, error) {
	const q = `
		INSERT INTO portals (id, tenant_id, name, contact_name, contact_email, pin_hash, expires_at, status, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + portalColumns
	row := r.db.QueryRowContext(ctx, q,
		p.ID,
		p.TenantID,
		p.Name,
		p.ContactName,
		p.ContactEmail,
		p.PINHash,
		p.ExpiresAt,
		p.Status,
		p.CreatedByID,
		p.CreatedAt,
	)
	return scanPortal(row)
}

// FindByID fetches a single portal.
func (r *PortalPostgres) FindByID(ctx context.Context, id string) (*model.Portal, error) {
	const q = `SELECT ` + portalColumns + ` FROM portals WHERE id = $1`
	return scanPortal(r.db.QueryRowContext(ctx, q, id))
}

// ListByTenant returns a tenant's portals using LIMIT/OFFSET pagination.
func (r *PortalPostgres) ListByTenant(ctx context.Context, tenantID string, pq repository.PageQuery) (*repository.PageResult[model.Portal], error) {
	const qCount = `SELECT COUNT(*) FROM portals WHERE tenant_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, tenantID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + portalColumns + `
		FROM portals
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, tenantID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Portal, 0)
	for rows.Next() {
		p, err := scanPortal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Portal]{Items: items, Total: total}, nil
}

// UpdateStatus transitions the portal lifecycle status.
func (r *PortalPostgres) UpdateStatus(ctx context.Context, id, status string) error {
	const q = `UPDATE portals SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status)
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

// CountOpenByTenant counts portals not yet closed.
func (r *PortalPostgres) CountOpenByTenant(ctx context.Context, tenantID string) (int, error) {
	const q = `SELECT COUNT(*) FROM portals WHERE tenant_id = $1 AND status <> $2`
	var n int
	err := r.db.QueryRowContext(ctx, q, tenantID, model.PortalClosed).Scan(&n)
	return n, err
}

// AddItem inserts a request item and returns the stored record.
func (r *PortalPostgres) AddItem(ctx context.Context, item *model.RequestItem) (*model.RequestItem, error) {
	const q = `
		INSERT INTO portal_request_items (id, portal_id, label, required, order_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, portal_id, label, required, order_key, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		item.ID,
		item.PortalID,
		item.Label,
		item.Required,
		item.OrderKey,
		item.CreatedAt,
	)
	var out model.RequestItem
	if err := row.Scan(&out.ID, &out.PortalID, &out.Label, &out.Required, &out.OrderKey, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindItem fetches a single request item.
func (r *PortalPostgres) FindItem(ctx context.Context, id string) (*model.RequestItem, error) {
	const q = `
		SELECT id, portal_id, label, required, order_key, created_at
		FROM portal_request_items
		WHERE id = $1
	`
	var item model.RequestItem
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&item.ID,
		&item.PortalID,
		&item.Label,
		&item.Required,
		&item.OrderKey,
		&item.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListItemViews returns a portal's items in order with the uploaded flag
// derived from the presence of submissions.
func (r *PortalPostgres) ListItemViews(ctx context.Context, portalID string) ([]model.RequestItemView, error) {
	const q = `
		SELECT i.id, i.portal_id, i.label, i.required, i.order_key, i.created_at,
		       EXISTS (SELECT 1 FROM portal_submissions s WHERE s.item_id = i.id) AS uploaded
		FROM portal_request_items i
		WHERE i.portal_id = $1
		ORDER BY i.order_key ASC, i.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, q, portalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.RequestItemView, 0)
	for rows.Next() {
		var v model.RequestItemView
		if err := rows.Scan(
			&v.ID,
			&v.PortalID,
			&v.Label,
			&v.Required,
			&v.OrderKey,
			&v.CreatedAt,
			&v.Uploaded,
		); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// MaxOrderKey returns the highest order key among a portal's items.
func (r *PortalPostgres) MaxOrderKey(ctx context.Context, portalID string) (int, error) {
	const q = `SELECT COALESCE(MAX(order_key), 0) FROM portal_request_items WHERE portal_id = $1`
	var n int
	err := r.db.QueryRowContext(ctx, q, portalID).Scan(&n)
	return n, err
}

// DeleteItem removes a request item and its submission rows.
func (r *PortalPostgres) DeleteItem(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portal_submissions WHERE item_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM portal_request_items WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const submissionColumns = `id, item_id, portal_id, document_id, document_key, file_name, size_bytes, ocr_status, created_at`

func scanSubmission(s interface{ Scan(...any) error }) (*model.Submission, error) {
	var sub model.Submission
	if err := s.Scan(
		&sub.ID,
		&sub.ItemID,
		&sub.PortalID,
		&sub.DocumentID,
		&sub.DocumentKey,
		&sub.FileName,
		&sub.SizeBytes,
		&sub.OCRStatus,
		&sub.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// AddSubmission inserts a submission row and returns the stored record.
func (r *PortalPostgres) AddSubmission(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	const q = `
		INSERT INTO portal_submissions (id, item_id, portal_id, document_id, document_key, file_name, size_bytes, ocr_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + submissionColumns
	row := r.db.QueryRowContext(ctx, q,
		sub.ID,
		sub.ItemID,
		sub.PortalID,
		sub.DocumentID,
		sub.DocumentKey,
		sub.FileName,
		sub.SizeBytes,
		sub.OCRStatus,
		sub.CreatedAt,
	)
	return scanSubmission(row)
}

// ListSubmissionsForItem returns an item's submissions, newest first.
func (r *PortalPostgres) ListSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error) {
	const q = `
		SELECT ` + submissionColumns + `
		FROM portal_submissions
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sub)
	}
	return items, rows.Err()
}

// DeleteSubmissionsForItem removes an item's submission rows and returns them.
func (r *PortalPostgres) DeleteSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error) {
	const q = `
		DELETE FROM portal_submissions
		WHERE item_id = $1
		RETURNING ` + submissionColumns
	rows, err := r.db.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sub)
	}
	return items, rows.Err()
}
