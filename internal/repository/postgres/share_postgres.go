package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

// SharePostgres is a PostgreSQL implementation of repository.ShareRepository.
// The download counter is incremented with a conditional UPDATE so the
// max-downloads ceiling holds under concurrent redemptions.
type SharePostgres struct {
	db *sql.DB
}

// NewSharePostgres creates a new SharePostgres repository.
func NewSharePostgres(db *sql.DB) *SharePostgres {
	return &SharePostgres{db: db}
}

var _ repository.ShareRepository = (*SharePostgres)(nil)

// Create inserts a share link and its document batch in one transaction.
func (r *SharePostgres) Create(ctx context.Context, link *model.ShareLink) (*model.ShareLink, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qLink = `
		INSERT INTO share_links (token, tenant_id, pin_hash, expires_at, max_downloads, download_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, qLink,
		link.Token,
		link.TenantID,
		link.PINHash,
		link.ExpiresAt,
		link.MaxDownloads,
		link.DownloadCount,
		link.CreatedAt,
	); err != nil {
		return nil, err
	}

	const qDoc = `INSERT INTO share_link_documents (token, document_id) VALUES ($1, $2)`
	for _, docID := range link.DocumentIDs {
		if _, err := tx.ExecContext(ctx, qDoc, link.Token, docID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return link, nil
}

// FindByToken fetches a share link with its document IDs.
func (r *SharePostgres) FindByToken(ctx context.Context, token string) (*model.ShareLink, error) {
	const q = `
		SELECT token, tenant_id, pin_hash, expires_at, max_downloads, download_count, created_at
		FROM share_links
		WHERE token = $1
	`
	var link model.ShareLink
	if err := r.db.QueryRowContext(ctx, q, token).Scan(
		&link.Token,
		&link.TenantID,
		&link.PINHash,
		&link.ExpiresAt,
		&link.MaxDownloads,
		&link.DownloadCount,
		&link.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	const qDocs = `SELECT document_id FROM share_link_documents WHERE token = $1 ORDER BY document_id`
	rows, err := r.db.QueryContext(ctx, qDocs, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		link.DocumentIDs = append(link.DocumentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &link, nil
}

// CountActiveByTenant counts links neither expired nor exhausted.
func (r *SharePostgres) CountActiveByTenant(ctx context.Context, tenantID string, now time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM share_links
		WHERE tenant_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (max_downloads IS NULL OR download_count < max_downloads)
	`
	var n int
	err := r.db.QueryRowContext(ctx, q, tenantID, now).Scan(&n)
	return n, err
}

// IncrementDownload bumps the counter only while under the limit. A zero
// rows-affected result means the ceiling was already reached.
func (r *SharePostgres) IncrementDownload(ctx context.Context, token string) (bool, error) {
	const q = `
		UPDATE share_links
		SET download_count = download_count + 1
		WHERE token = $1
		  AND (max_downloads IS NULL OR download_count < max_downloads)
	`
	res, err := r.db.ExecContext(ctx, q, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete revokes a share link and its batch rows.
func (r *SharePostgres) Delete(ctx context.Context, tenantID, token string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM share_link_documents WHERE token = $1`, token); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM share_links WHERE token = $1 AND tenant_id = $2`, token, tenantID); err != nil {
		return err
	}
	return tx.Commit()
}
