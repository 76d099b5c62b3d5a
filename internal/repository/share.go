package repository

import (
	"context"
	"time"

	"vaultcore/internal/model"
)

// ShareRepository defines data access for share links.
type ShareRepository interface {
	// Create inserts a share link with its document batch.
	Create(ctx context.Context, link *model.ShareLink) (*model.ShareLink, error)

	// FindByToken returns a share link with its document IDs.
	FindByToken(ctx context.Context, token string) (*model.ShareLink, error)

	// CountActiveByTenant counts links neither expired at now nor exhausted,
	// for the plan's active-link limit.
	CountActiveByTenant(ctx context.Context, tenantID string, now time.Time) (int, error)

	// IncrementDownload bumps the download counter if and only if the limit
	// has not been reached, atomically. It reports whether the increment
	// happened; false means the limit was already reached.
	IncrementDownload(ctx context.Context, token string) (bool, error)

	// Delete revokes a share link.
	Delete(ctx context.Context, tenantID, token string) error
}
