package repository

import (
	"context"

	"vaultcore/internal/model"
)

// PortalRepository defines data access for portals, their request items and
// submissions. The "uploaded" state of an item is never stored: list queries
// derive it from the presence of submissions at read time.
type PortalRepository interface {
	// Create inserts a new portal record.
	Create(ctx context.Context, p *model.Portal) (*model.Portal, error)

	// FindByID returns a portal by ID.
	FindByID(ctx context.Context, id string) (*model.Portal, error)

	// ListByTenant returns a tenant's portals, newest first.
	ListByTenant(ctx context.Context, tenantID string, pq PageQuery) (*PageResult[model.Portal], error)

	// UpdateStatus transitions the portal lifecycle status.
	UpdateStatus(ctx context.Context, id, status string) error

	// CountOpenByTenant counts portals not yet closed, for plan limits.
	CountOpenByTenant(ctx context.Context, tenantID string) (int, error)

	// AddItem inserts a request item.
	AddItem(ctx context.Context, item *model.RequestItem) (*model.RequestItem, error)

	// FindItem returns a request item by ID.
	FindItem(ctx context.Context, id string) (*model.RequestItem, error)

	// ListItemViews returns a portal's items in order with the derived
	// uploaded flag (true when at least one submission exists).
	ListItemViews(ctx context.Context, portalID string) ([]model.RequestItemView, error)

	// MaxOrderKey returns the highest order key among a portal's items,
	// zero when the portal has none.
	MaxOrderKey(ctx context.Context, portalID string) (int, error)

	// DeleteItem removes a request item and its submission rows.
	DeleteItem(ctx context.Context, id string) error

	// AddSubmission inserts a submission against a request item.
	AddSubmission(ctx context.Context, s *model.Submission) (*model.Submission, error)

	// ListSubmissionsForItem returns an item's submissions, newest first.
	ListSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error)

	// DeleteSubmissionsForItem removes an item's submission rows and
	// returns the removed records so callers can clean up stored objects.
	DeleteSubmissionsForItem(ctx context.Context, itemID string) ([]model.Submission, error)
}
