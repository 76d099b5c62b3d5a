package model

import "time"

// Portal status values.
const (
	PortalActive = "active"
	PortalPaused = "paused"
	PortalClosed = "closed"
)

// Portal is an externally-facing document request workspace. External
// parties fulfil request items without accounts; access is gated by the
// portal ID plus an optional PIN and expiry.
type Portal struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Name         string     `json:"name"`
	ContactName  string     `json:"contact_name"`
	ContactEmail string     `json:"contact_email"`
	PINHash      *string    `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Status       string     `json:"status"`
	CreatedByID  string     `json:"created_by_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the portal's expiry has passed at the given time.
// Expiry is evaluated on every read; a stale Status never grants access.
func (p *Portal) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// RequestItem is one checklist line in a portal. The "uploaded" state is
// derived from submissions at read time and is never stored.
type RequestItem struct {
	ID        string    `json:"id"`
	PortalID  string    `json:"portal_id"`
	Label     string    `json:"label"`
	Required  bool      `json:"required"`
	OrderKey  int       `json:"order_key"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestItemView is a RequestItem with its derived uploaded flag.
type RequestItemView struct {
	RequestItem
	Uploaded bool `json:"uploaded"`
}

// Submission is a file uploaded by an external party against a request item.
type Submission struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"item_id"`
	PortalID    string    `json:"portal_id"`
	DocumentID  string    `json:"document_id"`
	DocumentKey string    `json:"document_key"`
	FileName    string    `json:"file_name"`
	SizeBytes   int64     `json:"size_bytes"`
	OCRStatus   string    `json:"ocr_status"`
	CreatedAt   time.Time `json:"created_at"`
}
