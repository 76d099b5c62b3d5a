package model

import "time"

// ShareLink is a tokenized access grant to a batch of documents. One token
// maps to the whole batch; DownloadCount increments only on successful full
// redemptions and never exceeds MaxDownloads when that is set.
type ShareLink struct {
	Token         string     `json:"token"`
	TenantID      string     `json:"tenant_id"`
	DocumentIDs   []string   `json:"document_ids"`
	PINHash       *string    `json:"-"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxDownloads  *int       `json:"max_downloads,omitempty"`
	DownloadCount int        `json:"download_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether the link's expiry has passed at the given time.
func (s *ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Exhausted reports whether the download limit has been reached.
func (s *ShareLink) Exhausted() bool {
	return s.MaxDownloads != nil && s.DownloadCount >= *s.MaxDownloads
}
