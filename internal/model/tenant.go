package model

import "time"

// Tenant is the quota and billing boundary: either an organization vault or
// a personal vault. Usage counters are mutated by uploads, deletes and
// classification runs; a tenant is never hard-deleted while documents exist.
type Tenant struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Plan               string    `json:"plan"`
	Personal           bool      `json:"personal"`
	SeatCount          int       `json:"seat_count"`
	StorageUsedBytes   int64     `json:"storage_used_bytes"`
	UnitsUsedThisMonth int64     `json:"units_used_this_month"`
	UnitsUsedToday     int64     `json:"units_used_today"`
	BonusUnits         int64     `json:"bonus_units"`
	CreatedAt          time.Time `json:"created_at"`
}

// Membership role values.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership binds a user to a tenant with a role.
type Membership struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
