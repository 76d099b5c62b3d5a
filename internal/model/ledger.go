package model

import "time"

// Ledger entry kinds.
const (
	LedgerDebit = "debit"
	LedgerTopUp = "topup"
)

// LedgerEntry is one metered consumption or top-up event. Entries are
// append-only; the remaining balance is an aggregate over them.
type LedgerEntry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Kind      string    `json:"kind"`
	Units     int64     `json:"units"`
	Reason    string    `json:"reason"`
	CycleKey  string    `json:"cycle_key"`
	CreatedAt time.Time `json:"created_at"`
}

// AutoTopUpSettings is tenant-scoped auto top-up configuration.
type AutoTopUpSettings struct {
	TenantID         string `json:"tenant_id"`
	Enabled          bool   `json:"enabled"`
	PackID           string `json:"pack_id"`
	ThresholdPercent int    `json:"threshold_percent"`
	MaxPerMonth      int    `json:"max_per_month"`
	UsedThisMonth    int    `json:"used_this_month"`
}
