package quota

import (
	"math"
	"time"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/plan"
)

// Package quota evaluates plan ceilings for a tenant. Checks are pure:
// they read counters already loaded on the tenant and never touch storage,
// so callers decide the locking and reservation discipline around them.

// GB converts bytes to gigabytes rounded to two decimals, the precision
// surfaced to clients in quota errors.
func GB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1<<30)*100) / 100
}

// CycleKey returns the billing cycle key (YYYY-MM) for a point in time.
func CycleKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// CheckStorage verifies that adding addBytes keeps the tenant under its plan
// storage ceiling. On violation it returns a QuotaExceeded error whose detail
// carries current, limit and would-be usage in GB.
func CheckStorage(t *model.Tenant, addBytes int64) error {
	limit := plan.StorageLimitBytes(t.Plan)
	wouldBe := t.StorageUsedBytes + addBytes
	if wouldBe <= limit {
		return nil
	}
	return apperr.New(apperr.CodeQuotaExceeded, "storage quota exceeded").WithDetail(apperr.QuotaDetail{
		Resource:  "storage",
		CurrentGB: GB(t.StorageUsedBytes),
		LimitGB:   GB(limit),
		WouldBeGB: GB(wouldBe),
		Action:    "upgrade plan or delete documents",
	})
}

// MonthlyUnitsAvailable returns how many processing units the tenant can
// still spend this cycle, including purchased bonus units.
func MonthlyUnitsAvailable(t *model.Tenant) int64 {
	total := plan.UnitsPerMonth(t.Plan, t.SeatCount) + t.BonusUnits
	remaining := total - t.UnitsUsedThisMonth
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckProcessing verifies that spending units stays under both the monthly
// allotment (plus bonus units) and the daily throttle. The monthly check
// runs first: a monthly violation also implies the more actionable error.
func CheckProcessing(t *model.Tenant, units int64) error {
	monthly := plan.UnitsPerMonth(t.Plan, t.SeatCount) + t.BonusUnits
	if t.UnitsUsedThisMonth+units > monthly {
		return apperr.New(apperr.CodeQuotaExceeded, "monthly processing quota exceeded").WithDetail(apperr.QuotaDetail{
			Resource:   "processing_units",
			UsedUnits:  t.UnitsUsedThisMonth,
			LimitUnits: monthly,
			Action:     "purchase a top-up pack or wait for the next cycle",
		})
	}
	daily := plan.DailyUnitLimit(t.Plan, t.SeatCount)
	if t.UnitsUsedToday+units > daily {
		return apperr.New(apperr.CodeQuotaExceeded, "daily processing limit reached").WithDetail(apperr.QuotaDetail{
			Resource:   "processing_units_daily",
			UsedUnits:  t.UnitsUsedToday,
			LimitUnits: daily,
			Action:     "retry after the daily window resets",
		})
	}
	return nil
}
