package plan

// Package plan holds the static plan limit table. Pure domain data: no
// persistence, no external dependencies.

// Limits describes what a plan allows per billing month.
type Limits struct {
	Business         bool
	PerSeat          bool
	StorageGB        int64
	UnitsPerMonth    int64
	DailyUnitLimit   int64
	ActiveShareLinks int
	ClientPortals    bool
	RequestFileLinks bool
	PDFPageLimit     int
	EgressGBPerMonth int64
}

// Personal plans.
const (
	Trial   = "trial"
	Starter = "starter"
	Growth  = "growth"
	Pro     = "pro"
)

// Business plans.
const (
	BusinessStarter = "business_starter"
	BusinessGrowth  = "business_growth"
	BusinessPro     = "business_pro"
	Enterprise      = "enterprise"
)

// Daily unit limits are 40% of the monthly allotment.
var table = map[string]Limits{
	Trial: {
		StorageGB: 4, UnitsPerMonth: 15, DailyUnitLimit: 6,
		ActiveShareLinks: 2, PDFPageLimit: 10, EgressGBPerMonth: 1,
	},
	Starter: {
		StorageGB: 40, UnitsPerMonth: 150, DailyUnitLimit: 60,
		ActiveShareLinks: 5, PDFPageLimit: 25, EgressGBPerMonth: 8,
	},
	Growth: {
		StorageGB: 90, UnitsPerMonth: 450, DailyUnitLimit: 180,
		ActiveShareLinks: 25, RequestFileLinks: true, PDFPageLimit: 50, EgressGBPerMonth: 15,
	},
	Pro: {
		StorageGB: 180, UnitsPerMonth: 1350, DailyUnitLimit: 540,
		ActiveShareLinks: 75, RequestFileLinks: true, PDFPageLimit: 100, EgressGBPerMonth: 30,
	},
	BusinessStarter: {
		Business: true, PerSeat: true,
		StorageGB: 300, UnitsPerMonth: 6750, DailyUnitLimit: 2700,
		ActiveShareLinks: 25, ClientPortals: true, RequestFileLinks: true,
		PDFPageLimit: 25, EgressGBPerMonth: 50,
	},
	BusinessGrowth: {
		Business: true, PerSeat: true,
		StorageGB: 500, UnitsPerMonth: 19500, DailyUnitLimit: 7800,
		ActiveShareLinks: 100, ClientPortals: true, RequestFileLinks: true,
		PDFPageLimit: 50, EgressGBPerMonth: 90,
	},
	BusinessPro: {
		Business: true, PerSeat: true,
		StorageGB: 1000, UnitsPerMonth: 36000, DailyUnitLimit: 14400,
		ActiveShareLinks: 250, ClientPortals: true, RequestFileLinks: true,
		PDFPageLimit: 100, EgressGBPerMonth: 110,
	},
	Enterprise: {
		Business: true, PerSeat: true,
		StorageGB: 10000, UnitsPerMonth: 100000, DailyUnitLimit: 40000,
		ActiveShareLinks: 1000, ClientPortals: true, RequestFileLinks: true,
		PDFPageLimit: 500, EgressGBPerMonth: 500,
	},
}

// legacy plan names still present in old tenant rows
var legacy = map[string]string{
	"free": Trial,
}

// Normalize maps unknown or legacy plan names to a valid plan.
func Normalize(p string) string {
	if _, ok := table[p]; ok {
		return p
	}
	if mapped, ok := legacy[p]; ok {
		return mapped
	}
	return Trial
}

// Get returns the limits for a plan, defaulting unknown plans to trial.
func Get(p string) Limits {
	return table[Normalize(p)]
}

// IsBusiness reports whether a plan is a business tier.
func IsBusiness(p string) bool {
	return Get(p).Business
}

// UnitsPerMonth returns the monthly processing unit allotment for a tenant,
// multiplying per-seat business allotments by the seat count.
func UnitsPerMonth(p string, seats int) int64 {
	l := Get(p)
	if l.Business && l.PerSeat && seats > 1 {
		return l.UnitsPerMonth * int64(seats)
	}
	return l.UnitsPerMonth
}

// DailyUnitLimit returns the daily processing cap for a tenant.
func DailyUnitLimit(p string, seats int) int64 {
	l := Get(p)
	if l.Business && l.PerSeat && seats > 1 {
		return l.DailyUnitLimit * int64(seats)
	}
	return l.DailyUnitLimit
}

// StorageLimitBytes returns the plan's storage ceiling in bytes.
func StorageLimitBytes(p string) int64 {
	return Get(p).StorageGB * 1024 * 1024 * 1024
}
