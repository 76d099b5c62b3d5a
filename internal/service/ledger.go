package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"vaultcore/internal/apperr"
	"vaultcore/internal/lock"
	"vaultcore/internal/model"
	"vaultcore/internal/payment"
	"vaultcore/internal/plan"
	"vaultcore/internal/quota"
	"vaultcore/internal/repository"
)

// UsageSummary is a tenant's current consumption against its plan.
type UsageSummary struct {
	Plan             string  `json:"plan"`
	StorageUsedGB    float64 `json:"storage_used_gb"`
	StorageLimitGB   float64 `json:"storage_limit_gb"`
	UnitsUsed        int64   `json:"units_used"`
	UnitsLimit       int64   `json:"units_limit"`
	BonusUnits       int64   `json:"bonus_units"`
	UnitsRemaining   int64   `json:"units_remaining"`
	OpenPortals      int     `json:"open_portals"`
	ActiveShareLinks int     `json:"active_share_links"`
}

// TopUpResult is the outcome of a top-up purchase. Exactly one of Credited
// or Checkout is set: either the direct charge went through and units are
// credited, or the caller must complete the checkout session first.
type TopUpResult struct {
	Credited *model.LedgerEntry       `json:"credited,omitempty"`
	Checkout *payment.CheckoutSession `json:"checkout,omitempty"`
}

// LedgerListResult is the service-level DTO for paginated ledger entries.
type LedgerListResult struct {
	Items []model.LedgerEntry `json:"data"`
	Total int                 `json:"total"`
}

// LedgerService owns the usage ledger and top-up purchases.
type LedgerService interface {
	// Usage returns the tenant's consumption against its plan limits.
	Usage(ctx context.Context, tenantID, userID string) (*UsageSummary, error)

	// History returns the tenant's ledger entries for a cycle.
	History(ctx context.Context, tenantID, userID, cycleKey string, limit, offset int) (*LedgerListResult, error)

	// PurchaseTopUp charges the stored payment method for a pack. When the
	// direct charge fails for a reason a checkout session can recover
	// (missing customer or payment method), it falls back to checkout
	// instead of failing; hard declines surface as errors.
	PurchaseTopUp(ctx context.Context, tenantID, userID, packID string) (*TopUpResult, error)

	// CompleteCheckout credits a pack after a checkout session finishes.
	// Idempotent per session: replayed completions credit once.
	CompleteCheckout(ctx context.Context, tenantID, packID, sessionID string) (*model.LedgerEntry, error)

	// AutoTopUp runs the automatic top-up rule for a tenant: when enabled
	// and remaining units fall under the threshold, purchase the
	// configured pack, at most once per cycle and under the monthly cap.
	AutoTopUp(ctx context.Context, tenantID string) (*model.LedgerEntry, error)

	// AutoTopUpSettings returns the tenant's auto top-up configuration,
	// disabled defaults when nothing was saved yet.
	AutoTopUpSettings(ctx context.Context, tenantID, userID string) (*model.AutoTopUpSettings, error)

	// SaveAutoTopUpSettings upserts the tenant's auto top-up configuration.
	SaveAutoTopUpSettings(ctx context.Context, tenantID, userID string, s *model.AutoTopUpSettings) error
}

type ledgerService struct {
	ledger    repository.LedgerRepository
	tenants   repository.TenantRepository
	portals   repository.PortalRepository
	shares    repository.ShareRepository
	processor payment.Processor
	locks     *lock.Keyed
	now       func() time.Time
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(
	ledger repository.LedgerRepository,
	tenants repository.TenantRepository,
	portals repository.PortalRepository,
	shares repository.ShareRepository,
	processor payment.Processor,
) LedgerService {
	return &ledgerService{
		ledger:    ledger,
		tenants:   tenants,
		portals:   portals,
		shares:    shares,
		processor: processor,
		locks:     lock.NewKeyed(),
		now:       time.Now,
	}
}

func (s *ledgerService) Usage(ctx context.Context, tenantID, userID string) (*UsageSummary, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "tenant not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}

	openPortals, err := s.portals.CountOpenByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "count portals", err)
	}
	activeLinks, err := s.shares.CountActiveByTenant(ctx, tenantID, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "count share links", err)
	}

	return &UsageSummary{
		Plan:             plan.Normalize(tenant.Plan),
		StorageUsedGB:    quota.GB(tenant.StorageUsedBytes),
		StorageLimitGB:   quota.GB(plan.StorageLimitBytes(tenant.Plan)),
		UnitsUsed:        tenant.UnitsUsedThisMonth,
		UnitsLimit:       plan.UnitsPerMonth(tenant.Plan, tenant.SeatCount),
		BonusUnits:       tenant.BonusUnits,
		UnitsRemaining:   quota.MonthlyUnitsAvailable(tenant),
		OpenPortals:      openPortals,
		ActiveShareLinks: activeLinks,
	}, nil
}

func (s *ledgerService) History(ctx context.Context, tenantID, userID, cycleKey string, limit, offset int) (*LedgerListResult, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if cycleKey == "" {
		cycleKey = quota.CycleKey(s.now())
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.ledger.List(ctx, tenantID, cycleKey, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &LedgerListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *ledgerService) PurchaseTopUp(ctx context.Context, tenantID, userID, packID string) (*TopUpResult, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	pack, ok := payment.PackByID(packID)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown pack %q", packID)
	}

	charge, err := s.processor.ChargeDirect(ctx, tenantID, pack)
	if err != nil {
		// Branch on the structured code, never on message text.
		if payment.CheckoutRecoverable(err) {
			session, cerr := s.processor.CreateCheckout(ctx, tenantID, pack)
			if cerr != nil {
				return nil, apperr.Wrap(apperr.CodeRetryable, "create checkout", cerr)
			}
			return &TopUpResult{Checkout: session}, nil
		}
		return nil, apperr.Wrap(apperr.CodeConflict, "payment declined", err)
	}

	entry, err := s.credit(ctx, tenantID, pack, "purchase:"+charge.ID)
	if err != nil {
		return nil, err
	}
	return &TopUpResult{Credited: entry}, nil
}

func (s *ledgerService) CompleteCheckout(ctx context.Context, tenantID, packID, sessionID string) (*model.LedgerEntry, error) {
	if err := validateUUID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "session id is required")
	}
	pack, ok := payment.PackByID(packID)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown pack %q", packID)
	}

	// The replay check and the credit must not interleave.
	release := s.locks.Acquire(tenantID)
	defer release()

	reason := "checkout:" + sessionID
	cycle := quota.CycleKey(s.now())
	exists, err := s.ledger.HasTopUp(ctx, tenantID, cycle, reason)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "check ledger", err)
	}
	if exists {
		return nil, nil // already credited, replay is a no-op
	}
	return s.credit(ctx, tenantID, pack, reason)
}

func (s *ledgerService) AutoTopUp(ctx context.Context, tenantID string) (*model.LedgerEntry, error) {
	if err := validateUUID("tenant id", tenantID); err != nil {
		return nil, err
	}
	settings, err := s.ledger.GetAutoTopUp(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load settings", err)
	}
	if !settings.Enabled {
		return nil, nil
	}
	pack, ok := payment.PackByID(settings.PackID)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown pack %q", settings.PackID)
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	total := plan.UnitsPerMonth(tenant.Plan, tenant.SeatCount) + tenant.BonusUnits
	if total <= 0 {
		return nil, nil
	}
	remainingPct := quota.MonthlyUnitsAvailable(tenant) * 100 / total
	if remainingPct > int64(settings.ThresholdPercent) {
		return nil, nil
	}

	// One auto top-up decision at a time per tenant: without the lock,
	// concurrent debits would both pass the once-per-cycle check and
	// charge twice.
	release := s.locks.Acquire(tenantID)
	defer release()

	cycle := quota.CycleKey(s.now())

	// Once per cycle, and never past the monthly cap.
	reason := "auto:" + cycle
	exists, err := s.ledger.HasTopUp(ctx, tenantID, cycle, reason)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "check ledger", err)
	}
	if exists {
		return nil, nil
	}
	count, err := s.ledger.CountTopUps(ctx, tenantID, cycle)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "count top-ups", err)
	}
	if settings.MaxPerMonth > 0 && count >= settings.MaxPerMonth {
		return nil, nil
	}

	if _, err := s.processor.ChargeDirect(ctx, tenantID, pack); err != nil {
		// Auto top-up never falls back to checkout: there is no user
		// present to complete the session.
		return nil, apperr.Wrap(apperr.CodeConflict, "auto top-up charge failed", err)
	}
	return s.credit(ctx, tenantID, pack, reason)
}

func (s *ledgerService) AutoTopUpSettings(ctx context.Context, tenantID, userID string) (*model.AutoTopUpSettings, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	settings, err := s.ledger.GetAutoTopUp(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.AutoTopUpSettings{TenantID: tenantID}, nil
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load settings", err)
	}
	return settings, nil
}

func (s *ledgerService) SaveAutoTopUpSettings(ctx context.Context, tenantID, userID string, in *model.AutoTopUpSettings) error {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return err
	}
	if in.Enabled {
		if _, ok := payment.PackByID(in.PackID); !ok {
			return apperr.Newf(apperr.CodeInvalidArgument, "unknown pack %q", in.PackID)
		}
		if in.ThresholdPercent < 1 || in.ThresholdPercent > 100 {
			return apperr.New(apperr.CodeInvalidArgument, "threshold must be between 1 and 100")
		}
	}
	in.TenantID = tenantID
	return s.ledger.SaveAutoTopUp(ctx, in)
}

func (s *ledgerService) credit(ctx context.Context, tenantID string, pack payment.Pack, reason string) (*model.LedgerEntry, error) {
	if err := s.tenants.AddBonusUnits(ctx, tenantID, pack.Units); err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "credit units", err)
	}
	now := s.now().UTC()
	entry, err := s.ledger.Append(ctx, &model.LedgerEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      model.LedgerTopUp,
		Units:     pack.Units,
		Reason:    reason,
		CycleKey:  quota.CycleKey(now),
		CreatedAt: now,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "record top-up", err)
	}
	return entry, nil
}

func (s *ledgerService) authorize(ctx context.Context, tenantID, userID string) error {
	if err := validateUUID("tenant id", tenantID); err != nil {
		return err
	}
	if err := validateUUID("user id", userID); err != nil {
		return err
	}
	_, err := s.tenants.FindMembership(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeForbidden, "not a member of this tenant")
		}
		return apperr.Wrap(apperr.CodeRetryable, "load membership", err)
	}
	return nil
}
