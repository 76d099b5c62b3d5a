package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/notify"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository"
)

// CreatePortalRequest describes a new portal.
type CreatePortalRequest struct {
	TenantID     string
	UserID       string
	Name         string
	ContactName  string
	ContactEmail string
	PIN          string
	ExpiresAt    *time.Time
}

// PortalView is a portal with its request checklist, the uploaded flags
// derived at read time.
type PortalView struct {
	Portal *model.Portal           `json:"portal"`
	Items  []model.RequestItemView `json:"items"`
}

// PortalListResult is the service-level DTO for paginated portals.
type PortalListResult struct {
	Items []model.Portal `json:"data"`
	Total int            `json:"total"`
}

// PortalService owns the portal lifecycle and the external submission flow.
type PortalService interface {
	// CreatePortal creates a portal and notifies the contact. Requires a
	// plan with the client portals feature.
	CreatePortal(ctx context.Context, req CreatePortalRequest) (*model.Portal, error)

	// GetPortal returns a portal with its checklist for the owning tenant.
	GetPortal(ctx context.Context, tenantID, userID, portalID string) (*PortalView, error)

	// ListPortals returns a tenant's portals with pagination.
	ListPortals(ctx context.Context, tenantID, userID string, limit, offset int) (*PortalListResult, error)

	// OpenExternal is the account-less entry point: it gates on status,
	// expiry (evaluated now, never from a stored flag) and PIN, then
	// returns the checklist.
	OpenExternal(ctx context.Context, portalID, pin string) (*PortalView, error)

	// AddRequestItem appends a checklist line, ordered after existing ones.
	AddRequestItem(ctx context.Context, tenantID, userID, portalID, label string, required bool) (*model.RequestItem, error)

	// SubmitForItem accepts an external upload against a checklist item.
	SubmitForItem(ctx context.Context, portalID, itemID, pin, fileName, contentType string, size int64, r io.Reader) (*model.Submission, error)

	// DeleteItem removes a checklist item, its submissions and their
	// stored objects.
	DeleteItem(ctx context.Context, tenantID, userID, itemID string) error

	// ReRequestItem clears an item's submissions so the contact can upload
	// again, and re-notifies them. Calling it on an empty item only
	// re-sends the notification.
	ReRequestItem(ctx context.Context, tenantID, userID, itemID string) error

	// Pause suspends external access without losing state.
	Pause(ctx context.Context, tenantID, userID, portalID string) error

	// Resume reactivates a paused portal.
	Resume(ctx context.Context, tenantID, userID, portalID string) error

	// Close ends the portal permanently.
	Close(ctx context.Context, tenantID, userID, portalID string) error
}

type portalService struct {
	portals   repository.PortalRepository
	tenants   repository.TenantRepository
	docs      repository.DocumentRepository
	admission AdmissionService
	sender    notify.Sender
	now       func() time.Time
}

// NewPortalService constructs a PortalService. Submissions flow through the
// admission service so portal uploads respect the same quota discipline as
// member uploads.
func NewPortalService(
	portals repository.PortalRepository,
	tenants repository.TenantRepository,
	docs repository.DocumentRepository,
	admission AdmissionService,
	sender notify.Sender,
) PortalService {
	return &portalService{
		portals:   portals,
		tenants:   tenants,
		docs:      docs,
		admission: admission,
		sender:    sender,
		now:       time.Now,
	}
}

func (s *portalService) CreatePortal(ctx context.Context, req CreatePortalRequest) (*model.Portal, error) {
	if err := s.authorize(ctx, req.TenantID, req.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "portal name is required")
	}
	if req.ContactEmail == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "contact email is required")
	}

	tenant, err := s.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	if !plan.Get(tenant.Plan).ClientPortals {
		return nil, apperr.New(apperr.CodePlanRestricted, "client portals require a business plan")
	}

	p := &model.Portal{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		Name:         req.Name,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ExpiresAt:    req.ExpiresAt,
		Status:       model.PortalActive,
		CreatedByID:  req.UserID,
		CreatedAt:    s.now().UTC(),
	}
	if req.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeFatal, "hash pin", err)
		}
		h := string(hash)
		p.PINHash = &h
	}

	stored, err := s.portals.Create(ctx, p)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "create portal", err)
	}

	// Best effort: a bounced invite never fails portal creation.
	_ = s.sender.Send(ctx, notify.Notification{
		To:       stored.ContactEmail,
		Kind:     "portal_invite",
		Subject:  "Documents requested: " + stored.Name,
		PortalID: stored.ID,
	})
	return stored, nil
}

func (s *portalService) GetPortal(ctx context.Context, tenantID, userID, portalID string) (*PortalView, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	p, err := s.findPortal(ctx, portalID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, apperr.New(apperr.CodeNotFound, "portal not found")
	}
	items, err := s.portals.ListItemViews(ctx, portalID)
	if err != nil {
		return nil, err
	}
	return &PortalView{Portal: p, Items: items}, nil
}

func (s *portalService) ListPortals(ctx context.Context, tenantID, userID string, limit, offset int) (*PortalListResult, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.portals.ListByTenant(ctx, tenantID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &PortalListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *portalService) OpenExternal(ctx context.Context, portalID, pin string) (*PortalView, error) {
	p, err := s.gateExternal(ctx, portalID, pin)
	if err != nil {
		return nil, err
	}
	items, err := s.portals.ListItemViews(ctx, portalID)
	if err != nil {
		return nil, err
	}
	return &PortalView{Portal: p, Items: items}, nil
}

func (s *portalService) AddRequestItem(ctx context.Context, tenantID, userID, portalID, label string, required bool) (*model.RequestItem, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(label) == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "label is required")
	}
	p, err := s.findPortal(ctx, portalID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, apperr.New(apperr.CodeNotFound, "portal not found")
	}
	if p.Status == model.PortalClosed {
		return nil, apperr.New(apperr.CodeConflict, "portal is closed")
	}

	max, err := s.portals.MaxOrderKey(ctx, portalID)
	if err != nil {
		return nil, err
	}
	return s.portals.AddItem(ctx, &model.RequestItem{
		ID:        uuid.NewString(),
		PortalID:  portalID,
		Label:     label,
		Required:  required,
		OrderKey:  max + 1,
		CreatedAt: s.now().UTC(),
	})
}

func (s *portalService) SubmitForItem(ctx context.Context, portalID, itemID, pin, fileName, contentType string, size int64, r io.Reader) (*model.Submission, error) {
	p, err := s.gateExternal(ctx, portalID, pin)
	if err != nil {
		return nil, err
	}
	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.PortalID != portalID {
		return nil, apperr.New(apperr.CodeNotFound, "request item not found")
	}

	// The external gate replaces the membership check; quota and naming
	// discipline still apply. The document is attributed to the portal
	// creator.
	doc, err := s.admission.Upload(ctx, UploadRequest{
		TenantID:    p.TenantID,
		UserID:      p.CreatedByID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		External:    true,
	}, r)
	if err != nil {
		return nil, err
	}

	return s.portals.AddSubmission(ctx, &model.Submission{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		PortalID:    portalID,
		DocumentID:  doc.ID,
		DocumentKey: doc.StorageKey,
		FileName:    doc.Name,
		SizeBytes:   doc.SizeBytes,
		OCRStatus:   doc.OCRStatus,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *portalService) DeleteItem(ctx context.Context, tenantID, userID, itemID string) error {
	p, item, err := s.ownItem(ctx, tenantID, userID, itemID)
	if err != nil {
		return err
	}

	subs, err := s.portals.DeleteSubmissionsForItem(ctx, item.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.admission.Delete(ctx, p.TenantID, p.CreatedByID, sub.DocumentID); err != nil && !apperr.Is(err, apperr.CodeNotFound) {
			return err
		}
	}
	return s.portals.DeleteItem(ctx, item.ID)
}

func (s *portalService) ReRequestItem(ctx context.Context, tenantID, userID, itemID string) error {
	p, item, err := s.ownItem(ctx, tenantID, userID, itemID)
	if err != nil {
		return err
	}

	subs, err := s.portals.DeleteSubmissionsForItem(ctx, item.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.admission.Delete(ctx, p.TenantID, p.CreatedByID, sub.DocumentID); err != nil && !apperr.Is(err, apperr.CodeNotFound) {
			return err
		}
	}

	_ = s.sender.Send(ctx, notify.Notification{
		To:       p.ContactEmail,
		Kind:     "re_request",
		Subject:  "Please upload again: " + item.Label,
		PortalID: p.ID,
	})
	return nil
}

func (s *portalService) Pause(ctx context.Context, tenantID, userID, portalID string) error {
	return s.transition(ctx, tenantID, userID, portalID, model.PortalActive, model.PortalPaused)
}

func (s *portalService) Resume(ctx context.Context, tenantID, userID, portalID string) error {
	return s.transition(ctx, tenantID, userID, portalID, model.PortalPaused, model.PortalActive)
}

func (s *portalService) Close(ctx context.Context, tenantID, userID, portalID string) error {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return err
	}
	p, err := s.findPortal(ctx, portalID)
	if err != nil {
		return err
	}
	if p.TenantID != tenantID {
		return apperr.New(apperr.CodeNotFound, "portal not found")
	}
	if p.Status == model.PortalClosed {
		return nil
	}
	return s.portals.UpdateStatus(ctx, portalID, model.PortalClosed)
}

// transition moves a portal from one status to another. Closed is terminal.
func (s *portalService) transition(ctx context.Context, tenantID, userID, portalID, from, to string) error {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return err
	}
	p, err := s.findPortal(ctx, portalID)
	if err != nil {
		return err
	}
	if p.TenantID != tenantID {
		return apperr.New(apperr.CodeNotFound, "portal not found")
	}
	if p.Status == to {
		return nil
	}
	if p.Status != from {
		return apperr.Newf(apperr.CodeConflict, "portal is %s", p.Status)
	}
	return s.portals.UpdateStatus(ctx, portalID, to)
}

// gateExternal enforces the account-less access rules: active status, expiry
// at the current time, and the PIN when one is set.
func (s *portalService) gateExternal(ctx context.Context, portalID, pin string) (*model.Portal, error) {
	p, err := s.findPortal(ctx, portalID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PortalActive {
		return nil, apperr.New(apperr.CodeForbidden, "portal is not accepting submissions")
	}
	if p.Expired(s.now()) {
		return nil, apperr.New(apperr.CodeForbidden, "portal has expired")
	}
	if p.PINHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*p.PINHash), []byte(pin)); err != nil {
			return nil, apperr.New(apperr.CodeUnauthorized, "invalid pin")
		}
	}
	return p, nil
}

func (s *portalService) ownItem(ctx context.Context, tenantID, userID, itemID string) (*model.Portal, *model.RequestItem, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, nil, err
	}
	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.findPortal(ctx, item.PortalID)
	if err != nil {
		return nil, nil, err
	}
	if p.TenantID != tenantID {
		return nil, nil, apperr.New(apperr.CodeNotFound, "request item not found")
	}
	return p, item, nil
}

func (s *portalService) authorize(ctx context.Context, tenantID, userID string) error {
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

func (s *portalService) findPortal(ctx context.Context, portalID string) (*model.Portal, error) {
	if err := validateUUID("portal id", portalID); err != nil {
		return nil, err
	}
	p, err := s.portals.FindByID(ctx, portalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "portal not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load portal", err)
	}
	return p, nil
}

func (s *portalService) findItem(ctx context.Context, itemID string) (*model.RequestItem, error) {
	if err := validateUUID("item id", itemID); err != nil {
		return nil, err
	}
	item, err := s.portals.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "request item not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load request item", err)
	}
	return item, nil
}
