package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository"
	"vaultcore/internal/storage"
)

// IssueShareRequest describes a new share link over a document batch.
type IssueShareRequest struct {
	TenantID     string
	UserID       string
	DocumentIDs  []string
	PIN          string
	ExpiresAt    *time.Time
	MaxDownloads *int
}

// SharedDocument is one downloadable entry in a redeemed batch.
type SharedDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Redemption is a successful share link redemption: one download counted,
// presigned URLs for the whole batch.
type Redemption struct {
	Documents     []SharedDocument `json:"documents"`
	DownloadsLeft *int             `json:"downloads_left,omitempty"`
}

// ShareService issues and redeems tokenized share links.
type ShareService interface {
	// Issue creates one share token covering the whole document batch.
	Issue(ctx context.Context, req IssueShareRequest) (*model.ShareLink, error)

	// Redeem exchanges a token (and PIN when set) for download URLs. Each
	// successful redemption counts as one download regardless of batch
	// size; expiry is evaluated at redemption time.
	Redeem(ctx context.Context, token, pin string) (*Redemption, error)

	// Revoke deletes a share link.
	Revoke(ctx context.Context, tenantID, userID, token string) error
}

type shareService struct {
	shares  repository.ShareRepository
	docs    repository.DocumentRepository
	tenants repository.TenantRepository
	store   storage.Storage
	now     func() time.Time
}

// NewShareService constructs a ShareService.
func NewShareService(shares repository.ShareRepository, docs repository.DocumentRepository, tenants repository.TenantRepository, store storage.Storage) ShareService {
	return &shareService{
		shares:  shares,
		docs:    docs,
		tenants: tenants,
		store:   store,
		now:     time.Now,
	}
}

func (s *shareService) Issue(ctx context.Context, req IssueShareRequest) (*model.ShareLink, error) {
	if err := s.authorize(ctx, req.TenantID, req.UserID); err != nil {
		return nil, err
	}
	if len(req.DocumentIDs) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "at least one document is required")
	}
	if req.MaxDownloads != nil && *req.MaxDownloads <= 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "max downloads must be positive")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "expiry must be in the future")
	}

	// Every document in the batch must exist, belong to the tenant and be
	// fully uploaded before a link can cover it.
	for _, id := range req.DocumentIDs {
		if err := validateUUID("document id", id); err != nil {
			return nil, err
		}
		doc, err := s.docs.FindByID(ctx, req.TenantID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Newf(apperr.CodeNotFound, "document %s not found", id)
			}
			return nil, apperr.Wrap(apperr.CodeRetryable, "load document", err)
		}
		if doc.UploadStatus != model.UploadConfirmed {
			return nil, apperr.Newf(apperr.CodeConflict, "document %s upload is not completed", id)
		}
	}

	tenant, err := s.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	limit := plan.Get(tenant.Plan).ActiveShareLinks
	active, err := s.shares.CountActiveByTenant(ctx, req.TenantID, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "count active links", err)
	}
	if active >= limit {
		return nil, apperr.New(apperr.CodeQuotaExceeded, "active share link limit reached").WithDetail(apperr.QuotaDetail{
			Resource:   "share_links",
			UsedUnits:  int64(active),
			LimitUnits: int64(limit),
			Action:     "revoke an existing link or upgrade plan",
		})
	}

	link := &model.ShareLink{
		Token:        newShareToken(),
		TenantID:     req.TenantID,
		DocumentIDs:  req.DocumentIDs,
		ExpiresAt:    req.ExpiresAt,
		MaxDownloads: req.MaxDownloads,
		CreatedAt:    s.now().UTC(),
	}
	if req.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeFatal, "hash pin", err)
		}
		h := string(hash)
		link.PINHash = &h
	}

	stored, err := s.shares.Create(ctx, link)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "create share link", err)
	}
	return stored, nil
}

func (s *shareService) Redeem(ctx context.Context, token, pin string) (*Redemption, error) {
	if token == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "token is required")
	}
	link, err := s.shares.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "share link not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load share link", err)
	}
	if link.Expired(s.now()) {
		return nil, apperr.New(apperr.CodeForbidden, "share link has expired")
	}
	if link.PINHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*link.PINHash), []byte(pin)); err != nil {
			return nil, apperr.New(apperr.CodeUnauthorized, "invalid pin")
		}
	}

	// The conditional increment is the gate: under concurrent redemptions
	// only as many succeed as the limit allows.
	ok, err := s.shares.IncrementDownload(ctx, token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "count download", err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeConflict, "download limit reached")
	}

	out := &Redemption{}
	for _, id := range link.DocumentIDs {
		doc, err := s.docs.FindByID(ctx, link.TenantID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // document deleted after issuance
			}
			return nil, apperr.Wrap(apperr.CodeRetryable, "load document", err)
		}
		url, err := s.store.PresignGet(ctx, doc.StorageKey, 15*time.Minute)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeRetryable, "presign download", err)
		}
		out.Documents = append(out.Documents, SharedDocument{ID: doc.ID, Name: doc.Name, URL: url})
	}
	if link.MaxDownloads != nil {
		left := *link.MaxDownloads - link.DownloadCount - 1
		if left < 0 {
			left = 0
		}
		out.DownloadsLeft = &left
	}
	return out, nil
}

func (s *shareService) Revoke(ctx context.Context, tenantID, userID, token string) error {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return err
	}
	if token == "" {
		return apperr.New(apperr.CodeInvalidArgument, "token is required")
	}
	return s.shares.Delete(ctx, tenantID, token)
}

func (s *shareService) authorize(ctx context.Context, tenantID, userID string) error {
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

// newShareToken returns a 32-byte URL-safe random token.
func newShareToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
