package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaultcore/internal/apperr"
	"vaultcore/internal/lock"
	"vaultcore/internal/model"
	"vaultcore/internal/quota"
	"vaultcore/internal/repository"
	"vaultcore/internal/storage"
)

// UploadRequest describes one upload attempt.
type UploadRequest struct {
	TenantID    string
	UserID      string
	FileName    string
	ContentType string
	SizeBytes   int64
	FolderID    *string
	// External marks portal submissions: the caller has already passed the
	// portal's own access gate, so no membership check runs.
	External bool
}

// PendingUpload is an admitted direct upload. The client PUTs the bytes to
// the presigned URL and then confirms; no document row exists and no quota
// is reserved until the confirm verifies the bytes actually arrived, so an
// aborted transfer leaves nothing behind.
type PendingUpload struct {
	UploadID   string               `json:"upload_id"`
	StorageKey string               `json:"storage_key"`
	Upload     storage.PresignedPut `json:"upload"`
}

// ConfirmUploadRequest finalizes a direct upload. The metadata echoes the
// begin call; the authoritative size comes from the stored object, not from
// the client.
type ConfirmUploadRequest struct {
	TenantID    string
	UserID      string
	UploadID    string
	FileName    string
	ContentType string
	SizeBytes   int64
	FolderID    *string
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// AdmissionService owns upload admission: membership, per-tenant
// serialization, quota reservation, collision-free naming, and the
// pending/confirmed upload lifecycle.
type AdmissionService interface {
	// Upload admits and stores a document in one call (proxied mode).
	Upload(ctx context.Context, req UploadRequest, r io.Reader) (*model.Document, error)

	// BeginUpload admits a direct upload and returns a presigned PUT URL.
	// Nothing is persisted yet: the document row and the quota reservation
	// are created by ConfirmUpload once the bytes are in storage.
	BeginUpload(ctx context.Context, req UploadRequest) (*PendingUpload, error)

	// ConfirmUpload verifies the bytes arrived and creates the document
	// row together with its quota reservation. Replays return the existing
	// row.
	ConfirmUpload(ctx context.Context, req ConfirmUploadRequest) (*model.Document, error)

	// Get returns a single document.
	Get(ctx context.Context, tenantID, userID, documentID string) (*model.Document, error)

	// List returns a tenant's documents in a folder with pagination.
	List(ctx context.Context, tenantID, userID string, folderID *string, limit, offset int) (*DocumentListResult, error)

	// PresignDownload returns a time-limited download URL for a document.
	PresignDownload(ctx context.Context, tenantID, userID, documentID string) (string, error)

	// Delete removes a document from storage and releases its quota
	// reservation.
	Delete(ctx context.Context, tenantID, userID, documentID string) error
}

type admissionService struct {
	store   storage.Storage
	tenants repository.TenantRepository
	docs    repository.DocumentRepository
	locks   *lock.Keyed
	now     func() time.Time
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(store storage.Storage, tenants repository.TenantRepository, docs repository.DocumentRepository) AdmissionService {
	return &admissionService{
		store:   store,
		tenants: tenants,
		docs:    docs,
		locks:   lock.NewKeyed(),
		now:     time.Now,
	}
}

func (s *admissionService) Upload(ctx context.Context, req UploadRequest, r io.Reader) (*model.Document, error) {
	if r == nil {
		return nil, apperr.New(apperr.CodeInvalidArgument, "reader is nil")
	}
	doc, err := s.admit(ctx, req, uuid.NewString())
	if err != nil {
		return nil, err
	}

	// Reservation is held from here; any failure must release it.
	_, err = s.store.Put(ctx, doc.StorageKey, r, storage.PutObjectOptions{
		Size:        req.SizeBytes,
		ContentType: req.ContentType,
		Metadata:    map[string]string{"original-filename": req.FileName},
	})
	if err != nil {
		s.rollback(ctx, req.TenantID, req.SizeBytes)
		if errors.Is(err, storage.ErrPermanent) {
			return nil, apperr.Wrap(apperr.CodeFatal, "upload to storage", err)
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "upload to storage", err)
	}

	doc.UploadStatus = model.UploadConfirmed
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		if delErr := s.store.Delete(ctx, doc.StorageKey); delErr != nil {
			s.rollback(ctx, req.TenantID, req.SizeBytes)
			return nil, apperr.Wrap(apperr.CodeFatal, fmt.Sprintf("db save failed and rollback delete failed: %v", delErr), err)
		}
		s.rollback(ctx, req.TenantID, req.SizeBytes)
		return nil, apperr.Wrap(apperr.CodeRetryable, "db save failed", err)
	}
	return stored, nil
}

func (s *admissionService) BeginUpload(ctx context.Context, req UploadRequest) (*PendingUpload, error) {
	if err := validateUUID("tenant id", req.TenantID); err != nil {
		return nil, err
	}
	if req.FileName == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "file name is required")
	}
	if req.SizeBytes <= 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "size must be positive")
	}
	if err := s.authorize(ctx, req.TenantID, req.UserID); err != nil {
		return nil, err
	}

	// Headroom check only. The reservation happens at confirm time so an
	// aborted transfer never holds quota.
	tenant, err := s.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "tenant not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	if err := quota.CheckStorage(tenant, req.SizeBytes); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := storage.ObjectKey(req.TenantID, id, req.FileName)
	put, err := s.store.PresignPut(ctx, key, req.ContentType, req.SizeBytes)
	if err != nil {
		if errors.Is(err, storage.ErrPayloadTooLarge) {
			return nil, apperr.New(apperr.CodePayloadTooLarge, "file exceeds the single-upload ceiling; use a multipart upload")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "presign upload", err)
	}
	return &PendingUpload{UploadID: id, StorageKey: key, Upload: put}, nil
}

func (s *admissionService) ConfirmUpload(ctx context.Context, req ConfirmUploadRequest) (*model.Document, error) {
	if err := validateUUID("upload id", req.UploadID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.TenantID, req.UserID); err != nil {
		return nil, err
	}

	// Replayed confirm: the row already exists.
	if doc, err := s.docs.FindByID(ctx, req.TenantID, req.UploadID); err == nil {
		return doc, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.CodeRetryable, "load document", err)
	}

	key := storage.ObjectKey(req.TenantID, req.UploadID, req.FileName)
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.New(apperr.CodeConflict, "upload not completed")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "verify upload", err)
	}
	if req.SizeBytes > 0 && info.Size != req.SizeBytes {
		return nil, apperr.Newf(apperr.CodeConflict, "uploaded size %d does not match declared size %d", info.Size, req.SizeBytes)
	}

	// Row and reservation are created together now that the bytes are
	// verifiably in storage. The object size is authoritative.
	admitReq := UploadRequest{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   info.Size,
		FolderID:    req.FolderID,
	}
	doc, err := s.admit(ctx, admitReq, req.UploadID)
	if err != nil {
		if apperr.Is(err, apperr.CodeQuotaExceeded) {
			// The parked bytes were never admitted; drop them.
			_ = s.store.Delete(ctx, key)
		}
		return nil, err
	}

	doc.UploadStatus = model.UploadConfirmed
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		s.rollback(ctx, req.TenantID, info.Size)
		return nil, apperr.Wrap(apperr.CodeRetryable, "db save failed", err)
	}
	return stored, nil
}

func (s *admissionService) Get(ctx context.Context, tenantID, userID, documentID string) (*model.Document, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	return s.findDocument(ctx, tenantID, documentID)
}

func (s *admissionService) List(ctx context.Context, tenantID, userID string, folderID *string, limit, offset int) (*DocumentListResult, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.docs.List(ctx, tenantID, folderID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *admissionService) PresignDownload(ctx context.Context, tenantID, userID, documentID string) (string, error) {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return "", err
	}
	doc, err := s.findDocument(ctx, tenantID, documentID)
	if err != nil {
		return "", err
	}
	if doc.UploadStatus != model.UploadConfirmed {
		return "", apperr.New(apperr.CodeConflict, "upload not completed")
	}
	url, err := s.store.PresignGet(ctx, doc.StorageKey, 15*time.Minute)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeRetryable, "presign download", err)
	}
	return url, nil
}

func (s *admissionService) Delete(ctx context.Context, tenantID, userID, documentID string) error {
	if err := s.authorize(ctx, tenantID, userID); err != nil {
		return err
	}
	doc, err := s.findDocument(ctx, tenantID, documentID)
	if err != nil {
		return err
	}

	// Delete from storage first; if this fails, keep the DB row so the
	// object stays reachable for a later attempt.
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		return apperr.Wrap(apperr.CodeRetryable, "delete storage", err)
	}
	if err := s.docs.Delete(ctx, tenantID, documentID); err != nil {
		return err
	}
	return s.tenants.AddStorageUsed(ctx, tenantID, -doc.SizeBytes)
}

// admit runs the admission sequence: identity, per-tenant lock, quota check
// and reservation, and collision-free naming. On success the quota is
// reserved and the returned document carries its final storage key. The
// document is not persisted here.
func (s *admissionService) admit(ctx context.Context, req UploadRequest, id string) (*model.Document, error) {
	if err := validateUUID("tenant id", req.TenantID); err != nil {
		return nil, err
	}
	if req.FileName == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "file name is required")
	}
	if req.SizeBytes <= 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "size must be positive")
	}
	if !req.External {
		if err := s.authorize(ctx, req.TenantID, req.UserID); err != nil {
			return nil, err
		}
	}

	// Check-and-reserve runs under the tenant's lock so two concurrent
	// uploads cannot both pass the same remaining headroom.
	release := s.locks.Acquire(req.TenantID)
	defer release()

	tenant, err := s.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "tenant not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load tenant", err)
	}
	if err := quota.CheckStorage(tenant, req.SizeBytes); err != nil {
		return nil, err
	}

	name, err := s.dedupName(ctx, req.TenantID, req.FolderID, req.FileName)
	if err != nil {
		return nil, err
	}

	if err := s.tenants.AddStorageUsed(ctx, req.TenantID, req.SizeBytes); err != nil {
		return nil, apperr.Wrap(apperr.CodeRetryable, "reserve quota", err)
	}

	return &model.Document{
		ID:           id,
		TenantID:     req.TenantID,
		Name:         name,
		StorageKey:   storage.ObjectKey(req.TenantID, id, req.FileName),
		SizeBytes:    req.SizeBytes,
		ContentType:  req.ContentType,
		FolderID:     req.FolderID,
		OCRStatus:    model.OCRPending,
		UploadStatus: model.UploadPending,
		UploadedByID: req.UserID,
		CreatedAt:    s.now().UTC(),
	}, nil
}

func (s *admissionService) rollback(ctx context.Context, tenantID string, size int64) {
	// Best effort: the counter is floored at zero on the repository side.
	_ = s.tenants.AddStorageUsed(ctx, tenantID, -size)
}

func (s *admissionService) authorize(ctx context.Context, tenantID, userID string) error {
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

func (s *admissionService) findDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	if err := validateUUID("document id", documentID); err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.CodeRetryable, "load document", err)
	}
	return doc, nil
}

// dedupName appends " (N)" before the extension until the name is unique in
// the target folder.
func (s *admissionService) dedupName(ctx context.Context, tenantID string, folderID *string, name string) (string, error) {
	existing, err := s.docs.NamesInFolder(ctx, tenantID, folderID)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeRetryable, "list names", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, n := range existing {
		taken[n] = true
	}
	if !taken[name] {
		return name, nil
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if !taken[candidate] {
			return candidate, nil
		}
	}
}

func validateUUID(field, v string) error {
	if _, err := uuid.Parse(v); err != nil {
		return apperr.Newf(apperr.CodeInvalidArgument, "%s must be a valid UUID", field)
	}
	return nil
}
