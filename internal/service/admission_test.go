package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository/memory"
	"vaultcore/internal/storage"
	"vaultcore/internal/storage/mocks"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	tenantB = "22222222-2222-2222-2222-222222222222"
	userA   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	userB   = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

type admissionFixture struct {
	svc     AdmissionService
	tenants *memory.TenantMemory
	docs    *memory.DocumentMemory
	store   storage.Storage
}

func newAdmissionFixture(t *testing.T, planName string) *admissionFixture {
	t.Helper()
	f := &admissionFixture{
		tenants: memory.NewTenantMemory(),
		docs:    memory.NewDocumentMemory(),
		store:   storage.NewMemory(""),
	}
	f.svc = NewAdmissionService(f.store, f.tenants, f.docs)

	ctx := context.Background()
	_, err := f.tenants.Create(ctx, &model.Tenant{ID: tenantA, Plan: planName, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, f.tenants.AddMembership(ctx, &model.Membership{UserID: userA, TenantID: tenantA, Role: model.RoleAdmin}))
	return f
}

func uploadReq(name string, size int64) UploadRequest {
	return UploadRequest{
		TenantID:    tenantA,
		UserID:      userA,
		FileName:    name,
		ContentType: "application/pdf",
		SizeBytes:   size,
	}
}

func TestUploadStoresAndConfirms(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	payload := []byte("content")

	doc, err := f.svc.Upload(context.Background(), uploadReq("invoice.pdf", int64(len(payload))), bytes.NewReader(payload))

	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", doc.Name)
	assert.Equal(t, model.UploadConfirmed, doc.UploadStatus)
	assert.Equal(t, model.OCRPending, doc.OCRStatus)
	assert.True(t, strings.HasPrefix(doc.StorageKey, "tenants/"+tenantA+"/"))

	tenant, _ := f.tenants.FindByID(context.Background(), tenantA)
	assert.Equal(t, int64(len(payload)), tenant.StorageUsedBytes)

	_, err = f.store.Stat(context.Background(), doc.StorageKey)
	assert.NoError(t, err)
}

func TestUploadQuotaExceeded(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)

	// trial ceiling is 4 GB; leave ~70 MB of headroom
	used := plan.StorageLimitBytes(plan.Trial) - 70<<20
	require.NoError(t, f.tenants.AddStorageUsed(context.Background(), tenantA, used))

	_, err := f.svc.Upload(context.Background(), uploadReq("big.pdf", 100<<20), bytes.NewReader(make([]byte, 1)))

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeQuotaExceeded))
	detail, ok := apperr.DetailOf(err).(apperr.QuotaDetail)
	require.True(t, ok)
	assert.Equal(t, "storage", detail.Resource)
	assert.Equal(t, 4.0, detail.LimitGB)

	// the failed admission must not leak a reservation
	tenant, _ := f.tenants.FindByID(context.Background(), tenantA)
	assert.Equal(t, used, tenant.StorageUsedBytes)
}

// discardStorage accepts any declared size without storing bytes, so
// concurrency tests can declare gigabyte uploads cheaply.
type discardStorage struct{ storage.Storage }

func (discardStorage) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: opt.Size, Mock: true}, nil
}

func (discardStorage) Delete(ctx context.Context, key string) error { return nil }

func TestUploadConcurrentNoOvershoot(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	f.svc = NewAdmissionService(discardStorage{}, f.tenants, f.docs)
	ctx := context.Background()

	limit := plan.StorageLimitBytes(plan.Trial)
	size := limit / 4 // only 4 of the 10 attempts can fit

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Upload(ctx, uploadReq("part.bin", size), bytes.NewReader([]byte{0}))
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			} else if !apperr.Is(err, apperr.CodeQuotaExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, admitted)
	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.LessOrEqual(t, tenant.StorageUsedBytes, limit)
}

func TestUploadStorageFailureReleasesReservation(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	store := new(mocks.MockStorage)
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("backend unavailable")).Once()
	f.svc = NewAdmissionService(store, f.tenants, f.docs)

	_, err := f.svc.Upload(ctx, uploadReq("x.pdf", 7), bytes.NewReader(make([]byte, 7)))

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeRetryable))
	store.AssertExpectations(t)

	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)
}

func TestUploadPermanentStorageFailureIsFatal(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	store := new(mocks.MockStorage)
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, fmt.Errorf("%w: AccessDenied", storage.ErrPermanent)).Once()
	f.svc = NewAdmissionService(store, f.tenants, f.docs)

	_, err := f.svc.Upload(ctx, uploadReq("x.pdf", 7), bytes.NewReader(make([]byte, 7)))

	require.Error(t, err)
	// misconfiguration is not retryable: retrying cannot fix denied access
	assert.True(t, apperr.Is(err, apperr.CodeFatal))
	store.AssertExpectations(t)

	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)
}

func TestUploadCrossTenantNotBlocked(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	_, err := f.tenants.Create(ctx, &model.Tenant{ID: tenantB, Plan: plan.Trial, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, f.tenants.AddMembership(ctx, &model.Membership{UserID: userB, TenantID: tenantB}))

	done := make(chan error, 2)
	for _, req := range []UploadRequest{
		uploadReq("a.pdf", 10),
		{TenantID: tenantB, UserID: userB, FileName: "b.pdf", ContentType: "application/pdf", SizeBytes: 10},
	} {
		req := req
		go func() {
			_, err := f.svc.Upload(ctx, req, bytes.NewReader(make([]byte, 10)))
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("upload blocked across tenants")
		}
	}
}

func TestUploadNameDedup(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Upload(ctx, uploadReq("report.pdf", 4), bytes.NewReader([]byte("abcd")))
		require.NoError(t, err)
	}

	names, err := f.docs.NamesInFolder(ctx, tenantA, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"report.pdf", "report (1).pdf", "report (2).pdf"}, names)
}

func TestUploadForbiddenForNonMember(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)

	req := uploadReq("x.pdf", 1)
	req.UserID = userB

	_, err := f.svc.Upload(context.Background(), req, bytes.NewReader([]byte{0}))
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestUploadInvalidIDs(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)

	req := uploadReq("x.pdf", 1)
	req.TenantID = "not-a-uuid"
	_, err := f.svc.Upload(context.Background(), req, bytes.NewReader([]byte{0}))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func confirmReq(pending *PendingUpload, name string, size int64) ConfirmUploadRequest {
	return ConfirmUploadRequest{
		TenantID:    tenantA,
		UserID:      userA,
		UploadID:    pending.UploadID,
		FileName:    name,
		ContentType: "application/pdf",
		SizeBytes:   size,
	}
}

func TestBeginAndConfirmUpload(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	pending, err := f.svc.BeginUpload(ctx, uploadReq("scan.pdf", 3))
	require.NoError(t, err)
	assert.NotEmpty(t, pending.Upload.URL)

	// an abandoned transfer leaves nothing: no row, no reservation
	_, err = f.svc.Get(ctx, tenantA, userA, pending.UploadID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)

	// confirm before the bytes arrive
	_, err = f.svc.ConfirmUpload(ctx, confirmReq(pending, "scan.pdf", 3))
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	// simulate the client PUT, then confirm
	_, err = f.store.Put(ctx, pending.StorageKey, strings.NewReader("abc"), storage.PutObjectOptions{Size: 3})
	require.NoError(t, err)

	doc, err := f.svc.ConfirmUpload(ctx, confirmReq(pending, "scan.pdf", 3))
	require.NoError(t, err)
	assert.Equal(t, model.UploadConfirmed, doc.UploadStatus)
	assert.Equal(t, pending.UploadID, doc.ID)

	tenant, _ = f.tenants.FindByID(ctx, tenantA)
	assert.Equal(t, int64(3), tenant.StorageUsedBytes)

	// confirming again returns the existing row without re-reserving
	doc, err = f.svc.ConfirmUpload(ctx, confirmReq(pending, "scan.pdf", 3))
	require.NoError(t, err)
	assert.Equal(t, model.UploadConfirmed, doc.UploadStatus)
	tenant, _ = f.tenants.FindByID(ctx, tenantA)
	assert.Equal(t, int64(3), tenant.StorageUsedBytes)
}

func TestBeginUploadRejectsOversizePayload(t *testing.T) {
	f := newAdmissionFixture(t, plan.Pro)

	// within the plan's storage headroom but over the single-PUT ceiling
	_, err := f.svc.BeginUpload(context.Background(), uploadReq("archive.bin", 6<<30))

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodePayloadTooLarge))
}

func TestConfirmUploadSizeMismatch(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	pending, err := f.svc.BeginUpload(ctx, uploadReq("scan.pdf", 10))
	require.NoError(t, err)

	_, err = f.store.Put(ctx, pending.StorageKey, strings.NewReader("abc"), storage.PutObjectOptions{Size: 3})
	require.NoError(t, err)

	_, err = f.svc.ConfirmUpload(ctx, confirmReq(pending, "scan.pdf", 10))
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	// the declared size never held quota
	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)
}

func TestDeleteReleasesReservation(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, uploadReq("gone.pdf", 5), bytes.NewReader([]byte("12345")))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, tenantA, userA, doc.ID))

	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)
	_, err = f.store.Stat(ctx, doc.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Get(ctx, tenantA, userA, doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestListPaginates(t *testing.T) {
	f := newAdmissionFixture(t, plan.Trial)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Upload(ctx, uploadReq("doc.pdf", 1), bytes.NewReader([]byte{0}))
		require.NoError(t, err)
	}

	res, err := f.svc.List(ctx, tenantA, userA, nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Len(t, res.Items, 2)
}
