package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository/memory"
	"vaultcore/internal/storage"
)

type shareFixture struct {
	svc     ShareService
	shares  *memory.ShareMemory
	tenants *memory.TenantMemory
	docs    *memory.DocumentMemory
	docIDs  []string
}

func newShareFixture(t *testing.T, planName string, docCount int) *shareFixture {
	t.Helper()
	f := &shareFixture{
		shares:  memory.NewShareMemory(),
		tenants: memory.NewTenantMemory(),
		docs:    memory.NewDocumentMemory(),
	}
	store := storage.NewMemory("")
	f.svc = NewShareService(f.shares, f.docs, f.tenants, store)

	ctx := context.Background()
	_, err := f.tenants.Create(ctx, &model.Tenant{ID: tenantA, Plan: planName, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, f.tenants.AddMembership(ctx, &model.Membership{UserID: userA, TenantID: tenantA}))

	admission := NewAdmissionService(store, f.tenants, f.docs)
	for i := 0; i < docCount; i++ {
		doc, err := admission.Upload(ctx, uploadReq("contract.pdf", 4), bytes.NewReader([]byte("data")))
		require.NoError(t, err)
		f.docIDs = append(f.docIDs, doc.ID)
	}
	return f
}

func TestIssueSingleTokenForBatch(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 3)

	link, err := f.svc.Issue(context.Background(), IssueShareRequest{
		TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)
	assert.Len(t, link.DocumentIDs, 3)
	assert.Zero(t, link.DownloadCount)
}

func TestIssueActiveLinkLimit(t *testing.T) {
	f := newShareFixture(t, plan.Trial, 1) // trial allows 2 active links
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Issue(ctx, IssueShareRequest{TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs})
		require.NoError(t, err)
	}

	_, err := f.svc.Issue(ctx, IssueShareRequest{TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeQuotaExceeded))
	detail := apperr.DetailOf(err).(apperr.QuotaDetail)
	assert.Equal(t, "share_links", detail.Resource)
	assert.Equal(t, int64(2), detail.LimitUnits)
}

func TestIssueRejectsForeignAndPendingDocuments(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 1)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, IssueShareRequest{
		TenantID: tenantA, UserID: userA,
		DocumentIDs: []string{"33333333-3333-3333-3333-333333333333"},
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	pending, err := f.docs.Create(ctx, &model.Document{
		ID: "44444444-4444-4444-4444-444444444444", TenantID: tenantA,
		Name: "p.pdf", StorageKey: "k", SizeBytes: 1,
		UploadStatus: model.UploadPending, OCRStatus: model.OCRPending, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, IssueShareRequest{TenantID: tenantA, UserID: userA, DocumentIDs: []string{pending.ID}})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestRedeemCountsOneDownloadPerBatch(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 3)
	ctx := context.Background()

	max := 1
	link, err := f.svc.Issue(ctx, IssueShareRequest{
		TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs, MaxDownloads: &max,
	})
	require.NoError(t, err)

	red, err := f.svc.Redeem(ctx, link.Token, "")
	require.NoError(t, err)
	// the whole batch comes back and costs a single download
	assert.Len(t, red.Documents, 3)
	require.NotNil(t, red.DownloadsLeft)
	assert.Zero(t, *red.DownloadsLeft)

	_, err = f.svc.Redeem(ctx, link.Token, "")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestRedeemConcurrentRespectsLimit(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 1)
	ctx := context.Background()

	max := 3
	link, err := f.svc.Issue(ctx, IssueShareRequest{
		TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs, MaxDownloads: &max,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Redeem(ctx, link.Token, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
}

func TestRedeemExpiryBeforePIN(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 1)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	link, err := f.svc.Issue(ctx, IssueShareRequest{
		TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs,
		PIN: "1234", ExpiresAt: &future,
	})
	require.NoError(t, err)

	// wrong pin while valid
	_, err = f.svc.Redeem(ctx, link.Token, "9999")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	// expire the link in place: expiry wins even with the right pin
	stored, err := f.shares.FindByToken(ctx, link.Token)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	stored.ExpiresAt = &past
	_, err = f.shares.Create(ctx, stored)
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, link.Token, "1234")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestRedeemUnknownToken(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 1)

	_, err := f.svc.Redeem(context.Background(), "no-such-token", "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestRevoke(t *testing.T) {
	f := newShareFixture(t, plan.Growth, 1)
	ctx := context.Background()

	link, err := f.svc.Issue(ctx, IssueShareRequest{TenantID: tenantA, UserID: userA, DocumentIDs: f.docIDs})
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, tenantA, userA, link.Token))

	_, err = f.svc.Redeem(ctx, link.Token, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
