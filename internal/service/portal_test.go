package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultcore/internal/apperr"
	"vaultcore/internal/model"
	"vaultcore/internal/notify"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository/memory"
	"vaultcore/internal/storage"
)

type portalFixture struct {
	svc     PortalService
	portals *memory.PortalMemory
	tenants *memory.TenantMemory
	docs    *memory.DocumentMemory
	sent    *recordingSender
}

type recordingSender struct {
	notifications []notify.Notification
}

func (r *recordingSender) Send(ctx context.Context, n notify.Notification) error {
	r.notifications = append(r.notifications, n)
	return nil
}

func newPortalFixture(t *testing.T, planName string) *portalFixture {
	t.Helper()
	f := &portalFixture{
		portals: memory.NewPortalMemory(),
		tenants: memory.NewTenantMemory(),
		docs:    memory.NewDocumentMemory(),
		sent:    &recordingSender{},
	}
	admission := NewAdmissionService(storage.NewMemory(""), f.tenants, f.docs)
	f.svc = NewPortalService(f.portals, f.tenants, f.docs, admission, f.sent)

	ctx := context.Background()
	_, err := f.tenants.Create(ctx, &model.Tenant{ID: tenantA, Plan: planName, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, f.tenants.AddMembership(ctx, &model.Membership{UserID: userA, TenantID: tenantA, Role: model.RoleAdmin}))
	return f
}

func createReq(pin string) CreatePortalRequest {
	return CreatePortalRequest{
		TenantID:     tenantA,
		UserID:       userA,
		Name:         "Onboarding",
		ContactName:  "Dana",
		ContactEmail: "dana@example.com",
		PIN:          pin,
	}
}

func TestCreatePortalNotifiesContact(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)

	p, err := f.svc.CreatePortal(context.Background(), createReq(""))

	require.NoError(t, err)
	assert.Equal(t, model.PortalActive, p.Status)
	assert.Nil(t, p.PINHash)
	require.Len(t, f.sent.notifications, 1)
	assert.Equal(t, "portal_invite", f.sent.notifications[0].Kind)
	assert.Equal(t, "dana@example.com", f.sent.notifications[0].To)
}

func TestCreatePortalPlanRestricted(t *testing.T) {
	f := newPortalFixture(t, plan.Pro)

	_, err := f.svc.CreatePortal(context.Background(), createReq(""))

	assert.True(t, apperr.Is(err, apperr.CodePlanRestricted))
}

func TestOpenExternalPINGate(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq("4321"))
	require.NoError(t, err)
	require.NotNil(t, p.PINHash)

	_, err = f.svc.OpenExternal(ctx, p.ID, "0000")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	view, err := f.svc.OpenExternal(ctx, p.ID, "4321")
	require.NoError(t, err)
	assert.Equal(t, p.ID, view.Portal.ID)
}

func TestOpenExternalExpiryEvaluatedAtRead(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	req := createReq("")
	past := time.Now().Add(-time.Hour)
	req.ExpiresAt = &past

	// status stays active in the row; only the clock decides
	p, err := f.svc.CreatePortal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.PortalActive, p.Status)

	_, err = f.svc.OpenExternal(ctx, p.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestAddRequestItemOrdering(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)

	first, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Passport", true)
	require.NoError(t, err)
	second, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Utility bill", false)
	require.NoError(t, err)

	assert.Equal(t, 1, first.OrderKey)
	assert.Equal(t, 2, second.OrderKey)
}

func TestSubmitForItemDerivesUploaded(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)
	item, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Passport", true)
	require.NoError(t, err)

	view, err := f.svc.OpenExternal(ctx, p.ID, "")
	require.NoError(t, err)
	assert.False(t, view.Items[0].Uploaded)

	sub, err := f.svc.SubmitForItem(ctx, p.ID, item.ID, "", "passport.jpg", "image/jpeg", 4, bytes.NewReader([]byte("scan")))
	require.NoError(t, err)
	assert.Equal(t, item.ID, sub.ItemID)

	view, err = f.svc.OpenExternal(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, view.Items[0].Uploaded)

	// the submission consumed tenant storage quota
	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Equal(t, int64(4), tenant.StorageUsedBytes)
}

func TestSubmitBlockedWhenPaused(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)
	item, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Passport", true)
	require.NoError(t, err)

	require.NoError(t, f.svc.Pause(ctx, tenantA, userA, p.ID))

	_, err = f.svc.SubmitForItem(ctx, p.ID, item.ID, "", "x.jpg", "image/jpeg", 1, bytes.NewReader([]byte{0}))
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	require.NoError(t, f.svc.Resume(ctx, tenantA, userA, p.ID))
	_, err = f.svc.SubmitForItem(ctx, p.ID, item.ID, "", "x.jpg", "image/jpeg", 1, bytes.NewReader([]byte{0}))
	assert.NoError(t, err)
}

func TestCloseIsTerminal(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)

	require.NoError(t, f.svc.Close(ctx, tenantA, userA, p.ID))
	// closing again is a no-op
	require.NoError(t, f.svc.Close(ctx, tenantA, userA, p.ID))

	err = f.svc.Resume(ctx, tenantA, userA, p.ID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestReRequestItemIdempotent(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)
	item, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Passport", true)
	require.NoError(t, err)
	_, err = f.svc.SubmitForItem(ctx, p.ID, item.ID, "", "passport.jpg", "image/jpeg", 4, bytes.NewReader([]byte("scan")))
	require.NoError(t, err)

	require.NoError(t, f.svc.ReRequestItem(ctx, tenantA, userA, item.ID))

	view, err := f.svc.OpenExternal(ctx, p.ID, "")
	require.NoError(t, err)
	assert.False(t, view.Items[0].Uploaded)

	// storage reservation released with the cleared submission
	tenant, _ := f.tenants.FindByID(ctx, tenantA)
	assert.Zero(t, tenant.StorageUsedBytes)

	// repeating the call does not fail and only re-notifies
	require.NoError(t, f.svc.ReRequestItem(ctx, tenantA, userA, item.ID))
}

func TestDeleteItemCascades(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)
	item, err := f.svc.AddRequestItem(ctx, tenantA, userA, p.ID, "Passport", true)
	require.NoError(t, err)
	sub, err := f.svc.SubmitForItem(ctx, p.ID, item.ID, "", "passport.jpg", "image/jpeg", 4, bytes.NewReader([]byte("scan")))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteItem(ctx, tenantA, userA, item.ID))

	view, err := f.svc.GetPortal(ctx, tenantA, userA, p.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.docs.FindByID(ctx, tenantA, sub.DocumentID)
	assert.Error(t, err)
}

func TestPortalCrossTenantHidden(t *testing.T) {
	f := newPortalFixture(t, plan.BusinessStarter)
	ctx := context.Background()

	p, err := f.svc.CreatePortal(ctx, createReq(""))
	require.NoError(t, err)

	_, err = f.tenants.Create(ctx, &model.Tenant{ID: tenantB, Plan: plan.BusinessStarter, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, f.tenants.AddMembership(ctx, &model.Membership{UserID: userB, TenantID: tenantB}))

	_, err = f.svc.GetPortal(ctx, tenantB, userB, p.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
