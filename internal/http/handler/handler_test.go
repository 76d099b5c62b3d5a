package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultcore/internal/config"
	"vaultcore/internal/http/middleware"
	"vaultcore/internal/identity"
	"vaultcore/internal/model"
	"vaultcore/internal/notify"
	"vaultcore/internal/payment"
	"vaultcore/internal/pipeline"
	"vaultcore/internal/plan"
	"vaultcore/internal/repository/memory"
	"vaultcore/internal/service"
	"vaultcore/internal/storage"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	userA   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	tokenA  = "token-a"
)

type testApp struct {
	app       *fiber.App
	tenants   *memory.TenantMemory
	docs      *memory.DocumentMemory
	processor *payment.LocalProcessor
}

func newTestApp(t *testing.T, planName string) *testApp {
	t.Helper()

	tenants := memory.NewTenantMemory()
	docs := memory.NewDocumentMemory()
	folders := memory.NewFolderMemory()
	portals := memory.NewPortalMemory()
	shares := memory.NewShareMemory()
	ledger := memory.NewLedgerMemory()
	store := storage.NewMemory("")
	processor := payment.NewLocalProcessor("https://pay.example.com")

	provider := identity.NewStaticProvider()
	provider.Register(tokenA, identity.Principal{UserID: userA, Email: "a@example.com"})

	admission := service.NewAdmissionService(store, tenants, docs)
	ledgerSvc := service.NewLedgerService(ledger, tenants, portals, shares, processor)
	classifier := pipeline.NewClassifier(config.PipelineConfig{
		SamplePercent:       100,
		ConfidenceThreshold: 0.7,
	}, pipeline.StubRecognizer{}, tenants, docs, folders, ledger).WithTopUp(ledgerSvc)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	RegisterRoutes(app, nil, Services{
		Admission:  admission,
		Portals:    service.NewPortalService(portals, tenants, docs, admission, notify.NewLogSender(nil)),
		Shares:     service.NewShareService(shares, docs, tenants, store),
		Ledger:     ledgerSvc,
		Classifier: classifier,
		Identity:   provider,
	})

	ctx := context.Background()
	_, err := tenants.Create(ctx, &model.Tenant{ID: tenantA, Plan: planName, SeatCount: 1})
	require.NoError(t, err)
	require.NoError(t, tenants.AddMembership(ctx, &model.Membership{UserID: userA, TenantID: tenantA, Role: model.RoleAdmin}))

	return &testApp{app: app, tenants: tenants, docs: docs, processor: processor}
}

func authed(req *http.Request) *http.Request {
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tokenA)
	return req
}

func multipartFile(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	part.Write(content)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDocumentEndpoints(t *testing.T) {
	ta := newTestApp(t, plan.Trial)

	var doc model.Document

	t.Run("upload", func(t *testing.T) {
		body, ct := multipartFile(t, "invoice.pdf", []byte("content"))
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/documents", body))
		req.Header.Set("Content-Type", ct)

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		json.NewDecoder(resp.Body).Decode(&doc)
		assert.Equal(t, "invoice.pdf", doc.Name)
		assert.Equal(t, model.UploadConfirmed, doc.UploadStatus)
	})

	t.Run("get", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents/"+doc.ID, nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("list", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents?limit=10", nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DocumentListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, 1, result.Total)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents/not-a-uuid", nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ARGUMENT", res.Error.Code)
	})

	t.Run("download", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents/"+doc.ID+"/download", nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		assert.NotEmpty(t, body["url"])
	})

	t.Run("classify", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/documents/"+doc.ID+"/classify", nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out pipeline.Outcome
		json.NewDecoder(resp.Body).Decode(&out)
		assert.Equal(t, model.OCRDone, out.Status)
	})

	t.Run("delete", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodDelete, "/tenants/"+tenantA+"/documents/"+doc.ID, nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("get after delete", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents/"+doc.ID, nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAuthRequired(t *testing.T) {
	ta := newTestApp(t, plan.Trial)

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/documents", nil)
	resp, _ := ta.app.Test(req)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var res errorPayload
	json.NewDecoder(resp.Body).Decode(&res)
	assert.Equal(t, "UNAUTHORIZED", res.Error.Code)
}

func TestQuotaExceededAnswersPaymentRequired(t *testing.T) {
	ta := newTestApp(t, plan.Trial)
	require.NoError(t, ta.tenants.AddStorageUsed(context.Background(), tenantA, plan.StorageLimitBytes(plan.Trial)))

	body, ct := multipartFile(t, "big.pdf", []byte("x"))
	req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/documents", body))
	req.Header.Set("Content-Type", ct)

	resp, _ := ta.app.Test(req)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var res errorPayload
	json.NewDecoder(resp.Body).Decode(&res)
	assert.Equal(t, "QUOTA_EXCEEDED", res.Error.Code)
	assert.NotNil(t, res.Error.Detail)
}

func TestPortalEndpoints(t *testing.T) {
	ta := newTestApp(t, plan.BusinessStarter)

	var portal model.Portal
	var item model.RequestItem

	t.Run("create", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/portals", jsonBody(t, fiber.Map{
			"name":          "Onboarding",
			"contact_name":  "Dana",
			"contact_email": "dana@example.com",
		})))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		json.NewDecoder(resp.Body).Decode(&portal)
		assert.Equal(t, model.PortalActive, portal.Status)
	})

	t.Run("add item", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/portals/"+portal.ID+"/items", jsonBody(t, fiber.Map{
			"label":    "Passport",
			"required": true,
		})))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		json.NewDecoder(resp.Body).Decode(&item)
		assert.Equal(t, 1, item.OrderKey)
	})

	t.Run("external open without auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/portal/"+portal.ID, nil)
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var view service.PortalView
		json.NewDecoder(resp.Body).Decode(&view)
		require.Len(t, view.Items, 1)
		assert.False(t, view.Items[0].Uploaded)
	})

	t.Run("external submit", func(t *testing.T) {
		body, ct := multipartFile(t, "passport.jpg", []byte("scan"))
		req := httptest.NewRequest(http.MethodPost, "/portal/"+portal.ID+"/items/"+item.ID+"/submissions", body)
		req.Header.Set("Content-Type", ct)

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("pause blocks external access", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/portals/"+portal.ID+"/pause", nil))
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		req = httptest.NewRequest(http.MethodGet, "/portal/"+portal.ID, nil)
		resp, _ = ta.app.Test(req)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestShareEndpoints(t *testing.T) {
	ta := newTestApp(t, plan.Growth)

	// upload a document to share
	body, ct := multipartFile(t, "contract.pdf", []byte("data"))
	req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/documents", body))
	req.Header.Set("Content-Type", ct)
	resp, _ := ta.app.Test(req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc model.Document
	json.NewDecoder(resp.Body).Decode(&doc)

	var link model.ShareLink

	t.Run("issue", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/shares", jsonBody(t, fiber.Map{
			"document_ids": []string{doc.ID},
			"pin":          "1234",
		})))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		json.NewDecoder(resp.Body).Decode(&link)
		assert.NotEmpty(t, link.Token)
	})

	t.Run("redeem wrong pin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/shared/"+link.Token, nil)
		req.Header.Set(SharePINHeader, "9999")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("redeem", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/shared/"+link.Token, nil)
		req.Header.Set(SharePINHeader, "1234")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var red service.Redemption
		json.NewDecoder(resp.Body).Decode(&red)
		require.Len(t, red.Documents, 1)
		assert.NotEmpty(t, red.Documents[0].URL)
	})

	t.Run("revoke", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodDelete, "/tenants/"+tenantA+"/shares/"+link.Token, nil))
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		req = httptest.NewRequest(http.MethodGet, "/shared/"+link.Token, nil)
		resp, _ = ta.app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestTopUpEndpoints(t *testing.T) {
	ta := newTestApp(t, plan.Starter)

	t.Run("checkout fallback answers accepted", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/topups", jsonBody(t, fiber.Map{"pack_id": "pack_small"})))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var res service.TopUpResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Nil(t, res.Credited)
		assert.NotNil(t, res.Checkout)
	})

	t.Run("direct charge answers created", func(t *testing.T) {
		ta.processor.AddPaymentMethod(tenantA)

		req := authed(httptest.NewRequest(http.MethodPost, "/tenants/"+tenantA+"/topups", jsonBody(t, fiber.Map{"pack_id": "pack_small"})))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("usage reflects credit", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/usage", nil))
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var usage service.UsageSummary
		json.NewDecoder(resp.Body).Decode(&usage)
		assert.Equal(t, int64(50), usage.BonusUnits)
	})

	t.Run("packs", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/tenants/"+tenantA+"/packs", nil))
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRouting(t *testing.T) {
	ta := newTestApp(t, plan.Trial)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := ta.app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})
}
