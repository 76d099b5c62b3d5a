package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/http/middleware"
	"vaultcore/internal/identity"
	"vaultcore/internal/pipeline"
	"vaultcore/internal/service"
)

// Services bundles everything the HTTP layer depends on.
type Services struct {
	Admission  service.AdmissionService
	Portals    service.PortalService
	Shares     service.ShareService
	Ledger     service.LedgerService
	Classifier *pipeline.Classifier
	Identity   identity.Provider
}

// RegisterRoutes attaches all HTTP routes to the provided Fiber app.
// Tenant-scoped routes require a bearer token; the portal and share-link
// routes are public by design and gated inside the services instead.
func RegisterRoutes(app *fiber.App, db *sql.DB, svcs Services) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	// Account-less surfaces: portal fulfilment and share link redemption.
	app.Get("/portal/:portal_id", OpenPortal(svcs.Portals))
	app.Post("/portal/:portal_id/items/:item_id/submissions", SubmitToPortal(svcs.Portals))
	app.Get("/shared/:token", RedeemShareLink(svcs.Shares))

	tenant := app.Group("/tenants/:tenant_id", middleware.Auth(svcs.Identity))

	tenant.Get("/documents", ListDocuments(svcs.Admission))
	tenant.Post("/documents", UploadDocument(svcs.Admission))
	tenant.Post("/documents/uploads", BeginUpload(svcs.Admission))
	tenant.Post("/documents/uploads/:upload_id/confirm", ConfirmUpload(svcs.Admission))
	tenant.Get("/documents/:id", GetDocument(svcs.Admission))
	tenant.Delete("/documents/:id", DeleteDocument(svcs.Admission))
	tenant.Get("/documents/:id/download", DownloadDocument(svcs.Admission))
	tenant.Post("/documents/:id/classify", ClassifyDocument(svcs.Classifier))
	tenant.Post("/documents/:id/recover", RecoverDocument(svcs.Classifier))

	tenant.Get("/portals", ListPortals(svcs.Portals))
	tenant.Post("/portals", CreatePortal(svcs.Portals))
	tenant.Get("/portals/:id", GetPortal(svcs.Portals))
	tenant.Post("/portals/:id/items", AddRequestItem(svcs.Portals))
	tenant.Post("/portals/:id/pause", PausePortal(svcs.Portals))
	tenant.Post("/portals/:id/resume", ResumePortal(svcs.Portals))
	tenant.Post("/portals/:id/close", ClosePortal(svcs.Portals))
	tenant.Delete("/portal-items/:item_id", DeleteRequestItem(svcs.Portals))
	tenant.Post("/portal-items/:item_id/re-request", ReRequestItem(svcs.Portals))

	tenant.Post("/shares", IssueShareLink(svcs.Shares))
	tenant.Delete("/shares/:token", RevokeShareLink(svcs.Shares))

	tenant.Get("/usage", GetUsage(svcs.Ledger))
	tenant.Get("/ledger", LedgerHistory(svcs.Ledger))
	tenant.Get("/packs", ListPacks())
	tenant.Post("/topups", PurchaseTopUp(svcs.Ledger))
	tenant.Post("/topups/checkout/complete", CompleteCheckout(svcs.Ledger))
	tenant.Get("/topups/auto", GetAutoTopUp(svcs.Ledger))
	tenant.Put("/topups/auto", SaveAutoTopUp(svcs.Ledger))
}

// HealthCheck reports readiness: the database must answer a ping.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness check with no dependencies.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// callerID returns the authenticated user's ID, set by the auth middleware.
func callerID(c *fiber.Ctx) string {
	if p := middleware.PrincipalFromCtx(c); p != nil {
		return p.UserID
	}
	return ""
}
