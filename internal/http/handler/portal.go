package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/service"
)

// PortalPINHeader carries the external party's PIN on account-less requests.
const PortalPINHeader = "X-Portal-PIN"

type createPortalBody struct {
	Name         string     `json:"name"`
	ContactName  string     `json:"contact_name"`
	ContactEmail string     `json:"contact_email"`
	PIN          string     `json:"pin"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type addItemBody struct {
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// CreatePortal creates a client portal and notifies the contact.
func CreatePortal(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body createPortalBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		p, err := svc.CreatePortal(c.UserContext(), service.CreatePortalRequest{
			TenantID:     c.Params("tenant_id"),
			UserID:       callerID(c),
			Name:         body.Name,
			ContactName:  body.ContactName,
			ContactEmail: body.ContactEmail,
			PIN:          body.PIN,
			ExpiresAt:    body.ExpiresAt,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GetPortal returns a portal with its checklist for the owning tenant.
func GetPortal(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := svc.GetPortal(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(view)
	}
}

// ListPortals returns a tenant's portals with limit & offset.
func ListPortals(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListPortals(c.UserContext(), c.Params("tenant_id"), callerID(c), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// AddRequestItem appends a checklist line to a portal.
func AddRequestItem(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body addItemBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		item, err := svc.AddRequestItem(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id"), body.Label, body.Required)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	}
}

// DeleteRequestItem removes a checklist item, its submissions and their
// stored objects.
func DeleteRequestItem(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.DeleteItem(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("item_id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ReRequestItem clears an item's submissions and re-notifies the contact.
func ReRequestItem(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.ReRequestItem(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("item_id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PausePortal suspends external access to a portal.
func PausePortal(svc service.PortalService) fiber.Handler {
	return portalTransition(svc.Pause)
}

// ResumePortal reactivates a paused portal.
func ResumePortal(svc service.PortalService) fiber.Handler {
	return portalTransition(svc.Resume)
}

// ClosePortal ends a portal permanently.
func ClosePortal(svc service.PortalService) fiber.Handler {
	return portalTransition(svc.Close)
}

// OpenPortal is the account-less portal entry point. Access is gated by
// status, expiry and the PIN header when one is set.
func OpenPortal(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := svc.OpenExternal(c.UserContext(), c.Params("portal_id"), c.Get(PortalPINHeader))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(view)
	}
}

// SubmitToPortal accepts an external upload against a checklist item
// (multipart/form-data, field name: file).
func SubmitToPortal(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		sub, err := svc.SubmitForItem(c.UserContext(), c.Params("portal_id"), c.Params("item_id"), c.Get(PortalPINHeader), fh.Filename, ct, fh.Size, f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	}
}

func portalTransition(fn func(ctx context.Context, tenantID, userID, portalID string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := fn(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
