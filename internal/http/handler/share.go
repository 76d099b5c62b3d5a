package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/service"
)

// SharePINHeader carries the PIN on share link redemptions.
const SharePINHeader = "X-Share-PIN"

type issueShareBody struct {
	DocumentIDs  []string   `json:"document_ids"`
	PIN          string     `json:"pin"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxDownloads *int       `json:"max_downloads"`
}

// IssueShareLink creates one share token covering a document batch.
func IssueShareLink(svc service.ShareService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body issueShareBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		link, err := svc.Issue(c.UserContext(), service.IssueShareRequest{
			TenantID:     c.Params("tenant_id"),
			UserID:       callerID(c),
			DocumentIDs:  body.DocumentIDs,
			PIN:          body.PIN,
			ExpiresAt:    body.ExpiresAt,
			MaxDownloads: body.MaxDownloads,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(link)
	}
}

// RedeemShareLink exchanges a token (and PIN header when set) for download
// URLs. Each successful call counts one download for the whole batch.
func RedeemShareLink(svc service.ShareService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		red, err := svc.Redeem(c.UserContext(), c.Params("token"), c.Get(SharePINHeader))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(red)
	}
}

// RevokeShareLink deletes a share link.
func RevokeShareLink(svc service.ShareService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Revoke(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Params("token")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
