package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/model"
	"vaultcore/internal/payment"
	"vaultcore/internal/service"
)

// GetUsage returns the tenant's consumption against its plan limits.
func GetUsage(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usage, err := svc.Usage(c.UserContext(), c.Params("tenant_id"), callerID(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(usage)
	}
}

// LedgerHistory returns the tenant's ledger entries, defaulting to the
// current cycle.
func LedgerHistory(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.History(c.UserContext(), c.Params("tenant_id"), callerID(c), c.Query("cycle"), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ListPacks returns the purchasable top-up catalog.
func ListPacks() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": payment.Packs})
	}
}

// GetAutoTopUp returns the tenant's auto top-up settings.
func GetAutoTopUp(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		settings, err := svc.AutoTopUpSettings(c.UserContext(), c.Params("tenant_id"), callerID(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(settings)
	}
}

// SaveAutoTopUp updates the tenant's auto top-up settings.
func SaveAutoTopUp(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Enabled          bool   `json:"enabled"`
			PackID           string `json:"pack_id"`
			ThresholdPercent int    `json:"threshold_percent"`
			MaxPerMonth      int    `json:"max_per_month"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		settings := &model.AutoTopUpSettings{
			Enabled:          body.Enabled,
			PackID:           body.PackID,
			ThresholdPercent: body.ThresholdPercent,
			MaxPerMonth:      body.MaxPerMonth,
		}
		if err := svc.SaveAutoTopUpSettings(c.UserContext(), c.Params("tenant_id"), callerID(c), settings); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(settings)
	}
}

// PurchaseTopUp charges the stored payment method for a pack. 201 when units
// were credited directly; 202 with a checkout session when the customer must
// complete payment first.
func PurchaseTopUp(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			PackID string `json:"pack_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		res, err := svc.PurchaseTopUp(c.UserContext(), c.Params("tenant_id"), callerID(c), body.PackID)
		if err != nil {
			return writeServiceError(c, err)
		}
		if res.Checkout != nil {
			return c.Status(fiber.StatusAccepted).JSON(res)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// CompleteCheckout credits a pack after a checkout session finishes.
// Replayed completions answer 200 without crediting again.
func CompleteCheckout(svc service.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			PackID    string `json:"pack_id"`
			SessionID string `json:"session_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		entry, err := svc.CompleteCheckout(c.UserContext(), c.Params("tenant_id"), body.PackID, body.SessionID)
		if err != nil {
			return writeServiceError(c, err)
		}
		if entry == nil {
			return c.JSON(fiber.Map{"status": "already_credited"})
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	}
}
