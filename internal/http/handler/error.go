package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/apperr"
	"vaultcore/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail carries structured context such as quota numbers.
	Detail any `json:"detail,omitempty"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking
// internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeErrorDetail(c, status, code, message, nil)
}

func writeErrorDetail(c *fiber.Ctx, status int, code, message string, detail any) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
	}
	return c.Status(status).JSON(res)
}

// statusOf maps the service error taxonomy to HTTP statuses. Quota and plan
// failures answer 402 so clients can render an upgrade prompt.
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case apperr.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case apperr.CodeQuotaExceeded, apperr.CodePlanRestricted:
		return fiber.StatusPaymentRequired
	case apperr.CodeForbidden:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodePayloadTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case apperr.CodeConflict:
		return fiber.StatusConflict
	case apperr.CodeRetryable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// writeServiceError translates a classified service error into the
// standardized envelope. Unclassified errors become opaque 500s.
func writeServiceError(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	return writeErrorDetail(c, statusOf(ae.Code), string(ae.Code), ae.Message, ae.Detail)
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses for errors escaping the handlers (404s, 405s, middleware).
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := ""
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
			message = e.Message
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			if message == "" {
				message = "unauthorized"
			}
			return writeError(c, status, "UNAUTHORIZED", message)
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
