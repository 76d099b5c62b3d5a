package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"vaultcore/internal/identity"
)

// PrincipalLocalKey is the key under which Auth stores the authenticated
// principal in Fiber's context locals.
const PrincipalLocalKey = "principal"

// Auth resolves the bearer token through the identity provider and stores
// the principal in context locals. Requests without a valid token are
// rejected with 401 before reaching any handler.
func Auth(provider identity.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		principal, err := provider.Authenticate(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(PrincipalLocalKey, principal)
		return c.Next()
	}
}

// PrincipalFromCtx returns the principal stored by Auth, or nil.
func PrincipalFromCtx(c *fiber.Ctx) *identity.Principal {
	if v := c.Locals(PrincipalLocalKey); v != nil {
		if p, ok := v.(*identity.Principal); ok {
			return p
		}
	}
	return nil
}
