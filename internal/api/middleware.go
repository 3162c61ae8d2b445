package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"gridbase/internal/auth"
)

// RequireAdmin returns a Fiber middleware that validates the admin JWT
// on schema-mutating routes.
func RequireAdmin(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return UnauthorizedError("Invalid auth header format")
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil || !claims.Admin {
			return UnauthorizedError("Invalid or expired token")
		}

		c.Locals("admin", claims.Subject)
		return c.Next()
	}
}
