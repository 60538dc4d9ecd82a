package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"agritrade/internal/domain"
	applog "agritrade/internal/log"
	"agritrade/internal/repos"
)

// RequireUser resolves the Authorization bearer token to a user and stores it
// in Locals("user"). The token itself comes from the external identity
// provider; this middleware is only the narrow contract consuming it.
func RequireUser(users *repos.UserRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}
		u, err := users.ByToken(c.UserContext(), token)
		if err != nil {
			applog.Security(c, "auth.token.reject", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user", u)
		return c.Next()
	}
}

// RequireRole layers a role check on top of RequireUser.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil || u.Role != role {
			applog.Security(c, "access.denied.role", map[string]any{"want": role})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}
