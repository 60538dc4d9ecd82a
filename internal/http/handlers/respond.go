package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"agritrade/internal/domain"
	applog "agritrade/internal/log"
)

// fail maps the domain error taxonomy onto HTTP statuses and logs the
// failure. Transition failures always surface to the caller; nothing is
// swallowed here.
func fail(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, domain.ErrInvalidBid):
		applog.Security(c, action, map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_bid", "msg": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		applog.Security(c, action, map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "msg": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		applog.Security(c, action, map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	default:
		applog.Error(c, action, err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
	}
}
