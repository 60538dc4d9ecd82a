package handlers

import (
	"github.com/gofiber/fiber/v2"

	"agritrade/internal/services"
	"agritrade/internal/validate"
)

type NotificationHandler struct {
	Notifs *services.NotificationService
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	unreadOnly := c.Query("unread") == "true"
	out, err := h.Notifs.List(c.UserContext(), currentUser(c).ID, unreadOnly)
	if err != nil {
		return fail(c, "notification.list.fail", err)
	}
	return c.JSON(fiber.Map{"notifications": out})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid notification id"})
	}
	if err := h.Notifs.MarkRead(c.UserContext(), id, currentUser(c).ID); err != nil {
		return fail(c, "notification.read.fail", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
