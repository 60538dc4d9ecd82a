package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agritrade/internal/log"
	"agritrade/internal/services"
	"agritrade/internal/validate"
)

type OrderHandler struct {
	Orders *services.OrderService
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	o, err := h.Orders.Get(c.UserContext(), id, currentUser(c))
	if err != nil {
		return fail(c, "order.get.fail", err)
	}
	return c.JSON(o)
}

func (h *OrderHandler) Mine(c *fiber.Ctx) error {
	orders, err := h.Orders.ListMine(c.UserContext(), currentUser(c))
	if err != nil {
		return fail(c, "order.mine.fail", err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}

type updateOrderStatusReq struct {
	Status string `json:"status" validate:"required,oneof=SHIPPED DELIVERED CANCELLED"`
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	var req updateOrderStatusReq
	if err := bindAndValidate(c, &req); err != nil {
		return nil
	}

	if err := h.Orders.UpdateStatus(c.UserContext(), id, req.Status, currentUser(c)); err != nil {
		return fail(c, "order.status.fail", err)
	}
	applog.Audit(c, "order.status", map[string]any{"order_id": id, "status": req.Status})
	return c.JSON(fiber.Map{"ok": true})
}
