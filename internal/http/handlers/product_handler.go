package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agritrade/internal/log"
	"agritrade/internal/services"
	"agritrade/internal/validate"
)

type ProductHandler struct {
	Products *services.ProductService
}

type createProductReq struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Category string  `json:"category" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Unit     string  `json:"unit" validate:"required"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req createProductReq
	if err := bindAndValidate(c, &req); err != nil {
		return nil
	}
	if _, ok := validate.Category(req.Category); !ok || req.Category == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid category"})
	}
	if _, ok := validate.Unit(req.Unit); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid unit"})
	}

	p, err := h.Products.Create(c.UserContext(), currentUser(c), req.Name, req.Category, req.Quantity, req.Unit)
	if err != nil {
		return fail(c, "product.create.fail", err)
	}
	applog.Audit(c, "product.create", map[string]any{"product_id": p.ID})
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	p, err := h.Products.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, "product.get.fail", err)
	}
	return c.JSON(p)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	category, ok := validate.Category(c.Query("category"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid category"})
	}
	products, err := h.Products.List(c.UserContext(), c.Query("status"), category,
		validate.Limit(c.Query("limit")), validate.Offset(c.Query("offset")))
	if err != nil {
		return fail(c, "product.list.fail", err)
	}
	return c.JSON(fiber.Map{"products": products})
}
