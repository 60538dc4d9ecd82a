package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agritrade/internal/log"
	"agritrade/internal/services"
	"agritrade/internal/validate"
)

type AuctionHandler struct {
	Auctions *services.AuctionService
	Bids     *services.BidService
}

type createAuctionReq struct {
	ProductID    string  `json:"product_id" validate:"required"`
	StartPrice   float64 `json:"start_price" validate:"required,gt=0"`
	ReservePrice float64 `json:"reserve_price" validate:"gte=0"`
	MinIncrement float64 `json:"min_increment" validate:"gte=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time" validate:"required"`
}

func (h *AuctionHandler) Create(c *fiber.Ctx) error {
	var req createAuctionReq
	if err := bindAndValidate(c, &req); err != nil {
		return nil
	}

	a, err := h.Auctions.Create(c.UserContext(), currentUser(c), services.CreateAuctionInput{
		ProductID:    req.ProductID,
		StartPrice:   req.StartPrice,
		ReservePrice: req.ReservePrice,
		MinIncrement: req.MinIncrement,
		Quantity:     req.Quantity,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	if err != nil {
		return fail(c, "auction.create.fail", err)
	}
	applog.Audit(c, "auction.create", map[string]any{"auction_id": a.ID, "product_id": a.ProductID})
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (h *AuctionHandler) List(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := validate.Limit(c.Query("limit"))
	offset := validate.Offset(c.Query("offset"))

	auctions, err := h.Auctions.List(c.UserContext(), status, limit, offset)
	if err != nil {
		return fail(c, "auction.list.fail", err)
	}
	return c.JSON(fiber.Map{"auctions": auctions})
}

// Get returns an auction with its bids, highest first.
func (h *AuctionHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid auction id"})
	}

	a, err := h.Auctions.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.get.fail", err)
	}
	bids, err := h.Bids.ListByAuction(c.UserContext(), id)
	if err != nil {
		return fail(c, "auction.get.fail", err)
	}
	return c.JSON(fiber.Map{"auction": a, "bids": bids})
}

func (h *AuctionHandler) Cancel(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid auction id"})
	}

	if err := h.Auctions.Cancel(c.UserContext(), id, currentUser(c)); err != nil {
		return fail(c, "auction.cancel.fail", err)
	}
	applog.Audit(c, "auction.cancel", map[string]any{"auction_id": id})
	return c.JSON(fiber.Map{"ok": true})
}
