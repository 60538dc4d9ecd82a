package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agritrade/internal/log"
	"agritrade/internal/services"
	"agritrade/internal/validate"
)

type BidHandler struct {
	Bids *services.BidService
}

type placeBidReq struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

// Place submits a bid on an auction. Trader role is enforced by the route,
// ownership and price preconditions inside the transition.
func (h *BidHandler) Place(c *fiber.Ctx) error {
	auctionID, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid auction id"})
	}
	var req placeBidReq
	if err := bindAndValidate(c, &req); err != nil {
		return nil
	}

	bid, err := h.Bids.Place(c.UserContext(), auctionID, currentUser(c), req.Amount, req.Quantity)
	if err != nil {
		return fail(c, "bid.place.fail", err)
	}
	applog.Audit(c, "bid.place", map[string]any{"auction_id": auctionID, "bid_id": bid.ID, "amount": bid.Amount})
	return c.Status(fiber.StatusCreated).JSON(bid)
}

// Accept resolves the auction in favor of this bid. Safe to retry: a second
// call returns the same order.
func (h *BidHandler) Accept(c *fiber.Ctx) error {
	bidID, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid bid id"})
	}

	order, err := h.Bids.Accept(c.UserContext(), bidID, currentUser(c))
	if err != nil {
		return fail(c, "bid.accept.fail", err)
	}
	applog.Audit(c, "bid.accept", map[string]any{"bid_id": bidID, "order_id": order.ID, "total": order.TotalAmount})
	return c.JSON(fiber.Map{"order": order})
}

func (h *BidHandler) Reject(c *fiber.Ctx) error {
	bidID, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid bid id"})
	}

	promoted, err := h.Bids.Reject(c.UserContext(), bidID, currentUser(c))
	if err != nil {
		return fail(c, "bid.reject.fail", err)
	}
	resp := fiber.Map{"ok": true}
	if promoted != nil {
		resp["promoted"] = promoted
	}
	applog.Audit(c, "bid.reject", map[string]any{"bid_id": bidID})
	return c.JSON(resp)
}

// Mine lists the caller's bids across auctions.
func (h *BidHandler) Mine(c *fiber.Ctx) error {
	bids, err := h.Bids.ListByBidder(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "bid.mine.fail", err)
	}
	return c.JSON(fiber.Map{"bids": bids})
}
