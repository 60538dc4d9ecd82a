package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"agritrade/internal/events"
	"agritrade/internal/validate"
)

type WSHandler struct {
	Hub *events.Hub
}

// Upgrade gates the feed route to real WebSocket upgrade requests.
func Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if _, ok := validate.ID(c.Params("id")); !ok {
			return fiber.ErrBadRequest
		}
		return c.Next()
	}
}

// Feed subscribes the connection to an auction's event stream. The hub owns
// the write side; this goroutine only drains reads to detect disconnects.
func (h *WSHandler) Feed() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := &events.Client{
			ID:        uuid.NewString(),
			AuctionID: conn.Params("id"),
			Conn:      conn,
			Send:      make(chan []byte, 64),
		}
		h.Hub.RegisterClient(client)
		defer h.Hub.UnregisterClient(client)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
