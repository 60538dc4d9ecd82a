package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"agritrade/internal/domain"
	applog "agritrade/internal/log"
)

// Sink receives domain events after a transition commits. Delivery is
// best-effort; a sink must never block the caller for long.
type Sink interface {
	Publish(evt domain.Event)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(evt domain.Event) {
	for _, s := range f {
		s.Publish(evt)
	}
}

// Hub broadcasts events to WebSocket clients subscribed per auction.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.Event

	mu          sync.RWMutex
	subscribers map[string]map[*Client]bool // auctionID -> clients
}

type Client struct {
	ID        string
	AuctionID string
	Conn      *websocket.Conn
	Send      chan []byte
}

func NewHub() *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan domain.Event, 256),
		subscribers: make(map[string]map[*Client]bool),
	}
}

// Run drains the hub's channels. Call once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case evt := <-h.broadcast:
			h.broadcastToAuction(evt)
		}
	}
}

func (h *Hub) RegisterClient(c *Client)   { h.register <- c }
func (h *Hub) UnregisterClient(c *Client) { h.unregister <- c }

// Publish implements Sink. Events for full buffers are dropped rather than
// blocking the accept/reject path.
func (h *Hub) Publish(evt domain.Event) {
	select {
	case h.broadcast <- evt:
	default:
		applog.BgError("events.hub.drop", nil, map[string]any{"kind": evt.Kind, "auction_id": evt.AuctionID})
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	set, ok := h.subscribers[c.AuctionID]
	if !ok {
		set = make(map[*Client]bool)
		h.subscribers[c.AuctionID] = set
	}
	set[c] = true
	h.mu.Unlock()

	go c.writePump()
	applog.BgInfo("events.subscribe", map[string]any{"client": c.ID, "auction_id": c.AuctionID})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if set, ok := h.subscribers[c.AuctionID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.Send)
		}
		if len(set) == 0 {
			delete(h.subscribers, c.AuctionID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

func (h *Hub) broadcastToAuction(evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		applog.BgError("events.marshal", err, map[string]any{"kind": evt.Kind})
		return
	}

	h.mu.RLock()
	set := h.subscribers[evt.AuctionID]
	var slow []*Client
	for c := range set {
		select {
		case c.Send <- payload:
		default:
			// full send buffer: one slow client must not stall the rest
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.removeClientDirect(c)
	}
}

// removeClientDirect avoids the unregister channel so broadcastToAuction can
// evict without deadlocking the Run loop.
func (h *Hub) removeClientDirect(c *Client) {
	h.mu.Lock()
	if set, ok := h.subscribers[c.AuctionID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.Send)
		}
		if len(set) == 0 {
			delete(h.subscribers, c.AuctionID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// SubscriberCount reports how many clients watch an auction.
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
