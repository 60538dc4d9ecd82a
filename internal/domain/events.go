package domain

import "time"

// Event kinds emitted on the realtime feed after a transition commits.
const (
	EventBidPlaced     = "bid.placed"
	EventBidOutbid     = "bid.outbid"
	EventBidAccepted   = "bid.accepted"
	EventBidRejected   = "bid.rejected"
	EventAuctionClosed = "auction.closed"
	EventOrderCreated  = "order.created"
)

// Event is the payload broadcast to WebSocket subscribers and mirrored to
// NATS. Delivery is at-most-once, best effort; the database row is the truth.
type Event struct {
	ID        string    `json:"event_id"`
	Kind      string    `json:"kind"`
	AuctionID string    `json:"auction_id"`
	BidID     string    `json:"bid_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}
