package domain

import "time"

// Timestamps are stored as RFC3339 UTC strings in SQLite.
const TimeLayout = time.RFC3339

type ProductStatus string

const (
	ProductListed    ProductStatus = "LISTED"
	ProductInAuction ProductStatus = "IN_AUCTION"
	ProductSold      ProductStatus = "SOLD"
)

type Product struct {
	ID        string  `db:"id" json:"id"`
	FarmerID  string  `db:"farmer_id" json:"farmer_id"`
	Name      string  `db:"name" json:"name"`
	Category  string  `db:"category" json:"category"` // GRAIN | PRODUCE | DAIRY | LIVESTOCK
	Quantity  float64 `db:"quantity" json:"quantity"`
	Unit      string  `db:"unit" json:"unit"` // kg | quintal | tonne | crate
	Status    string  `db:"status" json:"status"`
	CreatedAt string  `db:"created_at" json:"created_at"`
	UpdatedAt string  `db:"updated_at" json:"updated_at,omitempty"`
}

type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

func ValidAuctionStatus(s AuctionStatus) bool {
	switch s {
	case AuctionActive, AuctionEnded, AuctionCancelled:
		return true
	default:
		return false
	}
}

type Auction struct {
	ID           string  `db:"id" json:"id"`
	ProductID    string  `db:"product_id" json:"product_id"`
	FarmerID     string  `db:"farmer_id" json:"farmer_id"`
	StartPrice   float64 `db:"start_price" json:"start_price"`
	CurrentPrice float64 `db:"current_price" json:"current_price"`
	ReservePrice float64 `db:"reserve_price" json:"reserve_price"`
	MinIncrement float64 `db:"min_increment" json:"min_increment"`
	Quantity     float64 `db:"quantity" json:"quantity"`
	StartTime    string  `db:"start_time" json:"start_time"`
	EndTime      string  `db:"end_time" json:"end_time"`
	Status       string  `db:"status" json:"status"`
	Version      int     `db:"version" json:"-"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
	UpdatedAt    string  `db:"updated_at" json:"updated_at,omitempty"`
}

// Expired reports whether the auction's end time has passed. An unparseable
// end time counts as expired so a malformed row cannot keep accepting bids.
func (a *Auction) Expired(now time.Time) bool {
	end, err := time.Parse(TimeLayout, a.EndTime)
	if err != nil {
		return true
	}
	return !now.Before(end)
}

// MinimumBid is the lowest amount the next bid may carry.
func (a *Auction) MinimumBid() float64 {
	return a.CurrentPrice + a.MinIncrement
}

type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
	BidOutbid   BidStatus = "OUTBID"
)

func ValidBidStatus(s BidStatus) bool {
	switch s {
	case BidPending, BidAccepted, BidRejected, BidOutbid:
		return true
	default:
		return false
	}
}

type Bid struct {
	ID                string   `db:"id" json:"id"`
	AuctionID         string   `db:"auction_id" json:"auction_id"`
	BidderID          string   `db:"bidder_id" json:"bidder_id"`
	BidderName        string   `db:"bidder_name" json:"bidder_name"`
	Amount            float64  `db:"amount" json:"amount"`
	Quantity          float64  `db:"quantity" json:"quantity"`
	Status            string   `db:"status" json:"status"`
	IsHighestBid      bool     `db:"is_highest_bid" json:"is_highest_bid"`
	PreviousBidAmount *float64 `db:"previous_bid_amount" json:"previous_bid_amount,omitempty"`
	ExpiresAt         string   `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt         string   `db:"created_at" json:"created_at"`
	UpdatedAt         string   `db:"updated_at" json:"updated_at,omitempty"`
}

type Order struct {
	ID          string  `db:"id" json:"id"`
	BidID       string  `db:"bid_id" json:"bid_id"`
	AuctionID   string  `db:"auction_id" json:"auction_id"`
	ProductID   string  `db:"product_id" json:"product_id"`
	FarmerID    string  `db:"farmer_id" json:"farmer_id"`
	TraderID    string  `db:"trader_id" json:"trader_id"`
	Amount      float64 `db:"amount" json:"amount"`
	Quantity    float64 `db:"quantity" json:"quantity"`
	TotalAmount float64 `db:"total_amount" json:"total_amount"`
	Status      string  `db:"status" json:"status"` // PLACED | SHIPPED | DELIVERED | CANCELLED
	CreatedAt   string  `db:"created_at" json:"created_at"`
}

type Notification struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	Kind      string `db:"kind" json:"kind"`
	Title     string `db:"title" json:"title"`
	Body      string `db:"body" json:"body"`
	Metadata  string `db:"metadata_json" json:"metadata,omitempty"`
	Read      bool   `db:"read" json:"read"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
