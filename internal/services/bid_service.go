package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agritrade/internal/domain"
	"agritrade/internal/events"
	applog "agritrade/internal/log"
	"agritrade/internal/repos"
)

// BidService owns the bid lifecycle: place, accept, reject. The repos run
// each transition as a single transaction; this layer adds role checks and
// the post-commit side effects (events, notifications), which are best-effort
// and never fail the transition.
type BidService struct {
	Bids   *repos.BidRepo
	Orders *repos.OrderRepo
	Notifs *repos.NotificationRepo
	Events events.Sink
	Now    func() time.Time
}

func NewBidService(bids *repos.BidRepo, orders *repos.OrderRepo, notifs *repos.NotificationRepo, sink events.Sink) *BidService {
	return &BidService{Bids: bids, Orders: orders, Notifs: notifs, Events: sink, Now: time.Now}
}

// Place submits a bid. The previous highest pending bid, if displaced, moves
// to OUTBID and its owner is notified.
func (s *BidService) Place(ctx context.Context, auctionID string, bidder *domain.User, amount, qty float64) (domain.Bid, error) {
	if bidder.Role != domain.RoleTrader {
		return domain.Bid{}, fmt.Errorf("place bid: %w", domain.ErrForbidden)
	}

	bid, outbid, err := s.Bids.Place(ctx, auctionID, bidder.ID, bidder.Name, amount, qty, s.Now())
	if err != nil {
		return domain.Bid{}, fmt.Errorf("place bid: %w", err)
	}

	s.emit(domain.Event{Kind: domain.EventBidPlaced, AuctionID: auctionID, BidID: bid.ID, UserID: bid.BidderID, Amount: bid.Amount})
	if outbid != nil {
		s.emit(domain.Event{Kind: domain.EventBidOutbid, AuctionID: auctionID, BidID: outbid.ID, UserID: outbid.BidderID, Amount: outbid.Amount})
		s.notify(ctx, outbid.BidderID, "bid_outbid", "You have been outbid",
			fmt.Sprintf("Your bid of %.2f was outbid by %.2f.", outbid.Amount, bid.Amount),
			map[string]any{"auction_id": auctionID, "bid_id": outbid.ID, "new_amount": bid.Amount})
	}
	return bid, nil
}

// Accept resolves the auction in favor of one pending bid and returns the
// created order. Calling it again for an ACCEPTED bid returns the existing
// order, not a duplicate.
func (s *BidService) Accept(ctx context.Context, bidID string, farmer *domain.User) (domain.Order, error) {
	if farmer != nil && farmer.Role != domain.RoleFarmer {
		return domain.Order{}, fmt.Errorf("accept bid: %w", domain.ErrForbidden)
	}
	actor := ""
	if farmer != nil {
		actor = farmer.ID
	}

	order, already, err := s.Bids.Accept(ctx, bidID, actor)
	if err != nil {
		return domain.Order{}, fmt.Errorf("accept bid: %w", err)
	}
	if already {
		return order, nil
	}

	s.emit(domain.Event{Kind: domain.EventBidAccepted, AuctionID: order.AuctionID, BidID: bidID, UserID: order.TraderID, Amount: order.Amount})
	s.emit(domain.Event{Kind: domain.EventAuctionClosed, AuctionID: order.AuctionID})
	s.emit(domain.Event{Kind: domain.EventOrderCreated, AuctionID: order.AuctionID, OrderID: order.ID, UserID: order.TraderID, Amount: order.TotalAmount})
	s.notify(ctx, order.TraderID, "bid_accepted", "Your bid was accepted",
		fmt.Sprintf("Your bid of %.2f was accepted. Order %s created for a total of %.2f.", order.Amount, order.ID, order.TotalAmount),
		map[string]any{"auction_id": order.AuctionID, "bid_id": bidID, "order_id": order.ID})
	return order, nil
}

// Reject marks a pending bid rejected and reports which bid, if any, was
// promoted to highest in its place.
func (s *BidService) Reject(ctx context.Context, bidID string, farmer *domain.User) (*domain.Bid, error) {
	if farmer != nil && farmer.Role != domain.RoleFarmer {
		return nil, fmt.Errorf("reject bid: %w", domain.ErrForbidden)
	}
	actor := ""
	if farmer != nil {
		actor = farmer.ID
	}

	// The repo returns the rejected row as read inside the transaction, so
	// the payload below reflects what actually committed.
	b, promoted, already, err := s.Bids.Reject(ctx, bidID, actor)
	if err != nil {
		return nil, fmt.Errorf("reject bid: %w", err)
	}
	if already {
		return nil, nil
	}

	s.emit(domain.Event{Kind: domain.EventBidRejected, AuctionID: b.AuctionID, BidID: b.ID, UserID: b.BidderID, Amount: b.Amount})
	s.notify(ctx, b.BidderID, "bid_rejected", "Your bid was rejected",
		fmt.Sprintf("Your bid of %.2f on auction %s was rejected.", b.Amount, b.AuctionID),
		map[string]any{"auction_id": b.AuctionID, "bid_id": b.ID})
	return promoted, nil
}

// ListByAuction returns all bids for an auction, highest first.
func (s *BidService) ListByAuction(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	return s.Bids.ListByAuction(ctx, auctionID)
}

func (s *BidService) ListByBidder(ctx context.Context, bidderID string) ([]domain.Bid, error) {
	return s.Bids.ListByBidder(ctx, bidderID)
}

func (s *BidService) emit(evt domain.Event) {
	if s.Events == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.At = s.Now().UTC()
	s.Events.Publish(evt)
}

// notify writes a fire-and-forget notification row. Failures are logged,
// never propagated: the transition has already committed.
func (s *BidService) notify(ctx context.Context, userID, kind, title, body string, meta map[string]any) {
	if s.Notifs == nil {
		return
	}
	var metaJSON string
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = string(b)
		}
	}
	n := domain.Notification{UserID: userID, Kind: kind, Title: title, Body: body, Metadata: metaJSON}
	if err := s.Notifs.Insert(ctx, n); err != nil {
		applog.BgError("notify.insert", err, map[string]any{"user_id": userID, "kind": kind})
	}
}
