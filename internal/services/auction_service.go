package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agritrade/internal/domain"
	applog "agritrade/internal/log"
	"agritrade/internal/repos"
)

type AuctionService struct {
	Auctions *repos.AuctionRepo
	Products *repos.ProductRepo
	BidSvc   *BidService
	Now      func() time.Time
}

func NewAuctionService(auctions *repos.AuctionRepo, products *repos.ProductRepo, bidSvc *BidService) *AuctionService {
	return &AuctionService{Auctions: auctions, Products: products, BidSvc: bidSvc, Now: time.Now}
}

type CreateAuctionInput struct {
	ProductID    string
	StartPrice   float64
	ReservePrice float64
	MinIncrement float64
	Quantity     float64
	StartTime    string // RFC3339; empty means now
	EndTime      string // RFC3339
}

func (s *AuctionService) Create(ctx context.Context, farmer *domain.User, in CreateAuctionInput) (domain.Auction, error) {
	if farmer.Role != domain.RoleFarmer {
		return domain.Auction{}, fmt.Errorf("create auction: %w", domain.ErrForbidden)
	}

	now := s.Now().UTC()
	start := in.StartTime
	if start == "" {
		start = now.Format(domain.TimeLayout)
	}
	end, err := time.Parse(domain.TimeLayout, in.EndTime)
	if err != nil || !end.After(now) {
		return domain.Auction{}, fmt.Errorf("create auction: end_time must be a future RFC3339 time: %w", domain.ErrInvalidBid)
	}

	a := domain.Auction{
		ID:           uuid.NewString(),
		ProductID:    in.ProductID,
		FarmerID:     farmer.ID,
		StartPrice:   in.StartPrice,
		CurrentPrice: in.StartPrice,
		ReservePrice: in.ReservePrice,
		MinIncrement: in.MinIncrement,
		Quantity:     in.Quantity,
		StartTime:    start,
		EndTime:      end.UTC().Format(domain.TimeLayout),
		Status:       string(domain.AuctionActive),
	}
	if err := s.Auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("create auction: %w", err)
	}
	return a, nil
}

// Get returns an auction, resolving it first if its end time has passed but
// the sweeper has not reached it yet. Readers never observe a stale ACTIVE
// auction past its end_time.
func (s *AuctionService) Get(ctx context.Context, id string) (domain.Auction, error) {
	a, err := s.Auctions.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status == string(domain.AuctionActive) && a.Expired(s.Now()) {
		if err := s.closeExpired(ctx, a); err != nil && !errors.Is(err, domain.ErrConflict) {
			return domain.Auction{}, err
		}
		return s.Auctions.Get(ctx, id)
	}
	return a, nil
}

func (s *AuctionService) List(ctx context.Context, status string, limit, offset int) ([]domain.Auction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.Auctions.List(ctx, status, limit, offset)
}

func (s *AuctionService) Cancel(ctx context.Context, id string, farmer *domain.User) error {
	if farmer.Role != domain.RoleFarmer {
		return fmt.Errorf("cancel auction: %w", domain.ErrForbidden)
	}
	rejected, err := s.Auctions.Cancel(ctx, id, farmer.ID)
	if err != nil {
		return fmt.Errorf("cancel auction: %w", err)
	}
	s.rejectedSideEffects(ctx, id, rejected, "the auction was cancelled")
	s.BidSvc.emit(domain.Event{Kind: domain.EventAuctionClosed, AuctionID: id})
	return nil
}

// rejectedSideEffects emits bid.rejected and notifies each displaced bidder
// after a close path rejected their pending bids in bulk.
func (s *AuctionService) rejectedSideEffects(ctx context.Context, auctionID string, rejected []domain.Bid, reason string) {
	for _, b := range rejected {
		s.BidSvc.emit(domain.Event{Kind: domain.EventBidRejected, AuctionID: auctionID, BidID: b.ID, UserID: b.BidderID, Amount: b.Amount})
		s.BidSvc.notify(ctx, b.BidderID, "bid_rejected", "Your bid was rejected",
			fmt.Sprintf("Your bid of %.2f on auction %s was rejected: %s.", b.Amount, auctionID, reason),
			map[string]any{"auction_id": auctionID, "bid_id": b.ID})
	}
}

// SweepExpired closes every ACTIVE auction whose end_time has passed.
// Policy: if the highest pending bid meets the reserve price, it is
// auto-accepted (an order is created as in a manual accept); otherwise the
// auction closes with no winner and pending bids are rejected. A zero
// reserve means any highest bid wins. Returns the number of auctions closed.
func (s *AuctionService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Auctions.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, a := range expired {
		if err := s.closeExpired(ctx, a); err != nil {
			// ErrConflict: a farmer or another sweep got there first.
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			applog.BgError("sweep.close", err, map[string]any{"auction_id": a.ID})
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *AuctionService) closeExpired(ctx context.Context, a domain.Auction) error {
	highest, err := s.BidSvc.Bids.HighestPending(ctx, a.ID)
	switch {
	case err == nil && highest.Amount >= a.ReservePrice:
		_, err := s.BidSvc.Accept(ctx, highest.ID, nil)
		if err != nil {
			return err
		}
		applog.BgInfo("sweep.auto_accept", map[string]any{"auction_id": a.ID, "bid_id": highest.ID, "amount": highest.Amount})
		return nil
	case err == nil || errors.Is(err, domain.ErrNotFound):
		// reserve not met, or no pending bids at all
		rejected, err := s.BidSvc.Bids.CloseNoWinner(ctx, a.ID)
		if err != nil {
			return err
		}
		s.rejectedSideEffects(ctx, a.ID, rejected, "the auction closed without a winner")
		s.BidSvc.emit(domain.Event{Kind: domain.EventAuctionClosed, AuctionID: a.ID})
		applog.BgInfo("sweep.no_winner", map[string]any{"auction_id": a.ID})
		return nil
	default:
		return err
	}
}
