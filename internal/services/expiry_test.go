package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agritrade/internal/domain"
	"agritrade/internal/repos"
)

func TestSweepAutoAcceptsWhenReserveMet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 1050, 50) // reserve 1050

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}

	closed, err := e.auctionSvc.SweepExpired(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("want 1 auction closed, got %d", closed)
	}

	gotB, _ := e.bids.Get(ctx, b.ID)
	if gotB.Status != string(domain.BidAccepted) {
		t.Fatalf("highest bid should be auto-accepted: %+v", gotB)
	}
	o, err := e.orders.GetByBid(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if o.TotalAmount != 1100*5 {
		t.Fatalf("want total 5500, got %v", o.TotalAmount)
	}
	p, _ := e.products.Get(ctx, a.ProductID)
	if p.Status != string(domain.ProductSold) {
		t.Fatalf("product should be SOLD: %+v", p)
	}
}

func TestSweepClosesNoWinnerWhenReserveNotMet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 2000, 50) // reserve well above any bid

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}

	closed, err := e.auctionSvc.SweepExpired(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("want 1 auction closed, got %d", closed)
	}

	gotB, _ := e.bids.Get(ctx, b.ID)
	if gotB.Status != string(domain.BidRejected) {
		t.Fatalf("pending bid should be rejected on close: %+v", gotB)
	}
	if n, _ := e.orders.CountByBid(ctx, b.ID); n != 0 {
		t.Fatalf("no order should exist, got %d", n)
	}
	// unsold product returns to the listing pool
	p, _ := e.products.Get(ctx, a.ProductID)
	if p.Status != string(domain.ProductListed) {
		t.Fatalf("product should return to LISTED: %+v", p)
	}
	gotA, _ := e.auctionSvc.Get(ctx, a.ID)
	if gotA.Status != string(domain.AuctionEnded) {
		t.Fatalf("auction should be ENDED: %+v", gotA)
	}

	// the losing bidder hears about it
	found := false
	for _, k := range e.sink.kinds() {
		if k == domain.EventBidRejected {
			found = true
		}
	}
	if !found {
		t.Fatalf("no-winner close should emit bid.rejected, got %v", e.sink.kinds())
	}
	notifs, err := repos.NewNotificationRepo(e.db).ListForUser(ctx, e.trader1.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	found = false
	for _, n := range notifs {
		if n.Kind == "bid_rejected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no-winner close should notify the rejected bidder, got %+v", notifs)
	}
}

func TestSweepWithNoBidsClosesQuietly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	closed, err := e.auctionSvc.SweepExpired(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("want 1 auction closed, got %d", closed)
	}
	gotA, _ := e.auctionSvc.Get(ctx, a.ID)
	if gotA.Status != string(domain.AuctionEnded) {
		t.Fatalf("auction should be ENDED: %+v", gotA)
	}
}

func TestGetResolvesExpiredAuctionOnRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	e.auctionSvc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	got, err := e.auctionSvc.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(domain.AuctionEnded) {
		t.Fatalf("reader observed stale ACTIVE auction: %+v", got)
	}
}

func TestBidOnExpiredAuctionRejectedAtCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	// the auction row still says ACTIVE, but the clock has passed end_time
	e.bidSvc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().Add(2 * time.Hour)
	if _, err := e.auctionSvc.SweepExpired(ctx, now); err != nil {
		t.Fatal(err)
	}
	closed, err := e.auctionSvc.SweepExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("second sweep should close nothing, got %d", closed)
	}
	if n, _ := e.orders.CountByBid(ctx, b.ID); n != 1 {
		t.Fatalf("want exactly one order after repeated sweeps, got %d", n)
	}
}
