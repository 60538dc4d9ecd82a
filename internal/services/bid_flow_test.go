package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"agritrade/internal/domain"
	"agritrade/internal/repos"
	"agritrade/internal/services"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu   sync.Mutex
	evts []domain.Event
}

func (s *captureSink) Publish(evt domain.Event) {
	s.mu.Lock()
	s.evts = append(s.evts, evt)
	s.mu.Unlock()
}

func (s *captureSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.evts))
	for _, e := range s.evts {
		out = append(out, e.Kind)
	}
	return out
}

type env struct {
	db         *sqlx.DB
	bids       *repos.BidRepo
	orders     *repos.OrderRepo
	products   *repos.ProductRepo
	bidSvc     *services.BidService
	auctionSvc *services.AuctionService
	sink       *captureSink

	farmer  *domain.User
	trader1 *domain.User
	trader2 *domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}

	bidRepo := repos.NewBidRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	productRepo := repos.NewProductRepo(db)
	auctionRepo := repos.NewAuctionRepo(db)
	notifRepo := repos.NewNotificationRepo(db)

	sink := &captureSink{}
	bidSvc := services.NewBidService(bidRepo, orderRepo, notifRepo, sink)
	auctionSvc := services.NewAuctionService(auctionRepo, productRepo, bidSvc)

	return &env{
		db:         db,
		bids:       bidRepo,
		orders:     orderRepo,
		products:   productRepo,
		bidSvc:     bidSvc,
		auctionSvc: auctionSvc,
		sink:       sink,
		// seeded by repos.OpenDB
		farmer:  &domain.User{ID: "f-ramesh", Name: "Ramesh", Role: domain.RoleFarmer},
		trader1: &domain.User{ID: "t-arjun", Name: "Arjun", Role: domain.RoleTrader},
		trader2: &domain.User{ID: "t-meena", Name: "Meena", Role: domain.RoleTrader},
	}
}

// makeAuction lists a fresh product and opens an auction on it.
func (e *env) makeAuction(t *testing.T, startPrice, reserve, minInc float64) domain.Auction {
	t.Helper()
	ctx := context.Background()
	p, err := services.NewProductService(e.products).Create(ctx, e.farmer, "Test Wheat", "GRAIN", 10, "quintal")
	if err != nil {
		t.Fatal(err)
	}
	a, err := e.auctionSvc.Create(ctx, e.farmer, services.CreateAuctionInput{
		ProductID:    p.ID,
		StartPrice:   startPrice,
		ReservePrice: reserve,
		MinIncrement: minInc,
		Quantity:     10,
		EndTime:      time.Now().Add(time.Hour).UTC().Format(domain.TimeLayout),
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// insertPendingBid writes a pending, non-highest bid row directly. Such rows
// exist in stores migrated from systems without outbid propagation; the
// resolution transitions must handle them.
func (e *env) insertPendingBid(t *testing.T, auctionID, bidderID string, amount float64, createdAt time.Time) string {
	t.Helper()
	id := "fixture-" + bidderID + "-" + createdAt.Format("150405.000")
	e.db.MustExec(`
	  INSERT INTO bids(id, auction_id, bidder_id, bidder_name, amount, quantity, status, is_highest_bid, created_at)
	  VALUES(?, ?, ?, ?, ?, 5, 'PENDING', 0, ?)
	`, id, auctionID, bidderID, bidderID, amount, createdAt.UTC().Format(domain.TimeLayout))
	return id
}

func TestPlaceBid_BelowMinimumRejectedNoStateChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	_, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1049, 5)
	if !errors.Is(err, domain.ErrInvalidBid) {
		t.Fatalf("want ErrInvalidBid, got %v", err)
	}

	got, err := e.auctionSvc.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentPrice != 1000 || got.Version != 0 {
		t.Fatalf("rejected bid mutated auction: %+v", got)
	}
	bids, _ := e.bids.ListByAuction(ctx, a.ID)
	if len(bids) != 0 {
		t.Fatalf("rejected bid persisted: %+v", bids)
	}
}

func TestPlaceBid_OutbidThenAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b1, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !b1.IsHighestBid || b1.Status != string(domain.BidPending) {
		t.Fatalf("first bid should be pending highest: %+v", b1)
	}
	if b1.PreviousBidAmount != nil {
		t.Fatalf("first bid should have no previous amount: %+v", b1)
	}

	b2, err := e.bidSvc.Place(ctx, a.ID, e.trader2, 1200, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !b2.IsHighestBid {
		t.Fatalf("second bid should be highest: %+v", b2)
	}
	if b2.PreviousBidAmount == nil || *b2.PreviousBidAmount != 1100 {
		t.Fatalf("want previous_bid_amount=1100, got %+v", b2.PreviousBidAmount)
	}

	got1, _ := e.bids.Get(ctx, b1.ID)
	if got1.Status != string(domain.BidOutbid) || got1.IsHighestBid {
		t.Fatalf("first bid should be OUTBID: %+v", got1)
	}

	order, err := e.bidSvc.Accept(ctx, b2.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	if order.TotalAmount != 1200*5 {
		t.Fatalf("want total 6000, got %v", order.TotalAmount)
	}

	// B1 stays OUTBID; the auction ends; the product is sold.
	got1, _ = e.bids.Get(ctx, b1.ID)
	if got1.Status != string(domain.BidOutbid) {
		t.Fatalf("outbid bid should be untouched by accept: %+v", got1)
	}
	gotA, _ := e.auctionSvc.Get(ctx, a.ID)
	if gotA.Status != string(domain.AuctionEnded) {
		t.Fatalf("auction should be ENDED: %+v", gotA)
	}
	p, _ := e.products.Get(ctx, a.ProductID)
	if p.Status != string(domain.ProductSold) {
		t.Fatalf("product should be SOLD: %+v", p)
	}
}

func TestAcceptIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}

	o1, err := e.bidSvc.Accept(ctx, b.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	o2, err := e.bidSvc.Accept(ctx, b.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	if o1.ID != o2.ID {
		t.Fatalf("retry created a second order: %s vs %s", o1.ID, o2.ID)
	}
	n, err := e.orders.CountByBid(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want exactly one order, got %d", n)
	}
}

func TestAcceptCompetingPendingBidsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 0)

	b1, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}
	lowID := e.insertPendingBid(t, a.ID, e.trader2.ID, 1050, time.Now())

	if _, err := e.bidSvc.Accept(ctx, b1.ID, e.farmer); err != nil {
		t.Fatal(err)
	}

	low, _ := e.bids.Get(ctx, lowID)
	if low.Status != string(domain.BidRejected) {
		t.Fatalf("competing pending bid should be REJECTED: %+v", low)
	}

	// accepting the rejected competitor now conflicts
	_, err = e.bidSvc.Accept(ctx, lowID, e.farmer)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestAcceptWrongFarmerForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}

	other := &domain.User{ID: "f-sita", Name: "Sita", Role: domain.RoleFarmer}
	_, err = e.bidSvc.Accept(ctx, b.ID, other)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestAcceptReplayWrongFarmerForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.bidSvc.Accept(ctx, b.ID, e.farmer); err != nil {
		t.Fatal(err)
	}

	// replaying the accept as a different farmer must not leak the order
	other := &domain.User{ID: "f-sita", Name: "Sita", Role: domain.RoleFarmer}
	o, err := e.bidSvc.Accept(ctx, b.ID, other)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden for non-owner replay, got err=%v order=%+v", err, o)
	}

	// the owner's replay still works
	if _, err := e.bidSvc.Accept(ctx, b.ID, e.farmer); err != nil {
		t.Fatalf("owner replay: %v", err)
	}
	if n, _ := e.orders.CountByBid(ctx, b.ID); n != 1 {
		t.Fatalf("want exactly one order, got %d", n)
	}
}

func TestRejectPromotesNextHighest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 800, 0, 0)

	b1, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 900, 5)
	if err != nil {
		t.Fatal(err)
	}
	b2 := e.insertPendingBid(t, a.ID, e.trader2.ID, 850, time.Now())

	promoted, err := e.bidSvc.Reject(ctx, b1.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	if promoted == nil || promoted.ID != b2 {
		t.Fatalf("want %s promoted, got %+v", b2, promoted)
	}

	got, _ := e.bids.Get(ctx, b2)
	if !got.IsHighestBid || got.Status != string(domain.BidPending) {
		t.Fatalf("promoted bid not highest pending: %+v", got)
	}
	gotA, _ := e.auctionSvc.Get(ctx, a.ID)
	if gotA.CurrentPrice != 850 {
		t.Fatalf("current price should track promoted bid: %+v", gotA)
	}

	// exactly one highest pending bid
	var n int
	if err := e.db.Get(&n, `SELECT COUNT(*) FROM bids WHERE auction_id=? AND status='PENDING' AND is_highest_bid=1`, a.ID); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want exactly one highest pending bid, got %d", n)
	}
}

func TestRejectTieBreakEarliestCreated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 800, 0, 0)

	b1, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 900, 5)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	early := e.insertPendingBid(t, a.ID, e.trader2.ID, 850, base)
	_ = e.insertPendingBid(t, a.ID, e.trader2.ID, 850, base.Add(time.Minute))

	promoted, err := e.bidSvc.Reject(ctx, b1.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	if promoted == nil || promoted.ID != early {
		t.Fatalf("tie-break should pick earliest created_at, got %+v", promoted)
	}
}

func TestRejectLastPendingLeavesNoHighest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 800, 0, 0)

	b1, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 900, 5)
	if err != nil {
		t.Fatal(err)
	}
	promoted, err := e.bidSvc.Reject(ctx, b1.ID, e.farmer)
	if err != nil {
		t.Fatal(err)
	}
	if promoted != nil {
		t.Fatalf("no pending bids remain, nothing to promote: %+v", promoted)
	}

	gotA, _ := e.auctionSvc.Get(ctx, a.ID)
	if gotA.CurrentPrice != 800 {
		t.Fatalf("price should fall back to start_price: %+v", gotA)
	}

	// rejecting again is a no-op
	if _, err := e.bidSvc.Reject(ctx, b1.ID, e.farmer); err != nil {
		t.Fatalf("re-reject should be a no-op, got %v", err)
	}
}

func TestPlaceEmitsEventsAndNotifiesOutbid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	if _, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := e.bidSvc.Place(ctx, a.ID, e.trader2, 1200, 5); err != nil {
		t.Fatal(err)
	}

	kinds := e.sink.kinds()
	want := []string{domain.EventBidPlaced, domain.EventBidPlaced, domain.EventBidOutbid}
	for _, w := range want {
		found := false
		for _, k := range kinds {
			if k == w {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing event %s in %v", w, kinds)
		}
	}

	// the displaced trader got a notification row
	notifs, err := repos.NewNotificationRepo(e.db).ListForUser(ctx, e.trader1.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(notifs) != 1 || notifs[0].Kind != "bid_outbid" {
		t.Fatalf("want one bid_outbid notification, got %+v", notifs)
	}
}

func TestCancelNotifiesRejectedBidders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.auctionSvc.Cancel(ctx, a.ID, e.farmer); err != nil {
		t.Fatal(err)
	}

	gotB, _ := e.bids.Get(ctx, b.ID)
	if gotB.Status != string(domain.BidRejected) {
		t.Fatalf("pending bid should be REJECTED on cancel: %+v", gotB)
	}

	found := false
	for _, k := range e.sink.kinds() {
		if k == domain.EventBidRejected {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancel should emit bid.rejected, got %v", e.sink.kinds())
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
		t.Fatalf("cancelled auction should notify the rejected bidder, got %+v", notifs)
	}
}

func TestRejectPayloadMatchesCommittedRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 800, 0, 0)

	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 900, 5)
	if err != nil {
		t.Fatal(err)
	}
	// the row changes after the service was handed the bid id; the event must
	// carry what the rejection transaction actually saw
	e.db.MustExec(`UPDATE bids SET amount=950 WHERE id=?`, b.ID)

	if _, err := e.bidSvc.Reject(ctx, b.ID, e.farmer); err != nil {
		t.Fatal(err)
	}

	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	found := false
	for _, evt := range e.sink.evts {
		if evt.Kind == domain.EventBidRejected && evt.BidID == b.ID {
			found = true
			if evt.Amount != 950 {
				t.Fatalf("event amount should match the committed row: %+v", evt)
			}
		}
	}
	if !found {
		t.Fatal("missing bid.rejected event")
	}
}

func TestTraderCannotResolveAndFarmerCannotBid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.makeAuction(t, 1000, 0, 50)

	if _, err := e.bidSvc.Place(ctx, a.ID, e.farmer, 1100, 5); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("farmer placing bid: want ErrForbidden, got %v", err)
	}
	b, err := e.bidSvc.Place(ctx, a.ID, e.trader1, 1100, 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.bidSvc.Accept(ctx, b.ID, e.trader2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("trader accepting bid: want ErrForbidden, got %v", err)
	}
}
