package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"agritrade/internal/domain"
)

type BidRepo struct{ db *sqlx.DB }

func NewBidRepo(db *sqlx.DB) *BidRepo { return &BidRepo{db: db} }

const bidCols = `
  id, auction_id, bidder_id, bidder_name, amount, quantity, status,
  is_highest_bid, previous_bid_amount, COALESCE(expires_at,'') AS expires_at,
  created_at, COALESCE(updated_at,'') AS updated_at`

// Next-highest ordering: amount DESC, then earliest created_at, then id as
// the final deterministic tie-break.
const nextHighestOrder = ` ORDER BY amount DESC, created_at ASC, id ASC`

func (r *BidRepo) Get(ctx context.Context, id string) (domain.Bid, error) {
	var b domain.Bid
	err := r.db.GetContext(ctx, &b, `SELECT `+bidCols+` FROM bids WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	return b, err
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	var out []domain.Bid
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+bidCols+` FROM bids WHERE auction_id = ?`+nextHighestOrder, auctionID)
	return out, err
}

func (r *BidRepo) ListByBidder(ctx context.Context, bidderID string) ([]domain.Bid, error) {
	var out []domain.Bid
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+bidCols+` FROM bids WHERE bidder_id = ? ORDER BY created_at DESC`, bidderID)
	return out, err
}

// Place inserts a new highest bid for an auction. All preconditions are
// rechecked inside the transaction so a bid in flight when the auction ends
// fails at commit time, not just at dispatch time. Returns the stored bid and
// the previously-highest bid that was moved to OUTBID, if any.
func (r *BidRepo) Place(ctx context.Context, auctionID, bidderID, bidderName string, amount, qty float64, now time.Time) (domain.Bid, *domain.Bid, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return domain.Bid{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id=?`, auctionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bid{}, nil, domain.ErrNotFound
		}
		return domain.Bid{}, nil, err
	}
	if a.Status != string(domain.AuctionActive) || a.Expired(now) {
		return domain.Bid{}, nil, domain.ErrConflict
	}
	if amount < a.MinimumBid() {
		return domain.Bid{}, nil, domain.ErrInvalidBid
	}
	if qty <= 0 || qty > a.Quantity {
		return domain.Bid{}, nil, domain.ErrInvalidBid
	}

	// Optimistic version check: a concurrent place/accept/reject on the same
	// auction bumped version and this write loses.
	res, err := tx.ExecContext(ctx, `
	  UPDATE auctions SET current_price=?, version=version+1, updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND version=? AND status='ACTIVE'
	`, amount, auctionID, a.Version)
	if err != nil {
		return domain.Bid{}, nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Bid{}, nil, domain.ErrConflict
	}

	// Demote the current highest pending bid before inserting the new one;
	// the partial unique index allows only one pending highest per auction.
	var outbid *domain.Bid
	var prev domain.Bid
	err = tx.GetContext(ctx, &prev, `
	  SELECT `+bidCols+` FROM bids
	  WHERE auction_id=? AND status='PENDING' AND is_highest_bid=1
	`, auctionID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
		  UPDATE bids SET status='OUTBID', is_highest_bid=0, updated_at=CURRENT_TIMESTAMP
		  WHERE id=?
		`, prev.ID); err != nil {
			return domain.Bid{}, nil, err
		}
		prev.Status = string(domain.BidOutbid)
		prev.IsHighestBid = false
		outbid = &prev
	case errors.Is(err, sql.ErrNoRows):
		// first bid on the auction
	default:
		return domain.Bid{}, nil, err
	}

	b := domain.Bid{
		ID:           uuid.NewString(),
		AuctionID:    auctionID,
		BidderID:     bidderID,
		BidderName:   bidderName,
		Amount:       amount,
		Quantity:     qty,
		Status:       string(domain.BidPending),
		IsHighestBid: true,
		ExpiresAt:    a.EndTime,
		CreatedAt:    now.UTC().Format(domain.TimeLayout),
	}
	if outbid != nil {
		v := outbid.Amount
		b.PreviousBidAmount = &v
	}
	if _, err := tx.ExecContext(ctx, `
	  INSERT INTO bids(id, auction_id, bidder_id, bidder_name, amount, quantity,
	    status, is_highest_bid, previous_bid_amount, expires_at, created_at)
	  VALUES(?, ?, ?, ?, ?, ?, 'PENDING', 1, ?, ?, ?)
	`, b.ID, b.AuctionID, b.BidderID, b.BidderName, b.Amount, b.Quantity,
		b.PreviousBidAmount, b.ExpiresAt, b.CreatedAt); err != nil {
		return domain.Bid{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Bid{}, nil, err
	}
	return b, outbid, nil
}

// Accept resolves an auction in favor of one pending bid. The transition is
// all-or-nothing: accept the bid, reject the other pending bids, end the
// auction, mark the product sold and create the order in one transaction.
// Re-accepting an ACCEPTED bid returns the existing order with already=true.
// actorFarmerID="" skips the ownership check (expiry sweep).
func (r *BidRepo) Accept(ctx context.Context, bidID, actorFarmerID string) (domain.Order, bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return domain.Order{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var b domain.Bid
	if err := tx.GetContext(ctx, &b, `SELECT `+bidCols+` FROM bids WHERE id=?`, bidID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, false, domain.ErrNotFound
		}
		return domain.Order{}, false, err
	}

	// Ownership is checked before the replay branch: a non-owner must not
	// learn the stored order by re-accepting someone else's resolved bid.
	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id=?`, b.AuctionID); err != nil {
		return domain.Order{}, false, err
	}
	if actorFarmerID != "" && a.FarmerID != actorFarmerID {
		return domain.Order{}, false, domain.ErrForbidden
	}

	if b.Status == string(domain.BidAccepted) {
		var o domain.Order
		if err := tx.GetContext(ctx, &o, `SELECT * FROM orders WHERE bid_id=?`, bidID); err != nil {
			return domain.Order{}, false, err
		}
		return o, true, nil
	}
	if b.Status != string(domain.BidPending) {
		return domain.Order{}, false, domain.ErrConflict
	}
	if a.Status != string(domain.AuctionActive) {
		return domain.Order{}, false, domain.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
	  UPDATE auctions SET status='ENDED', current_price=?, version=version+1, updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND version=? AND status='ACTIVE'
	`, b.Amount, a.ID, a.Version)
	if err != nil {
		return domain.Order{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Order{}, false, domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
	  UPDATE bids SET status='ACCEPTED', updated_at=CURRENT_TIMESTAMP WHERE id=?
	`, b.ID); err != nil {
		return domain.Order{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE bids SET status='REJECTED', is_highest_bid=0, updated_at=CURRENT_TIMESTAMP
	  WHERE auction_id=? AND status='PENDING' AND id<>?
	`, a.ID, b.ID); err != nil {
		return domain.Order{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE products SET status='SOLD', updated_at=CURRENT_TIMESTAMP WHERE id=?
	`, a.ProductID); err != nil {
		return domain.Order{}, false, err
	}

	o := domain.Order{
		ID:          uuid.NewString(),
		BidID:       b.ID,
		AuctionID:   a.ID,
		ProductID:   a.ProductID,
		FarmerID:    a.FarmerID,
		TraderID:    b.BidderID,
		Amount:      b.Amount,
		Quantity:    b.Quantity,
		TotalAmount: b.Amount * b.Quantity,
		Status:      "PLACED",
	}
	if _, err := tx.ExecContext(ctx, `
	  INSERT INTO orders(id, bid_id, auction_id, product_id, farmer_id, trader_id,
	    amount, quantity, total_amount, status, created_at)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 'PLACED', CURRENT_TIMESTAMP)
	`, o.ID, o.BidID, o.AuctionID, o.ProductID, o.FarmerID, o.TraderID,
		o.Amount, o.Quantity, o.TotalAmount); err != nil {
		return domain.Order{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, false, err
	}
	return o, false, nil
}

// Reject marks a pending bid rejected. If it held the highest flag, the next
// pending bid per nextHighestOrder is promoted and the auction's current
// price tracks it (falling back to start_price when none remain).
// Re-rejecting a REJECTED bid is a no-op with already=true. The returned
// rejected row is the one read inside the transaction, so event and
// notification payloads cannot go stale under concurrent writers.
func (r *BidRepo) Reject(ctx context.Context, bidID, actorFarmerID string) (domain.Bid, *domain.Bid, bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return domain.Bid{}, nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var b domain.Bid
	if err := tx.GetContext(ctx, &b, `SELECT `+bidCols+` FROM bids WHERE id=?`, bidID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bid{}, nil, false, domain.ErrNotFound
		}
		return domain.Bid{}, nil, false, err
	}
	if b.Status == string(domain.BidRejected) {
		return b, nil, true, nil
	}
	if b.Status != string(domain.BidPending) {
		return domain.Bid{}, nil, false, domain.ErrConflict
	}

	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id=?`, b.AuctionID); err != nil {
		return domain.Bid{}, nil, false, err
	}
	if actorFarmerID != "" && a.FarmerID != actorFarmerID {
		return domain.Bid{}, nil, false, domain.ErrForbidden
	}
	if a.Status != string(domain.AuctionActive) {
		return domain.Bid{}, nil, false, domain.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
	  UPDATE auctions SET version=version+1, updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND version=?
	`, a.ID, a.Version)
	if err != nil {
		return domain.Bid{}, nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Bid{}, nil, false, domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
	  UPDATE bids SET status='REJECTED', is_highest_bid=0, updated_at=CURRENT_TIMESTAMP WHERE id=?
	`, b.ID); err != nil {
		return domain.Bid{}, nil, false, err
	}
	wasHighest := b.IsHighestBid
	b.Status = string(domain.BidRejected)
	b.IsHighestBid = false

	var promoted *domain.Bid
	newPrice := a.CurrentPrice
	if wasHighest {
		var next domain.Bid
		err := tx.GetContext(ctx, &next, `
		  SELECT `+bidCols+` FROM bids
		  WHERE auction_id=? AND status='PENDING'`+nextHighestOrder+` LIMIT 1
		`, a.ID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
			  UPDATE bids SET is_highest_bid=1, updated_at=CURRENT_TIMESTAMP WHERE id=?
			`, next.ID); err != nil {
				return domain.Bid{}, nil, false, err
			}
			next.IsHighestBid = true
			promoted = &next
			newPrice = next.Amount
		case errors.Is(err, sql.ErrNoRows):
			newPrice = a.StartPrice
		default:
			return domain.Bid{}, nil, false, err
		}

		if _, err := tx.ExecContext(ctx, `
		  UPDATE auctions SET current_price=?, updated_at=CURRENT_TIMESTAMP WHERE id=?
		`, newPrice, a.ID); err != nil {
			return domain.Bid{}, nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Bid{}, nil, false, err
	}
	return b, promoted, false, nil
}

// HighestPending returns the current highest pending bid for an auction, or
// ErrNotFound when no pending bids remain.
func (r *BidRepo) HighestPending(ctx context.Context, auctionID string) (domain.Bid, error) {
	var b domain.Bid
	err := r.db.GetContext(ctx, &b, `
	  SELECT `+bidCols+` FROM bids
	  WHERE auction_id=? AND status='PENDING' AND is_highest_bid=1
	`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	return b, err
}

// CloseNoWinner ends an expired auction whose reserve was not met: all
// pending bids are rejected and the product returns to LISTED. Returns the
// bids it rejected so the caller can notify their owners.
func (r *BidRepo) CloseNoWinner(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id=?`, auctionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if a.Status != string(domain.AuctionActive) {
		return nil, domain.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
	  UPDATE auctions SET status='ENDED', version=version+1, updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND version=? AND status='ACTIVE'
	`, a.ID, a.Version)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrConflict
	}

	var rejected []domain.Bid
	if err := tx.SelectContext(ctx, &rejected, `
	  SELECT `+bidCols+` FROM bids WHERE auction_id=? AND status='PENDING'`+nextHighestOrder,
		a.ID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE bids SET status='REJECTED', is_highest_bid=0, updated_at=CURRENT_TIMESTAMP
	  WHERE auction_id=? AND status='PENDING'
	`, a.ID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE products SET status='LISTED', updated_at=CURRENT_TIMESTAMP WHERE id=?
	`, a.ProductID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range rejected {
		rejected[i].Status = string(domain.BidRejected)
		rejected[i].IsHighestBid = false
	}
	return rejected, nil
}
