package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"agritrade/internal/domain"
)

type AuctionRepo struct{ db *sqlx.DB }

func NewAuctionRepo(db *sqlx.DB) *AuctionRepo { return &AuctionRepo{db: db} }

const auctionCols = `
  id, product_id, farmer_id, start_price, current_price, reserve_price,
  min_increment, quantity, start_time, end_time, status, version,
  created_at, COALESCE(updated_at,'') AS updated_at`

// Create opens an auction for a LISTED product owned by the farmer. The
// product flips to IN_AUCTION in the same transaction so it cannot be listed
// into two auctions at once.
func (r *AuctionRepo) Create(ctx context.Context, a domain.Auction) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var p domain.Product
	if err := tx.GetContext(ctx, &p, `SELECT id, farmer_id, status, quantity FROM products WHERE id=?`, a.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if p.FarmerID != a.FarmerID {
		return domain.ErrForbidden
	}
	if p.Status != string(domain.ProductListed) {
		return domain.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
	  UPDATE products SET status='IN_AUCTION', updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND status='LISTED'
	`, a.ProductID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
	  INSERT INTO auctions(id, product_id, farmer_id, start_price, current_price,
	    reserve_price, min_increment, quantity, start_time, end_time, status, version, created_at)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'ACTIVE', 0, CURRENT_TIMESTAMP)
	`, a.ID, a.ProductID, a.FarmerID, a.StartPrice, a.StartPrice,
		a.ReservePrice, a.MinIncrement, a.Quantity, a.StartTime, a.EndTime); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *AuctionRepo) Get(ctx context.Context, id string) (domain.Auction, error) {
	var a domain.Auction
	err := r.db.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, err
}

func (r *AuctionRepo) List(ctx context.Context, status string, limit, offset int) ([]domain.Auction, error) {
	where := `1=1`
	args := []any{}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}
	args = append(args, limit, offset)

	var out []domain.Auction
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+auctionCols+`
	  FROM auctions
	  WHERE `+where+`
	  ORDER BY datetime(end_time) ASC
	  LIMIT ? OFFSET ?`, args...)
	return out, err
}

// ListExpired returns ACTIVE auctions whose end_time is at or before now.
// The sweeper resolves each one individually.
func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time) ([]domain.Auction, error) {
	var out []domain.Auction
	err := r.db.SelectContext(ctx, &out, `
	  SELECT `+auctionCols+`
	  FROM auctions
	  WHERE status='ACTIVE' AND datetime(end_time) <= datetime(?)
	  ORDER BY datetime(end_time) ASC
	`, now.UTC().Format(domain.TimeLayout))
	return out, err
}

// Cancel closes an ACTIVE auction with no winner: all pending bids are
// rejected and the product returns to LISTED. Idempotent on CANCELLED.
// Returns the bids it rejected so the caller can notify their owners.
func (r *AuctionRepo) Cancel(ctx context.Context, id, farmerID string) ([]domain.Bid, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT `+auctionCols+` FROM auctions WHERE id=?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if farmerID != "" && a.FarmerID != farmerID {
		return nil, domain.ErrForbidden
	}
	if a.Status == string(domain.AuctionCancelled) {
		return nil, nil
	}
	if a.Status != string(domain.AuctionActive) {
		return nil, domain.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
	  UPDATE auctions SET status='CANCELLED', version=version+1, updated_at=CURRENT_TIMESTAMP
	  WHERE id=? AND version=?
	`, id, a.Version)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrConflict
	}

	var rejected []domain.Bid
	if err := tx.SelectContext(ctx, &rejected, `
	  SELECT `+bidCols+` FROM bids WHERE auction_id=? AND status='PENDING'`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
	  UPDATE bids SET status='REJECTED', is_highest_bid=0, updated_at=CURRENT_TIMESTAMP
	  WHERE auction_id=? AND status='PENDING'
	`, id); err != nil {
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
