package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"agritrade/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) Create(ctx context.Context, p domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO products(id, farmer_id, name, category, quantity, unit, status, created_at)
	  VALUES(?, ?, ?, ?, ?, ?, 'LISTED', CURRENT_TIMESTAMP)
	`, p.ID, p.FarmerID, p.Name, p.Category, p.Quantity, p.Unit)
	return err
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `
	  SELECT id, farmer_id, name, category, quantity, unit, status,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, err
}

// List filters by status and/or category; empty strings match everything.
func (r *ProductRepo) List(ctx context.Context, status, category string, limit, offset int) ([]domain.Product, error) {
	where := `1=1`
	args := []any{}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}
	if category != "" {
		where += ` AND category = ?`
		args = append(args, category)
	}

	q := `
	  SELECT id, farmer_id, name, category, quantity, unit, status,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE ` + where + `
	  ORDER BY created_at DESC
	  LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var out []domain.Product
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (r *ProductRepo) ListByFarmer(ctx context.Context, farmerID string) ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.SelectContext(ctx, &out, `
	  SELECT id, farmer_id, name, category, quantity, unit, status,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE farmer_id = ?
	  ORDER BY created_at DESC
	`, farmerID)
	return out, err
}
