package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"agritrade/internal/domain"
	"agritrade/internal/repos"
)

type ProductService struct {
	Products *repos.ProductRepo
}

func NewProductService(products *repos.ProductRepo) *ProductService {
	return &ProductService{Products: products}
}

func (s *ProductService) Create(ctx context.Context, farmer *domain.User, name, category string, qty float64, unit string) (domain.Product, error) {
	if farmer.Role != domain.RoleFarmer {
		return domain.Product{}, fmt.Errorf("create product: %w", domain.ErrForbidden)
	}
	p := domain.Product{
		ID:       uuid.NewString(),
		FarmerID: farmer.ID,
		Name:     name,
		Category: category,
		Quantity: qty,
		Unit:     unit,
		Status:   string(domain.ProductListed),
	}
	if err := s.Products.Create(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.Products.Get(ctx, id)
}

func (s *ProductService) List(ctx context.Context, status, category string, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.Products.List(ctx, status, category, limit, offset)
}
