package services

import (
	"context"
	"fmt"

	"agritrade/internal/domain"
	"agritrade/internal/repos"
)

type OrderService struct {
	Orders *repos.OrderRepo
}

func NewOrderService(orders *repos.OrderRepo) *OrderService {
	return &OrderService{Orders: orders}
}

// Get returns an order if the caller is the farmer or trader on it.
func (s *OrderService) Get(ctx context.Context, id string, caller *domain.User) (domain.Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.FarmerID != caller.ID && o.TraderID != caller.ID {
		// Hide existence from non-participants.
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OrderService) ListMine(ctx context.Context, caller *domain.User) ([]domain.Order, error) {
	return s.Orders.ListForUser(ctx, caller.ID)
}

// UpdateStatus moves an order along PLACED -> SHIPPED -> DELIVERED; only the
// farmer side ships, either side may cancel a PLACED order.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string, caller *domain.User) error {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.FarmerID != caller.ID && o.TraderID != caller.ID {
		return domain.ErrNotFound
	}

	allowed := false
	switch status {
	case "SHIPPED":
		allowed = o.Status == "PLACED" && caller.ID == o.FarmerID
	case "DELIVERED":
		allowed = o.Status == "SHIPPED"
	case "CANCELLED":
		allowed = o.Status == "PLACED"
	}
	if !allowed {
		return fmt.Errorf("order %s -> %s: %w", o.Status, status, domain.ErrConflict)
	}
	return s.Orders.UpdateStatus(ctx, id, status)
}
