package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/repo"
)

type OrderService struct {
	Repo *repo.GormRepo
}

func (s *OrderService) List(ctx context.Context, userID uuid.UUID, offset, limit int) (int64, []models.Order, error) {
	return s.Repo.ListOrdersForShopper(ctx, userID, offset, limit)
}

// Get returns ErrNotFound both for missing orders and for orders of other shoppers.
func (s *OrderService) Get(ctx context.Context, userID uuid.UUID, orderID uint) (*models.Order, error) {
	order, err := s.Repo.GetOrderForShopper(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, err
	}
	return order, nil
}
