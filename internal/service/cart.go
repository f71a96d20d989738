package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/internal/repo"
)

type CartService struct {
	Repo   *repo.GormRepo
	Events mykafka.Publisher
}

type CartLine struct {
	Item      models.CartItem
	Product   *models.Product
	LineTotal decimal.Decimal
}

type Cart struct {
	Lines    []CartLine
	Subtotal decimal.Decimal
}

// GetCart returns the lines with their current product rows. A line whose product has been
// deleted is listed with a nil product and a zero line total.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	items, err := s.Repo.CartLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.Repo.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	cart := &Cart{Lines: make([]CartLine, 0, len(items)), Subtotal: decimal.Zero}
	for _, it := range items {
		line := CartLine{Item: it, LineTotal: decimal.Zero}
		if p, ok := products[it.ProductID]; ok {
			line.Product = &p
			line.LineTotal = p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		}
		cart.Subtotal = cart.Subtotal.Add(line.LineTotal)
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

// SetItem sets the quantity of a product in the cart. The product has to be active and have at
// least that much stock right now; checkout checks stock again under lock.
func (s *CartService) SetItem(ctx context.Context, userID uuid.UUID, productID, quantity uint) (*models.CartItem, error) {
	if productID == 0 {
		return nil, fmt.Errorf("product_id is required: %w", ErrValidation)
	}
	if quantity == 0 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrValidation)
	}

	product, err := s.Repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("product %d is inactive: %w", productID, ErrNotFound)
	}
	if uint64(product.Stock) < uint64(quantity) {
		return nil, &InsufficientStockError{ProductID: product.ID, Title: product.Title, Requested: quantity, Available: product.Stock}
	}

	item, err := s.Repo.UpsertCartLine(ctx, userID, productID, quantity)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.Events, mykafka.TopicCart, userID.String(), map[string]any{
		"type":       mykafka.EventCartItemSet,
		"user_id":    userID.String(),
		"product_id": productID,
		"quantity":   quantity,
	})
	return item, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID uuid.UUID, productID uint) error {
	if productID == 0 {
		return fmt.Errorf("product_id is required: %w", ErrValidation)
	}
	removed, err := s.Repo.RemoveCartLine(ctx, userID, productID)
	if err != nil {
		return err
	}
	if removed {
		publish(ctx, s.Events, mykafka.TopicCart, userID.String(), map[string]any{
			"type":       mykafka.EventCartItemRemoved,
			"user_id":    userID.String(),
			"product_id": productID,
		})
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	n, err := s.Repo.ClearCart(ctx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		publish(ctx, s.Events, mykafka.TopicCart, userID.String(), map[string]any{
			"type":    mykafka.EventCartCleared,
			"user_id": userID.String(),
		})
	}
	return nil
}
