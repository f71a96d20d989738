package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/online_kart/internal/metrics"
	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/internal/repo"
	"github.com/Skotchmaster/online_kart/pkg/logging"
)

const (
	MaxShippingAddressLen = 500

	defaultCheckoutAttempts = 2
	defaultRetryBackoff     = 25 * time.Millisecond
	afterCommitTimeout      = 5 * time.Second
)

// PaymentConfirmer decides whether a pending order may become paid. It runs inside the checkout
// transaction after stock has been taken; an error rolls the whole checkout back.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, order *models.Order) error
}

type AutoApprove struct{}

func (AutoApprove) Confirm(context.Context, *models.Order) error { return nil }

// StockIndex receives post-commit stock levels. Failures are logged and ignored.
type StockIndex interface {
	UpdateStock(ctx context.Context, productID uint, stock int64) error
}

type CheckoutService struct {
	Repo        *repo.GormRepo
	Payments    PaymentConfirmer
	Events      mykafka.Publisher
	Index       StockIndex
	Metrics     *metrics.CheckoutMetrics
	MaxAttempts int
	LockTimeout time.Duration
	Backoff     time.Duration
}

type checkoutResult struct {
	order     *models.Order
	remaining map[uint]int64
	units     uint
}

func ValidateShippingAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("shipping address is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(address) > MaxShippingAddressLen {
		return "", fmt.Errorf("shipping address longer than %d characters: %w", MaxShippingAddressLen, ErrValidation)
	}
	return address, nil
}

// Checkout turns the shopper's cart into a paid order. Stock checks, order creation, stock
// decrements, payment confirmation and cart clearing commit together or not at all.
func (s *CheckoutService) Checkout(ctx context.Context, userID uuid.UUID, shippingAddress string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "checkout", "user_id", userID.String())
	start := time.Now()
	s.Metrics.Started()

	address, err := ValidateShippingAddress(shippingAddress)
	if err != nil {
		s.Metrics.Finished(metrics.ResultValidation, time.Since(start))
		return nil, err
	}

	var res *checkoutResult
	err = s.retryOnConflict(ctx, func(attempt int) error {
		if attempt > 1 {
			s.Metrics.Retried()
			l.Info("checkout_retry", "attempt", attempt)
		}
		var err error
		res, err = s.checkoutOnce(ctx, userID, address)
		return err
	})
	if err != nil {
		s.Metrics.Finished(resultLabel(err), time.Since(start))
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			l.Info("checkout_rejected", "reason", "insufficient stock", "product_id", stockErr.ProductID,
				"requested", stockErr.Requested, "available", stockErr.Available)
		}
		return nil, err
	}

	s.Metrics.Finished(metrics.ResultPaid, time.Since(start))
	s.Metrics.UnitsSold(res.units)
	l.Info("checkout_committed", "order_id", res.order.ID, "total", res.order.TotalAmount.StringFixed(2), "lines", len(res.order.Items))

	s.afterCommit(ctx, res)
	return res.order, nil
}

func (s *CheckoutService) checkoutOnce(ctx context.Context, userID uuid.UUID, address string) (*checkoutResult, error) {
	var res *checkoutResult

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.SetLockTimeout(ctx, s.LockTimeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		lines, err := tx.LockCartLines(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		ids := make([]uint, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		byID := make(map[uint]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		// lines come back ordered by product id, so the first shortfall reported is the lowest id.
		for _, line := range lines {
			p, ok := byID[line.ProductID]
			if !ok || uint64(p.Stock) < uint64(line.Quantity) {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Title:     p.Title,
					Requested: line.Quantity,
					Available: p.Stock,
				}
			}
		}

		order := &models.Order{
			UserID:          userID,
			Status:          models.StatusPending,
			TotalAmount:     decimal.Zero,
			ShippingAddress: address,
			Items:           make([]models.OrderItem, 0, len(lines)),
		}
		total := decimal.Zero
		for _, line := range lines {
			price := byID[line.ProductID].Price
			order.Items = append(order.Items, models.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: price,
			})
			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		remaining := make(map[uint]int64, len(lines))
		var units uint
		for _, line := range lines {
			if err := tx.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, repo.ErrStockShortage) {
					p := byID[line.ProductID]
					return &InsufficientStockError{ProductID: p.ID, Title: p.Title, Requested: line.Quantity, Available: p.Stock}
				}
				return fmt.Errorf("reserve product %d: %w", line.ProductID, err)
			}
			remaining[line.ProductID] = byID[line.ProductID].Stock - int64(line.Quantity)
			units += line.Quantity
		}

		order.TotalAmount = total
		if err := s.payments().Confirm(ctx, order); err != nil {
			return fmt.Errorf("confirm payment: %w", err)
		}
		if err := tx.MarkPaid(ctx, order.ID, total); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		order.Status = models.StatusPaid

		lineIDs := make([]uint, len(lines))
		for i, line := range lines {
			lineIDs[i] = line.ID
		}
		if _, err := tx.DeleteCartLines(ctx, userID, lineIDs); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		res = &checkoutResult{order: order, remaining: remaining, units: units}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// retryOnConflict re-runs fn while it fails with a lock conflict, up to MaxAttempts runs in total.
func (s *CheckoutService) retryOnConflict(ctx context.Context, fn func(attempt int) error) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = defaultCheckoutAttempts
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !repo.IsConflict(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConcurrencyConflict, attempts, err)
}

// afterCommit publishes the order event and pushes new stock levels to the search index. The
// order is already committed, so nothing here can fail the checkout.
func (s *CheckoutService) afterCommit(ctx context.Context, res *checkoutResult) {
	l := logging.FromContext(ctx).With("svc", "checkout", "order_id", res.order.ID)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
	defer cancel()

	if s.Events != nil {
		order := res.order
		ev := mykafka.OrderCreated{
			Type:       mykafka.EventOrderCreated,
			OrderID:    order.ID,
			UserID:     order.UserID.String(),
			Status:     string(order.Status),
			Total:      order.TotalAmount.StringFixed(2),
			Items:      make([]mykafka.OrderLine, 0, len(order.Items)),
			OccurredAt: time.Now().UTC(),
		}
		for _, it := range order.Items {
			ev.Items = append(ev.Items, mykafka.OrderLine{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.StringFixed(2),
			})
		}
		if err := s.Events.PublishEvent(ctx, mykafka.TopicOrders, ev.UserID, ev); err != nil {
			l.Warn("order_event_publish_failed", "error", err)
		}
	}

	if s.Index != nil {
		for id, stock := range res.remaining {
			if err := s.Index.UpdateStock(ctx, id, stock); err != nil {
				l.Warn("search_stock_sync_failed", "product_id", id, "error", err)
			}
		}
	}
}

func (s *CheckoutService) payments() PaymentConfirmer {
	if s.Payments == nil {
		return AutoApprove{}
	}
	return s.Payments
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return metrics.ResultEmptyCart
	case errors.Is(err, ErrInsufficientStock):
		return metrics.ResultInsufficient
	case errors.Is(err, ErrValidation):
		return metrics.ResultValidation
	case errors.Is(err, ErrConcurrencyConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}
