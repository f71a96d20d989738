package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/online_kart/internal/metrics"
	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/internal/repo"
	"github.com/Skotchmaster/online_kart/internal/testutil"
)

type recordedEvent struct {
	topic string
	key   string
	event any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: topic, key: key, event: event})
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeStockIndex struct {
	mu    sync.Mutex
	stock map[uint]int64
}

func (f *fakeStockIndex) UpdateStock(_ context.Context, productID uint, stock int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock == nil {
		f.stock = map[uint]int64{}
	}
	f.stock[productID] = stock
	return nil
}

type declinePayments struct{}

func (declinePayments) Confirm(context.Context, *models.Order) error {
	return errors.New("card declined")
}

func newCheckout(t *testing.T) (*CheckoutService, *repo.GormRepo) {
	t.Helper()
	r := testutil.NewRepo(t)
	return &CheckoutService{
		Repo:        r,
		Metrics:     metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry()),
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	}, r
}

func TestCheckout_PaysAndDecrements(t *testing.T) {
	svc, r := newCheckout(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, r.DB, "alice")
	p1 := testutil.SeedProduct(t, r.DB, "Headphones", "99.99", 10)
	testutil.SeedCartLine(t, r.DB, u.ID, p1.ID, 2)

	order, err := svc.Checkout(ctx, u.ID, "  1 Main St  ")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, order.Status)
	assert.Equal(t, "199.98", order.TotalAmount.StringFixed(2))
	assert.Equal(t, "1 Main St", order.ShippingAddress)
	require.Len(t, order.Items, 1)
	assert.Equal(t, p1.ID, order.Items[0].ProductID)
	assert.Equal(t, uint(2), order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("99.99")))

	assert.Equal(t, int64(8), testutil.Stock(t, r.DB, p1.ID))
	assert.Equal(t, int64(0), testutil.Count(t, r.DB, &models.CartItem{}))

	stored, err := r.GetOrderForShopper(ctx, u.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, stored.Status)
	assert.Equal(t, "199.98", stored.TotalAmount.StringFixed(2))
	require.Len(t, stored.Items, 1)
}

func TestCheckout_InsufficientStockRollsBack(t *testing.T) {
	svc, r := newCheckout(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, r.DB, "alice")
	p1 := testutil.SeedProduct(t, r.DB, "Cable", "5.00", 10)
	p2 := testutil.SeedProduct(t, r.DB, "Charger", "25.00", 3)
	testutil.SeedCartLine(t, r.DB, u.ID, p1.ID, 1)
	testutil.SeedCartLine(t, r.DB, u.ID, p2.ID, 5)

	order, err := svc.Checkout(ctx, u.ID, "1 Main St")
	require.Nil(t, order)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p2.ID, stockErr.ProductID)
	assert.Equal(t, "Charger", stockErr.Title)
	assert.Equal(t, uint(5), stockErr.Requested)
	assert.Equal(t, int64(3), stockErr.Available)

	assert.Equal(t, int64(10), testutil.Stock(t, r.DB, p1.ID))
	assert.Equal(t, int64(3), testutil.Stock(t, r.DB, p2.ID))
	assert.Equal(t, int64(0), testutil.Count(t, r.DB, &models.Order{}))
	assert.Equal(t, int64(0), testutil.Count(t, r.DB, &models.OrderItem{}))
	assert.Equal(t, int64(2), testutil.Count(t, r.DB, &models.CartItem{}))
}

func TestCheckout_ReportsLowestShortProductID(t *testing.T) {
	svc, r := newCheckout(t)
	u := testutil.SeedUser(t, r.DB, "alice")
	a := testutil.SeedProduct(t, r.DB, "A", "1.00", 0)
	b := testutil.SeedProduct(t, r.DB, "B", "1.00", 0)
	testutil.SeedCartLine(t, r.DB, u.ID, b.ID, 1)
	testutil.SeedCartLine(t, r.DB, u.ID, a.ID, 1)

	_, err := svc.Checkout(context.Background(), u.ID, "addr")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, a.ID, stockErr.ProductID)
}

func TestCheckout_MissingProductCountsAsNoStock(t *testing.T) {
	svc, r := newCheckout(t)
	u := testutil.SeedUser(t, r.DB, "alice")
	testutil.SeedCartLine(t, r.DB, u.ID, 9999, 1)

	_, err := svc.Checkout(context.Background(), u.ID, "addr")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, uint(9999), stockErr.ProductID)
	assert.Equal(t, int64(0), stockErr.Available)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc, r := newCheckout(t)
	u := testutil.SeedUser(t, r.DB, "alice")

	_, err := svc.Checkout(context.Background(), u.ID, "1 Main St")
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, int64(0), testutil.Count(t, r.DB, &models.Order{}))
}

func TestCheckout_AddressValidation(t *testing.T) {
	svc, r := newCheckout(t)
	u := testutil.SeedUser(t, r.DB, "alice")
	p := testutil.SeedProduct(t, r.DB, "Pen", "1.00", 5)
	testutil.SeedCartLine(t, r.DB, u.ID, p.ID, 1)

	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"whitespace", "   \t\n"},
		{"too long", strings.Repeat("я", MaxShippingAddressLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), u.ID, tt.address)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, int64(5), testutil.Stock(t, r.DB, p.ID))
	assert.Equal(t, int64(1), testutil.Count(t, r.DB, &models.CartItem{}))

	order, err := svc.Checkout(context.Background(), u.ID, strings.Repeat("я", MaxShippingAddressLen))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)
}

func TestCheckout_PaymentFailureRollsBack(t *testing.T) {
	svc, r := newCheckout(t)
	svc.Payments = declinePayments{}
	u := testutil.SeedUser(t, r.DB, "alice")
	p := testutil.SeedProduct(t, r.DB, "Pen", "1.00", 5)
	testutil.SeedCartLine(t, r.DB, u.ID, p.ID, 2)

	_, err := svc.Checkout(context.Background(), u.ID, "addr")
	require.ErrorContains(t, err, "card declined")

	assert.Equal(t, int64(5), testutil.Stock(t, r.DB, p.ID))
	assert.Equal(t, int64(0), testutil.Count(t, r.DB, &models.Order{}))
	assert.Equal(t, int64(1), testutil.Count(t, r.DB, &models.CartItem{}))
}

func TestCheckout_UnitPriceFrozen(t *testing.T) {
	svc, r := newCheckout(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, r.DB, "alice")
	p := testutil.SeedProduct(t, r.DB, "Book", "12.00", 5)
	testutil.SeedCartLine(t, r.DB, u.ID, p.ID, 1)

	order, err := svc.Checkout(ctx, u.ID, "addr")
	require.NoError(t, err)

	_, err = r.UpdateProduct(ctx, p.ID, map[string]any{"price": decimal.RequireFromString("30.00")})
	require.NoError(t, err)

	orders := &OrderService{Repo: r}
	first, err := orders.Get(ctx, u.ID, order.ID)
	require.NoError(t, err)
	second, err := orders.Get(ctx, u.ID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, "12.00", first.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "12.00", first.TotalAmount.StringFixed(2))
	assert.Equal(t, first.TotalAmount.String(), second.TotalAmount.String())
	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, second.Items, len(first.Items))
}

func TestCheckout_ConservesStockAcrossLines(t *testing.T) {
	svc, r := newCheckout(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, r.DB, "alice")
	a := testutil.SeedProduct(t, r.DB, "A", "0.10", 4)
	b := testutil.SeedProduct(t, r.DB, "B", "0.20", 7)
	testutil.SeedCartLine(t, r.DB, u.ID, a.ID, 3)
	testutil.SeedCartLine(t, r.DB, u.ID, b.ID, 7)

	order, err := svc.Checkout(ctx, u.ID, "addr")
	require.NoError(t, err)

	assert.Equal(t, "1.70", order.TotalAmount.StringFixed(2))
	var sold uint
	for _, it := range order.Items {
		sold += it.Quantity
	}
	before := int64(4 + 7)
	after := testutil.Stock(t, r.DB, a.ID) + testutil.Stock(t, r.DB, b.ID)
	assert.Equal(t, before-int64(sold), after)
	assert.Equal(t, int64(0), testutil.Stock(t, r.DB, b.ID))
}

func TestCheckout_ConcurrentShoppersNeverOversell(t *testing.T) {
	svc, r := newCheckout(t)
	const stock, shoppers = 5, 12
	p := testutil.SeedProduct(t, r.DB, "Limited", "10.00", stock)

	users := make([]uuid.UUID, shoppers)
	for i := range users {
		u := testutil.SeedUser(t, r.DB, "shopper-"+uuid.NewString())
		testutil.SeedCartLine(t, r.DB, u.ID, p.ID, 1)
		users[i] = u.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		other     []error
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), uid, "addr")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				other = append(other, err)
			}
		}(uid)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, shoppers-stock, rejected)
	assert.Equal(t, int64(0), testutil.Stock(t, r.DB, p.ID))
	assert.Equal(t, int64(stock), testutil.Count(t, r.DB, &models.Order{}))
}

func TestCheckout_AfterCommitHooks(t *testing.T) {
	svc, r := newCheckout(t)
	pub := &fakePublisher{err: errors.New("broker down")}
	idx := &fakeStockIndex{}
	svc.Events = pub
	svc.Index = idx

	u := testutil.SeedUser(t, r.DB, "alice")
	p := testutil.SeedProduct(t, r.DB, "Lamp", "30.00", 3)
	testutil.SeedCartLine(t, r.DB, u.ID, p.ID, 2)

	order, err := svc.Checkout(context.Background(), u.ID, "addr")
	require.NoError(t, err, "publish failures must not fail a committed checkout")

	require.Len(t, pub.events, 1)
	assert.Equal(t, mykafka.TopicOrders, pub.events[0].topic)
	assert.Equal(t, u.ID.String(), pub.events[0].key)
	ev, ok := pub.events[0].event.(mykafka.OrderCreated)
	require.True(t, ok)
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, "60.00", ev.Total)
	require.Len(t, ev.Items, 1)

	assert.Equal(t, map[uint]int64{p.ID: 1}, idx.stock)
}

func TestRetryOnConflict(t *testing.T) {
	svc := &CheckoutService{MaxAttempts: 3, Backoff: time.Millisecond}
	conflict := &pgconn.PgError{Code: "40P01"}

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		err := svc.retryOnConflict(context.Background(), func(attempt int) error {
			calls++
			if attempt == 1 {
				return conflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := svc.retryOnConflict(context.Background(), func(int) error {
			calls++
			return conflict
		})
		require.ErrorIs(t, err, ErrConcurrencyConflict)
		require.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := svc.retryOnConflict(context.Background(), func(int) error {
			calls++
			return ErrEmptyCart
		})
		require.ErrorIs(t, err, ErrEmptyCart)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := &CheckoutService{MaxAttempts: 3, Backoff: time.Hour}
		err := slow.retryOnConflict(ctx, func(int) error {
			cancel()
			return conflict
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, metrics.ResultEmptyCart, resultLabel(ErrEmptyCart))
	assert.Equal(t, metrics.ResultInsufficient, resultLabel(&InsufficientStockError{ProductID: 1}))
	assert.Equal(t, metrics.ResultConflict, resultLabel(ErrConcurrencyConflict))
	assert.Equal(t, metrics.ResultError, resultLabel(errors.New("db down")))
}
