package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_kart/internal/service"
	"github.com/Skotchmaster/online_kart/internal/transport"
	"github.com/Skotchmaster/online_kart/pkg/logging"
)

type CartHTTP struct {
	Svc    *service.CartService
	Engine *service.CheckoutService
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get")

	userID, err := GetID(c)
	if err != nil {
		l.Warn("get_cart_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	return h.renderCart(c, l, userID)
}

func (h *CartHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_item")

	userID, err := GetID(c)
	if err != nil {
		l.Warn("add_item_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	quantity := uint(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	if _, err := h.Svc.SetItem(ctx, userID, req.ProductID, quantity); err != nil {
		var stockErr *service.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			l.Warn("add_item_error", "status", 400, "reason", "insufficient stock", "product_id", stockErr.ProductID)
			return c.JSON(http.StatusBadRequest, transport.ErrorResponse{
				Detail:    "Not enough stock available.",
				ProductID: &stockErr.ProductID,
			})
		case errors.Is(err, service.ErrValidation):
			l.Warn("add_item_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			l.Warn("add_item_error", "status", 404, "product_id", req.ProductID)
			return echo.NewHTTPError(http.StatusNotFound, "Product not found or inactive.")
		}
		l.Error("add_item_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return h.renderCart(c, l, userID)
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_item")

	userID, err := GetID(c)
	if err != nil {
		l.Warn("remove_item_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.RemoveCartItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("remove_item_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.RemoveItem(ctx, userID, req.ProductID); err != nil {
		if errors.Is(err, service.ErrValidation) {
			l.Warn("remove_item_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("remove_item_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return h.renderCart(c, l, userID)
}

func (h *CartHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear")

	userID, err := GetID(c)
	if err != nil {
		l.Warn("clear_cart_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := h.Svc.Clear(ctx, userID); err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("clear_cart_success", "user_id", userID)
	return c.JSON(http.StatusOK, transport.DetailResponse{Detail: "Cart cleared."})
}

func (h *CartHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.checkout")

	userID, err := GetID(c)
	if err != nil {
		l.Warn("checkout_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Engine.Checkout(ctx, userID, req.ShippingAddress)
	if err != nil {
		var stockErr *service.InsufficientStockError
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("checkout_error", "status", 400, "reason", "validation", "error", err)
			return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Detail: "Shipping address is required and must be at most 500 characters."})
		case errors.Is(err, service.ErrEmptyCart):
			l.Warn("checkout_error", "status", 400, "reason", "empty cart")
			return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Detail: "Cart is empty."})
		case errors.As(err, &stockErr):
			l.Warn("checkout_error", "status", 400, "reason", "insufficient stock", "product_id", stockErr.ProductID)
			return c.JSON(http.StatusBadRequest, transport.ErrorResponse{
				Detail:    insufficientStockDetail(stockErr),
				ProductID: &stockErr.ProductID,
			})
		case errors.Is(err, service.ErrConcurrencyConflict):
			l.Warn("checkout_error", "status", 409, "reason", "concurrency conflict", "error", err)
			return c.JSON(http.StatusConflict, transport.ErrorResponse{Detail: "Checkout conflicted with another order, please retry."})
		}
		l.Error("checkout_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Detail: "internal error"})
	}

	l.Info("checkout_success", "order_id", order.ID)
	return c.JSON(http.StatusCreated, transport.NewOrderResponse(*order))
}

func insufficientStockDetail(e *service.InsufficientStockError) string {
	if e.Title == "" {
		return fmt.Sprintf("Insufficient stock for product %d", e.ProductID)
	}
	return "Insufficient stock for " + e.Title
}

func (h *CartHTTP) renderCart(c echo.Context, l *slog.Logger, userID uuid.UUID) error {
	cart, err := h.Svc.GetCart(c.Request().Context(), userID)
	if err != nil {
		l.Error("render_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	resp := transport.CartResponse{
		Items:    make([]transport.CartItemResponse, 0, len(cart.Lines)),
		Subtotal: transport.Money(cart.Subtotal),
	}
	for _, line := range cart.Lines {
		item := transport.CartItemResponse{
			ID:        line.Item.ID,
			ProductID: line.Item.ProductID,
			Quantity:  line.Item.Quantity,
			LineTotal: transport.Money(line.LineTotal),
		}
		if line.Product != nil {
			p := transport.NewProductResponse(*line.Product)
			item.Product = &p
		}
		resp.Items = append(resp.Items, item)
	}
	return c.JSON(http.StatusOK, resp)
}
