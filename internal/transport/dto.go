package transport

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/online_kart/internal/models"
	"github.com/Skotchmaster/online_kart/internal/util"
)

type ErrorResponse struct {
	Detail    string `json:"detail"`
	ProductID *uint  `json:"product_id,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type CategoryResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CreateProductRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	IsActive    *bool           `json:"is_active"`
	CategoryID  *uint           `json:"category_id"`
}

type PatchProductRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	IsActive    *bool            `json:"is_active"`
	CategoryID  *uint            `json:"category_id"`
}

// ReplaceProductRequest carries every editable field; a missing category_id clears the category.
type ReplaceProductRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsActive    *bool           `json:"is_active"`
	CategoryID  *uint           `json:"category_id"`
}

type RestockRequest struct {
	Quantity uint `json:"quantity"`
}

type ProductResponse struct {
	ID          uint              `json:"id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Stock       int64             `json:"stock"`
	IsActive    bool              `json:"is_active"`
	Category    *CategoryResponse `json:"category"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type AddCartItemRequest struct {
	ProductID uint  `json:"product_id"`
	Quantity  *uint `json:"quantity"`
}

type RemoveCartItemRequest struct {
	ProductID uint `json:"product_id"`
}

type CartItemResponse struct {
	ID        uint             `json:"id"`
	ProductID uint             `json:"product_id"`
	Product   *ProductResponse `json:"product"`
	Quantity  uint             `json:"quantity"`
	LineTotal string           `json:"line_total"`
}

type CartResponse struct {
	Items    []CartItemResponse `json:"items"`
	Subtotal string             `json:"subtotal"`
}

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
}

type OrderItemResponse struct {
	ID        uint   `json:"id"`
	ProductID uint   `json:"product_id"`
	Quantity  uint   `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderResponse struct {
	ID              uint                `json:"id"`
	User            string              `json:"user"`
	Status          string              `json:"status"`
	TotalAmount     string              `json:"total_amount"`
	ShippingAddress string              `json:"shipping_address"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []OrderItemResponse `json:"items"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func NewUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Username: u.Username, Email: u.Email}
}

func NewCategoryResponse(c models.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func NewProductResponse(p models.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       Money(p.Price),
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Category != nil {
		cat := NewCategoryResponse(*p.Category)
		resp.Category = &cat
	}
	return resp
}

func NewProductResponses(ps []models.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewProductResponse(p))
	}
	return out
}

func NewOrderResponse(o models.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		User:            o.UserID.String(),
		Status:          string(o.Status),
		TotalAmount:     Money(o.TotalAmount),
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           make([]OrderItemResponse, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: Money(it.UnitPrice),
			LineTotal: Money(it.LineTotal()),
		})
	}
	return resp
}

func NewOrderResponses(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderResponse(o))
	}
	return out
}

func NewPageMeta(page, offset, limit int, total int64) PageMeta {
	return PageMeta{
		Page:       page,
		Size:       limit,
		Total:      total,
		TotalPages: util.TotalPages(total, limit),
		HasPrev:    page > 1,
		HasNext:    int64(offset+limit) < total,
	}
}
