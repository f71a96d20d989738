package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"         json:"id"`
	Username     string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:254"                     json:"email"`
	PasswordHash string    `gorm:"not null"                     json:"-"`
	Role         string    `gorm:"size:20;not null"             json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

type Category struct {
	ID        uint      `gorm:"primaryKey"                   json:"id"`
	Name      string    `gorm:"size:120;uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"size:150;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"       json:"id"`
	CategoryID  *uint           `gorm:"index"                          json:"category_id"`
	Title       string          `gorm:"size:200;not null"              json:"title"`
	Slug        string          `gorm:"size:230;uniqueIndex;not null"  json:"slug"`
	Description string          `gorm:"not null"                       json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"    json:"price"`
	Stock       int64           `gorm:"not null;check:stock >= 0"      json:"stock"`
	IsActive    bool            `gorm:"not null;index"                 json:"is_active"`
	CreatedAt   time.Time       `gorm:"index"                          json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
}

// CartItem points at a product by id only; the product may disappear or go inactive while the
// line still sits in a cart.
type CartItem struct {
	ID        uint      `gorm:"primaryKey"                                 json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_user_product;not null" json:"user_id"`
	ProductID uint      `gorm:"uniqueIndex:idx_cart_user_product;not null" json:"product_id"`
	Quantity  uint      `gorm:"not null;check:quantity > 0"                json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID              uint            `gorm:"primaryKey"                     json:"id"`
	UserID          uuid.UUID       `gorm:"type:uuid;index;not null"       json:"user_id"`
	Status          OrderStatus     `gorm:"size:20;not null;index"         json:"status"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"    json:"total_amount"`
	ShippingAddress string          `gorm:"not null"                       json:"shipping_address"`
	CreatedAt       time.Time       `gorm:"index"                          json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

type OrderItem struct {
	ID        uint            `gorm:"primaryKey"                   json:"id"`
	OrderID   uint            `gorm:"index;not null"               json:"order_id"`
	ProductID uint            `gorm:"index;not null"               json:"product_id"`
	Quantity  uint            `gorm:"not null;check:quantity > 0"  json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"  json:"unit_price"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func All() []any {
	return []any{&User{}, &Category{}, &Product{}, &CartItem{}, &Order{}, &OrderItem{}}
}
