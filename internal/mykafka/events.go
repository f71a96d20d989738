package mykafka

import "time"

const (
	TopicOrders   = "order_events"
	TopicCart     = "cart_events"
	TopicProducts = "product_events"
)

const (
	EventOrderCreated     = "order_created"
	EventCartItemSet      = "cart_item_set"
	EventCartItemRemoved  = "cart_item_removed"
	EventCartCleared      = "cart_cleared"
	EventProductCreated   = "product_created"
	EventProductUpdated   = "product_updated"
	EventProductRestocked = "product_restocked"
	EventProductDeleted   = "product_deleted"
)

type OrderLine struct {
	ProductID uint   `json:"product_id"`
	Quantity  uint   `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreated struct {
	Type       string      `json:"type"`
	OrderID    uint        `json:"order_id"`
	UserID     string      `json:"user_id"`
	Status     string      `json:"status"`
	Total      string      `json:"total_amount"`
	Items      []OrderLine `json:"items"`
	OccurredAt time.Time   `json:"occurred_at"`
}
