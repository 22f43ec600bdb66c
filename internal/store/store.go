package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kds/internal/models"
)

const (
	EventOrderStatusChanged = "order.status_changed"
	EventItemStatusChanged  = "order.item_status_changed"
	EventOrderPlaced        = "order.placed"
)

type AddonInput struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	SubAddon *AddonInput
}

type ItemInput struct {
	ProductID           string
	ProductName         string
	Quantity            int
	Price               decimal.Decimal
	SpecialInstructions string
	Addons              []AddonInput
}

type CreateOrderInput struct {
	TableID             string
	TableNumber         int
	CustomerID          string
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	SpecialInstructions string
	Items               []ItemInput
	CreatedAt           time.Time
}

type OrderStatusInput struct {
	OrderID    string
	Status     models.OrderStatus
	OccurredAt time.Time
}

type ItemStatusInput struct {
	OrderID    string
	ItemID     string
	Status     models.OrderItemStatus
	OccurredAt time.Time
}

// OrderEvent is one row of the order audit trail.
type OrderEvent struct {
	EventID    string    `json:"eventId"`
	OrderID    string    `json:"orderId"`
	ItemID     string    `json:"itemId,omitempty"`
	Type       string    `json:"type"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus"`
	CreatedAt  time.Time `json:"createdAt"`
}

type OrderStore interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (models.Order, OrderEvent, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	ListActiveOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, input OrderStatusInput) (models.Order, OrderEvent, error)
	UpdateItemStatus(ctx context.Context, input ItemStatusInput) (models.Order, OrderEvent, error)
	ListOrderEvents(ctx context.Context, orderID string) ([]OrderEvent, error)
}

// OrderTotal sums the line totals of the items.
func OrderTotal(items []ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		unit := item.Price
		for _, addon := range item.Addons {
			unit = unit.Add(addon.Price)
			if addon.SubAddon != nil {
				unit = unit.Add(addon.SubAddon.Price)
			}
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
