package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The staff API speaks plain JSON numbers for money.
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

type OrderItemStatus string

const (
	StatusPlaced    OrderStatus = "placed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCompleted OrderStatus = "completed"
)

const (
	ItemStatusOrdered   OrderItemStatus = "ordered"
	ItemStatusPreparing OrderItemStatus = "preparing"
	ItemStatusReady     OrderItemStatus = "ready"
	ItemStatusDelivered OrderItemStatus = "delivered"
)

type Order struct {
	ID                  string          `json:"_id"`
	Table               *TableRef       `json:"table,omitempty"`
	Customer            *CustomerRef    `json:"customer,omitempty"`
	Items               []OrderItem     `json:"items"`
	Status              OrderStatus     `json:"status"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	SpecialInstructions string          `json:"specialInstructions,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt,omitzero"`
}

type OrderItem struct {
	ID                  string          `json:"_id"`
	Product             ProductRef      `json:"product"`
	Quantity            int             `json:"quantity"`
	Price               decimal.Decimal `json:"price"`
	Status              OrderItemStatus `json:"status"`
	SpecialInstructions string          `json:"specialInstructions,omitempty"`
	SelectedAddons      []SelectedAddon `json:"selectedAddons,omitempty"`
}

type SelectedAddon struct {
	Addon    AddonChoice  `json:"addon"`
	SubAddon *AddonChoice `json:"subAddon,omitempty"`
}

type AddonChoice struct {
	ID    string          `json:"_id,omitempty"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Notification struct {
	OrderID  string    `json:"orderId"`
	Order    Order     `json:"order"`
	RaisedAt time.Time `json:"raisedAt"`
}

// Age is the time elapsed since the order was placed.
func (o Order) Age(now time.Time) time.Duration {
	if o.CreatedAt.IsZero() || now.Before(o.CreatedAt) {
		return 0
	}
	return now.Sub(o.CreatedAt)
}

// IsLate reports whether an order still in the kitchen has waited longer than threshold.
func (o Order) IsLate(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	switch o.Status {
	case StatusPlaced, StatusPreparing:
		return o.Age(now) > threshold
	default:
		return false
	}
}

func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

func (o Order) FindItem(itemID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// LineTotal is quantity times unit price plus the selected addon prices.
func (i OrderItem) LineTotal() decimal.Decimal {
	unit := i.Price
	for _, selected := range i.SelectedAddons {
		unit = unit.Add(selected.Addon.Price)
		if selected.SubAddon != nil {
			unit = unit.Add(selected.SubAddon.Price)
		}
	}
	return unit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SortByCreatedAt returns a copy of orders sorted oldest first.
func SortByCreatedAt(orders []Order) []Order {
	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

func FilterByStatus(orders []Order, status OrderStatus) []Order {
	if status == "" {
		return orders
	}
	var filtered []Order
	for _, order := range orders {
		if order.Status == status {
			filtered = append(filtered, order)
		}
	}
	return filtered
}
