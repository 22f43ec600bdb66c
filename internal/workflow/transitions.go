package workflow

import (
	"errors"

	"kds/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalStatus    = errors.New("status has no next step")
	ErrUnknownStatus     = errors.New("unknown status")
)

var orderChain = []models.OrderStatus{
	models.StatusPlaced,
	models.StatusPreparing,
	models.StatusReady,
	models.StatusDelivered,
	models.StatusCompleted,
}

var itemChain = []models.OrderItemStatus{
	models.ItemStatusOrdered,
	models.ItemStatusPreparing,
	models.ItemStatusReady,
	models.ItemStatusDelivered,
}

var orderNext = map[models.OrderStatus]models.OrderStatus{}
var itemNext = map[models.OrderItemStatus]models.OrderItemStatus{}

func init() {
	for i := 0; i < len(orderChain)-1; i++ {
		orderNext[orderChain[i]] = orderChain[i+1]
	}
	for i := 0; i < len(itemChain)-1; i++ {
		itemNext[itemChain[i]] = itemChain[i+1]
	}
}

func OrderStatuses() []models.OrderStatus {
	return append([]models.OrderStatus(nil), orderChain...)
}

func ItemStatuses() []models.OrderItemStatus {
	return append([]models.OrderItemStatus(nil), itemChain...)
}

func ValidOrderStatus(status models.OrderStatus) bool {
	for _, s := range orderChain {
		if s == status {
			return true
		}
	}
	return false
}

func ValidItemStatus(status models.OrderItemStatus) bool {
	for _, s := range itemChain {
		if s == status {
			return true
		}
	}
	return false
}

// NextOrderStatus returns the single legal successor. ok is false at the
// terminal status and for unknown statuses.
func NextOrderStatus(current models.OrderStatus) (models.OrderStatus, bool) {
	next, ok := orderNext[current]
	return next, ok
}

func NextItemStatus(current models.OrderItemStatus) (models.OrderItemStatus, bool) {
	next, ok := itemNext[current]
	return next, ok
}

// ValidOrderTransition only accepts the chain edge from -> next(from).
func ValidOrderTransition(from, to models.OrderStatus) bool {
	next, ok := NextOrderStatus(from)
	return ok && next == to
}

func ValidItemTransition(from, to models.OrderItemStatus) bool {
	next, ok := NextItemStatus(from)
	return ok && next == to
}

func IsTerminalOrderStatus(status models.OrderStatus) bool {
	return status == models.StatusCompleted
}

func IsTerminalItemStatus(status models.OrderItemStatus) bool {
	return status == models.ItemStatusDelivered
}
