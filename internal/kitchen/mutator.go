// Package kitchen moves orders and their items along the kitchen workflow.
package kitchen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"kds/internal/models"
	"kds/internal/workflow"
)

type Backend interface {
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error)
	UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error)
}

type Options struct {
	// Strict reads the current order from the backend and rejects requests
	// that skip or reverse the workflow before sending them.
	Strict bool
	Logger logrus.FieldLogger
}

// Mutator issues status changes to the backend. It never patches the
// snapshot; the change shows up with the next fetch.
type Mutator struct {
	backend Backend
	strict  bool
	log     logrus.FieldLogger
}

func New(backend Backend, opts Options) *Mutator {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Mutator{
		backend: backend,
		strict:  opts.Strict,
		log:     log,
	}
}

func (m *Mutator) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	if m.strict {
		if !workflow.ValidOrderStatus(status) {
			return models.Order{}, fmt.Errorf("%w: order status %q", workflow.ErrUnknownStatus, status)
		}
		current, err := m.currentOrder(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		if !workflow.ValidOrderTransition(current.Status, status) {
			return models.Order{}, fmt.Errorf("%w: order %s %s -> %s", workflow.ErrInvalidTransition, orderID, current.Status, status)
		}
	}
	return m.sendOrder(ctx, orderID, status)
}

func (m *Mutator) UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
	if m.strict {
		if !workflow.ValidItemStatus(status) {
			return nil, fmt.Errorf("%w: item status %q", workflow.ErrUnknownStatus, status)
		}
		order, err := m.currentOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		// An item the backend does not list is left for the backend to reject.
		if item, found := order.FindItem(itemID); found && !workflow.ValidItemTransition(item.Status, status) {
			return nil, fmt.Errorf("%w: item %s %s -> %s", workflow.ErrInvalidTransition, itemID, item.Status, status)
		}
	}
	return m.sendItem(ctx, orderID, itemID, status)
}

// AdvanceOrder moves the order to its single next status. At the terminal
// status nothing is sent.
func (m *Mutator) AdvanceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	next, ok := workflow.NextOrderStatus(order.Status)
	if !ok {
		if workflow.IsTerminalOrderStatus(order.Status) {
			return models.Order{}, fmt.Errorf("%w: order %s is %s", workflow.ErrTerminalStatus, order.ID, order.Status)
		}
		return models.Order{}, fmt.Errorf("%w: order status %q", workflow.ErrUnknownStatus, order.Status)
	}
	return m.sendOrder(ctx, order.ID, next)
}

func (m *Mutator) AdvanceItem(ctx context.Context, orderID string, item models.OrderItem) (json.RawMessage, error) {
	next, ok := workflow.NextItemStatus(item.Status)
	if !ok {
		if workflow.IsTerminalItemStatus(item.Status) {
			return nil, fmt.Errorf("%w: item %s is %s", workflow.ErrTerminalStatus, item.ID, item.Status)
		}
		return nil, fmt.Errorf("%w: item status %q", workflow.ErrUnknownStatus, item.Status)
	}
	return m.sendItem(ctx, orderID, item.ID, next)
}

func (m *Mutator) sendOrder(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	entry := m.log.WithFields(logrus.Fields{"order_id": orderID, "status": status})
	order, err := m.backend.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		entry.WithError(err).Warn("update order status failed")
		return models.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}
	entry.Info("order status updated")
	return order, nil
}

func (m *Mutator) sendItem(ctx context.Context, orderID, itemID string, status models.OrderItemStatus) (json.RawMessage, error) {
	entry := m.log.WithFields(logrus.Fields{"order_id": orderID, "item_id": itemID, "status": status})
	data, err := m.backend.UpdateItemStatus(ctx, orderID, itemID, status)
	if err != nil {
		entry.WithError(err).Warn("update item status failed")
		return nil, fmt.Errorf("update item %s: %w", itemID, err)
	}
	entry.Info("item status updated")
	return data, nil
}

// currentOrder reads the order from the backend rather than the last
// snapshot, which lags behind changes made since the previous fetch.
func (m *Mutator) currentOrder(ctx context.Context, orderID string) (models.Order, error) {
	order, err := m.backend.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}
