package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"kds/internal/models"
	"kds/internal/store"
	"kds/internal/workflow"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `
	order_id::text, table_id, table_number, customer_id, customer_name, customer_email, customer_phone,
	status, total_amount::text, special_instructions, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, input store.CreateOrderInput) (models.Order, store.OrderEvent, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	orderID := uuid.NewString()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			order_id, table_id, table_number, customer_id, customer_name, customer_email, customer_phone,
			status, total_amount, special_instructions, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::text::numeric,$10,$11,$11)
	`, orderID, nullIfEmpty(input.TableID), nullIfZero(input.TableNumber), nullIfEmpty(input.CustomerID),
		nullIfEmpty(input.CustomerName), nullIfEmpty(input.CustomerEmail), nullIfEmpty(input.CustomerPhone),
		models.StatusPlaced, store.OrderTotal(input.Items).String(), input.SpecialInstructions, createdAt)
	if err != nil {
		return models.Order{}, store.OrderEvent{}, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range input.Items {
		itemID := uuid.NewString()
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				item_id, order_id, position, product_id, product_name, quantity, price, status, special_instructions
			) VALUES ($1,$2,$3,$4,$5,$6,$7::text::numeric,$8,$9)
		`, itemID, orderID, i, item.ProductID, item.ProductName, item.Quantity, item.Price.String(),
			models.ItemStatusOrdered, item.SpecialInstructions)
		if err != nil {
			return models.Order{}, store.OrderEvent{}, fmt.Errorf("insert item: %w", err)
		}
		for j, addon := range item.Addons {
			var subID, subName, subPrice any
			if addon.SubAddon != nil {
				subID = addon.SubAddon.ID
				subName = addon.SubAddon.Name
				subPrice = addon.SubAddon.Price.String()
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO order_item_addons (
					item_id, position, addon_id, addon_name, addon_price, sub_addon_id, sub_addon_name, sub_addon_price
				) VALUES ($1,$2,$3,$4,$5::text::numeric,$6,$7,$8::text::numeric)
			`, itemID, j, addon.ID, addon.Name, addon.Price.String(), subID, subName, subPrice)
			if err != nil {
				return models.Order{}, store.OrderEvent{}, fmt.Errorf("insert addon: %w", err)
			}
		}
	}

	event, err := insertEvent(ctx, tx, store.OrderEvent{
		OrderID:   orderID,
		Type:      store.EventOrderPlaced,
		ToStatus:  string(models.StatusPlaced),
		CreatedAt: createdAt,
	})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}

	order, err := getOrder(ctx, tx, orderID)
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	return order, event, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	if err := validateID(orderID); err != nil {
		return models.Order{}, err
	}
	return getOrder(ctx, s.pool, orderID)
}

// ListActiveOrders returns every order not yet completed, oldest first.
func (s *Store) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	return listOrders(ctx, s.pool, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status <> $1
		ORDER BY created_at, order_id
	`, models.StatusCompleted)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, input store.OrderStatusInput) (models.Order, store.OrderEvent, error) {
	if err := validateID(input.OrderID); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE order_id = $1 FOR UPDATE`, input.OrderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, store.OrderEvent{}, store.ErrOrderNotFound
		}
		return models.Order{}, store.OrderEvent{}, err
	}
	from := models.OrderStatus(current)
	if !workflow.ValidOrderTransition(from, input.Status) {
		return models.Order{}, store.OrderEvent{}, fmt.Errorf("%w: %s -> %s", workflow.ErrInvalidTransition, from, input.Status)
	}

	if _, err = tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE order_id = $1
	`, input.OrderID, input.Status, occurredAt); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}

	event, err := insertEvent(ctx, tx, store.OrderEvent{
		OrderID:    input.OrderID,
		Type:       store.EventOrderStatusChanged,
		FromStatus: string(from),
		ToStatus:   string(input.Status),
		CreatedAt:  occurredAt,
	})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}

	order, err := getOrder(ctx, tx, input.OrderID)
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	return order, event, nil
}

func (s *Store) UpdateItemStatus(ctx context.Context, input store.ItemStatusInput) (models.Order, store.OrderEvent, error) {
	if err := validateID(input.OrderID); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	if err := validateID(input.ItemID); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE order_id = $1 FOR UPDATE`, input.OrderID).Scan(&orderStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, store.OrderEvent{}, store.ErrOrderNotFound
		}
		return models.Order{}, store.OrderEvent{}, err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status FROM order_items WHERE item_id = $1 AND order_id = $2 FOR UPDATE
	`, input.ItemID, input.OrderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, store.OrderEvent{}, store.ErrItemNotFound
		}
		return models.Order{}, store.OrderEvent{}, err
	}
	from := models.OrderItemStatus(current)
	if !workflow.ValidItemTransition(from, input.Status) {
		return models.Order{}, store.OrderEvent{}, fmt.Errorf("%w: %s -> %s", workflow.ErrInvalidTransition, from, input.Status)
	}

	if _, err = tx.Exec(ctx, `UPDATE order_items SET status = $2 WHERE item_id = $1`, input.ItemID, input.Status); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	if _, err = tx.Exec(ctx, `UPDATE orders SET updated_at = $2 WHERE order_id = $1`, input.OrderID, occurredAt); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}

	event, err := insertEvent(ctx, tx, store.OrderEvent{
		OrderID:    input.OrderID,
		ItemID:     input.ItemID,
		Type:       store.EventItemStatusChanged,
		FromStatus: string(from),
		ToStatus:   string(input.Status),
		CreatedAt:  occurredAt,
	})
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}

	order, err := getOrder(ctx, tx, input.OrderID)
	if err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, store.OrderEvent{}, err
	}
	return order, event, nil
}

func (s *Store) ListOrderEvents(ctx context.Context, orderID string) ([]store.OrderEvent, error) {
	if err := validateID(orderID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id::text, order_id::text, item_id::text, type, from_status, to_status, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at, event_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OrderEvent
	for rows.Next() {
		var event store.OrderEvent
		var itemID, fromStatus sql.NullString
		if err := rows.Scan(&event.EventID, &event.OrderID, &itemID, &event.Type, &fromStatus, &event.ToStatus, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.ItemID = itemID.String
		event.FromStatus = fromStatus.String
		events = append(events, event)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, tx pgx.Tx, event store.OrderEvent) (store.OrderEvent, error) {
	event.EventID = uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO order_events (event_id, order_id, item_id, type, from_status, to_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.EventID, event.OrderID, nullIfEmpty(event.ItemID), event.Type, nullIfEmpty(event.FromStatus), event.ToStatus, event.CreatedAt)
	if err != nil {
		return store.OrderEvent{}, fmt.Errorf("insert order event: %w", err)
	}
	return event, nil
}

func getOrder(ctx context.Context, q querier, orderID string) (models.Order, error) {
	orders, err := listOrders(ctx, q, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if len(orders) == 0 {
		return models.Order{}, store.ErrOrderNotFound
	}
	return orders[0], nil
}

func listOrders(ctx context.Context, q querier, query string, args ...any) ([]models.Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		var tableID, customerID, customerName, customerEmail, customerPhone sql.NullString
		var tableNumber sql.NullInt32
		var total string
		if err := rows.Scan(&order.ID, &tableID, &tableNumber, &customerID, &customerName, &customerEmail, &customerPhone,
			&order.Status, &total, &order.SpecialInstructions, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		if tableID.Valid || tableNumber.Valid {
			order.Table = &models.TableRef{ID: tableID.String, Number: int(tableNumber.Int32)}
		}
		if customerID.Valid {
			order.Customer = &models.CustomerRef{
				ID:    customerID.String,
				Name:  customerName.String,
				Email: customerEmail.String,
				Phone: customerPhone.String,
			}
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		order.TotalAmount = amount
		order.Items = []models.OrderItem{}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// attachItems loads items and their addons for all orders in two queries.
func attachItems(ctx context.Context, q querier, orders []models.Order) error {
	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT item_id::text, order_id::text, product_id, product_name, quantity, price::text, status, special_instructions
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return err
	}
	type itemRef struct {
		order int
		item  int
	}
	var itemIDs []string
	items := make(map[string]itemRef)
	for rows.Next() {
		var item models.OrderItem
		var orderID, price string
		if err := rows.Scan(&item.ID, &orderID, &item.Product.ID, &item.Product.Name, &item.Quantity, &price, &item.Status, &item.SpecialInstructions); err != nil {
			rows.Close()
			return err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			rows.Close()
			return fmt.Errorf("parse price: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
		items[item.ID] = itemRef{order: i, item: len(orders[i].Items) - 1}
		itemIDs = append(itemIDs, item.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		return nil
	}

	rows, err = q.Query(ctx, `
		SELECT item_id::text, addon_id, addon_name, addon_price::text, sub_addon_id, sub_addon_name, sub_addon_price::text
		FROM order_item_addons
		WHERE item_id = ANY($1::uuid[])
		ORDER BY item_id, position
	`, itemIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, addonPrice string
		var selected models.SelectedAddon
		var subID, subName, subPrice sql.NullString
		if err := rows.Scan(&itemID, &selected.Addon.ID, &selected.Addon.Name, &addonPrice, &subID, &subName, &subPrice); err != nil {
			return err
		}
		if selected.Addon.Price, err = decimal.NewFromString(addonPrice); err != nil {
			return fmt.Errorf("parse addon price: %w", err)
		}
		if subName.Valid {
			sub := &models.AddonChoice{ID: subID.String, Name: subName.String}
			if subPrice.Valid {
				if sub.Price, err = decimal.NewFromString(subPrice.String); err != nil {
					return fmt.Errorf("parse sub-addon price: %w", err)
				}
			}
			selected.SubAddon = sub
		}
		ref, ok := items[itemID]
		if !ok {
			continue
		}
		item := &orders[ref.order].Items[ref.item]
		item.SelectedAddons = append(item.SelectedAddons, selected)
	}
	return rows.Err()
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", store.ErrInvalidID, id)
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZero(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
