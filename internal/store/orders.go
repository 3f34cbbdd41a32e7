package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/shopspring/decimal"
)

// OrderItemDraft is a line item whose unit price was captured while the
// product row was locked.
type OrderItemDraft struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

func InsertOrder(ctx context.Context, tx database.DBTX, outletID int64, total decimal.Decimal) (*models.Order, error) {
	order := &models.Order{OutletID: outletID}
	var status string

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (outlet_id, total_price, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING id, total_price, status, created_at, updated_at`,
		outletID, total, models.OrderStatusPending).Scan(
		&order.ID,
		&order.TotalPrice,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	order.Status = models.OrderStatus(status)

	return order, nil
}

func InsertOrderItem(ctx context.Context, tx database.DBTX, orderID int64, draft OrderItemDraft) (*models.OrderItem, error) {
	item := &models.OrderItem{
		OrderID:   orderID,
		ProductID: draft.ProductID,
		Quantity:  draft.Quantity,
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id, price, created_at, updated_at`,
		orderID, draft.ProductID, draft.Quantity, draft.Price).Scan(
		&item.ID,
		&item.Price,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create order item: %w", err)
	}

	return item, nil
}

const orderSelect = `
		SELECT o.id, o.outlet_id, o.total_price, o.status, o.created_at, o.updated_at,
		       u.name, u.email
		FROM orders o
		JOIN users u ON u.id = o.outlet_id`

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{Outlet: &models.OutletSummary{}, Items: []models.OrderItem{}}
	var status string

	err := row.Scan(
		&order.ID,
		&order.OutletID,
		&order.TotalPrice,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Outlet.Name,
		&order.Outlet.Email,
	)
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatus(status)
	order.Outlet.ID = order.OutletID

	return order, nil
}

// GetOrder loads one order with its outlet and items, each item resolved to
// its product.
func GetOrder(ctx context.Context, db database.DBTX, id int64) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := attachItems(ctx, db, []*models.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// ListOrders returns orders ordered by id. A nil outletID returns every
// order; otherwise only that outlet's orders.
func ListOrders(ctx context.Context, db database.DBTX, outletID *int64) ([]models.Order, error) {
	query := orderSelect
	var args []any
	if outletID != nil {
		query += ` WHERE o.outlet_id = $1`
		args = append(args, *outletID)
	}
	query += ` ORDER BY o.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out, nil
}

func attachItems(ctx context.Context, db database.DBTX, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, oi.created_at, oi.updated_at,
		       p.name, p.price, p.deleted_at IS NOT NULL
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`

	rows, err := db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		product := &models.ProductSummary{}
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.CreatedAt,
			&item.UpdatedAt,
			&product.Name,
			&product.Price,
			&product.Deleted,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		product.ID = item.ProductID
		item.Product = product

		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// UpdateOrderStatus overwrites the status field; any status may follow any
// other.
func UpdateOrderStatus(ctx context.Context, db database.DBTX, id int64, status models.OrderStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}
