package store

import (
	"context"
	"fmt"

	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/models"
)

// DashboardSummary aggregates catalog and order counts without locking.
// Revenue excludes orders still pending.
func DashboardSummary(ctx context.Context, db database.DBTX) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE deleted_at IS NULL`).Scan(&summary.TotalProducts)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_price) FILTER (WHERE status <> $1), 0)
		 FROM orders`,
		string(models.OrderStatusPending)).Scan(&summary.TotalOrders, &summary.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("sum orders: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch models.OrderStatus(status) {
		case models.OrderStatusPending:
			summary.OrdersByStatus.Pending = count
		case models.OrderStatusPaid:
			summary.OrdersByStatus.Paid = count
		case models.OrderStatusShipped:
			summary.OrdersByStatus.Shipped = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summary, nil
}
