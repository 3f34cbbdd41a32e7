package orders

import (
	"context"
	"log/slog"

	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/events"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/store"
	"github.com/safar/franchise-orders/internal/validate"
)

// ListOrders returns every order for head office and only the caller's own
// orders for an outlet, oldest first.
func (s *Service) ListOrders(ctx context.Context, id auth.Identity) ([]models.Order, error) {
	var outletID *int64
	switch {
	case id.IsHO():
	case id.IsOutlet():
		outletID = &id.UserID
	default:
		return nil, auth.ErrForbidden
	}

	orders, err := store.ListOrders(ctx, s.db, outletID)
	if err != nil {
		return nil, database.Storage("list orders", err)
	}
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		return nil, database.Storage("get order", err)
	}
	return order, nil
}

// UpdateStatus overwrites the order status. Any member of the status set
// may follow any other, including itself.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	next, err := validate.Status(status)
	if err != nil {
		return nil, err
	}

	if err := store.UpdateOrderStatus(ctx, s.db, orderID, next); err != nil {
		return nil, database.Storage("update order status", err)
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, database.Storage("reload order", err)
	}

	s.metrics.StatusUpdated(string(next))
	s.logger.Info("order status updated",
		slog.Int64("order_id", orderID),
		slog.String("status", string(next)))

	ev, evErr := events.OrderStatusChanged(producerName, orderID, next)
	s.afterWrite(ctx, ev, evErr)

	return order, nil
}
