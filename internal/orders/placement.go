package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/events"
	"github.com/safar/franchise-orders/internal/metrics"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/store"
	"github.com/safar/franchise-orders/internal/validate"
	"github.com/shopspring/decimal"
)

// PlaceOrder creates a pending order for outletID. Either every item is
// reserved and the order with all its items is committed, or nothing changes.
//
// Prices are captured from the locked product rows, so a concurrent catalog
// edit cannot leak into an order being placed.
func (s *Service) PlaceOrder(ctx context.Context, outletID int64, items []models.ItemRequest) (*models.Order, error) {
	start := time.Now()

	if err := validate.OrderItems(items); err != nil {
		s.metrics.OrderRejected(metrics.ReasonValidation, time.Since(start))
		return nil, err
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var err error
		order, err = placeInTx(ctx, tx, outletID, items)
		return err
	})
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err), time.Since(start))
		s.logger.Info("order rejected",
			slog.Int64("outlet_id", outletID),
			slog.String("error", err.Error()))
		return nil, database.Storage("place order", err)
	}

	s.metrics.OrderPlaced(time.Since(start))
	s.logger.Info("order placed",
		slog.Int64("order_id", order.ID),
		slog.Int64("outlet_id", outletID),
		slog.String("total_price", order.TotalPrice.String()),
		slog.Int("items", len(order.Items)))

	ev, evErr := events.OrderPlaced(producerName, order)
	s.afterWrite(ctx, ev, evErr)

	return order, nil
}

func placeInTx(ctx context.Context, tx *sql.Tx, outletID int64, items []models.ItemRequest) (*models.Order, error) {
	outlet, err := store.GetUser(ctx, tx, outletID)
	if err != nil {
		return nil, err
	}
	if outlet.Role != models.RoleOutlet {
		return nil, fmt.Errorf("%w: user %d is not an outlet", database.ErrUserNotFound, outletID)
	}

	ids := distinctIDs(items)

	locked, err := store.LockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, database.ErrProductNotFound
		}
	}

	total := decimal.Zero
	drafts := make([]store.OrderItemDraft, 0, len(items))

	for _, item := range items {
		product := locked[item.ProductID]
		if item.Quantity > product.Stock {
			return nil, &database.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.Stock,
			}
		}

		if err := store.DecrementStock(ctx, tx, product.ID, item.Quantity); err != nil {
			if errors.Is(err, database.ErrInsufficientStock) {
				return nil, &database.StockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   item.Quantity,
					Available:   product.Stock,
				}
			}
			return nil, err
		}
		product.Stock -= item.Quantity

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		drafts = append(drafts, store.OrderItemDraft{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
	}

	if err := validate.OrderTotal(total); err != nil {
		return nil, err
	}

	created, err := store.InsertOrder(ctx, tx, outletID, total)
	if err != nil {
		return nil, err
	}
	for _, draft := range drafts {
		if _, err := store.InsertOrderItem(ctx, tx, created.ID, draft); err != nil {
			return nil, err
		}
	}

	return store.GetOrder(ctx, tx, created.ID)
}

// distinctIDs returns the referenced product ids in ascending order, which
// is also the order their row locks are taken in.
func distinctIDs(items []models.ItemRequest) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, database.ErrInsufficientStock):
		return metrics.ReasonStock
	case errors.Is(err, database.ErrProductNotFound), errors.Is(err, database.ErrUserNotFound):
		return metrics.ReasonNotFound
	case errors.Is(err, validate.ErrInvalid):
		return metrics.ReasonValidation
	case database.IsCanceled(err):
		return metrics.ReasonCanceled
	default:
		return metrics.ReasonStorage
	}
}
