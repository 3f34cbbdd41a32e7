package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/cache"
	"github.com/safar/franchise-orders/internal/models"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplay         = "Idempotent-Replay"
	maxIdempotencyKeyLen = 255
)

type placeOrderRequest struct {
	Items []models.ItemRequest `json:"items"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

var placementErrors = errorContext{
	productNotFound: http.StatusUnprocessableEntity,
	failure:         "An error occurred while creating the order",
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	orders, err := s.orders.ListOrders(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Orders retrieved successfully", orders)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := auth.FromContext(ctx)

	var req placeOrderRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, placementErrors)
		return
	}

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		key = ""
	}
	if key != "" {
		orderID, replay, err := s.idempotency.ReserveOrderKey(ctx, id.UserID, key)
		switch {
		case errors.Is(err, cache.ErrInFlight):
			s.writeError(w, r, err, placementErrors)
			return
		case err != nil:
			// Redis trouble must not block ordering; continue without the key.
			s.logger.Warn("reserve idempotency key", slog.String("error", err.Error()))
			key = ""
		case replay:
			s.replayOrder(w, r, orderID)
			return
		}
	}

	order, err := s.orders.PlaceOrder(ctx, id.UserID, req.Items)
	// The key must leave the pending state even when the client went away.
	keyCtx := context.WithoutCancel(ctx)
	if err != nil {
		if key != "" {
			if relErr := s.idempotency.ReleaseOrderKey(keyCtx, id.UserID, key); relErr != nil {
				s.logger.Warn("release idempotency key", slog.String("error", relErr.Error()))
			}
		}
		s.writeError(w, r, err, placementErrors)
		return
	}

	if key != "" {
		if err := s.idempotency.BindOrderKey(keyCtx, id.UserID, key, order.ID); err != nil {
			s.logger.Warn("bind idempotency key",
				slog.Int64("order_id", order.ID),
				slog.String("error", err.Error()))
		}
	}

	respond(w, http.StatusCreated, "Order created successfully", order)
}

func (s *Server) replayOrder(w http.ResponseWriter, r *http.Request, orderID int64) {
	order, err := s.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, r, err, placementErrors)
		return
	}
	w.Header().Set(headerReplay, "true")
	respond(w, http.StatusCreated, "Order created successfully", order)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	var req updateStatusRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	order, err := s.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Order status updated successfully", order)
}
