// Package orders places orders atomically against locked stock and serves
// role-scoped order queries and status updates.
package orders

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/safar/franchise-orders/internal/config"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/events"
	"github.com/safar/franchise-orders/internal/metrics"
)

const producerName = "franchise-orders"

// DashboardInvalidator drops the cached dashboard after a write.
type DashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context) error
}

type Service struct {
	db      *sql.DB
	txOpts  database.TxOptions
	events  events.Publisher
	cache   DashboardInvalidator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(
	db *sql.DB,
	cfg config.DatabaseConfig,
	pub events.Publisher,
	cache DashboardInvalidator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	opts := database.DefaultTxOptions()
	opts.LockTimeout = cfg.LockTimeout
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	return &Service{
		db:      db,
		txOpts:  opts,
		events:  pub,
		cache:   cache,
		metrics: m,
		logger:  logger.With(slog.String("component", "orders")),
	}
}

// afterWrite runs the side effects of a committed write. Failures are
// logged only; the database already holds the result.
func (s *Service) afterWrite(ctx context.Context, ev events.Envelope, buildErr error) {
	if err := s.cache.InvalidateDashboard(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.String("error", err.Error()))
	}

	if buildErr != nil {
		s.logger.Error("build event", slog.String("error", buildErr.Error()))
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event",
			slog.String("event_type", ev.EventType),
			slog.String("correlation_id", ev.CorrelationID),
			slog.String("error", err.Error()))
	}
}
