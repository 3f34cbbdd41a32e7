// Package dashboard serves the head-office summary figures.
package dashboard

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/store"
)

type SummaryCache interface {
	Dashboard(ctx context.Context) (s *models.DashboardSummary, gen int64, err error)
	SetDashboard(ctx context.Context, gen int64, s *models.DashboardSummary) error
}

type Service struct {
	db     database.DBTX
	cache  SummaryCache
	logger *slog.Logger
}

func NewService(db *sql.DB, cache SummaryCache, logger *slog.Logger) *Service {
	return &Service{db: db, cache: cache, logger: logger.With(slog.String("component", "dashboard"))}
}

// Summary returns the cached figures when present and otherwise aggregates
// them from the database. A cache outage only costs the aggregation.
func (s *Service) Summary(ctx context.Context) (*models.DashboardSummary, error) {
	cached, gen, cacheErr := s.cache.Dashboard(ctx)
	if cacheErr != nil {
		s.logger.Warn("read dashboard cache", slog.String("error", cacheErr.Error()))
	}
	if cached != nil {
		return cached, nil
	}

	summary, err := store.DashboardSummary(ctx, s.db)
	if err != nil {
		return nil, database.Storage("dashboard summary", err)
	}

	// Without a generation there is nothing safe to write under.
	if cacheErr == nil {
		if err := s.cache.SetDashboard(ctx, gen, summary); err != nil {
			s.logger.Warn("write dashboard cache", slog.String("error", err.Error()))
		}
	}
	return summary, nil
}
