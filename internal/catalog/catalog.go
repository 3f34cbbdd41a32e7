// Package catalog manages the head-office product list.
package catalog

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/store"
	"github.com/safar/franchise-orders/internal/validate"
)

type DashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context) error
}

type Service struct {
	db     *sql.DB
	cache  DashboardInvalidator
	logger *slog.Logger
}

func NewService(db *sql.DB, cache DashboardInvalidator, logger *slog.Logger) *Service {
	return &Service{db: db, cache: cache, logger: logger.With(slog.String("component", "catalog"))}
}

func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	products, err := store.ListProducts(ctx, s.db)
	if err != nil {
		return nil, database.Storage("list products", err)
	}
	return products, nil
}

func (s *Service) Create(ctx context.Context, in validate.ProductInput) (*models.Product, error) {
	name, price, stock, err := validate.Product(in)
	if err != nil {
		return nil, err
	}

	product, err := store.CreateProduct(ctx, s.db, name, price, stock)
	if err != nil {
		return nil, database.Storage("create product", err)
	}

	s.logger.Info("product created", slog.Int64("product_id", product.ID))
	s.invalidate(ctx)
	return product, nil
}

func (s *Service) Update(ctx context.Context, id int64, in validate.ProductInput) (*models.Product, error) {
	name, price, stock, err := validate.Product(in)
	if err != nil {
		return nil, err
	}

	product, err := store.UpdateProduct(ctx, s.db, id, name, price, stock)
	if err != nil {
		return nil, database.Storage("update product", err)
	}

	s.logger.Info("product updated",
		slog.Int64("product_id", product.ID),
		slog.Int("version", product.Version))
	s.invalidate(ctx)
	return product, nil
}

// Delete hides the product from the catalog and from new orders. Existing
// order items keep referencing it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := store.DeleteProduct(ctx, s.db, id); err != nil {
		return database.Storage("delete product", err)
	}

	s.logger.Info("product deleted", slog.Int64("product_id", id))
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateDashboard(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.String("error", err.Error()))
	}
}
