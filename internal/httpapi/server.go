// Package httpapi exposes the order-management services as a JSON API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/metrics"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/validate"
)

type CatalogService interface {
	List(ctx context.Context) ([]models.Product, error)
	Create(ctx context.Context, in validate.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id int64, in validate.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
}

type OrderService interface {
	PlaceOrder(ctx context.Context, outletID int64, items []models.ItemRequest) (*models.Order, error)
	ListOrders(ctx context.Context, id auth.Identity) ([]models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error)
}

type DashboardService interface {
	Summary(ctx context.Context) (*models.DashboardSummary, error)
}

type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// IdempotencyStore binds Idempotency-Key headers to placed orders.
type IdempotencyStore interface {
	ReserveOrderKey(ctx context.Context, outletID int64, key string) (orderID int64, replay bool, err error)
	BindOrderKey(ctx context.Context, outletID int64, key string, orderID int64) error
	ReleaseOrderKey(ctx context.Context, outletID int64, key string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Catalog     CatalogService
	Orders      OrderService
	Dashboard   DashboardService
	Tokens      TokenVerifier
	Idempotency IdempotencyStore
	DB          Pinger
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// Debug includes internal error text in 500 responses.
	Debug          bool
	RequestTimeout time.Duration
}

type Server struct {
	catalog     CatalogService
	orders      OrderService
	dashboard   DashboardService
	tokens      TokenVerifier
	idempotency IdempotencyStore
	db          Pinger
	metrics     *metrics.Metrics
	logger      *slog.Logger
	debug       bool
	timeout     time.Duration
}

func New(d Deps) *Server {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		catalog:     d.Catalog,
		orders:      d.Orders,
		dashboard:   d.Dashboard,
		tokens:      d.Tokens,
		idempotency: d.Idempotency,
		db:          d.DB,
		metrics:     d.Metrics,
		logger:      d.Logger,
		debug:       d.Debug,
		timeout:     timeout,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/products", s.listProducts)
		r.Get("/orders", s.listOrders)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(models.RoleHO))
			r.Post("/products", s.createProduct)
			r.Put("/products/{id}", s.updateProduct)
			r.Delete("/products/{id}", s.deleteProduct)
			r.Put("/orders/{id}/status", s.updateOrderStatus)
			r.Get("/dashboard/summary", s.dashboardSummary)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(models.RoleOutlet))
			r.Post("/orders", s.placeOrder)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
