package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/cache"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/logging"
	"github.com/safar/franchise-orders/internal/metrics"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/validate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products []models.Product
	deleted  []int64
}

func (f *fakeCatalog) List(context.Context) ([]models.Product, error) { return f.products, nil }

func (f *fakeCatalog) Create(_ context.Context, in validate.ProductInput) (*models.Product, error) {
	name, price, stock, err := validate.Product(in)
	if err != nil {
		return nil, err
	}
	return &models.Product{ID: 11, Name: name, Price: price, Stock: stock, Version: 1}, nil
}

func (f *fakeCatalog) Update(_ context.Context, id int64, in validate.ProductInput) (*models.Product, error) {
	if id != 1 {
		return nil, database.ErrProductNotFound
	}
	name, price, stock, err := validate.Product(in)
	if err != nil {
		return nil, err
	}
	return &models.Product{ID: id, Name: name, Price: price, Stock: stock, Version: 2}, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id int64) error {
	if id != 1 {
		return database.ErrProductNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeOrders struct {
	mu       sync.Mutex
	placeErr error
	placed   int
	scopes   []auth.Identity
	onPlace  func()
}

func (f *fakeOrders) PlaceOrder(_ context.Context, outletID int64, items []models.ItemRequest) (*models.Order, error) {
	if err := validate.OrderItems(items); err != nil {
		return nil, err
	}
	if f.onPlace != nil {
		f.onPlace()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed++
	return &models.Order{
		ID:         int64(100 + f.placed),
		OutletID:   outletID,
		TotalPrice: decimal.NewFromInt(75000),
		Status:     models.OrderStatusPending,
	}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, id auth.Identity) ([]models.Order, error) {
	f.scopes = append(f.scopes, id)
	return []models.Order{}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	return &models.Order{ID: id, Status: models.OrderStatusPending}, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, status string) (*models.Order, error) {
	next, err := validate.Status(status)
	if err != nil {
		return nil, err
	}
	if id != 1 {
		return nil, database.ErrOrderNotFound
	}
	return &models.Order{ID: id, Status: next}, nil
}

type fakeDashboard struct{}

func (fakeDashboard) Summary(context.Context) (*models.DashboardSummary, error) {
	return &models.DashboardSummary{TotalProducts: 10, TotalRevenue: decimal.NewFromInt(125000)}, nil
}

func memKey(outletID int64, key string) string {
	return fmt.Sprintf("%s/%d", key, outletID)
}

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (m *memoryKeys) ReserveOrderKey(_ context.Context, outletID int64, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(outletID, key)
	if id, ok := m.keys[k]; ok {
		if id == 0 {
			return 0, false, cache.ErrInFlight
		}
		return id, true, nil
	}
	m.keys[k] = 0
	return 0, false, nil
}

func (m *memoryKeys) BindOrderKey(ctx context.Context, outletID int64, key string, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[memKey(outletID, key)] = orderID
	return nil
}

func (m *memoryKeys) ReleaseOrderKey(ctx context.Context, outletID int64, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, memKey(outletID, key))
	return nil
}

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

type harness struct {
	srv     http.Handler
	tokens  *auth.Tokens
	catalog *fakeCatalog
	orders  *fakeOrders
	keys    *memoryKeys
}

func newHarness(t *testing.T, db Pinger) *harness {
	t.Helper()
	h := &harness{
		tokens:  auth.NewTokens("test-secret", "franchise-auth", time.Hour),
		catalog: &fakeCatalog{products: []models.Product{{ID: 1, Name: "Nasi Goreng Special", Price: decimal.NewFromInt(25000), Stock: 100}}},
		orders:  &fakeOrders{},
		keys:    &memoryKeys{keys: map[string]int64{}},
	}
	if db == nil {
		db = fakeDB{}
	}
	h.srv = New(Deps{
		Catalog:     h.catalog,
		Orders:      h.orders,
		Dashboard:   fakeDashboard{},
		Tokens:      h.tokens,
		Idempotency: h.keys,
		DB:          db,
		Metrics:     metrics.New(),
		Logger:      logging.Discard(),
	}).Routes()
	return h
}

func (h *harness) token(t *testing.T, role models.Role, userID int64) string {
	t.Helper()
	raw, err := h.tokens.Issue(auth.Identity{UserID: userID, Name: "test", Role: role})
	require.NoError(t, err)
	return raw
}

type result struct {
	code    int
	header  http.Header
	message string
	data    json.RawMessage
	errBody json.RawMessage
}

func (h *harness) do(t *testing.T, method, path, token, body string, headers ...string) result {
	t.Helper()
	return h.doContext(t, context.Background(), method, path, token, body, headers...)
}

func (h *harness) doContext(t *testing.T, ctx context.Context, method, path, token, body string, headers ...string) result {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequestWithContext(ctx, method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)

	res := result{code: rec.Code, header: rec.Header()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		var env struct {
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
			Error   json.RawMessage `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		res.message, res.data, res.errBody = env.Message, env.Data, env.Error
	}
	return res
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(t, http.MethodGet, "/api/products", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.code)
	assert.Equal(t, "Unauthenticated.", res.message)

	res = h.do(t, http.MethodGet, "/api/products", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, res.code)

	res = h.do(t, http.MethodGet, "/api/products", h.token(t, models.RoleOutlet, 2), "")
	assert.Equal(t, http.StatusOK, res.code)
}

func TestRoleGuards(t *testing.T) {
	h := newHarness(t, nil)
	outlet := h.token(t, models.RoleOutlet, 2)
	ho := h.token(t, models.RoleHO, 1)

	cases := []struct {
		method, path, token, body string
	}{
		{http.MethodPost, "/api/products", outlet, `{"name":"x","price":1,"stock":1}`},
		{http.MethodPut, "/api/products/1", outlet, `{"name":"x","price":1,"stock":1}`},
		{http.MethodDelete, "/api/products/1", outlet, ""},
		{http.MethodPut, "/api/orders/1/status", outlet, `{"status":"paid"}`},
		{http.MethodGet, "/api/dashboard/summary", outlet, ""},
		{http.MethodPost, "/api/orders", ho, `{"items":[{"product_id":1,"quantity":1}]}`},
	}
	for _, tc := range cases {
		res := h.do(t, tc.method, tc.path, tc.token, tc.body)
		assert.Equal(t, http.StatusForbidden, res.code, "%s %s", tc.method, tc.path)
	}
	assert.Zero(t, h.orders.placed)
	assert.Empty(t, h.catalog.deleted)
}

func TestProductEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	ho := h.token(t, models.RoleHO, 1)

	res := h.do(t, http.MethodGet, "/api/products", ho, "")
	require.Equal(t, http.StatusOK, res.code)
	var products []models.Product
	require.NoError(t, json.Unmarshal(res.data, &products))
	require.Len(t, products, 1)

	res = h.do(t, http.MethodPost, "/api/products", ho, `{"name":"Soto Betawi","price":"28000.50","stock":30}`)
	require.Equal(t, http.StatusCreated, res.code)
	var created models.Product
	require.NoError(t, json.Unmarshal(res.data, &created))
	assert.Equal(t, "Soto Betawi", created.Name)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("28000.5")))

	res = h.do(t, http.MethodPost, "/api/products", ho, `{"name":"","price":-5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	var fields map[string][]string
	require.NoError(t, json.Unmarshal(res.errBody, &fields))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
	assert.Contains(t, fields, "stock")

	res = h.do(t, http.MethodPost, "/api/products", ho, `{"name":"x","price":1,"stock":1,"sku":"A"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	res = h.do(t, http.MethodPost, "/api/products", ho, `{"name":"x","price":1,"stock":"ten"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	res = h.do(t, http.MethodPut, "/api/products/99", ho, `{"name":"x","price":1,"stock":1}`)
	assert.Equal(t, http.StatusNotFound, res.code)

	res = h.do(t, http.MethodPut, "/api/products/abc", ho, `{"name":"x","price":1,"stock":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	res = h.do(t, http.MethodDelete, "/api/products/1", ho, "")
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "Product deleted successfully", res.message)
	assert.JSONEq(t, `1`, string(mustField(t, res.data, "id")))
	assert.Equal(t, []int64{1}, h.catalog.deleted)

	res = h.do(t, http.MethodDelete, "/api/products/2", ho, "")
	assert.Equal(t, http.StatusNotFound, res.code)
}

func TestPlaceOrderResponses(t *testing.T) {
	h := newHarness(t, nil)
	outlet := h.token(t, models.RoleOutlet, 2)
	body := `{"items":[{"product_id":1,"quantity":3}]}`

	res := h.do(t, http.MethodPost, "/api/orders", outlet, body)
	require.Equal(t, http.StatusCreated, res.code)
	var order models.Order
	require.NoError(t, json.Unmarshal(res.data, &order))
	assert.Equal(t, int64(2), order.OutletID)

	res = h.do(t, http.MethodPost, "/api/orders", outlet, `{"items":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	h.orders.placeErr = &database.StockError{ProductID: 1, ProductName: "Es Teh Manis", Requested: 5, Available: 2}
	res = h.do(t, http.MethodPost, "/api/orders", outlet, body)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "Insufficient stock for product 'Es Teh Manis'. Available stock: 2", res.message)

	h.orders.placeErr = database.ErrProductNotFound
	res = h.do(t, http.MethodPost, "/api/orders", outlet, body)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	// A token whose subject no longer exists as an outlet.
	h.orders.placeErr = fmt.Errorf("%w: user 2 is not an outlet", database.ErrUserNotFound)
	res = h.do(t, http.MethodPost, "/api/orders", outlet, body)
	assert.Equal(t, http.StatusUnauthorized, res.code)
	assert.Equal(t, "Unauthenticated.", res.message)

	h.orders.placeErr = database.Storage("place order", errors.New("connection reset"))
	res = h.do(t, http.MethodPost, "/api/orders", outlet, body)
	assert.Equal(t, http.StatusInternalServerError, res.code)
	assert.Equal(t, "An error occurred while creating the order", res.message)
	assert.Empty(t, res.errBody, "internal detail hidden outside debug")
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	h := newHarness(t, nil)
	outlet := h.token(t, models.RoleOutlet, 2)
	body := `{"items":[{"product_id":1,"quantity":1}]}`

	first := h.do(t, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.code)
	assert.Empty(t, first.header.Get(headerReplay))

	second := h.do(t, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, second.code)
	assert.Equal(t, "true", second.header.Get(headerReplay))
	assert.JSONEq(t, string(mustField(t, first.data, "id")), string(mustField(t, second.data, "id")))
	assert.Equal(t, 1, h.orders.placed)

	// Another outlet using the same key places its own order.
	other := h.do(t, http.MethodPost, "/api/orders", h.token(t, models.RoleOutlet, 3), body, headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, other.code)
	assert.Empty(t, other.header.Get(headerReplay))
	assert.Equal(t, 2, h.orders.placed)

	// A failed placement frees the key for a retry.
	h.orders.placeErr = &database.StockError{ProductName: "x", Available: 0}
	res := h.do(t, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	h.orders.placeErr = nil
	res = h.do(t, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusCreated, res.code)
	assert.Empty(t, res.header.Get(headerReplay))
}

func TestPlaceOrderKeyInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.keys.keys["busy/2"] = 0

	res := h.do(t, http.MethodPost, "/api/orders", h.token(t, models.RoleOutlet, 2),
		`{"items":[{"product_id":1,"quantity":1}]}`, headerIdempotencyKey, "busy")
	assert.Equal(t, http.StatusConflict, res.code)
	assert.Zero(t, h.orders.placed)
}

func TestPlaceOrderSettlesKeyAfterClientCancel(t *testing.T) {
	h := newHarness(t, nil)
	outlet := h.token(t, models.RoleOutlet, 2)
	body := `{"items":[{"product_id":1,"quantity":1}]}`

	// The client disconnects while the order is being placed.
	place := func(key string) result {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.orders.onPlace = cancel
		return h.doContext(t, ctx, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, key)
	}

	h.orders.placeErr = &database.StockError{ProductName: "x", Available: 0}
	place("gone-1")
	assert.NotContains(t, h.keys.keys, memKey(2, "gone-1"), "failed placement must release the key")

	h.orders.placeErr = nil
	place("gone-2")
	require.Contains(t, h.keys.keys, memKey(2, "gone-2"))
	assert.Equal(t, int64(101), h.keys.keys[memKey(2, "gone-2")], "committed order must be bound to the key")

	h.orders.onPlace = nil
	res := h.do(t, http.MethodPost, "/api/orders", outlet, body, headerIdempotencyKey, "gone-2")
	require.Equal(t, http.StatusCreated, res.code)
	assert.Equal(t, "true", res.header.Get(headerReplay))
	assert.Equal(t, 1, h.orders.placed)
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}

func TestOrderQueriesAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	ho := h.token(t, models.RoleHO, 1)
	outlet := h.token(t, models.RoleOutlet, 2)

	res := h.do(t, http.MethodGet, "/api/orders", outlet, "")
	require.Equal(t, http.StatusOK, res.code)
	assert.JSONEq(t, `[]`, string(res.data))
	require.Len(t, h.orders.scopes, 1)
	assert.Equal(t, auth.Identity{UserID: 2, Name: "test", Role: models.RoleOutlet}, h.orders.scopes[0])

	res = h.do(t, http.MethodPut, "/api/orders/1/status", ho, `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, res.code)
	assert.JSONEq(t, `"shipped"`, string(mustField(t, res.data, "status")))

	res = h.do(t, http.MethodPut, "/api/orders/1/status", ho, `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)

	res = h.do(t, http.MethodPut, "/api/orders/7/status", ho, `{"status":"paid"}`)
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, "Order not found", res.message)
}

func TestDashboardEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(t, http.MethodGet, "/api/dashboard/summary", h.token(t, models.RoleHO, 1), "")
	require.Equal(t, http.StatusOK, res.code)
	assert.JSONEq(t, `10`, string(mustField(t, res.data, "total_products")))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	h.do(t, http.MethodGet, "/api/products", h.token(t, models.RoleHO, 1), "")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/products"`)

	down := newHarness(t, fakeDB{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
