// Package cache keeps the dashboard summary and order idempotency keys in
// Redis. PostgreSQL stays the source of truth; every entry here can be lost.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/franchise-orders/internal/config"
	"github.com/safar/franchise-orders/internal/models"
)

// ErrInFlight reports an idempotency key whose first request has not finished.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// reserveTTL bounds how long a crashed request can hold a key in the pending state.
const reserveTTL = time.Minute

type Store interface {
	// Dashboard returns the summary cached for the current generation, nil
	// on a miss. SetDashboard must be given the generation Dashboard
	// reported before the summary was computed, so a summary aggregated
	// before an invalidation is never served after it.
	Dashboard(ctx context.Context) (s *models.DashboardSummary, gen int64, err error)
	SetDashboard(ctx context.Context, gen int64, s *models.DashboardSummary) error
	InvalidateDashboard(ctx context.Context) error

	// ReserveOrderKey claims key for outletID. It returns the order id an
	// earlier request already bound to the key, if any.
	ReserveOrderKey(ctx context.Context, outletID int64, key string) (orderID int64, replay bool, err error)
	BindOrderKey(ctx context.Context, outletID int64, key string, orderID int64) error
	ReleaseOrderKey(ctx context.Context, outletID int64, key string) error

	Ping(ctx context.Context) error
	Close() error
}

type Redis struct {
	rdb            *redis.Client
	dashboardTTL   time.Duration
	idempotencyTTL time.Duration
}

// New connects to Redis, or returns a Nop store when no address is configured.
func New(cfg config.RedisConfig) Store {
	if cfg.Addr == "" {
		return Nop{}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewRedis(rdb, cfg.DashboardTTL, cfg.IdempotencyTTL)
}

func NewRedis(rdb *redis.Client, dashboardTTL, idempotencyTTL time.Duration) *Redis {
	return &Redis{rdb: rdb, dashboardTTL: dashboardTTL, idempotencyTTL: idempotencyTTL}
}

func (c *Redis) Dashboard(ctx context.Context) (*models.DashboardSummary, int64, error) {
	gen, err := c.rdb.Get(ctx, keyDashboardGeneration).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("get dashboard generation: %w", err)
	}

	raw, err := c.rdb.Get(ctx, dashboardKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get dashboard: %w", err)
	}

	var s models.DashboardSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, 0, fmt.Errorf("decode dashboard: %w", err)
	}
	return &s, gen, nil
}

// SetDashboard stores s under gen. A write for a generation that has since
// been invalidated lands on a key nobody reads and ages out with the TTL.
func (c *Redis) SetDashboard(ctx context.Context, gen int64, s *models.DashboardSummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	if err := c.rdb.Set(ctx, dashboardKey(gen), raw, c.dashboardTTL).Err(); err != nil {
		return fmt.Errorf("set dashboard: %w", err)
	}
	return nil
}

func (c *Redis) InvalidateDashboard(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, keyDashboardGeneration).Err(); err != nil {
		return fmt.Errorf("invalidate dashboard: %w", err)
	}
	return nil
}

func (c *Redis) ReserveOrderKey(ctx context.Context, outletID int64, key string) (int64, bool, error) {
	k := idemKey(outletID, key)

	ok, err := c.rdb.SetNX(ctx, k, idemPending, reserveTTL).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return 0, false, nil
	}

	val, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = c.rdb.SetNX(ctx, k, idemPending, reserveTTL).Result()
		if err != nil {
			return 0, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return 0, false, nil
		}
		return 0, false, ErrInFlight
	}
	if err != nil {
		return 0, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == idemPending {
		return 0, false, ErrInFlight
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency key %q: %w", k, err)
	}
	return orderID, true, nil
}

func (c *Redis) BindOrderKey(ctx context.Context, outletID int64, key string, orderID int64) error {
	err := c.rdb.Set(ctx, idemKey(outletID, key), strconv.FormatInt(orderID, 10), c.idempotencyTTL).Err()
	if err != nil {
		return fmt.Errorf("bind idempotency key: %w", err)
	}
	return nil
}

func (c *Redis) ReleaseOrderKey(ctx context.Context, outletID int64, key string) error {
	if err := c.rdb.Del(ctx, idemKey(outletID, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}

// Nop is the Store used without Redis: nothing is cached and idempotency
// keys are ignored.
type Nop struct{}

func (Nop) Dashboard(context.Context) (*models.DashboardSummary, int64, error)  { return nil, 0, nil }
func (Nop) SetDashboard(context.Context, int64, *models.DashboardSummary) error { return nil }
func (Nop) InvalidateDashboard(context.Context) error                           { return nil }
func (Nop) ReserveOrderKey(context.Context, int64, string) (int64, bool, error) {
	return 0, false, nil
}
func (Nop) BindOrderKey(context.Context, int64, string, int64) error { return nil }
func (Nop) ReleaseOrderKey(context.Context, int64, string) error     { return nil }
func (Nop) Ping(context.Context) error                               { return nil }
func (Nop) Close() error                                             { return nil }
