// Command franchise runs the franchise order-management API and its
// maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/safar/franchise-orders/internal/auth"
	"github.com/safar/franchise-orders/internal/cache"
	"github.com/safar/franchise-orders/internal/catalog"
	"github.com/safar/franchise-orders/internal/config"
	"github.com/safar/franchise-orders/internal/dashboard"
	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/events"
	"github.com/safar/franchise-orders/internal/httpapi"
	"github.com/safar/franchise-orders/internal/logging"
	"github.com/safar/franchise-orders/internal/metrics"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/orders"
	"github.com/safar/franchise-orders/internal/seed"
	"github.com/safar/franchise-orders/migrations"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "franchise",
		Short:         "Franchise order management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), tokenCmd())
	return cmd
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	cacheStore := cache.New(cfg.Redis)
	defer cacheStore.Close()
	if err := cacheStore.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
	}

	publisher := events.New(cfg.Kafka, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("close event publisher", slog.String("error", err.Error()))
		}
	}()

	m := metrics.New()

	api := httpapi.New(httpapi.Deps{
		Catalog:        catalog.NewService(db, cacheStore, logger),
		Orders:         orders.NewService(db, cfg.Database, publisher, cacheStore, m, logger),
		Dashboard:      dashboard.NewService(db, cacheStore, logger),
		Tokens:         auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Idempotency:    cacheStore,
		DB:             db,
		Metrics:        m,
		Logger:         logger,
		Debug:          cfg.IsDevelopment(),
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(migrations.Up), string(migrations.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, err := migrations.ParseDirection(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			db, err := database.NewConnection(&cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			n, err := migrations.Run(cmd.Context(), db, direction, logger)
			if err != nil {
				return err
			}
			logger.Info("migrations complete", slog.String("direction", string(direction)), slog.Int("files", n))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts and the starter catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			db, err := database.NewConnection(&cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			_, err = seed.Run(cmd.Context(), db, logger)
			return err
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID int64
		role   string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.Role(strings.ToLower(role))
			if !r.Valid() {
				return fmt.Errorf("invalid role %q, want ho or outlet", role)
			}
			if userID <= 0 {
				return errors.New("--user-id must be positive")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			raw, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, ttl).
				Issue(auth.Identity{UserID: userID, Name: name, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "User id placed in the token subject")
	cmd.Flags().StringVar(&role, "role", "", "Role: ho or outlet")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to AUTH_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
