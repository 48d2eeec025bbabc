package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/checkout"
	"github.com/ktsaryk/eventhub/internal/clock"
	"github.com/ktsaryk/eventhub/internal/config"
	"github.com/ktsaryk/eventhub/internal/postgres"
	redisx "github.com/ktsaryk/eventhub/internal/redis"
	postgresrepo "github.com/ktsaryk/eventhub/internal/repository/postgres"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
	"github.com/ktsaryk/eventhub/internal/service"
	"github.com/ktsaryk/eventhub/internal/service/booking"
	"github.com/ktsaryk/eventhub/internal/service/payment"
	httpgin "github.com/ktsaryk/eventhub/internal/transport/http/gin"
	"github.com/ktsaryk/eventhub/migrations"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	pubsub     *redisx.BookingsPubSub
	cache      *redisrepo.Cache
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if err := migrations.Apply(context.Background(), pgxPool); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewBookingsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl", cfg.Booking.RateLimit, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	var provider checkout.Provider
	if cfg.Checkout.SessionURL != "" {
		provider = checkout.NewHTTPProvider(cfg.Checkout.SessionURL)
	}

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, provider, clock.NewSystem(), service.Config{
		Booking: booking.Config{PendingTTL: cfg.Booking.PendingTTL},
		Payment: payment.Config{
			SuccessURL: cfg.Checkout.SuccessURL,
			CancelURL:  cfg.Checkout.CancelURL,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		pubsub:   pubsub,
		cache:    cache,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	// Reclaimer: sweep pending bookings past their TTL so their held capacity
	// goes back to the pool.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Booking.ReclaimInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				n, err := a.services.Booking.Expire(gCtx)
				if err != nil {
					a.logger.Error("reclaimer sweep failed", "error", err)
					continue
				}
				if n > 0 {
					a.logger.Info("reclaimed abandoned bookings", "expired", n)
				}
			}
		}
	})

	// Drop local cached reads when another instance mutates a booking.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID uuid.UUID) {
			_ = a.cache.InvalidateEvent(ctx, eventID)
		})
		if err != nil && gCtx.Err() == nil {
			a.logger.Error("pubsub subscription ended", "error", err)
		}
		return nil
	})

	return g.Wait()
}
