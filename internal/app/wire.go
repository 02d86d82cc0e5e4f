package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/avelinsk/swapflow/internal/blob/s3"
	"github.com/avelinsk/swapflow/internal/cache/redis"
	"github.com/avelinsk/swapflow/internal/config"
	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/engine"
	"github.com/avelinsk/swapflow/internal/notify"
	"github.com/avelinsk/swapflow/internal/queue"
	"github.com/avelinsk/swapflow/internal/server"
	"github.com/avelinsk/swapflow/internal/server/handler"
	"github.com/avelinsk/swapflow/internal/server/ws"
	"github.com/avelinsk/swapflow/internal/service"
	"github.com/avelinsk/swapflow/internal/store/postgres"
	"github.com/avelinsk/swapflow/internal/venue"
)

// Dependencies bundles every component the application runs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	OrderStore domain.OrderStore
	Cache      domain.ActiveOrderCache
	SignalBus  domain.SignalBus
	Limiter    domain.RateLimiter
	Router     domain.Router
	Notifier   *notify.Notifier

	Engine   *engine.Engine
	Queue    *queue.Queue
	Orders   *service.OrderService
	Hub      *ws.Hub
	Server   *server.Server
	Archiver *s3blob.Archiver // nil when archiving is disabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.OrderStore = postgres.NewOrderStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	cacheTTL := time.Duration(cfg.Redis.CacheTTLSecs) * time.Second
	deps.Cache = redis.NewActiveOrderCache(redisClient, cacheTTL)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)

	// --- Venue router ---
	switch cfg.Venue.Mode {
	case "live":
		var endpoints []venue.Endpoint
		if cfg.Venue.RaydiumURL != "" {
			endpoints = append(endpoints, venue.Endpoint{Venue: domain.VenueRaydium, BaseURL: cfg.Venue.RaydiumURL})
		}
		if cfg.Venue.MeteoraURL != "" {
			endpoints = append(endpoints, venue.Endpoint{Venue: domain.VenueMeteora, BaseURL: cfg.Venue.MeteoraURL})
		}
		deps.Router = venue.NewLive(endpoints)
	default:
		deps.Router = venue.NewSimulated(venue.SimConfig{
			RaydiumSuccessRate: cfg.Venue.RaydiumSuccessRate,
			MeteoraSuccessRate: cfg.Venue.MeteoraSuccessRate,
			ProcessingDelay:    time.Duration(cfg.Venue.ProcessingMs) * time.Millisecond,
			Seed:               cfg.Venue.Seed,
		})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Execution pipeline ---
	deps.Engine = engine.New(engine.Config{
		CallTimeout: time.Duration(cfg.Queue.CallTimeoutSecs) * time.Second,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, deps.Router, deps.OrderStore, deps.Cache, deps.SignalBus, deps.Notifier, logger)

	deps.Queue = queue.New(queue.Config{
		Workers:         cfg.Queue.Workers,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		BaseBackoff:     time.Duration(cfg.Queue.BaseBackoffMs) * time.Millisecond,
		MaxBackoff:      time.Duration(cfg.Queue.MaxBackoffMs) * time.Millisecond,
		RateLimitMax:    cfg.Queue.RateLimitMax,
		RateLimitWindow: time.Duration(cfg.Queue.RateLimitWindowSecs) * time.Second,
	}, deps.Engine, deps.Limiter, logger)

	deps.Orders = service.NewOrderService(deps.OrderStore, deps.Cache, deps.Queue, logger)

	// --- API surface ---
	deps.Hub = ws.NewHub(deps.SignalBus, logger)
	deps.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: handler.NewHealthHandler(logger),
		Orders: handler.NewOrderHandler(deps.Orders, logger),
	}, deps.Hub, logger)

	// --- S3 archive (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.OrderStore,
			time.Duration(cfg.Archive.IntervalMins)*time.Minute,
			logger,
		)
	}

	return deps, cleanup, nil
}
