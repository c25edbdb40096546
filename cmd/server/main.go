// Package main is the entry point for the idempotency-shield server.
// It initializes all dependencies and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alex-necsoiu/idempotency-shield/internal/config"
	"github.com/alex-necsoiu/idempotency-shield/internal/events"
	"github.com/alex-necsoiu/idempotency-shield/internal/idempotency"
	"github.com/alex-necsoiu/idempotency-shield/internal/middleware"
	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
	httpTransport "github.com/alex-necsoiu/idempotency-shield/internal/transport/http"
	"github.com/alex-necsoiu/idempotency-shield/internal/vault"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.AppEnv, "idempotency-shield")
	logger.Info("Starting idempotency-shield")
	logger.WithFields(map[string]interface{}{
		"environment": cfg.AppEnv,
		"http_port":   cfg.Server.Port,
		"backend":     cfg.Idempotency.Backend,
	}).Info("Configuration loaded")

	ctx := context.Background()

	var vaultClient *vault.Client
	if cfg.Vault.Enabled {
		logger.WithFields(map[string]interface{}{
			"vault_addr":  cfg.Vault.Addr,
			"secret_path": cfg.Vault.SecretPath,
		}).Info("Initializing Vault client")

		vaultClient, err = vault.NewClient(cfg.Vault.Addr, cfg.Vault.Token)
		if err != nil {
			logger.WithField("error", err.Error()).Fatal("Failed to initialize Vault client")
		}

		if !vaultClient.IsAvailable(ctx) {
			logger.Warn("Vault is configured but not available, falling back to environment variables")
		}
	} else {
		logger.Info("Vault integration disabled, using environment variables for secrets")
		vaultClient = vault.NewDisabledClient()
	}

	if err := cfg.LoadSecretsFromVault(ctx, vaultClient); err != nil {
		logger.WithField("error", err.Error()).Fatal("Failed to load secrets from Vault")
	}

	store, sweeper, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("Failed to initialize idempotency store")
	}
	defer closeStore()

	eventPublisher := buildEventPublisher(cfg, logger)
	if eventPublisher != nil {
		defer func() {
			if err := eventPublisher.Close(); err != nil {
				logger.WithField("error", err.Error()).Error("Failed to close event publisher")
			}
		}()
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Tracing.Enabled {
		tracerCfg := observability.TracerConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: "1.0.0",
			Environment:    cfg.AppEnv,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			Enabled:        cfg.Tracing.Enabled,
			SampleRate:     cfg.Tracing.SampleRate,
		}

		tracerProvider, err = observability.NewTracerProvider(ctx, tracerCfg)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Failed to initialize tracer provider, continuing without tracing")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
					logger.WithField("error", err.Error()).Error("Failed to shutdown tracer provider")
				}
			}()
			logger.Info("OpenTelemetry tracer initialized")
		}
	} else {
		logger.Info("OpenTelemetry tracing is disabled")
	}

	metrics := idempotency.NewMetrics("idempotency_shield", "core")
	opts := idempotency.DefaultOptions()
	opts.HeaderName = cfg.Idempotency.HeaderName
	opts.DefaultExpiryMinutes = cfg.Idempotency.DefaultExpiryMinutes
	opts.LockTTL = cfg.Idempotency.LockTTL
	opts.WaitBudget = cfg.Idempotency.WaitBudget
	opts.MaxBodySize = cfg.Idempotency.MaxBodySizeBytes
	opts.StorageRetryCount = cfg.Idempotency.StorageRetryCount
	opts.StorageRetryDelay = cfg.Idempotency.StorageRetryDelay
	if cfg.Idempotency.FailOpen {
		opts.FailureMode = idempotency.FailOpen
	}

	coordinator := idempotency.NewCoordinator(store, opts, logger, metrics)
	if eventPublisher != nil {
		coordinator.WithEventPublisher(eventPublisher)
	}

	ginMode := "release"
	if cfg.IsDevelopment() {
		ginMode = "debug"
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimitClient := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rateLimiter = middleware.NewRateLimiter(rateLimitClient, middleware.RateLimiterConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
			WindowDuration:    time.Minute,
		})
		defer rateLimitClient.Close()
		logger.WithField("requests_per_minute", cfg.RateLimit.RequestsPerMinute).Info("Rate limiting enabled for demo endpoints")
	}

	metricsCollector := observability.NewMetricsCollector("idempotency_shield", "http")

	router := httpTransport.SetupRouter(httpTransport.RouterDeps{
		Coordinator: coordinator,
		Sweeper:     sweeper,
		Logger:      logger,
		AdminToken:  cfg.Server.AdminToken,
		Backend:     cfg.Idempotency.Backend,
		Mode:        ginMode,
		RateLimiter: rateLimiter,
		Metrics:     metricsCollector,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.WithField("address", addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if sweeper != nil {
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err.Error()).Error("Server forced to shutdown")
		}
		if sweeper != nil {
			sweeper.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithField("error", err.Error()).Fatal("Server exited with error")
	}
	logger.Info("Server stopped gracefully")
}

// buildStore selects the Store backend named by cfg.Idempotency.Backend and
// its accompanying Sweeper, if the backend supports expiry sweeping.
func buildStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (idempotency.Store, *idempotency.Sweeper, func(), error) {
	switch cfg.Idempotency.Backend {
	case "memory":
		return idempotency.NewMemoryStore(), nil, func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := idempotency.NewRedisStore(client)
		sweeper := idempotency.NewRedisSweeper(cfg.Idempotency.SweepInterval, logger)
		return store, sweeper, func() { _ = client.Close() }, nil

	case "postgres":
		poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}

		store := idempotency.NewPostgresStore(pool)
		sweeper := idempotency.NewPostgresSweeper(pool, cfg.Idempotency.SweepInterval, logger)
		return store, sweeper, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}

// buildEventPublisher wires a Redis Streams publisher for idempotency
// lifecycle events. A Redis-unreachable deployment simply runs without one;
// event publishing is observability, not part of the at-most-once guarantee.
func buildEventPublisher(cfg *config.Config, logger *observability.Logger) *events.RedisEventPublisher {
	redisAddr := cfg.GetRedisAddr()
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to connect to Redis, event publishing disabled")
		return nil
	}

	var zapLogger *zap.Logger
	var err error
	if cfg.IsProduction() {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to create zap logger for event publisher")
		return nil
	}

	logger.WithField("redis_addr", redisAddr).Info("Event publisher initialized")
	return events.NewRedisEventPublisher(client, zapLogger)
}
