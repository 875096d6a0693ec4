package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-fruver/internal/auth"
	"github.com/noah-isme/backend-fruver/internal/cache"
	"github.com/noah-isme/backend-fruver/internal/cart"
	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/checkout"
	"github.com/noah-isme/backend-fruver/internal/config"
	"github.com/noah-isme/backend-fruver/internal/db"
	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
	"github.com/noah-isme/backend-fruver/internal/health"
	"github.com/noah-isme/backend-fruver/internal/lock"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/order"
	"github.com/noah-isme/backend-fruver/internal/ratelimit"
	"github.com/noah-isme/backend-fruver/internal/shipping"
)

// Database is what the services need from Postgres. *pgxpool.Pool satisfies it.
type Database interface {
	dbgen.DBTX
	db.TxBeginner
}

// Dependencies enumerates the infrastructure shared across modules.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       Database
	Redis    *redis.Client
	Tasks    order.TaskEnqueuer
	Checks   []health.Check
	Registry *prometheus.Registry
	Limiter  limiter.Store
}

// App holds the wired services behind the API and the worker.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Deps   Dependencies

	Queries    *dbgen.Queries
	Bus        *events.Bus
	Catalog    *catalog.Service
	Carts      *cart.Service
	Rates      *shipping.Store
	Minimums   *checkout.MinimumPolicy
	Checkout   *checkout.Service
	Orders     *order.Service
	Reconciler *order.Reconciler
	Verifier   *auth.Verifier
	Limiter    *limiter.Limiter
}

// New wires every service from deps.
func New(deps Dependencies) (*App, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.DB == nil || deps.Redis == nil {
		return nil, errors.New("app: database and redis are required")
	}
	logger := deps.Logger
	queries := dbgen.New(deps.DB)
	bus := &events.Bus{Store: queries, Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	locker := &lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff}

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries: queries,
		Cache:   cache.NewJSON(deps.Redis, cfg.CatalogCacheTTL),
		Logger:  logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		return nil, err
	}
	carts := &cart.Service{
		Store:   cart.RedisStore{Client: deps.Redis, TTL: cfg.CartTTL},
		Catalog: catalogSvc,
		Locker:  locker,
		LockTTL: cfg.LockTTL,
		Logger:  logger.With().Str("component", "cart").Logger(),
	}
	rates := &shipping.Store{
		Queries:   queries,
		Pool:      deps.DB,
		TxQueries: func(tx pgx.Tx) shipping.RateWriter { return queries.WithTx(tx) },
		Cache:     cache.NewJSON(deps.Redis, cfg.ShippingRatesCacheTTL),
		Events:    bus,
		Logger:    logger.With().Str("component", "shipping").Logger(),
	}
	minimums := &checkout.MinimumPolicy{
		Queries: queries,
		Cache:   cache.NewJSON(deps.Redis, cfg.ShippingRatesCacheTTL),
		Logger:  logger.With().Str("component", "minimums").Logger(),
	}
	checkoutSvc := &checkout.Service{
		Queries:   queries,
		Pool:      deps.DB,
		TxQueries: func(tx pgx.Tx) checkout.OrderWriter { return queries.WithTx(tx) },
		Sessions:  checkout.RedisSessions{Client: deps.Redis, TTL: cfg.CheckoutSessionTTL},
		Carts:     carts,
		Shipping:  shipping.Calculator{Source: rates},
		Minimums:  minimums,
		Events:    bus,
		Logger:    logger.With().Str("component", "checkout").Logger(),
	}
	orders := &order.Service{
		Queries:   queries,
		Pool:      deps.DB,
		TxQueries: func(tx pgx.Tx) order.StatusWriter { return queries.WithTx(tx) },
		Events:    bus,
		Logger:    logger.With().Str("component", "orders").Logger(),
	}
	reconciler := &order.Reconciler{
		Pool:    deps.DB,
		Queries: func(tx pgx.Tx) order.ReconcileQueries { return queries.WithTx(tx) },
		Locker:  locker,
		LockTTL: cfg.ReconcileLockTTL,
		Timeout: cfg.ReconcileTimeout,
		Events:  bus,
		Logger:  logger,
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.TokenValidator{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return nil, err
	}

	store := deps.Limiter
	if store == nil {
		store, err = ratelimit.NewRedisStore(deps.Redis)
		if err != nil {
			return nil, fmt.Errorf("app: rate limit store: %w", err)
		}
	}
	rl, err := ratelimit.New(store, cfg.RateLimitRate)
	if err != nil {
		return nil, fmt.Errorf("app: rate limit %q: %w", cfg.RateLimitRate, err)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Deps:       deps,
		Queries:    queries,
		Bus:        bus,
		Catalog:    catalogSvc,
		Carts:      carts,
		Rates:      rates,
		Minimums:   minimums,
		Checkout:   checkoutSvc,
		Orders:     orders,
		Reconciler: reconciler,
		Verifier:   verifier,
		Limiter:    rl,
	}, nil
}

// OpenPostgres connects a traced pool named after the calling binary.
func OpenPostgres(ctx context.Context, cfg *config.Config, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = cfg.DBMaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenRedis connects an instrumented client. Instrumentation failures are logged, not fatal.
func OpenRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedis returns the asynq connection options for the configured Redis.
func TaskRedis(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis uri: %w", err)
	}
	return opt, nil
}
