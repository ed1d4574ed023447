// Package di wires the subsystem together. Components are explicitly
// constructed services with a single owner: build one Container at process
// start and pass its parts to consumers. Nothing in this module relies on
// package-level singletons.
package di

import (
	"context"
	"database/sql"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/benchmark"
	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/internal/engineinfra"
	"github.com/goliatone/go-tenant-cache/internal/redisinfra"
	"github.com/goliatone/go-tenant-cache/metrics"
	"github.com/goliatone/go-tenant-cache/namespace"
	"github.com/goliatone/go-tenant-cache/querycache"
)

// Container holds the wired cache subsystem.
type Container struct {
	cfg    cache.Config
	logger *zap.Logger

	client     redis.UniversalClient
	cacheStore *redisinfra.Store
	benchStore *redisinfra.Store
	codec      cache.Codec
	engine     *engineinfra.StoreEngine
	manager    *namespace.Manager
	collector  *metrics.Collector
	hook       *querycache.Hook
	locker     *redsync.Redsync
}

// NewContainer validates cfg, connects the shared store, and constructs
// the manager, engine, collector and hook against the cache partition.
// The logger may be nil.
func NewContainer(cfg cache.Config, logger *zap.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	cacheStore, err := redisinfra.NewStore(client, cfg.Partitions.Cache, cfg.StoreTimeout)
	if err != nil {
		return nil, err
	}
	benchStore, err := redisinfra.NewStore(client, cfg.Partitions.Benchmark, cfg.StoreTimeout)
	if err != nil {
		return nil, err
	}

	codec := cache.NewMsgpackCodec()

	engineCfg := engineinfra.DefaultConfig()
	engineCfg.StoreTTL = cfg.TTL
	engine, err := engineinfra.New(cacheStore, codec, engineCfg, logger)
	if err != nil {
		return nil, err
	}

	manager, err := namespace.NewManager(cacheStore, cfg.Domain, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	hook, err := querycache.NewHook(engine, manager, collector, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		cacheStore: cacheStore,
		benchStore: benchStore,
		codec:      codec,
		engine:     engine,
		manager:    manager,
		collector:  collector,
		hook:       hook,
		locker:     redsync.New(goredis.NewPool(client)),
	}, nil
}

// NewContainerWithDefaults constructs a container from DefaultConfig.
func NewContainerWithDefaults(logger *zap.Logger) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), logger)
}

// Config returns a copy of the configuration in use.
func (c *Container) Config() cache.Config { return c.cfg }

// Store returns the cache-partition store.
func (c *Container) Store() cache.Store { return c.cacheStore }

// Codec returns the payload codec.
func (c *Container) Codec() cache.Codec { return c.codec }

// Manager returns the namespace manager.
func (c *Container) Manager() *namespace.Manager { return c.manager }

// Collector returns the metrics collector observing the hook.
func (c *Container) Collector() *metrics.Collector { return c.collector }

// Hook returns the key-generation hook.
func (c *Container) Hook() *querycache.Hook { return c.hook }

// HealthCheck pings the shared store.
func (c *Container) HealthCheck(ctx context.Context) error {
	return c.cacheStore.HealthCheck(ctx)
}

// NewBenchmarkHarness builds a harness bound to the dedicated benchmark
// partition, never the cache partition. The db may be nil for read-only
// workloads.
func (c *Container) NewBenchmarkHarness(workload benchmark.Workload, db *bun.DB) (*benchmark.Harness, error) {
	return benchmark.NewHarness(benchmark.Config{
		Store:     c.benchStore,
		Partition: c.cfg.Partitions.Benchmark,
		Bounds:    c.cfg.Benchmark,
		Workload:  workload,
		Codec:     c.codec,
		DB:        db,
		Locker:    c.locker,
		Logger:    c.logger,
	})
}

// Close releases the shared store client.
func (c *Container) Close() error {
	return c.client.Close()
}

// NewCachedRepository wraps base with caching through the container's
// hook. Since Go methods cannot have type parameters, this is provided as
// a package-level function.
func NewCachedRepository[T any](c *Container, base querycache.Repository[T], opts ...querycache.RepositoryOption[T]) *querycache.CachedRepository[T] {
	return querycache.NewCachedRepository(base, c.hook, opts...)
}

// OpenDatabase opens a bun DB for the benchmark harness rollback
// boundary. Supported drivers: sqlite3 and postgres.
func OpenDatabase(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &cache.ConfigurationError{Component: "di.OpenDatabase", Message: "failed to open database", Err: err}
	}
	switch driver {
	case "sqlite3":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		_ = sqldb.Close()
		return nil, &cache.ConfigurationError{Component: "di.OpenDatabase", Message: "unsupported driver " + driver}
	}
}
