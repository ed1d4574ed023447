// Package benchmark exercises the namespacing stack end to end and
// measures hit rate, cached-vs-uncached latency, invalidation latency and
// per-user memory footprint, under safety invariants that make it
// impossible for a run to touch production data or production cache
// namespaces: load bounds are validated before any work, every store
// operation targets a dedicated partition, and domain writes happen inside
// transactions that are unconditionally rolled back.
package benchmark

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/internal/engineinfra"
	"github.com/goliatone/go-tenant-cache/metrics"
	"github.com/goliatone/go-tenant-cache/namespace"
	"github.com/goliatone/go-tenant-cache/querycache"
)

const (
	defaultKeyScanLimit = 10000
	runLockName         = "tenant-cache:benchmark:run"
	runLockExpiry       = 5 * time.Minute
)

// Workload produces the query exercised for one user iteration. The tx is
// non-nil when the harness was configured with a database; every row the
// fetch writes or reads through it is rolled back after the user's
// measurements complete.
type Workload func(ctx context.Context, tx bun.IDB, userID int64, iteration int) (querycache.Query, querycache.ResultFactory, querycache.FetchFunc)

// Options selects the size of one run. Both counts are validated against
// the configured Bounds before any query or store operation is issued.
type Options struct {
	Users          int
	QueriesPerUser int

	// KeyScanLimit caps the per-user memory estimation scan.
	KeyScanLimit int

	// DryRun validates the configuration and reports the safety plan
	// without issuing a single query or store operation.
	DryRun bool
}

// Config wires a Harness. Store must be bound to the Partition named
// here, which must be the dedicated benchmark partition, never the one
// the production namespace manager runs against.
type Config struct {
	Store     cache.Store
	Partition string
	Bounds    cache.Bounds
	Workload  Workload

	// Codec defaults to the msgpack codec.
	Codec cache.Codec

	// Engine defaults to a store-only configuration: the in-process hot
	// tier is disabled so cached latency measures the shared store.
	Engine *engineinfra.Config

	// DB, when set, provides the transactional rollback boundary around
	// each user's workload.
	DB *bun.DB

	// Locker, when set, serializes runs across processes.
	Locker *redsync.Redsync

	Logger *zap.Logger
}

// Harness runs benchmark workloads against an isolated partition.
type Harness struct {
	cfg    Config
	logger *zap.Logger
}

// NewHarness validates the safety-critical parts of cfg. It refuses any
// store that is not bound to the configured benchmark partition.
func NewHarness(cfg Config) (*Harness, error) {
	if cfg.Store == nil {
		return nil, &cache.ConfigurationError{Component: "benchmark.Harness", Message: "store is required"}
	}
	if cfg.Partition == "" {
		return nil, &cache.ConfigurationError{Component: "benchmark.Harness", Message: "benchmark partition is required"}
	}
	if got := cfg.Store.Partition(); got != cfg.Partition {
		return nil, &cache.ConfigurationError{
			Component: "benchmark.Harness",
			Message:   fmt.Sprintf("store is bound to partition %q, expected benchmark partition %q", got, cfg.Partition),
		}
	}
	if cfg.Workload == nil {
		return nil, &cache.ConfigurationError{Component: "benchmark.Harness", Message: "workload is required"}
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, &cache.ConfigurationError{Component: "benchmark.Harness", Message: "invalid bounds", Err: err}
	}
	if cfg.Codec == nil {
		cfg.Codec = cache.NewMsgpackCodec()
	}
	if cfg.Engine == nil {
		engineCfg := engineinfra.DefaultConfig()
		engineCfg.HotTier = false
		cfg.Engine = &engineCfg
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{cfg: cfg, logger: logger}, nil
}

// Run executes one benchmark run. The returned report restates the safety
// guarantees that were applied.
func (h *Harness) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := h.validateOptions(opts); err != nil {
		return nil, err
	}
	if opts.KeyScanLimit <= 0 {
		opts.KeyScanLimit = defaultKeyScanLimit
	}

	report := &Report{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now(),
		DryRun:         opts.DryRun,
		Users:          opts.Users,
		QueriesPerUser: opts.QueriesPerUser,
		Safety: SafetyPlan{
			Partition:          h.cfg.Partition,
			MaxUsers:           h.cfg.Bounds.MaxUsers,
			MaxQueriesPerUser:  h.cfg.Bounds.MaxQueriesPerUser,
			RollbackGuaranteed: h.cfg.DB != nil,
			RunLockHeld:        h.cfg.Locker != nil,
		},
	}

	if opts.DryRun {
		h.logger.Info("benchmark dry run, safety plan only",
			zap.String("run_id", report.RunID),
			zap.String("partition", report.Safety.Partition),
			zap.Int("max_users", report.Safety.MaxUsers),
			zap.Int("max_queries_per_user", report.Safety.MaxQueriesPerUser),
		)
		return report, nil
	}

	if h.cfg.Locker != nil {
		mutex := h.cfg.Locker.NewMutex(runLockName, redsync.WithExpiry(runLockExpiry))
		if err := mutex.LockContext(ctx); err != nil {
			return nil, &cache.BackendUnavailableError{Op: "lock", Key: runLockName, Err: err}
		}
		defer func() {
			if _, err := mutex.UnlockContext(ctx); err != nil {
				h.logger.Warn("failed to release benchmark run lock", zap.Error(err))
			}
		}()
	}

	manager, err := namespace.NewManager(h.cfg.Store, "bench", h.logger)
	if err != nil {
		return nil, err
	}
	engine, err := engineinfra.New(h.cfg.Store, h.cfg.Codec, *h.cfg.Engine, h.logger)
	if err != nil {
		return nil, err
	}
	collector := metrics.NewCollector()
	hook, err := querycache.NewHook(engine, manager, collector, h.logger)
	if err != nil {
		return nil, err
	}

	for i := 0; i < opts.Users; i++ {
		userID := int64(i + 1)
		userReport, err := h.runUser(ctx, hook, manager, userID, opts)
		if err != nil {
			return nil, err
		}
		report.PerUser = append(report.PerUser, userReport)
	}

	h.aggregate(report, collector)
	report.Duration = time.Since(report.StartedAt)
	h.logger.Info("benchmark run complete",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", report.Duration),
		zap.Float64("hit_rate_pct", report.HitRatePct),
	)
	return report, nil
}

func (h *Harness) validateOptions(opts Options) error {
	if err := validation.ValidateStruct(&opts,
		validation.Field(&opts.Users, validation.Required, validation.Min(1)),
		validation.Field(&opts.QueriesPerUser, validation.Required, validation.Min(1)),
	); err != nil {
		return &cache.ValidationError{Field: "Options", Message: err.Error()}
	}
	if opts.Users > h.cfg.Bounds.MaxUsers {
		return &cache.ValidationError{
			Field:   "Users",
			Message: fmt.Sprintf("%d exceeds the configured maximum of %d simulated users", opts.Users, h.cfg.Bounds.MaxUsers),
		}
	}
	if opts.QueriesPerUser > h.cfg.Bounds.MaxQueriesPerUser {
		return &cache.ValidationError{
			Field:   "QueriesPerUser",
			Message: fmt.Sprintf("%d exceeds the configured maximum of %d queries per user", opts.QueriesPerUser, h.cfg.Bounds.MaxQueriesPerUser),
		}
	}
	return nil
}

// runUser performs the per-user procedure: bump the version to force a
// miss, measure uncached and repeat (cached) executions, measure a raw
// store round trip, estimate the namespace's memory footprint, then time
// one more version increment, which must stay constant-cost no matter how
// many entries the workload populated.
func (h *Harness) runUser(ctx context.Context, hook *querycache.Hook, manager *namespace.Manager, userID int64, opts Options) (UserReport, error) {
	userReport := UserReport{UserID: userID}

	err := h.withRollback(ctx, func(ctx context.Context, tx bun.IDB) error {
		userCtx := querycache.WithUser(ctx, userID)

		if _, err := manager.IncrementVersion(ctx, userID); err != nil {
			return err
		}

		var uncached, cached time.Duration
		for n := 0; n < opts.QueriesPerUser; n++ {
			q, newResult, fetch := h.cfg.Workload(userCtx, tx, userID, n)

			start := time.Now()
			if _, err := hook.Execute(userCtx, q, newResult, fetch); err != nil {
				return err
			}
			uncached += time.Since(start)

			start = time.Now()
			if _, err := hook.Execute(userCtx, q, newResult, fetch); err != nil {
				return err
			}
			cached += time.Since(start)
		}
		userReport.AvgUncachedLatency = uncached / time.Duration(opts.QueriesPerUser)
		userReport.AvgCachedLatency = cached / time.Duration(opts.QueriesPerUser)

		storeLatency, err := h.rawStoreLatency(ctx, userID)
		if err != nil {
			return err
		}
		userReport.StoreLatency = storeLatency

		keys, estimated, err := h.estimateMemory(userCtx, manager, userID, opts.KeyScanLimit)
		if err != nil {
			return err
		}
		userReport.Keys = keys
		userReport.EstimatedBytes = estimated

		start := time.Now()
		if _, err := manager.IncrementVersion(ctx, userID); err != nil {
			return err
		}
		userReport.InvalidationLatency = time.Since(start)
		return nil
	})
	return userReport, err
}

// withRollback wraps fn in a transaction that is never committed. There
// is no commit path: the deferred rollback is the only exit.
func (h *Harness) withRollback(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	if h.cfg.DB == nil {
		return fn(ctx, nil)
	}
	tx, err := h.cfg.DB.BeginTx(ctx, nil)
	if err != nil {
		return &cache.ConfigurationError{Component: "benchmark.Harness", Message: "failed to open rollback transaction", Err: err}
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			h.logger.Error("benchmark rollback failed", zap.Error(err))
		}
	}()
	return fn(ctx, tx)
}

// rawStoreLatency measures one GET and one INCR against a probe key in
// the harness partition, averaging the two round trips.
func (h *Harness) rawStoreLatency(ctx context.Context, userID int64) (time.Duration, error) {
	probe := fmt.Sprintf("bench_probe:%d", userID)

	start := time.Now()
	if _, err := h.cfg.Store.Get(ctx, probe); err != nil && err != cache.ErrKeyNotFound {
		return 0, err
	}
	if _, err := h.cfg.Store.Incr(ctx, probe); err != nil {
		return 0, err
	}
	return time.Since(start) / 2, nil
}

// estimateMemory counts the keys under the user's current-version prefix
// and sizes a bounded sample of their payloads. It runs before the final
// version bump so it observes the entries the workload just populated.
func (h *Harness) estimateMemory(ctx context.Context, manager *namespace.Manager, userID int64, scanLimit int) (int, int64, error) {
	prefix, err := manager.KeyPrefix(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	keys, err := h.cfg.Store.Scan(ctx, prefix+"*", scanLimit)
	if err != nil {
		return 0, 0, err
	}

	var estimated int64
	for _, key := range keys {
		estimated += int64(len(key))
		value, err := h.cfg.Store.Get(ctx, key)
		if err != nil {
			if err == cache.ErrKeyNotFound {
				continue
			}
			return 0, 0, err
		}
		estimated += int64(len(value))
	}
	return len(keys), estimated, nil
}

func (h *Harness) aggregate(report *Report, collector *metrics.Collector) {
	stats := collector.GlobalStats()
	hits := stats.Counters[metrics.CounterHit]
	misses := stats.Counters[metrics.CounterMiss]
	if total := hits + misses; total > 0 {
		report.HitRatePct = float64(hits) / float64(total) * 100
	}

	var cached, uncached, invalidation, store time.Duration
	for _, u := range report.PerUser {
		cached += u.AvgCachedLatency
		uncached += u.AvgUncachedLatency
		invalidation += u.InvalidationLatency
		store += u.StoreLatency
		report.TotalKeys += u.Keys
		report.TotalEstimatedBytes += u.EstimatedBytes
	}
	n := time.Duration(len(report.PerUser))
	if n > 0 {
		report.AvgCachedLatency = cached / n
		report.AvgUncachedLatency = uncached / n
		report.AvgInvalidationLatency = invalidation / n
		report.AvgStoreLatency = store / n
	}
	if report.AvgCachedLatency > 0 {
		report.SpeedupFactor = float64(report.AvgUncachedLatency) / float64(report.AvgCachedLatency)
	}
}
