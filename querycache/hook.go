package querycache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/metrics"
	"github.com/goliatone/go-tenant-cache/namespace"
)

// Hook integrates the namespace manager with the query-cache engine. It
// rewrites the key the engine produces when a user context is active and
// wraps execution with the fail-open policy: callers never observe a
// cache-layer error, only a slower (direct) response or, as a last resort,
// an empty result.
//
// A nil *Hook is valid and executes every query directly, which is the
// "not configured" state.
type Hook struct {
	engine    Engine
	manager   *namespace.Manager
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewHook wires the engine and namespace manager together. The collector
// and logger may be nil.
func NewHook(engine Engine, manager *namespace.Manager, collector *metrics.Collector, logger *zap.Logger) (*Hook, error) {
	if engine == nil {
		return nil, &cache.ConfigurationError{Component: "querycache.Hook", Message: "engine is required"}
	}
	if manager == nil {
		return nil, &cache.ConfigurationError{Component: "querycache.Hook", Message: "namespace manager is required"}
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hook{engine: engine, manager: manager, collector: collector, logger: logger}, nil
}

// Collector exposes the metrics collector observing this hook.
func (h *Hook) Collector() *metrics.Collector {
	if h == nil {
		return nil
	}
	return h.collector
}

// Execute runs q through the cache engine, namespacing its key when a
// user is bound to ctx.
//
// The ladder, in order: unconfigured hook executes directly; a disabled
// namespace executes directly with zero traffic against the namespaced
// key space; any runtime failure of the cached path is classified,
// logged, and retried directly against the source of truth; if the direct
// re-execution also fails the result is empty rather than an error.
// Validation and configuration errors are raised to the caller unchanged.
func (h *Hook) Execute(ctx context.Context, q Query, newResult ResultFactory, fetch FetchFunc) (any, error) {
	if h == nil || h.engine == nil {
		return fetch(ctx)
	}

	userID, hasUser := UserFromContext(ctx)
	defer h.collector.MeasureLatency(q.Operation, userID)()

	var keyFn KeyFunc
	var builtKey string
	if hasUser {
		enabled, err := h.manager.IsEnabled(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !enabled {
			h.collector.RecordBypass(userID)
			return fetch(ctx)
		}
		keyFn = func(fingerprint string) (string, error) {
			key, err := h.manager.CacheKey(ctx, userID, fingerprint)
			builtKey = key
			return key, err
		}
	}

	result, hit, err := h.engine.GetOrFetch(ctx, q, keyFn, newResult, fetch)
	if err == nil {
		if hit {
			h.collector.RecordHit(q.Operation, userID)
		} else {
			h.collector.RecordMiss(q.Operation, userID)
		}
		return result, nil
	}

	kind := cache.Classify(err)
	if kind == cache.KindValidation || kind == cache.KindConfiguration {
		return nil, err
	}

	h.collector.RecordError(q.Operation, userID, kind)
	h.logger.Error("cached execution failed, falling back to direct query",
		zap.String("operation", q.Operation),
		zap.String("model", q.Model),
		zap.Int64("user_id", userID),
		zap.String("key", builtKey),
		zap.String("error_kind", string(kind)),
		zap.Error(err),
		zap.Stack("stack"),
	)
	h.selfHeal(ctx, err, builtKey)

	h.collector.RecordFallbackDirect(q.Operation, userID)
	result, directErr := fetch(ctx)
	if directErr != nil {
		h.collector.RecordFallbackEmpty(q.Operation, userID)
		h.logger.Error("direct re-execution failed, returning empty result",
			zap.String("operation", q.Operation),
			zap.String("model", q.Model),
			zap.Int64("user_id", userID),
			zap.Error(directErr),
			zap.Stack("stack"),
		)
		return nil, nil
	}
	return result, nil
}

// selfHeal deletes the offending key after a deserialization failure so
// the next read is a clean miss instead of a repeated corruption.
func (h *Hook) selfHeal(ctx context.Context, err error, builtKey string) {
	var deserialization *cache.DeserializationError
	if !errors.As(err, &deserialization) {
		return
	}

	key := deserialization.Key
	if key == "" {
		key = builtKey
	}
	if key == "" {
		return
	}
	if delErr := h.engine.Delete(ctx, key); delErr != nil {
		h.logger.Warn("failed to delete corrupt cache entry",
			zap.String("key", key),
			zap.Error(delErr),
		)
		return
	}
	h.logger.Info("deleted corrupt cache entry", zap.String("key", key))
}

// InvalidateModel delegates to the engine's model-level invalidation entry
// point. The engine already tracks key/model dependencies; this layer adds
// no bookkeeping of its own. A nil hook is a no-op.
func (h *Hook) InvalidateModel(ctx context.Context, model string) error {
	if h == nil || h.engine == nil {
		return nil
	}
	return h.engine.InvalidateModel(ctx, model)
}

// InvalidateUser bumps the user's namespace version, instantly orphaning
// every entry under the previous prefix. Cost is one store operation no
// matter how many entries exist.
func (h *Hook) InvalidateUser(ctx context.Context, userID int64) (int64, error) {
	if h == nil || h.manager == nil {
		return 0, &cache.ConfigurationError{Component: "querycache.Hook", Message: "hook is not configured"}
	}
	version, err := h.manager.IncrementVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	h.collector.RecordInvalidation(userID)
	return version, nil
}

// Execute is the type-safe wrapper around Hook.Execute. On the last-resort
// path it returns the zero value of T, which for slice-shaped results is
// the documented empty result set.
func Execute[T any](ctx context.Context, h *Hook, q Query, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := h.Execute(ctx, q,
		func() any { return new(T) },
		func(ctx context.Context) (any, error) { return fetch(ctx) },
	)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		// The engine returned a payload of the wrong shape; treat it like
		// any other corrupt result and fall back to the source of truth.
		return fetch(ctx)
	}
	return typed, nil
}
