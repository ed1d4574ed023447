// Package engineinfra provides the default query-cache engine: payloads
// live in the shared store under fingerprint-derived keys, an optional
// in-process sturdyc tier absorbs request bursts, and a key registry
// implements model-level invalidation-on-write.
package engineinfra

import (
	"context"
	"errors"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/querycache"
)

// Interface assertion to ensure StoreEngine implements querycache.Engine.
var _ querycache.Engine = (*StoreEngine)(nil)

// StoreEngine is the default querycache.Engine implementation.
type StoreEngine struct {
	store  cache.Store
	codec  cache.Codec
	hot    *sturdyc.Client[any]
	logger *zap.Logger
	cfg    Config

	// registry maps model -> set of active keys, including keys registered
	// through query dependencies. Entries are removed on invalidation.
	registry *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// New builds a StoreEngine on top of the given store partition and codec.
// The logger may be nil.
func New(store cache.Store, codec cache.Codec, cfg Config, logger *zap.Logger) (*StoreEngine, error) {
	if store == nil {
		return nil, &cache.ConfigurationError{Component: "engineinfra.StoreEngine", Message: "store is required"}
	}
	if codec == nil {
		return nil, &cache.ConfigurationError{Component: "engineinfra.StoreEngine", Message: "codec is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &cache.ConfigurationError{Component: "engineinfra.StoreEngine", Message: "invalid config", Err: err}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StoreEngine{
		store:    store,
		codec:    codec,
		hot:      cfg.newHotTier(),
		logger:   logger,
		cfg:      cfg,
		registry: xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}, nil
}

// Fingerprint implements querycache.Engine.
func (e *StoreEngine) Fingerprint(q querycache.Query) string {
	return fingerprint(canonicalSignature(q))
}

// defaultKey is the engine's own key when no key-builder is supplied,
// i.e. for queries without a user context.
func defaultKey(model, fp string) string {
	return "query:" + model + ":" + fp
}

// GetOrFetch implements querycache.Engine. The key-builder strategy is
// composed around the engine's fingerprint: key = keyFn(fingerprint), or
// the engine's own unprefixed key when keyFn is nil.
func (e *StoreEngine) GetOrFetch(ctx context.Context, q querycache.Query, keyFn querycache.KeyFunc, newResult querycache.ResultFactory, fetch querycache.FetchFunc) (any, bool, error) {
	fp := e.Fingerprint(q)
	key := defaultKey(q.Model, fp)
	if keyFn != nil {
		built, err := keyFn(fp)
		if err != nil {
			return nil, false, err
		}
		key = built
	}
	e.register(key, q)

	fetched := false
	load := func(ctx context.Context) (any, error) {
		raw, err := e.store.Get(ctx, key)
		if err == nil {
			dest := newResult()
			if derr := e.codec.Deserialize(raw, dest); derr != nil {
				var deserialization *cache.DeserializationError
				if errors.As(derr, &deserialization) {
					deserialization.Key = key
				}
				return nil, derr
			}
			return deref(dest), nil
		}
		if !errors.Is(err, cache.ErrKeyNotFound) {
			return nil, err
		}

		fetched = true
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		payload, err := e.codec.Serialize(value)
		if err != nil {
			return nil, err
		}
		if err := e.store.Set(ctx, key, payload, e.cfg.StoreTTL); err != nil {
			// The value itself is good; losing the write only costs a
			// future miss.
			e.logger.Warn("failed to populate cache entry",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return value, nil
	}

	var result any
	var err error
	if e.hot != nil {
		result, err = e.hot.GetOrFetch(ctx, key, load)
	} else {
		result, err = load(ctx)
	}
	if err != nil {
		return nil, false, err
	}
	return result, !fetched, nil
}

// Delete implements querycache.Engine, dropping key from both tiers.
func (e *StoreEngine) Delete(ctx context.Context, key string) error {
	if e.hot != nil {
		e.hot.Delete(key)
	}
	return e.store.Del(ctx, key)
}

// InvalidateModel implements querycache.Engine. It drops every key
// registered against model, in both tiers, and clears the registration.
func (e *StoreEngine) InvalidateModel(ctx context.Context, model string) error {
	keys, ok := e.registry.Load(model)
	if !ok {
		return nil
	}

	var toDelete []string
	keys.Range(func(key string, _ struct{}) bool {
		toDelete = append(toDelete, key)
		return true
	})
	e.registry.Delete(model)

	if len(toDelete) == 0 {
		return nil
	}
	if e.hot != nil {
		for _, key := range toDelete {
			e.hot.Delete(key)
		}
	}
	if err := e.store.Del(ctx, toDelete...); err != nil {
		e.logger.Error("model invalidation failed against shared store",
			zap.String("model", model),
			zap.Int("keys", len(toDelete)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// register records key under the query's model and each of its declared
// dependencies so a write to any of them invalidates the entry.
func (e *StoreEngine) register(key string, q querycache.Query) {
	models := append([]string{q.Model}, q.DependsOn...)
	for _, model := range models {
		if model == "" {
			continue
		}
		set, _ := e.registry.LoadOrCompute(model, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		set.Store(key, struct{}{})
	}
}

// deref unwraps the pointer produced by a ResultFactory.
func deref(ptr any) any {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ptr
	}
	return rv.Elem().Interface()
}
