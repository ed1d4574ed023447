package querycache

import "context"

// Query is the canonical description of a cacheable query handed to the
// engine. The engine derives its fingerprint from it; this package only
// rewrites the key the fingerprint ends up under.
type Query struct {
	// Operation is the read method being cached, e.g. "List" or "GetByID".
	Operation string

	// Model identifies the primary model the query reads, in snake_case.
	Model string

	// DependsOn lists additional models whose writes must invalidate this
	// query's entry (foreign-key and many-to-many style dependencies).
	DependsOn []string

	// Args are the canonical query arguments.
	Args []any
}

// FetchFunc executes the query against the source of truth.
type FetchFunc func(ctx context.Context) (any, error)

// ResultFactory returns a pointer to a zero value of the query's result
// type, giving the engine a typed destination to deserialize into.
type ResultFactory func() any

// KeyFunc is the pluggable key-building strategy supplied per call. It
// receives the engine's own fingerprint and returns the storage key,
// composed as namespacedKey = keyFn(engineFingerprint). A nil KeyFunc
// leaves the engine's original key untouched.
type KeyFunc func(fingerprint string) (string, error)

// Engine is the external query-result cache contract this subsystem
// integrates with. The engine owns fingerprinting, payload storage and
// model-level dependency bookkeeping; the hook owns key namespacing and
// failure policy.
type Engine interface {
	// Fingerprint returns the canonical signature digest for q.
	Fingerprint(q Query) string

	// GetOrFetch serves q from cache or executes fetch and stores the
	// result. The returned bool reports whether the value came from cache.
	GetOrFetch(ctx context.Context, q Query, keyFn KeyFunc, newResult ResultFactory, fetch FetchFunc) (any, bool, error)

	// Delete removes a single entry, used for corruption self-healing.
	Delete(ctx context.Context, key string) error

	// InvalidateModel drops every entry registered against model,
	// including entries registered through DependsOn.
	InvalidateModel(ctx context.Context, model string) error
}
