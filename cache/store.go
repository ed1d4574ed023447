package cache

import (
	"context"
	"time"
)

// Store is the shared external key/value store protocol that all
// cross-worker coordination runs through. Implementations are bound to a
// single logical partition: every key they touch is scoped to that
// partition and partitions never overlap.
//
// Atomicity contract: SetNX is an atomic add-if-absent and Incr is an
// atomic increment. Lazy namespace initialization and version bumps depend
// on these primitives; a read-then-conditionally-write emulation would
// race across workers.
type Store interface {
	// Get returns the value stored at key, or ErrKeyNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key with the given TTL. A zero TTL stores the
	// value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only when key is absent, atomically. It reports
	// whether the value was set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer stored at key, initializing
	// an absent key to zero first, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key currently holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Scan returns up to limit keys matching the glob-style pattern.
	Scan(ctx context.Context, pattern string, limit int) ([]string, error)

	// Partition identifies the logical partition this store is bound to.
	Partition() string
}
