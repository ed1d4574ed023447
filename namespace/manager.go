// Package namespace owns the per-user cache namespaces: version counters
// and enabled flags in the shared store, and the key prefixes derived from
// them. Incrementing a user's version is the invalidation primitive: every
// key built under the old prefix becomes unaddressable in one atomic store
// operation, regardless of how many entries exist.
package namespace

import (
	"context"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"

	"github.com/goliatone/go-tenant-cache/cache"
)

// Key formats in the shared store. Versions and enabled flags live beside
// the cached payloads in the same partition but under their own keyspaces.
const (
	versionKeyFormat = "cache_user_version:%d"
	enabledKeyFormat = "cache_user_enabled:%d"
	keyPrefixFormat  = "cache:%d:v%d:%s:"
)

// initialVersion seeds a namespace on first access. It doubles as the safe
// fallback returned when the store cannot be reached: a worker that cannot
// read the counter keys like the namespace was never invalidated, which is
// the same visibility it had before the bump.
const initialVersion int64 = 1

// Manager owns per-user version counters and enabled flags. All
// cross-worker coordination happens through the store's atomic primitives;
// the manager itself holds no mutable state and is safe for concurrent use.
type Manager struct {
	store  cache.Store
	domain string
	logger *zap.Logger
}

// NewManager builds a Manager bound to the given store partition and key
// domain. The logger may be nil.
func NewManager(store cache.Store, domain string, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, &cache.ConfigurationError{Component: "namespace.Manager", Message: "store is required"}
	}
	if domain == "" {
		return nil, &cache.ConfigurationError{Component: "namespace.Manager", Message: "domain is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, domain: domain, logger: logger}, nil
}

// Domain returns the key domain this manager stamps into every prefix.
func (m *Manager) Domain() string { return m.domain }

// GetVersion returns the current namespace version for userID, lazily
// initializing it to 1. Initialization uses an atomic add-if-absent
// followed by a read so two concurrent first-time callers cannot race to
// conflicting versions. On backend failure it logs and returns the safe
// fallback version instead of an error.
func (m *Manager) GetVersion(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}

	key := fmt.Sprintf(versionKeyFormat, userID)
	if _, err := m.store.SetNX(ctx, key, []byte(strconv.FormatInt(initialVersion, 10)), 0); err != nil {
		m.logFallback("get_version", userID, key, err)
		return initialVersion, nil
	}

	raw, err := m.store.Get(ctx, key)
	if err != nil {
		m.logFallback("get_version", userID, key, err)
		return initialVersion, nil
	}

	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || version < initialVersion {
		// Corrupt counter. Treat like an unreadable backend; the next
		// invalidation will overwrite it with a sane value.
		m.logFallback("get_version", userID, key, fmt.Errorf("malformed version %q: %w", raw, err))
		return initialVersion, nil
	}
	return version, nil
}

// IncrementVersion atomically bumps the stored counter and returns the new
// value. Cost is constant: stale entries under the superseded prefix are
// not touched, they simply become unaddressable.
func (m *Manager) IncrementVersion(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}

	key := fmt.Sprintf(versionKeyFormat, userID)
	// Seed first so an increment on a never-read namespace yields 2, one
	// past the lazily initialized version.
	if _, err := m.store.SetNX(ctx, key, []byte(strconv.FormatInt(initialVersion, 10)), 0); err != nil {
		return 0, err
	}
	return m.store.Incr(ctx, key)
}

// KeyPrefix returns cache:{user}:v{version}:{domain}: for the user's
// current version.
func (m *Manager) KeyPrefix(ctx context.Context, userID int64) (string, error) {
	version, err := m.GetVersion(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(keyPrefixFormat, userID, version, m.domain), nil
}

// CacheKey validates queryHash as a non-empty hexadecimal string and
// composes the full namespaced key for it.
func (m *Manager) CacheKey(ctx context.Context, userID int64, queryHash string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	if err := validation.Validate(queryHash, validation.Required, is.Hexadecimal); err != nil {
		return "", &cache.ValidationError{Field: "queryHash", Message: err.Error()}
	}

	prefix, err := m.KeyPrefix(ctx, userID)
	if err != nil {
		return "", err
	}
	return prefix + queryHash, nil
}

// IsEnabled reports whether caching is enabled for userID. Namespaces are
// enabled by default; an unreadable backend also reports enabled so the
// query path proceeds into its own fallback handling rather than silently
// bypassing the cache forever.
func (m *Manager) IsEnabled(ctx context.Context, userID int64) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	key := fmt.Sprintf(enabledKeyFormat, userID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if err != cache.ErrKeyNotFound {
			m.logFallback("is_enabled", userID, key, err)
		}
		return true, nil
	}
	return string(raw) != "0", nil
}

// SetEnabled toggles caching for userID. Disabling does not bump the
// version: re-enabling exposes whatever still-valid-version entries
// survived store eviction.
func (m *Manager) SetEnabled(ctx context.Context, userID int64, enabled bool) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	value := []byte("1")
	if !enabled {
		value = []byte("0")
	}
	return m.store.Set(ctx, fmt.Sprintf(enabledKeyFormat, userID), value, 0)
}

func (m *Manager) logFallback(operation string, userID int64, key string, err error) {
	m.logger.Error("namespace store access failed, using fallback",
		zap.String("operation", operation),
		zap.Int64("user_id", userID),
		zap.String("key", key),
		zap.String("error_kind", string(cache.Classify(err))),
		zap.Error(err),
	)
}

func validateUserID(userID int64) error {
	if userID <= 0 {
		return &cache.ValidationError{Field: "userID", Message: "must be a positive integer"}
	}
	return nil
}
