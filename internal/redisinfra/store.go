// Package redisinfra adapts a Redis client to the cache.Store protocol.
// Each Store is bound to one logical partition: every key it reads,
// writes, scans or deletes is transparently prefixed with the partition
// name, so the namespace cache, the benchmark harness and test isolation
// can share one Redis deployment without ever touching each other's keys.
package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-tenant-cache/cache"
)

// NewClient builds a Redis client from configuration. The URL accepts a
// comma-separated list of redis:// URLs or bare host:port pairs; explicit
// Password/DB settings override whatever the URLs encode.
func NewClient(cfg cache.RedisConfig) (redis.UniversalClient, error) {
	opts, err := universalOptions(cfg.URL)
	if err != nil {
		return nil, &cache.ConfigurationError{Component: "redisinfra", Message: "invalid redis URL", Err: err}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	return redis.NewUniversalClient(opts), nil
}

func universalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("no redis addresses provided")
	}
	return opts, nil
}

// Store implements cache.Store over Redis, scoped to one partition.
type Store struct {
	client    redis.UniversalClient
	partition string
	timeout   time.Duration
}

// Interface assertion to ensure Store implements cache.Store.
var _ cache.Store = (*Store)(nil)

// NewStore binds client to the given partition. Every call is bounded by
// timeout; a timed-out call surfaces as backend unavailability, the same
// as a refused connection.
func NewStore(client redis.UniversalClient, partition string, timeout time.Duration) (*Store, error) {
	if client == nil {
		return nil, &cache.ConfigurationError{Component: "redisinfra.Store", Message: "client is required"}
	}
	if partition == "" {
		return nil, &cache.ConfigurationError{Component: "redisinfra.Store", Message: "partition is required"}
	}
	return &Store{client: client, partition: partition, timeout: timeout}, nil
}

// Partition implements cache.Store.
func (s *Store) Partition() string { return s.partition }

// HealthCheck pings the backend within the store timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &cache.BackendUnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	raw, err := s.client.Get(ctx, s.scoped(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, &cache.BackendUnavailableError{Op: "get", Key: key, Err: err}
	}
	return raw, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.scoped(key), value, ttl).Err(); err != nil {
		return &cache.BackendUnavailableError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// SetNX implements cache.Store.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	set, err := s.client.SetNX(ctx, s.scoped(key), value, ttl).Result()
	if err != nil {
		return false, &cache.BackendUnavailableError{Op: "setnx", Key: key, Err: err}
	}
	return set, nil
}

// Incr implements cache.Store using Redis's native atomic increment.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	value, err := s.client.Incr(ctx, s.scoped(key)).Result()
	if err != nil {
		return 0, &cache.BackendUnavailableError{Op: "incr", Key: key, Err: err}
	}
	return value, nil
}

// Del implements cache.Store.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	scoped := make([]string, len(keys))
	for i, key := range keys {
		scoped[i] = s.scoped(key)
	}
	if err := s.client.Unlink(ctx, scoped...).Err(); err != nil {
		return &cache.BackendUnavailableError{Op: "del", Err: err}
	}
	return nil
}

// Exists implements cache.Store.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.scoped(key)).Result()
	if err != nil {
		return false, &cache.BackendUnavailableError{Op: "exists", Key: key, Err: err}
	}
	return n > 0, nil
}

// Scan implements cache.Store. Returned keys have the partition prefix
// stripped so callers never see partition-qualified key strings.
func (s *Store) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var keys []string
	var cursor uint64
	prefix := s.partition + ":"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.scoped(pattern), 1000).Result()
		if err != nil {
			return nil, &cache.BackendUnavailableError{Op: "scan", Key: pattern, Err: err}
		}
		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, prefix))
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scoped(key string) string {
	return fmt.Sprintf("%s:%s", s.partition, key)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
