package cache

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Partition names reserved by DefaultConfig. The cache partition carries
// namespace counters and query payloads, the benchmark partition is the
// only partition the harness may touch, and the test partition keeps test
// traffic away from both.
const (
	PartitionCache     = "cache"
	PartitionBenchmark = "bench"
	PartitionTest      = "test"
)

var partitionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Partitions names the logical subdivisions of the shared store. The three
// partitions must never overlap; Validate rejects duplicates.
type Partitions struct {
	Cache     string
	Benchmark string
	Test      string
}

// Validate checks that all partitions are named and pairwise distinct.
func (p Partitions) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Cache, validation.Required, validation.Match(partitionNamePattern)),
		validation.Field(&p.Benchmark, validation.Required, validation.Match(partitionNamePattern)),
		validation.Field(&p.Test, validation.Required, validation.Match(partitionNamePattern)),
	); err != nil {
		return err
	}

	if p.Cache == p.Benchmark || p.Cache == p.Test || p.Benchmark == p.Test {
		return &ConfigurationError{
			Component: "Partitions",
			Message:   "cache, benchmark and test partitions must be distinct",
		}
	}
	return nil
}

// RedisConfig carries connection settings for the shared store. URL
// accepts a comma-separated list of redis:// URLs or host:port pairs;
// Password and DB override whatever the URL encodes.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// Bounds caps how much simulated load the benchmark harness may generate.
// Runs exceeding either bound are rejected before any work begins.
type Bounds struct {
	MaxUsers          int
	MaxQueriesPerUser int
}

// Validate checks that both bounds are positive.
func (b Bounds) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxUsers, validation.Required, validation.Min(1)),
		validation.Field(&b.MaxQueriesPerUser, validation.Required, validation.Min(1)),
	)
}

// Config exposes the subsystem configuration. Domain appears verbatim in
// every namespaced key, so changing it effectively invalidates all entries.
type Config struct {
	// Domain is the key segment that scopes this deployment's entries:
	// cache:{user}:v{version}:{domain}:{fingerprint}.
	Domain string

	// TTL is the store-level expiry applied to cached payloads. This
	// subsystem never manages TTLs beyond setting this on write.
	TTL time.Duration

	// StoreTimeout bounds every individual call against the shared store.
	// A timeout is treated identically to a connection failure.
	StoreTimeout time.Duration

	Redis      RedisConfig
	Partitions Partitions
	Benchmark  Bounds
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Domain:       "query",
		TTL:          5 * time.Minute,
		StoreTimeout: 2 * time.Second,
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Partitions: Partitions{
			Cache:     PartitionCache,
			Benchmark: PartitionBenchmark,
			Test:      PartitionTest,
		},
		Benchmark: Bounds{
			MaxUsers:          100,
			MaxQueriesPerUser: 1000,
		},
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Domain, validation.Required, validation.Match(partitionNamePattern)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.StoreTimeout, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return err
	}
	if err := c.Partitions.Validate(); err != nil {
		return err
	}
	return c.Benchmark.Validate()
}
