package engineinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the store-backed engine.
type Config struct {
	// StoreTTL is the expiry applied to payloads written to the shared
	// store. Must be greater than zero.
	StoreTTL time.Duration

	// HotTier enables the in-process sturdyc tier in front of the shared
	// store. The tier only serves keys verbatim, so version-based
	// namespacing invalidates it the same way it invalidates the store:
	// superseded keys are simply never asked for again.
	HotTier bool

	// HotTierCapacity is the maximum number of entries held in process.
	HotTierCapacity int

	// HotTierShards controls sturdyc shard count for concurrent access.
	HotTierShards int

	// HotTierTTL should stay well below StoreTTL; the hot tier exists for
	// request bursts, not durability.
	HotTierTTL time.Duration

	// HotTierEvictionPercentage is the share of entries evicted when the
	// tier is full, between 1 and 100.
	HotTierEvictionPercentage int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreTTL:                  5 * time.Minute,
		HotTier:                   true,
		HotTierCapacity:           10000,
		HotTierShards:             256,
		HotTierTTL:                15 * time.Second,
		HotTierEvictionPercentage: 10,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.StoreTTL, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	if !c.HotTier {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.HotTierCapacity, validation.Required, validation.Min(1)),
		validation.Field(&c.HotTierShards, validation.Required, validation.Min(1)),
		validation.Field(&c.HotTierTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.HotTierEvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// newHotTier builds the sturdyc client, or nil when the tier is disabled.
func (c Config) newHotTier() *sturdyc.Client[any] {
	if !c.HotTier {
		return nil
	}
	return sturdyc.New[any](
		c.HotTierCapacity,
		c.HotTierShards,
		c.HotTierTTL,
		c.HotTierEvictionPercentage,
	)
}
