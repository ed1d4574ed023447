// Package metrics provides the process-local collector observing the
// cache subsystem. It records hit/miss/invalidation counters, per-error
// kind counts and bounded latency histories, and renders everything in a
// flat Prometheus-style exposition format for external scraping.
//
// The collector never participates in correctness: it is unsynchronized
// across workers, and a global view requires aggregating per-process
// snapshots externally.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-tenant-cache/cache"
)

// Counter families recorded by the collector.
const (
	CounterHit            = "cache_hit"
	CounterMiss           = "cache_miss"
	CounterInvalidation   = "cache_invalidation"
	CounterBypassDisabled = "cache_bypass_disabled"
	CounterFallbackDirect = "cache_fallback_direct"
	CounterFallbackEmpty  = "cache_fallback_empty"
	CounterError          = "cache_error"
)

// keySep joins label values into map keys. Unit separator keeps label
// values with colons or pipes unambiguous.
const keySep = "\x1f"

const defaultLatencyWindow = 512

// UserStats is a per-user snapshot.
type UserStats struct {
	UserID     int64
	Hits       int64
	Misses     int64
	HitRate    float64
	AvgLatency time.Duration
	Samples    int64
}

// GlobalStats aggregates everything the collector has observed.
type GlobalStats struct {
	Counters      map[string]int64
	Errors        map[string]int64
	AvgLatency    map[string]time.Duration
	DistinctUsers int
}

// Collector records samples from the hook and manager. All methods are
// safe for concurrent use within one process.
type Collector struct {
	// resetMu lets Reset swap the maps wholesale while regular recording
	// only takes the read side.
	resetMu sync.RWMutex

	counters  *xsync.MapOf[string, *xsync.Counter]
	latencies *xsync.MapOf[string, *latencyWindow]
	users     *xsync.MapOf[int64, struct{}]

	windowSize int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters:   xsync.NewMapOf[string, *xsync.Counter](),
		latencies:  xsync.NewMapOf[string, *latencyWindow](),
		users:      xsync.NewMapOf[int64, struct{}](),
		windowSize: defaultLatencyWindow,
	}
}

// RecordHit counts a cache hit for operation, attributed to userID when
// positive.
func (c *Collector) RecordHit(operation string, userID int64) {
	c.inc(CounterHit, operation, userID, "")
}

// RecordMiss counts a cache miss for operation.
func (c *Collector) RecordMiss(operation string, userID int64) {
	c.inc(CounterMiss, operation, userID, "")
}

// RecordInvalidation counts a namespace version bump.
func (c *Collector) RecordInvalidation(userID int64) {
	c.inc(CounterInvalidation, "invalidate_user", userID, "")
}

// RecordBypass counts a query served directly because the user's
// namespace is disabled.
func (c *Collector) RecordBypass(userID int64) {
	c.inc(CounterBypassDisabled, "execute", userID, "")
}

// RecordFallbackDirect counts a cached execution that degraded to a
// direct query.
func (c *Collector) RecordFallbackDirect(operation string, userID int64) {
	c.inc(CounterFallbackDirect, operation, userID, "")
}

// RecordFallbackEmpty counts the last-resort path: both the cached
// execution and the direct re-execution failed and an empty result was
// substituted. A non-zero value here deserves an alert; it is the only
// signal distinguishing the substitution from a legitimately empty result.
func (c *Collector) RecordFallbackEmpty(operation string, userID int64) {
	c.inc(CounterFallbackEmpty, operation, userID, "")
}

// RecordError counts an error by kind.
func (c *Collector) RecordError(operation string, userID int64, kind cache.ErrorKind) {
	c.inc(CounterError, operation, userID, string(kind))
}

// ObserveLatency records an elapsed duration for operation, also
// attributed per user when userID is positive.
func (c *Collector) ObserveLatency(operation string, userID int64, elapsed time.Duration) {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	c.window(latencyKey(operation, 0)).observe(elapsed)
	if userID > 0 {
		c.trackUser(userID)
		c.window(latencyKey(operation, userID)).observe(elapsed)
	}
}

// MeasureLatency starts a scoped timer for operation and returns the stop
// function. Call it with defer so the sample is recorded regardless of
// whether the wrapped operation succeeds or panics:
//
//	defer collector.MeasureLatency("execute", userID)()
func (c *Collector) MeasureLatency(operation string, userID int64) func() {
	start := time.Now()
	return func() {
		c.ObserveLatency(operation, userID, time.Since(start))
	}
}

// UserStats returns the per-user snapshot. Rates default to zero when no
// samples exist.
func (c *Collector) UserStats(userID int64) UserStats {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	stats := UserStats{UserID: userID}
	c.counters.Range(func(key string, counter *xsync.Counter) bool {
		name, _, uid, _ := splitCounterKey(key)
		if uid != userID {
			return true
		}
		switch name {
		case CounterHit:
			stats.Hits += counter.Value()
		case CounterMiss:
			stats.Misses += counter.Value()
		}
		return true
	})
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	var sum time.Duration
	var count int64
	c.latencies.Range(func(key string, window *latencyWindow) bool {
		_, uid := splitLatencyKey(key)
		if uid == userID {
			s, n := window.totals()
			sum += s
			count += n
		}
		return true
	})
	stats.Samples = count
	if count > 0 {
		stats.AvgLatency = sum / time.Duration(count)
	}
	return stats
}

// GlobalStats aggregates counters, error counts, average latency per
// operation and the number of distinct users observed.
func (c *Collector) GlobalStats() GlobalStats {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	out := GlobalStats{
		Counters:   make(map[string]int64),
		Errors:     make(map[string]int64),
		AvgLatency: make(map[string]time.Duration),
	}

	c.counters.Range(func(key string, counter *xsync.Counter) bool {
		name, _, _, errKind := splitCounterKey(key)
		out.Counters[name] += counter.Value()
		if name == CounterError && errKind != "" {
			out.Errors[errKind] += counter.Value()
		}
		return true
	})

	c.latencies.Range(func(key string, window *latencyWindow) bool {
		operation, uid := splitLatencyKey(key)
		if uid != 0 {
			return true
		}
		if sum, count := window.totals(); count > 0 {
			out.AvgLatency[operation] = sum / time.Duration(count)
		}
		return true
	})

	out.DistinctUsers = c.users.Size()
	return out
}

// ExportPrometheus renders all counters and latency gauges as
// name{label="value"} number lines, one metric family per block, with
// deterministic ordering.
func (c *Collector) ExportPrometheus() string {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	families := make(map[string][]string)

	c.counters.Range(func(key string, counter *xsync.Counter) bool {
		name, operation, uid, errKind := splitCounterKey(key)
		labels := []string{fmt.Sprintf("operation=%q", operation)}
		if uid > 0 {
			labels = append(labels, fmt.Sprintf("user_id=%q", fmt.Sprint(uid)))
		}
		if errKind != "" {
			labels = append(labels, fmt.Sprintf("error_type=%q", errKind))
		}
		family := name + "_total"
		line := fmt.Sprintf("%s{%s} %d", family, strings.Join(labels, ","), counter.Value())
		families[family] = append(families[family], line)
		return true
	})

	c.latencies.Range(func(key string, window *latencyWindow) bool {
		operation, uid := splitLatencyKey(key)
		sum, count := window.totals()
		if count == 0 {
			return true
		}
		avg := float64(sum.Microseconds()) / float64(count) / 1000.0
		labels := []string{fmt.Sprintf("operation=%q", operation)}
		if uid > 0 {
			labels = append(labels, fmt.Sprintf("user_id=%q", fmt.Sprint(uid)))
		}
		const family = "cache_latency_avg_ms"
		line := fmt.Sprintf("%s{%s} %.3f", family, strings.Join(labels, ","), avg)
		families[family] = append(families[family], line)
		return true
	})

	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		lines := families[name]
		sort.Strings(lines)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Reset clears all in-memory state, for export-then-reset cycles and test
// isolation.
func (c *Collector) Reset() {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()
	c.counters = xsync.NewMapOf[string, *xsync.Counter]()
	c.latencies = xsync.NewMapOf[string, *latencyWindow]()
	c.users = xsync.NewMapOf[int64, struct{}]()
}

func (c *Collector) inc(name, operation string, userID int64, errKind string) {
	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	if userID > 0 {
		c.trackUser(userID)
	}
	counter, _ := c.counters.LoadOrCompute(counterKey(name, operation, userID, errKind), func() *xsync.Counter {
		return xsync.NewCounter()
	})
	counter.Inc()
}

func (c *Collector) trackUser(userID int64) {
	c.users.LoadOrStore(userID, struct{}{})
}

func (c *Collector) window(key string) *latencyWindow {
	window, _ := c.latencies.LoadOrCompute(key, func() *latencyWindow {
		return newLatencyWindow(c.windowSize)
	})
	return window
}

func counterKey(name, operation string, userID int64, errKind string) string {
	return strings.Join([]string{name, operation, fmt.Sprint(userID), errKind}, keySep)
}

func splitCounterKey(key string) (name, operation string, userID int64, errKind string) {
	parts := strings.SplitN(key, keySep, 4)
	if len(parts) != 4 {
		return key, "", 0, ""
	}
	fmt.Sscan(parts[2], &userID)
	return parts[0], parts[1], userID, parts[3]
}

func latencyKey(operation string, userID int64) string {
	return operation + keySep + fmt.Sprint(userID)
}

func splitLatencyKey(key string) (operation string, userID int64) {
	parts := strings.SplitN(key, keySep, 2)
	if len(parts) != 2 {
		return key, 0
	}
	fmt.Sscan(parts[1], &userID)
	return parts[0], userID
}

// latencyWindow keeps a bounded history of samples plus running totals so
// averages cover everything observed, not just the retained window.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	sum     time.Duration
	count   int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultLatencyWindow
	}
	return &latencyWindow{samples: make([]time.Duration, 0, size)}
}

func (w *latencyWindow) observe(elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, elapsed)
	} else {
		w.samples[w.next] = elapsed
		w.next = (w.next + 1) % cap(w.samples)
	}
	w.sum += elapsed
	w.count++
}

func (w *latencyWindow) totals() (time.Duration, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sum, w.count
}

// Recent returns a copy of the retained sample window, most useful in
// tests and debugging.
func (w *latencyWindow) recent() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.samples...)
}
