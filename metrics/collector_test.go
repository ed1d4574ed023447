package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tenant-cache/cache"
)

func TestUserStats(t *testing.T) {
	c := NewCollector()

	c.RecordHit("List", 42)
	c.RecordHit("List", 42)
	c.RecordHit("Get", 42)
	c.RecordMiss("List", 42)
	c.RecordHit("List", 7)

	stats := c.UserStats(42)
	if stats.Hits != 3 || stats.Misses != 1 {
		t.Errorf("UserStats(42) = %d hits / %d misses, want 3/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", stats.HitRate)
	}
}

// A user with no samples reports a zero hit rate, not an error or NaN.
func TestUserStatsEmpty(t *testing.T) {
	c := NewCollector()
	stats := c.UserStats(99)
	if stats.HitRate != 0.0 || stats.Hits != 0 || stats.Samples != 0 {
		t.Errorf("UserStats(99) = %+v, want zeroes", stats)
	}
}

func TestGlobalStats(t *testing.T) {
	c := NewCollector()

	c.RecordHit("List", 1)
	c.RecordMiss("List", 2)
	c.RecordInvalidation(1)
	c.RecordBypass(3)
	c.RecordFallbackDirect("List", 1)
	c.RecordFallbackEmpty("List", 1)
	c.RecordError("List", 1, cache.KindBackendUnavailable)
	c.RecordError("Get", 2, cache.KindBackendUnavailable)
	c.RecordError("List", 1, cache.KindDeserialization)

	stats := c.GlobalStats()
	want := map[string]int64{
		CounterHit:            1,
		CounterMiss:           1,
		CounterInvalidation:   1,
		CounterBypassDisabled: 1,
		CounterFallbackDirect: 1,
		CounterFallbackEmpty:  1,
		CounterError:          3,
	}
	for name, count := range want {
		if stats.Counters[name] != count {
			t.Errorf("counter %s = %d, want %d", name, stats.Counters[name], count)
		}
	}
	if stats.Errors[string(cache.KindBackendUnavailable)] != 2 {
		t.Errorf("backend errors = %d, want 2", stats.Errors[string(cache.KindBackendUnavailable)])
	}
	if stats.Errors[string(cache.KindDeserialization)] != 1 {
		t.Errorf("deserialization errors = %d, want 1", stats.Errors[string(cache.KindDeserialization)])
	}
	if stats.DistinctUsers != 3 {
		t.Errorf("DistinctUsers = %d, want 3", stats.DistinctUsers)
	}
}

func TestObserveLatency(t *testing.T) {
	c := NewCollector()

	c.ObserveLatency("List", 42, 10*time.Millisecond)
	c.ObserveLatency("List", 42, 30*time.Millisecond)
	c.ObserveLatency("List", 0, 50*time.Millisecond)

	stats := c.UserStats(42)
	if stats.Samples != 2 {
		t.Errorf("Samples = %d, want 2", stats.Samples)
	}
	if stats.AvgLatency != 20*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 20ms", stats.AvgLatency)
	}

	global := c.GlobalStats()
	// The operation-level window sees all three observations.
	if got := global.AvgLatency["List"]; got != 30*time.Millisecond {
		t.Errorf("global AvgLatency = %v, want 30ms", got)
	}
}

func TestMeasureLatency(t *testing.T) {
	c := NewCollector()

	func() {
		defer c.MeasureLatency("List", 42)()
		time.Sleep(time.Millisecond)
	}()

	stats := c.UserStats(42)
	if stats.Samples != 1 {
		t.Fatalf("Samples = %d, want 1", stats.Samples)
	}
	if stats.AvgLatency <= 0 {
		t.Errorf("AvgLatency = %v, want > 0", stats.AvgLatency)
	}
}

func TestExportPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordHit("List", 42)
	c.RecordMiss("List", 42)
	c.RecordError("List", 42, cache.KindBackendUnavailable)
	c.ObserveLatency("List", 42, 10*time.Millisecond)

	out := c.ExportPrometheus()

	wantLines := []string{
		`cache_hit_total{operation="List",user_id="42"} 1`,
		`cache_miss_total{operation="List",user_id="42"} 1`,
		`cache_error_total{operation="List",user_id="42",error_type="backend_unavailable"} 1`,
		`cache_latency_avg_ms{operation="List"} 10.000`,
		`cache_latency_avg_ms{operation="List",user_id="42"} 10.000`,
	}
	for _, line := range wantLines {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("export missing line %q in:\n%s", line, out)
		}
	}

	// Deterministic: two renders of the same state are identical.
	if again := c.ExportPrometheus(); again != out {
		t.Error("ExportPrometheus() output is not deterministic")
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.RecordHit("List", 42)
	c.ObserveLatency("List", 42, time.Millisecond)

	c.Reset()

	stats := c.GlobalStats()
	if len(stats.Counters) != 0 || stats.DistinctUsers != 0 {
		t.Errorf("GlobalStats after reset = %+v, want empty", stats)
	}
	if out := c.ExportPrometheus(); out != "" {
		t.Errorf("ExportPrometheus after reset = %q, want empty", out)
	}
}

// The window bounds retained samples but running totals keep covering
// everything observed.
func TestLatencyWindowBounded(t *testing.T) {
	w := newLatencyWindow(4)
	for i := 1; i <= 6; i++ {
		w.observe(time.Duration(i) * time.Millisecond)
	}

	retained := w.recent()
	if len(retained) != 4 {
		t.Fatalf("recent() retained %d samples, want 4", len(retained))
	}
	// Oldest two were overwritten in ring order.
	if retained[0] != 5*time.Millisecond || retained[1] != 6*time.Millisecond {
		t.Errorf("recent() = %v, want slots 0,1 overwritten with 5ms,6ms", retained)
	}

	sum, count := w.totals()
	if count != 6 {
		t.Errorf("totals count = %d, want 6", count)
	}
	if sum != 21*time.Millisecond {
		t.Errorf("totals sum = %v, want 21ms", sum)
	}
}

func TestCounterKeyRoundTrip(t *testing.T) {
	key := counterKey(CounterError, "List", 42, "backend_unavailable")
	name, operation, userID, errKind := splitCounterKey(key)
	if name != CounterError || operation != "List" || userID != 42 || errKind != "backend_unavailable" {
		t.Errorf("splitCounterKey() = (%s, %s, %d, %s)", name, operation, userID, errKind)
	}
}
