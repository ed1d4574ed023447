package benchmark

import (
	"fmt"
	"strings"
	"time"
)

// SafetyPlan restates the guarantees a run was executed under, for
// auditability. It is embedded in every report, including dry runs.
type SafetyPlan struct {
	Partition          string
	MaxUsers           int
	MaxQueriesPerUser  int
	RollbackGuaranteed bool
	RunLockHeld        bool
}

// UserReport holds the measurements taken for one simulated user.
type UserReport struct {
	UserID              int64
	AvgUncachedLatency  time.Duration
	AvgCachedLatency    time.Duration
	StoreLatency        time.Duration
	InvalidationLatency time.Duration
	Keys                int
	EstimatedBytes      int64
}

// Report is the structured output of a benchmark run.
type Report struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	DryRun         bool
	Users          int
	QueriesPerUser int

	HitRatePct             float64
	AvgCachedLatency       time.Duration
	AvgUncachedLatency     time.Duration
	SpeedupFactor          float64
	AvgInvalidationLatency time.Duration
	AvgStoreLatency        time.Duration

	TotalKeys           int
	TotalEstimatedBytes int64
	PerUser             []UserReport

	Safety SafetyPlan
}

// String renders the report for human consumption, restating the safety
// guarantees that were applied.
func (r *Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "benchmark run %s", r.RunID)
	if r.DryRun {
		b.WriteString(" (dry run: no queries or store operations issued)\n")
	} else {
		fmt.Fprintf(&b, "\n  users=%d queries/user=%d duration=%s\n", r.Users, r.QueriesPerUser, r.Duration)
		fmt.Fprintf(&b, "  hit rate:            %.1f%%\n", r.HitRatePct)
		fmt.Fprintf(&b, "  avg uncached query:  %s\n", r.AvgUncachedLatency)
		fmt.Fprintf(&b, "  avg cached query:    %s (%.1fx speedup)\n", r.AvgCachedLatency, r.SpeedupFactor)
		fmt.Fprintf(&b, "  avg invalidation:    %s\n", r.AvgInvalidationLatency)
		fmt.Fprintf(&b, "  avg raw store op:    %s\n", r.AvgStoreLatency)
		fmt.Fprintf(&b, "  memory estimate:     %d keys, ~%d bytes\n", r.TotalKeys, r.TotalEstimatedBytes)
	}

	fmt.Fprintf(&b, "safety guarantees applied:\n")
	fmt.Fprintf(&b, "  store partition:     %s (isolated, non-production)\n", r.Safety.Partition)
	fmt.Fprintf(&b, "  load bounds:         <=%d users, <=%d queries/user\n", r.Safety.MaxUsers, r.Safety.MaxQueriesPerUser)
	if r.Safety.RollbackGuaranteed {
		b.WriteString("  domain writes:       transactional, unconditionally rolled back\n")
	} else {
		b.WriteString("  domain writes:       none (workload is read-only)\n")
	}
	if r.Safety.RunLockHeld {
		b.WriteString("  concurrency:         exclusive run lock held\n")
	}
	return b.String()
}
