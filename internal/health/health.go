// Package health reports process and dependency liveness/readiness,
// grounded on the teacher's control-plane/internal/metrics.Collector
// (gopsutil-backed process stats) but narrowed to the two checks an
// orchestrator actually polls: is the process alive, and is it ready
// to serve (DB and cache reachable).
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Pinger is satisfied by internal/store.Store and internal/cache.RedisCache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the liveness/readiness snapshot returned by Reporter.Ready.
type Report struct {
	Status        string  `json:"status"` // healthy | degraded | unhealthy
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	DatabaseOK    bool    `json:"database_ok"`
	CacheOK       bool    `json:"cache_ok"`
	CacheEnabled  bool    `json:"cache_enabled"`
}

// Reporter computes Report snapshots on demand.
type Reporter struct {
	store     Pinger
	cache     Pinger // nil when caching is disabled
	startTime time.Time
}

// NewReporter builds a Reporter. cache may be nil when CACHE_URL is unset.
func NewReporter(store Pinger, cache Pinger) *Reporter {
	return &Reporter{store: store, cache: cache, startTime: time.Now()}
}

// Live reports whether the process itself is alive — always true once
// the reporter answers at all; used for the liveness probe, which
// should not depend on downstream availability.
func (r *Reporter) Live(ctx context.Context) bool { return true }

// Ready computes the full readiness report, pinging the database and
// (if configured) the cache.
func (r *Reporter) Ready(ctx context.Context) Report {
	rep := Report{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		CacheEnabled:  r.cache != nil,
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			rep.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			rep.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rep.DatabaseOK = r.store.Ping(pingCtx) == nil

	if r.cache != nil {
		rep.CacheOK = r.cache.Ping(pingCtx) == nil
	}

	if !rep.DatabaseOK {
		rep.Status = "unhealthy"
	} else if r.cache != nil && !rep.CacheOK {
		rep.Status = "degraded"
	} else if rep.CPUPercent > 90 || rep.MemoryMB > 0 && rep.MemoryMB/1024 > 4 {
		rep.Status = "degraded"
	}

	return rep
}
