package trace

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics are process-lifetime counters. Every field is safe for concurrent
// use; callers increment them directly.
type Metrics struct {
	Requests        atomic.Int64
	ServerErrors    atomic.Int64
	BackendErrors   atomic.Int64
	AuthRedirects   atomic.Int64
	RateLimited     atomic.Int64
	Suspicious      atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	PublishFailures atomic.Int64

	totalMicros atomic.Int64
	startedAt   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) observe(status int, elapsed time.Duration) {
	if status >= 500 {
		m.ServerErrors.Add(1)
	}
	m.totalMicros.Add(elapsed.Microseconds())
}

// AverageResponseTime is the mean over all completed requests.
func (m *Metrics) AverageResponseTime() time.Duration {
	n := m.Requests.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.totalMicros.Load()/n) * time.Microsecond
}

// Snapshot returns the counters by name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total":            m.Requests.Load(),
		"server_errors_total":       m.ServerErrors.Load(),
		"backend_errors_total":      m.BackendErrors.Load(),
		"auth_redirects_total":      m.AuthRedirects.Load(),
		"rate_limited_total":        m.RateLimited.Load(),
		"suspicious_requests_total": m.Suspicious.Load(),
		"month_cache_hits_total":    m.CacheHits.Load(),
		"month_cache_misses_total":  m.CacheMisses.Load(),
		"publish_failures_total":    m.PublishFailures.Load(),
	}
}

var metricOrder = []string{
	"requests_total",
	"server_errors_total",
	"backend_errors_total",
	"auth_redirects_total",
	"rate_limited_total",
	"suspicious_requests_total",
	"month_cache_hits_total",
	"month_cache_misses_total",
	"publish_failures_total",
}

// WriteText writes one "expensedash_<name> <value>" line per counter, then
// any extra gauges in the order given.
func (m *Metrics) WriteText(w io.Writer, extra ...Gauge) error {
	snap := m.Snapshot()
	for _, name := range metricOrder {
		if _, err := fmt.Fprintf(w, "expensedash_%s %d\n", name, snap[name]); err != nil {
			return err
		}
	}
	lines := []Gauge{
		{Name: "avg_response_micros", Value: m.AverageResponseTime().Microseconds()},
		{Name: "uptime_seconds", Value: int64(time.Since(m.startedAt).Seconds())},
	}
	for _, g := range append(lines, extra...) {
		if _, err := fmt.Fprintf(w, "expensedash_%s %d\n", g.Name, g.Value); err != nil {
			return err
		}
	}
	return nil
}

// Gauge is a point-in-time value reported next to the counters.
type Gauge struct {
	Name  string
	Value int64
}
