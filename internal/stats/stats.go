// Package stats provides statistics collection and reporting for web3tools lookups.
package stats

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

type (
	// StatsOpts contains configuration options for creating a new Stats instance.
	StatsOpts struct {
		Logg *slog.Logger // Structured logger, discarded when nil
	}

	// Stats collects per-operation call and error counts.
	Stats struct {
		logg       *slog.Logger
		startedAt  time.Time
		operations *xsync.MapOf[string, *counter]
	}

	counter struct {
		calls  atomic.Uint64
		errors atomic.Uint64

		callsTotal  *metrics.Counter
		errorsTotal *metrics.Counter
		duration    *metrics.Histogram
	}
)

// New creates a new Stats instance.
func New(o StatsOpts) *Stats {
	if o.Logg == nil {
		o.Logg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Stats{
		logg:       o.Logg,
		startedAt:  time.Now(),
		operations: xsync.NewMapOf[string, *counter](),
	}
}

// Record accounts one completed call of op that began at started.
func (s *Stats) Record(op string, started time.Time, err error) {
	c, _ := s.operations.LoadOrCompute(op, func() *counter {
		return newCounter(op)
	})

	c.calls.Add(1)
	c.callsTotal.Inc()
	c.duration.UpdateDuration(started)

	if err != nil {
		c.errors.Add(1)
		c.errorsTotal.Inc()
		s.logg.Debug("lookup failed", "operation", op, "error", err)
	}
}

// Calls returns the number of recorded calls of op.
func (s *Stats) Calls(op string) uint64 {
	if c, ok := s.operations.Load(op); ok {
		return c.calls.Load()
	}
	return 0
}

// Errors returns the number of recorded failures of op.
func (s *Stats) Errors(op string) uint64 {
	if c, ok := s.operations.Load(op); ok {
		return c.errors.Load()
	}
	return 0
}

// APIStatsResponse returns current statistics as a map for API responses.
func (s *Stats) APIStatsResponse() map[string]interface{} {
	operations := make(map[string]interface{}, s.operations.Size())
	s.operations.Range(func(op string, c *counter) bool {
		operations[op] = map[string]uint64{
			"calls":  c.calls.Load(),
			"errors": c.errors.Load(),
		}
		return true
	})

	return map[string]interface{}{
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"operations":    operations,
	}
}

func newCounter(op string) *counter {
	return &counter{
		callsTotal:  metrics.GetOrCreateCounter(fmt.Sprintf(`web3tools_requests_total{operation=%q}`, op)),
		errorsTotal: metrics.GetOrCreateCounter(fmt.Sprintf(`web3tools_request_errors_total{operation=%q}`, op)),
		duration:    metrics.GetOrCreateHistogram(fmt.Sprintf(`web3tools_request_duration_seconds{operation=%q}`, op)),
	}
}
