// Package metrics tracks per-operation counters and latencies on the
// filesystem's hot path and exposes them through Prometheus for scraping.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/vfscore/pkg/types"
)

// opCounters holds the lock-free counters for a single operation kind.
// Every field is updated with atomic instructions only: this struct sits on
// the same call path as every read/write/stat the facade serves, so it must
// never contend with a mutex the way the rest of the package can.
type opCounters struct {
	count        atomic.Uint64
	successes    atomic.Uint64
	failures     atomic.Uint64
	totalLatency atomic.Uint64 // nanoseconds
	maxLatency   atomic.Uint64 // nanoseconds
}

func (c *opCounters) record(d time.Duration, success bool) {
	c.count.Add(1)
	if success {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
	c.totalLatency.Add(uint64(d))

	for {
		cur := c.maxLatency.Load()
		if uint64(d) <= cur {
			break
		}
		if c.maxLatency.CompareAndSwap(cur, uint64(d)) {
			break
		}
	}
}

// OpSnapshot is a point-in-time, non-atomic copy of an opCounters for
// reporting. Fields are read independently, so a snapshot taken while
// writers are active is near-consistent rather than exact.
type OpSnapshot struct {
	Count        uint64
	Successes    uint64
	Failures     uint64
	TotalLatency time.Duration
	MaxLatency   time.Duration
}

func (c *opCounters) snapshot() OpSnapshot {
	return OpSnapshot{
		Count:        c.count.Load(),
		Successes:    c.successes.Load(),
		Failures:     c.failures.Load(),
		TotalLatency: time.Duration(c.totalLatency.Load()),
		MaxLatency:   time.Duration(c.maxLatency.Load()),
	}
}

// Config configures the Prometheus exposition server.
type Config struct {
	Enabled        bool
	Port           int
	Path           string
	Namespace      string
	UpdateInterval time.Duration
}

// Collector tracks every filesystem operation named in
// types.AllOperations, plus global byte throughput, on lock-free
// per-operation counters, and periodically snapshots them into a
// Prometheus registry for scraping.
type Collector struct {
	config *Config
	ops    map[types.OperationName]*opCounters

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64

	registry          *prometheus.Registry
	opCounterVec      *prometheus.CounterVec
	opDurationVec     *prometheus.HistogramVec
	opErrorVec        *prometheus.CounterVec
	bytesReadGauge    prometheus.Gauge
	bytesWrittenGauge prometheus.Gauge

	server *http.Server

	// lastSnapshot is touched only from the updateLoop goroutine; it has
	// no synchronization of its own because nothing else reads it.
	lastSnapshot map[types.OperationName]OpSnapshot
}

// NewCollector creates a Collector. A nil config disables Prometheus
// exposition but the per-operation counters are still tracked, since the
// facade calls RecordOperation whether or not exposition is enabled.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "vfscore"
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = 15 * time.Second
	}

	c := &Collector{
		config: config,
		ops:    make(map[types.OperationName]*opCounters, len(types.AllOperations)),
	}
	for _, op := range types.AllOperations {
		c.ops[op] = &opCounters{}
	}

	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("metrics: init: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() error {
	c.opCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.config.Namespace,
		Name:      "operations_total",
		Help:      "Total number of filesystem operations by kind and outcome.",
	}, []string{"operation", "status"})

	c.opDurationVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.config.Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Operation latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3.3s
	}, []string{"operation"})

	c.opErrorVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.config.Namespace,
		Name:      "operation_errors_total",
		Help:      "Total number of failed operations by kind.",
	}, []string{"operation"})

	c.bytesReadGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Name:      "bytes_read_total",
		Help:      "Cumulative bytes read across all mounts.",
	})
	c.bytesWrittenGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Name:      "bytes_written_total",
		Help:      "Cumulative bytes written across all mounts.",
	})

	for _, m := range []prometheus.Collector{
		c.opCounterVec, c.opDurationVec, c.opErrorVec,
		c.bytesReadGauge, c.bytesWrittenGauge,
	} {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the Prometheus exposition server and the periodic
// snapshot loop that feeds it from the atomic counters. It is a no-op if
// the collector was built with Config.Enabled false.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics: server error: %v\n", err)
		}
	}()

	go c.updateLoop(ctx)
	return nil
}

// Stop shuts down the exposition server.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one completed operation's outcome and latency on
// the lock-free counter for op. Safe to call from any number of concurrent
// goroutines without contending on a shared lock.
func (c *Collector) RecordOperation(op types.OperationName, d time.Duration, success bool) {
	counters, ok := c.ops[op]
	if !ok {
		return
	}
	counters.record(d, success)
}

// RecordBytesRead adds n to the cumulative bytes-read counter.
func (c *Collector) RecordBytesRead(n int64) {
	if n > 0 {
		c.bytesRead.Add(uint64(n))
	}
}

// RecordBytesWritten adds n to the cumulative bytes-written counter.
func (c *Collector) RecordBytesWritten(n int64) {
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
	}
}

// Snapshot returns a point-in-time view of every tracked operation's
// counters, independent of Prometheus exposition.
func (c *Collector) Snapshot() map[types.OperationName]OpSnapshot {
	out := make(map[types.OperationName]OpSnapshot, len(c.ops))
	for op, counters := range c.ops {
		out[op] = counters.snapshot()
	}
	return out
}

func (c *Collector) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updatePeriodicMetrics()
		}
	}
}

// updatePeriodicMetrics pushes the atomic counters' deltas into the
// Prometheus vectors. It tracks the last-seen totals per operation so the
// counters it feeds remain monotonically increasing even though the
// underlying atomics are re-read from scratch each tick.
func (c *Collector) updatePeriodicMetrics() {
	if c.lastSnapshot == nil {
		c.lastSnapshot = make(map[types.OperationName]OpSnapshot, len(c.ops))
	}

	for op, counters := range c.ops {
		snap := counters.snapshot()
		prev := c.lastSnapshot[op]
		label := string(op)

		if d := snap.Successes - prev.Successes; d > 0 {
			c.opCounterVec.WithLabelValues(label, "success").Add(float64(d))
		}
		if d := snap.Failures - prev.Failures; d > 0 {
			c.opCounterVec.WithLabelValues(label, "failure").Add(float64(d))
			c.opErrorVec.WithLabelValues(label).Add(float64(d))
		}
		if d := snap.Count - prev.Count; d > 0 {
			deltaLatency := snap.TotalLatency - prev.TotalLatency
			avg := time.Duration(uint64(deltaLatency) / d)
			c.opDurationVec.WithLabelValues(label).Observe(avg.Seconds())
		}

		c.lastSnapshot[op] = snap
	}
	c.bytesReadGauge.Set(float64(c.bytesRead.Load()))
	c.bytesWrittenGauge.Set(float64(c.bytesWritten.Load()))
}
