// Package prom exports pool, scope, and jobserver activity as
// Prometheus metrics.
package prom

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/go-workpool/jobserver"
	"github.com/NetPo4ki/go-workpool/pool"
)

// Metrics is a pool.Observer maintaining cheap atomic counters. Attach
// it with pool.WithObserver and expose it through a Collector.
type Metrics struct {
	// jobs
	jobsInjected atomic.Int64
	jobsStarted  atomic.Int64
	jobsFinished atomic.Int64
	jobsPanicked atomic.Int64
	jobDurSumNs  atomic.Int64

	// scopes
	scopesActivated atomic.Int64
	scopesSettled   atomic.Int64
	settleWaitSumNs atomic.Int64
}

// NewMetrics returns a new Metrics observer.
func NewMetrics() *Metrics { return &Metrics{} }

var _ pool.Observer = (*Metrics)(nil)

// JobInjected records a job handed to the pool.
func (m *Metrics) JobInjected() { m.jobsInjected.Add(1) }

// JobStarted records a job beginning execution on a worker.
func (m *Metrics) JobStarted() { m.jobsStarted.Add(1) }

// JobFinished records a completed job and accumulates its duration.
func (m *Metrics) JobFinished(d time.Duration, panicked bool) {
	m.jobsFinished.Add(1)
	if panicked {
		m.jobsPanicked.Add(1)
	}
	m.jobDurSumNs.Add(d.Nanoseconds())
}

// ScopeActivated records a scope activation.
func (m *Metrics) ScopeActivated() { m.scopesActivated.Add(1) }

// ScopeSettled records a scope draining and accumulates the wait time.
func (m *Metrics) ScopeSettled(wait time.Duration) {
	m.scopesSettled.Add(1)
	m.settleWaitSumNs.Add(wait.Nanoseconds())
}

// Snapshot exposes a copy of current counter values for inspection.
type Snapshot struct {
	JobsInjected    int64
	JobsStarted     int64
	JobsFinished    int64
	JobsPanicked    int64
	JobDurSumNs     int64
	ScopesActivated int64
	ScopesSettled   int64
	SettleWaitSumNs int64
}

// GetSnapshot returns the current values.
func (m *Metrics) GetSnapshot() Snapshot {
	return Snapshot{
		JobsInjected:    m.jobsInjected.Load(),
		JobsStarted:     m.jobsStarted.Load(),
		JobsFinished:    m.jobsFinished.Load(),
		JobsPanicked:    m.jobsPanicked.Load(),
		JobDurSumNs:     m.jobDurSumNs.Load(),
		ScopesActivated: m.scopesActivated.Load(),
		ScopesSettled:   m.scopesSettled.Load(),
		SettleWaitSumNs: m.settleWaitSumNs.Load(),
	}
}

// Collector exposes a Metrics, and optionally a jobserver proxy, as
// Prometheus metrics. It reads counters on scrape, so it is safe to
// register against a live pool.
type Collector struct {
	m     *Metrics
	proxy *jobserver.Proxy

	jobsInjected    *prometheus.Desc
	jobsStarted     *prometheus.Desc
	jobsFinished    *prometheus.Desc
	jobsPanicked    *prometheus.Desc
	jobSeconds      *prometheus.Desc
	scopesActivated *prometheus.Desc
	scopesSettled   *prometheus.Desc
	settleSeconds   *prometheus.Desc

	tokensFree      *prometheus.Desc
	tokenWaiters    *prometheus.Desc
	tokensRequested *prometheus.Desc
	tokensHeld      *prometheus.Desc
}

// NewCollector builds a Collector over m. proxy may be nil.
func NewCollector(m *Metrics, proxy *jobserver.Proxy) *Collector {
	return &Collector{
		m:     m,
		proxy: proxy,
		jobsInjected: prometheus.NewDesc(
			"workpool_jobs_injected_total", "Jobs handed to the pool.", nil, nil),
		jobsStarted: prometheus.NewDesc(
			"workpool_jobs_started_total", "Jobs that began executing.", nil, nil),
		jobsFinished: prometheus.NewDesc(
			"workpool_jobs_finished_total", "Jobs that finished executing.", nil, nil),
		jobsPanicked: prometheus.NewDesc(
			"workpool_jobs_panicked_total", "Jobs contained after panicking.", nil, nil),
		jobSeconds: prometheus.NewDesc(
			"workpool_job_seconds_total", "Total time spent executing jobs.", nil, nil),
		scopesActivated: prometheus.NewDesc(
			"workpool_scopes_activated_total", "Scope activations.", nil, nil),
		scopesSettled: prometheus.NewDesc(
			"workpool_scopes_settled_total", "Scopes that drained all jobs.", nil, nil),
		settleSeconds: prometheus.NewDesc(
			"workpool_scope_settle_seconds_total", "Total time scopes spent draining.", nil, nil),
		tokensFree: prometheus.NewDesc(
			"workpool_jobserver_tokens_free", "Permits available locally.", nil, nil),
		tokenWaiters: prometheus.NewDesc(
			"workpool_jobserver_waiters", "Goroutines blocked for a permit.", nil, nil),
		tokensRequested: prometheus.NewDesc(
			"workpool_jobserver_requests_outstanding", "Broker requests not yet answered.", nil, nil),
		tokensHeld: prometheus.NewDesc(
			"workpool_jobserver_tokens_held", "Broker tokens held but unused.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsInjected
	ch <- c.jobsStarted
	ch <- c.jobsFinished
	ch <- c.jobsPanicked
	ch <- c.jobSeconds
	ch <- c.scopesActivated
	ch <- c.scopesSettled
	ch <- c.settleSeconds
	if c.proxy != nil {
		ch <- c.tokensFree
		ch <- c.tokenWaiters
		ch <- c.tokensRequested
		ch <- c.tokensHeld
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.GetSnapshot()
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	counter(c.jobsInjected, float64(s.JobsInjected))
	counter(c.jobsStarted, float64(s.JobsStarted))
	counter(c.jobsFinished, float64(s.JobsFinished))
	counter(c.jobsPanicked, float64(s.JobsPanicked))
	counter(c.jobSeconds, float64(s.JobDurSumNs)/1e9)
	counter(c.scopesActivated, float64(s.ScopesActivated))
	counter(c.scopesSettled, float64(s.ScopesSettled))
	counter(c.settleSeconds, float64(s.SettleWaitSumNs)/1e9)

	if c.proxy != nil {
		st := c.proxy.Stats()
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
		}
		gauge(c.tokensFree, float64(st.Free))
		gauge(c.tokenWaiters, float64(st.Waiters))
		gauge(c.tokensRequested, float64(st.Requested))
		gauge(c.tokensHeld, float64(st.HeldTokens))
	}
}
