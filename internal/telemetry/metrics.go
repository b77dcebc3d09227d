// Package telemetry is the process-wide metrics facade: counters, gauges
// and histograms backed by client_golang, published to the external
// Prometheus pipeline. It implements every per-package Metrics interface
// (vector, l2cache, nocqueue, snapshot, coordinator) so a single *Metrics
// value can be wired into all of them.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/argusd/pkg/alert"
)

// Metrics is the concrete facade. The zero value is not usable; build one
// with New.
type Metrics struct {
	received  prometheus.Counter
	filtered  prometheus.Counter
	created   prometheus.Counter
	resolved  prometheus.Counter
	unknown   prometheus.Counter
	nocSent   prometheus.Counter
	nocSupp   prometheus.Counter
	nocByKind *prometheus.CounterVec
	l2Success prometheus.Counter
	l2Failure prometheus.Counter
	expired   prometheus.Counter

	vectorSize     prometheus.Gauge
	vectorByStatus *prometheus.GaugeVec
	nocQueueDepth  prometheus.Gauge
	breakerState   *prometheus.GaugeVec
	gracePeriod    prometheus.Gauge
	l2Available    prometheus.Gauge

	k8sPollDuration  prometheus.Histogram
	snapshotDuration prometheus.Histogram
	httpDuration     *prometheus.HistogramVec
}

// New builds a Metrics facade with the "argusd" namespace.
func New() *Metrics {
	const ns = "argusd"

	return &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "received_total",
			Help: "Total push-ingested alerts received.",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "filtered_total",
			Help: "Total push-ingested alerts dropped by the platform filter.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "created_total",
			Help: "Total alerts that entered the vector as CREATE or changed status.",
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "resolved_total",
			Help: "Total alerts removed from the vector.",
		}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "unknown_total",
			Help: "Total alerts that entered the vector with UNKNOWN status.",
		}),
		nocSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "noc", Name: "sent_total",
			Help: "Total decisions successfully POSTed to NOC.",
		}),
		nocSupp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "noc", Name: "suppressed_total",
			Help: "Total decisions suppressed by the suppression cache.",
		}),
		nocByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "noc", Name: "decisions_total",
			Help: "Total NOC decisions dequeued, by kind.",
		}, []string{"kind"}),
		l2Success: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "l2", Name: "write_success_total",
			Help: "Total successful L2 cache batch writes.",
		}),
		l2Failure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "l2", Name: "write_failure_total",
			Help: "Total failed L2 cache batch writes.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "alerts", Name: "expired_total",
			Help: "Total alerts evicted by the vector TTL sweep.",
		}),
		vectorSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "vector", Name: "size",
			Help: "Current number of alerts held in the vector.",
		}),
		vectorByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "vector", Name: "size_by_status",
			Help: "Current vector size broken down by alert status.",
		}, []string{"status"}),
		nocQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "noc", Name: "queue_depth",
			Help: "Current depth of the NOC dispatch queue.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "breaker", Name: "state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open), by breaker name.",
		}, []string{"name"}),
		gracePeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "watchdog", Name: "grace_period_active",
			Help: "1 while the boot grace period is active, else 0.",
		}),
		l2Available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "l2", Name: "available",
			Help: "1 if the L2 cache circuit breaker currently allows writes, else 0.",
		}),
		k8sPollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "k8s", Name: "poll_duration_seconds",
			Help:    "Duration of one K8s layer poll (both pod checks).",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "snapshot", Name: "duration_seconds",
			Help:    "Duration of one NOC snapshot pass.",
			Buckets: prometheus.DefBuckets,
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request duration in seconds, by method/route/status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// All returns every collector for registration against a prometheus.Registry.
func (m *Metrics) All() []prometheus.Collector {
	return []prometheus.Collector{
		m.received, m.filtered, m.created, m.resolved, m.unknown,
		m.nocSent, m.nocSupp, m.nocByKind, m.l2Success, m.l2Failure, m.expired,
		m.vectorSize, m.vectorByStatus, m.nocQueueDepth, m.breakerState,
		m.gracePeriod, m.l2Available, m.k8sPollDuration, m.snapshotDuration,
		m.httpDuration,
	}
}

// ObserveHTTPRequest records one request's duration for the Metrics HTTP
// middleware.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	m.httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// -- coordinator.Metrics --

func (m *Metrics) IncReceived()                           { m.received.Inc() }
func (m *Metrics) IncFiltered()                           { m.filtered.Inc() }
func (m *Metrics) ObserveK8sPollDuration(d time.Duration) { m.k8sPollDuration.Observe(d.Seconds()) }
func (m *Metrics) SetGracePeriodActive(active bool) {
	if active {
		m.gracePeriod.Set(1)
	} else {
		m.gracePeriod.Set(0)
	}
}

// -- vector.Metrics --

func (m *Metrics) IncCreated()  { m.created.Inc() }
func (m *Metrics) IncResolved() { m.resolved.Inc() }
func (m *Metrics) IncUnknown()  { m.unknown.Inc() }

// -- l2cache.Metrics --

func (m *Metrics) IncL2WriteSuccess() { m.l2Success.Inc() }
func (m *Metrics) IncL2WriteFailure() { m.l2Failure.Inc() }
func (m *Metrics) SetL2Available(available bool) {
	if available {
		m.l2Available.Set(1)
	} else {
		m.l2Available.Set(0)
	}
}

// -- nocqueue.Metrics --

func (m *Metrics) IncNocDecision(kind alert.DecisionKind) {
	m.nocByKind.WithLabelValues(kind.String()).Inc()
}
func (m *Metrics) IncNocSent()             { m.nocSent.Inc() }
func (m *Metrics) IncNocSuppressed()       { m.nocSupp.Inc() }
func (m *Metrics) SetQueueDepth(depth int) { m.nocQueueDepth.Set(float64(depth)) }

// -- snapshot.Metrics --

func (m *Metrics) SetVectorSize(n int) { m.vectorSize.Set(float64(n)) }
func (m *Metrics) SetVectorByStatus(status alert.Status, n int) {
	m.vectorByStatus.WithLabelValues(string(status)).Set(float64(n))
}
func (m *Metrics) IncExpired(n int) { m.expired.Add(float64(n)) }
func (m *Metrics) ObserveSnapshotDuration(d time.Duration) {
	m.snapshotDuration.Observe(d.Seconds())
}

// SetBreakerState publishes a named circuit breaker's current state
// (0=closed, 1=open, 2=half_open), keyed by breaker name.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
