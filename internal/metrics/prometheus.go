// Package metrics exposes the prover's Prometheus collectors: resolution
// and fetch counts, cache hit/miss, proving duration, admission queue
// depth, and broadcast outcomes. A single package-level registry is
// initialized once at startup by cmd/prover and served at GET /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps every collector the prover registers.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	proveRequestsTotal *prometheus.CounterVec
	proveDuration      *prometheus.HistogramVec

	programFetchTotal    *prometheus.CounterVec
	programFetchDuration *prometheus.HistogramVec
	programCacheTotal    *prometheus.CounterVec

	resolutionDuration *prometheus.HistogramVec
	programsInstalled  prometheus.GaugeFunc

	admissionTotal  *prometheus.CounterVec
	admissionQueued prometheus.Gauge
	admissionInUse  prometheus.Gauge

	broadcastTotal *prometheus.CounterVec

	uptime prometheus.GaugeFunc
}

// proveDurationBuckets covers sub-second admission waits through
// multi-second proving runs, in milliseconds.
var proveDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var promMetrics *PrometheusMetrics

var startedAt time.Time

// InitPrometheus initializes the Prometheus metrics subsystem under the
// given namespace (config.ProverConfig.MetricsNamespace) and registers
// the default Go/process collectors alongside the prover's own.
// programCount is polled lazily by the programs_installed gauge, letting
// the caller pass vm.Process.ProgramIDs without this package importing
// the vm package back.
func InitPrometheus(namespace string, programCount func() int) {
	startedAt = time.Now()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		proveRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prove_requests_total",
				Help:      "Total /prove requests by outcome",
			},
			[]string{"status"},
		),

		proveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prove_duration_milliseconds",
				Help:      "End-to-end duration of a /prove request in milliseconds",
				Buckets:   proveDurationBuckets,
			},
			[]string{"status"},
		),

		programFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_fetch_total",
				Help:      "Remote program fetches by outcome",
			},
			[]string{"outcome"},
		),

		programFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "program_fetch_duration_milliseconds",
				Help:      "Duration of remote program fetches in milliseconds",
				Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"outcome"},
		),

		programCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_cache_total",
				Help:      "Program cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),

		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_milliseconds",
				Help:      "Duration of program dependency resolution in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"outcome"},
		),

		admissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_total",
				Help:      "Admission semaphore acquisitions by outcome",
			},
			[]string{"outcome"}, // acquired, rejected
		),

		admissionQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "admission_queued",
				Help:      "Requests currently waiting to acquire a proving slot",
			},
		),

		admissionInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "admission_in_use",
				Help:      "Proving slots currently in use, bounded by max_concurrent_proofs",
			},
		),

		broadcastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_total",
				Help:      "Transaction broadcast attempts by outcome",
			},
			[]string{"outcome"}, // success, failure
		),
	}

	pm.programsInstalled = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "programs_installed",
			Help:      "Number of programs currently loaded in the shared VM registry",
		},
		func() float64 {
			if programCount == nil {
				return 0
			}
			return float64(programCount())
		},
	)

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the prover process started",
		},
		func() float64 {
			return time.Since(startedAt).Seconds()
		},
	)

	registry.MustRegister(
		pm.proveRequestsTotal,
		pm.proveDuration,
		pm.programFetchTotal,
		pm.programFetchDuration,
		pm.programCacheTotal,
		pm.resolutionDuration,
		pm.programsInstalled,
		pm.admissionTotal,
		pm.admissionQueued,
		pm.admissionInUse,
		pm.broadcastTotal,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordProveRequest records a completed /prove request's outcome and
// total duration.
func RecordProveRequest(status string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.proveRequestsTotal.WithLabelValues(status).Inc()
	promMetrics.proveDuration.WithLabelValues(status).Observe(float64(durationMs))
}

// RecordProgramFetch records a single remote program fetch attempt.
func RecordProgramFetch(outcome string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.programFetchTotal.WithLabelValues(outcome).Inc()
	promMetrics.programFetchDuration.WithLabelValues(outcome).Observe(float64(durationMs))
}

// RecordProgramCacheResult records a cache lookup performed by the
// fetcher before falling back to the network.
func RecordProgramCacheResult(hit bool) {
	if promMetrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	promMetrics.programCacheTotal.WithLabelValues(result).Inc()
}

// RecordResolution records one resolver run (the two-pass DFS over an
// authorization's program dependency graph).
func RecordResolution(outcome string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.resolutionDuration.WithLabelValues(outcome).Observe(float64(durationMs))
}

// RecordAdmission records whether a request acquired a proving slot or
// was rejected because its context ended while it waited for one.
func RecordAdmission(outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.admissionTotal.WithLabelValues(outcome).Inc()
}

// SetAdmissionGauges reports the current semaphore occupancy, used by the
// concurrency-cap seed scenario to observe "at most N in the proving
// phase at any moment".
func SetAdmissionGauges(queued, inUse int) {
	if promMetrics == nil {
		return
	}
	promMetrics.admissionQueued.Set(float64(queued))
	promMetrics.admissionInUse.Set(float64(inUse))
}

// RecordBroadcast records the outcome of an explorer broadcast attempt.
func RecordBroadcast(outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.broadcastTotal.WithLabelValues(outcome).Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
// scraping, served at GET /metrics.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry, for tests that want
// to assert on a specific collector without going through HTTP.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
