package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grupoa"

// Metrics holds every collector the pipeline reports to. A nil *Metrics is
// valid and records nothing, so library code never has to check.
type Metrics struct {
	reg *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	fetchRetries   prometheus.Counter
	fetchExhausted prometheus.Counter
	rowsDropped    *prometheus.CounterVec
	cacheRequests  *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ckan_fetch_attempts_total",
			Help:      "Datastore HTTP attempts by outcome.",
		}, []string{"outcome"}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ckan_fetch_retries_total",
			Help:      "Datastore attempts that were retried after a transient failure.",
		}),
		fetchExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ckan_fetch_exhausted_total",
			Help:      "Datastore calls that gave up and returned an empty result.",
		}),
		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_rows_dropped_total",
			Help:      "Rows discarded by the normalizer, by reason.",
		}, []string{"reason"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Aggregation runs by terminal state.",
		}, []string{"state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_run_seconds",
			Help:      "Wall time of aggregation runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	m.reg.MustRegister(
		m.fetchAttempts, m.fetchRetries, m.fetchExhausted,
		m.rowsDropped, m.cacheRequests, m.runs, m.runDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) FetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FetchRetry() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

func (m *Metrics) FetchExhausted() {
	if m == nil {
		return
	}
	m.fetchExhausted.Inc()
}

func (m *Metrics) RowsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Run(state string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
	m.runDuration.Observe(took.Seconds())
}

// CacheObserver returns a hit/miss observer labelled with the cache name.
func (m *Metrics) CacheObserver(name string) *CacheObserver {
	return &CacheObserver{m: m, name: name}
}

type CacheObserver struct {
	m    *Metrics
	name string
}

func (o *CacheObserver) CacheHit() {
	if o == nil || o.m == nil {
		return
	}
	o.m.cacheRequests.WithLabelValues(o.name, "hit").Inc()
}

func (o *CacheObserver) CacheMiss() {
	if o == nil || o.m == nil {
		return
	}
	o.m.cacheRequests.WithLabelValues(o.name, "miss").Inc()
}
