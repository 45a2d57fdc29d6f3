// Package metrics defines the Prometheus metrics of the inference server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry creates metrics and registers them with R.
type Registry struct {
	R prometheus.Registerer
}

func (mr Registry) NewCounterVec(c prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	pm := prometheus.NewCounterVec(c, labels)
	mr.R.MustRegister(pm)
	return pm
}

func (mr Registry) NewHistogram(h prometheus.HistogramOpts) prometheus.Histogram {
	pm := prometheus.NewHistogram(h)
	mr.R.MustRegister(pm)
	return pm
}

func (mr Registry) NewHistogramVec(h prometheus.HistogramOpts, labels ...string) *prometheus.HistogramVec {
	pm := prometheus.NewHistogramVec(h, labels)
	mr.R.MustRegister(pm)
	return pm
}

func (mr Registry) NewGauge(g prometheus.GaugeOpts) prometheus.Gauge {
	pm := prometheus.NewGauge(g)
	mr.R.MustRegister(pm)
	return pm
}

// Inference tracks compilation, propagation and queries. A nil *Inference
// records nothing.
type Inference struct {
	compileDuration     prometheus.Histogram
	cliqueStates        prometheus.Histogram
	propagationDuration prometheus.Histogram
	queries             *prometheus.CounterVec
	networks            prometheus.Gauge
}

func NewInference(mr Registry) *Inference {
	return &Inference{
		compileDuration: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "junctree",
			Name:      "compile_duration_seconds",
			Help:      "Time to build a junction tree from a network",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		cliqueStates: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "junctree",
			Name:      "max_clique_states",
			Help:      "Table size of the largest clique of each compiled tree",
			Buckets:   prometheus.ExponentialBuckets(2, 4, 12),
		}),
		propagationDuration: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: "junctree",
			Name:      "propagation_duration_seconds",
			Help:      "Time of one collect/distribute pass",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		queries: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junctree",
			Name:      "queries_total",
			Help:      "Queries answered, by kind and result",
		}, "kind", "result"),
		networks: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: "junctree",
			Name:      "loaded_networks",
			Help:      "Compiled networks held in memory",
		}),
	}
}

func (m *Inference) ObserveCompile(d time.Duration, maxStates int) {
	if m == nil {
		return
	}
	m.compileDuration.Observe(d.Seconds())
	m.cliqueStates.Observe(float64(maxStates))
}

func (m *Inference) ObservePropagation(d time.Duration) {
	if m == nil {
		return
	}
	m.propagationDuration.Observe(d.Seconds())
}

func (m *Inference) ObserveQuery(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queries.WithLabelValues(kind, result).Inc()
}

func (m *Inference) SetNetworks(n int) {
	if m == nil {
		return
	}
	m.networks.Set(float64(n))
}

// HTTP tracks request counts and latencies by route pattern.
type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(mr Registry) *HTTP {
	return &HTTP{
		requests: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junctree",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status class",
		}, "route", "method", "status"),
		latency: mr.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "junctree",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, "route"),
	}
}

func (m *HTTP) Observe(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, status).Inc()
	m.latency.WithLabelValues(route).Observe(d.Seconds())
}
