// Package metrics defines the Prometheus collectors of the service and the
// scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ScreeningsTotal     *prometheus.CounterVec
	RedFlagsTotal       *prometheus.CounterVec
	SearchLatency       prometheus.Histogram
	SearchResultsCount  prometheus.Histogram
	SearchErrorsTotal   prometheus.Counter
	ChunksIndexedTotal  prometheus.Counter
	LLMFailuresTotal    prometheus.Counter
	EmbeddingCacheHits  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer in production, a fresh registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baria_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "baria_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		ScreeningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baria_screenings_total",
				Help: "Screened messages by outcome (critical, attention, clear).",
			},
			[]string{"outcome"},
		),
		RedFlagsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baria_red_flags_total",
				Help: "Fired red-flag rules by category.",
			},
			[]string{"category"},
		),
		SearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "baria_search_latency_seconds",
			Help:    "Semantic search latency including query embedding.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "baria_search_results_count",
			Help:    "Results returned per search.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		SearchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baria_search_errors_total",
			Help: "Searches that failed on a dependency.",
		}),
		ChunksIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baria_chunks_indexed_total",
			Help: "Chunks newly inserted into the index.",
		}),
		LLMFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baria_llm_failures_total",
			Help: "LLM calls that failed or timed out.",
		}),
		EmbeddingCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baria_embedding_cache_total",
				Help: "Query embedding cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ScreeningsTotal,
		m.RedFlagsTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchErrorsTotal,
		m.ChunksIndexedTotal,
		m.LLMFailuresTotal,
		m.EmbeddingCacheHits,
	)
	return m
}

// ObserveScreening records one screening outcome and its fired categories.
func (m *Metrics) ObserveScreening(critical bool, categories []string) {
	if m == nil {
		return
	}
	outcome := "clear"
	switch {
	case critical:
		outcome = "critical"
	case len(categories) > 0:
		outcome = "attention"
	}
	m.ScreeningsTotal.WithLabelValues(outcome).Inc()
	for _, c := range categories {
		m.RedFlagsTotal.WithLabelValues(c).Inc()
	}
}

// ObserveSearch records a completed search.
func (m *Metrics) ObserveSearch(seconds float64, results int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SearchErrorsTotal.Inc()
		return
	}
	m.SearchLatency.Observe(seconds)
	m.SearchResultsCount.Observe(float64(results))
}

func (m *Metrics) AddIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksIndexedTotal.Add(float64(n))
}

func (m *Metrics) LLMFailure() {
	if m == nil {
		return
	}
	m.LLMFailuresTotal.Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.EmbeddingCacheHits.WithLabelValues("hit").Inc()
	} else {
		m.EmbeddingCacheHits.WithLabelValues("miss").Inc()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
