package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of the pipeline and the API.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	stageItems    *prometheus.CounterVec
	outbound      *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	apiDurations  *prometheus.HistogramVec
	searchResults prometheus.Histogram
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irdin",
			Name:      "stage_items_total",
			Help:      "Items processed by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irdin",
			Name:      "outbound_requests_total",
			Help:      "Outbound HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irdin",
			Name:      "api_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		apiDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "irdin",
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "irdin",
			Name:      "search_results",
			Help:      "Total matches per search query.",
			Buckets:   []float64{0, 1, 5, 20, 100, 500},
		}),
	}

	m.registry.MustRegister(
		m.stageItems, m.outbound, m.apiRequests, m.apiDurations, m.searchResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ItemProcessed counts one item handled by a stage, e.g. ("download", "ok").
func (m *Metrics) ItemProcessed(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageItems.WithLabelValues(stage, outcome).Inc()
}

// OutboundHook returns an after-response hook for httpclient.HTTPClient.
func (m *Metrics) OutboundHook() func(*http.Request, *http.Response, error) {
	return func(req *http.Request, resp *http.Response, err error) {
		if m == nil {
			return
		}
		code := "error"
		if err == nil && resp != nil {
			code = strconv.Itoa(resp.StatusCode)
		}
		m.outbound.WithLabelValues(req.Method, code).Inc()
	}
}

// APIRequest records one served API request.
func (m *Metrics) APIRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.apiDurations.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SearchServed records the total match count of one search.
func (m *Metrics) SearchServed(total int64) {
	if m == nil {
		return
	}
	m.searchResults.Observe(float64(total))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
