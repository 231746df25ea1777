package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncCollector exposes Prometheus metrics for the sync loop.
type SyncCollector struct {
	registry       *prometheus.Registry
	cycleDuration  *prometheus.HistogramVec
	documentsTotal *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
}

// NewSyncCollector constructs a collector with the connector's histograms and
// counters registered.
func NewSyncCollector() (*SyncCollector, error) {
	registry := prometheus.NewRegistry()

	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "panopto_connector",
		Subsystem: "sync",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of full sync cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"result"})

	documentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panopto_connector",
		Subsystem: "sync",
		Name:      "documents_total",
		Help:      "Documents processed, by action and result.",
	}, []string{"action", "result"})

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panopto_connector",
		Subsystem: "panopto",
		Name:      "api_requests_total",
		Help:      "Requests issued against the Panopto API, by endpoint.",
	}, []string{"endpoint", "result"})

	for _, collector := range []prometheus.Collector{cycleDuration, documentsTotal, apiRequests} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return &SyncCollector{
		registry:       registry,
		cycleDuration:  cycleDuration,
		documentsTotal: documentsTotal,
		apiRequests:    apiRequests,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *SyncCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a completed sync cycle.
func (c *SyncCollector) ObserveCycle(duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.cycleDuration.WithLabelValues(resultLabel(err)).Observe(duration.Seconds())
}

// IncDocument records one processed document. Action is "push" or "delete".
func (c *SyncCollector) IncDocument(action string, err error) {
	if c == nil {
		return
	}
	c.documentsTotal.WithLabelValues(action, resultLabel(err)).Inc()
}

// IncAPIRequest records one Panopto API call. Endpoint is "updates" or
// "content".
func (c *SyncCollector) IncAPIRequest(endpoint string, err error) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(endpoint, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
