package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Traces         *prometheus.CounterVec
	TraceDepth     prometheus.Histogram
	PhaseErrors    *prometheus.CounterVec
	Decodes        *prometheus.CounterVec
	StoreFetches   *prometheus.HistogramVec
	BackendQueries *prometheus.HistogramVec
}

// Global starts with unregistered collectors, InitMetrics replaces them
// with ones exported by the default registry.
var Global = newMetrics(promauto.With(nil), "", "")

func InitMetrics(namespace, subsystem string) {
	Global = newMetrics(promauto.With(prometheus.DefaultRegisterer), namespace, subsystem)
}

func newMetrics(f promauto.Factory, namespace, subsystem string) *Metrics {
	return &Metrics{
		Traces: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "traces",
			Help:      "Trace invocations",
		}, []string{"mode", "result"}),
		TraceDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "trace_depth",
			Help:      "Depth of built message trees",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		PhaseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_errors",
			Help:      "Non zero compute and action codes seen in traces",
		}, []string{"phase", "code", "ignored"}),
		Decodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decodes",
			Help:      "Message body decode attempts",
		}, []string{"result"}),
		StoreFetches: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_fetches",
			Help:      "Message store fetch statistics",
		}, []string{"store", "status"}),
		BackendQueries: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_queries",
			Help:      "Liteserver requests statistics",
		}, []string{"name", "request_type", "status"}),
	}
}
