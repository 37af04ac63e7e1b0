package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recon_map"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion and filtering.
type Metrics struct {
	// Ingestion metrics.
	SourceFetches       *prometheus.CounterVec // labels: outcome={success,error}
	SourceFetchDuration prometheus.Histogram
	SourceParseFailures prometheus.Counter
	FeaturesNormalized  prometheus.Counter
	RecordsDropped      prometheus.Counter
	DatasetFeatures     prometheus.Gauge
	DatasetLoads        prometheus.Counter

	// Filter metrics.
	FilterRequests *prometheus.CounterVec // labels: outcome={applied,superseded,failed}
	FilterDuration prometheus.Histogram

	PipelineReady prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SourceFetches,
		m.SourceFetchDuration,
		m.SourceParseFailures,
		m.FeaturesNormalized,
		m.RecordsDropped,
		m.DatasetFeatures,
		m.DatasetLoads,
		m.FilterRequests,
		m.FilterDuration,
		m.PipelineReady,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source fetches by outcome.",
		}, []string{"outcome"}),
		SourceFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of a single source download.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SourceParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_parse_failures_total",
			Help:      "Sources whose payload was not valid JSON or not a supported shape.",
		}),
		FeaturesNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_normalized_total",
			Help:      "Features produced by normalization.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records dropped for lacking usable position data.",
		}),
		DatasetFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_features",
			Help:      "Number of features in the current working dataset.",
		}),
		DatasetLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Completed full load cycles.",
		}),
		FilterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_requests_total",
			Help:      "Dispatched filter requests by outcome.",
		}, []string{"outcome"}),
		FilterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_duration_seconds",
			Help:      "Duration of a date-range filter pass over the working dataset.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PipelineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_ready",
			Help:      "1 once a working dataset has been loaded.",
		}),
	}
}
