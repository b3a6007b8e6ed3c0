package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names
const (
	MetricDatasetsLoaded      = "cdr_datasets_loaded_total"
	MetricDatasetLoadErrors   = "cdr_dataset_load_errors_total"
	MetricDatasetRecords      = "cdr_dataset_records"
	MetricRecomputes          = "cdr_recomputes_total"
	MetricRecomputeSuperseded = "cdr_recomputes_superseded_total"
	MetricRecomputeDuration   = "cdr_recompute_duration_seconds"
	MetricFilteredRecords     = "cdr_filtered_records"
	MetricAggregatorFailures  = "cdr_aggregator_failures_total"
	MetricWSConnections       = "cdr_websocket_active_connections"
	MetricWSMessages          = "cdr_websocket_messages_total"
	MetricHTTPRequests        = "cdr_http_requests_total"
	MetricHTTPDuration        = "cdr_http_request_duration_seconds"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	datasetsLoaded      prometheus.Counter
	datasetLoadErrors   prometheus.Counter
	datasetRecords      prometheus.Gauge
	recomputes          prometheus.Counter
	recomputeSuperseded prometheus.Counter
	recomputeDuration   prometheus.Histogram
	filteredRecords     prometheus.Gauge
	aggregatorFailures  *prometheus.CounterVec
	wsConnections       prometheus.Gauge
	wsMessages          prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors. They are not registered; call Register.
func New() *Metrics {
	return &Metrics{
		datasetsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDatasetsLoaded,
			Help: "Total number of CDR datasets loaded",
		}),
		datasetLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDatasetLoadErrors,
			Help: "Total number of rejected dataset loads",
		}),
		datasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricDatasetRecords,
			Help: "Number of records in the loaded dataset",
		}),
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputes,
			Help: "Total number of published analytics snapshots",
		}),
		recomputeSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeSuperseded,
			Help: "Total number of recomputes discarded because a newer one started",
		}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRecomputeDuration,
			Help:    "Time spent filtering and aggregating one snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		filteredRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFilteredRecords,
			Help: "Number of records in the current filtered set",
		}),
		aggregatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAggregatorFailures,
			Help: "Total number of aggregator sections that failed during a recompute",
		}, []string{"aggregator"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricWSConnections,
			Help: "Current number of websocket subscribers",
		}),
		wsMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricWSMessages,
			Help: "Total number of snapshots broadcast to websocket subscribers",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequests,
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPDuration,
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Collectors returns every collector
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.datasetsLoaded,
		m.datasetLoadErrors,
		m.datasetRecords,
		m.recomputes,
		m.recomputeSuperseded,
		m.recomputeDuration,
		m.filteredRecords,
		m.aggregatorFailures,
		m.wsConnections,
		m.wsMessages,
		m.httpRequests,
		m.httpDuration,
	}
}

// Register registers all collectors with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the /metrics handler for the given gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordDatasetLoaded records a successful load of n records
func (m *Metrics) RecordDatasetLoaded(n int) {
	if m == nil {
		return
	}
	m.datasetsLoaded.Inc()
	m.datasetRecords.Set(float64(n))
}

// RecordDatasetLoadError increments the rejected load counter
func (m *Metrics) RecordDatasetLoadError() {
	if m == nil {
		return
	}
	m.datasetLoadErrors.Inc()
}

// RecordRecompute records a published snapshot
func (m *Metrics) RecordRecompute(duration time.Duration, filtered int) {
	if m == nil {
		return
	}
	m.recomputes.Inc()
	m.recomputeDuration.Observe(duration.Seconds())
	m.filteredRecords.Set(float64(filtered))
}

// RecordRecomputeSuperseded records a discarded stale recompute
func (m *Metrics) RecordRecomputeSuperseded() {
	if m == nil {
		return
	}
	m.recomputeSuperseded.Inc()
}

// RecordAggregatorFailure increments the failure counter of one section
func (m *Metrics) RecordAggregatorFailure(name string) {
	if m == nil {
		return
	}
	m.aggregatorFailures.WithLabelValues(name).Inc()
}

// RecordWebSocketConnect increments the active subscriber gauge
func (m *Metrics) RecordWebSocketConnect() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

// RecordWebSocketDisconnect decrements the active subscriber gauge
func (m *Metrics) RecordWebSocketDisconnect() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// RecordWebSocketMessage increments the broadcast counter
func (m *Metrics) RecordWebSocketMessage() {
	if m == nil {
		return
	}
	m.wsMessages.Inc()
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
