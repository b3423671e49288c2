// Package metrics exposes Prometheus collectors for the API and the chat pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/bus"
	"github.com/normanking/veriflow/internal/history"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. Each instance registers with its own registerer.
type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AnalysisCount   *prometheus.CounterVec
	AnalysisLatency *prometheus.HistogramVec
	TurnCount       *prometheus.CounterVec
	DatasetUploads  prometheus.Counter
	ActiveSockets   prometheus.Gauge
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veriflow_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "veriflow_request_duration_seconds",
				Help: "HTTP request duration in seconds",
			},
			[]string{"method", "endpoint"},
		),
		AnalysisCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veriflow_analysis_total",
				Help: "Total number of analysis calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		AnalysisLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veriflow_analysis_latency_seconds",
				Help:    "Analysis latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"provider"},
		),
		TurnCount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veriflow_turns_total",
				Help: "Total number of chat turns appended",
			},
			[]string{"role"},
		),
		DatasetUploads: f.NewCounter(
			prometheus.CounterOpts{
				Name: "veriflow_dataset_uploads_total",
				Help: "Total number of accepted dataset uploads",
			},
		),
		ActiveSockets: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "veriflow_active_sockets",
				Help: "Number of connected WebSocket clients",
			},
		),
	}
}

// ObserveAnalysis implements analysis.Observer.
func (m *Metrics) ObserveAnalysis(provider string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if reason := analysis.Reason(err); reason != analysis.ReasonUnknown {
			outcome = string(reason)
		}
	}
	m.AnalysisCount.WithLabelValues(provider, outcome).Inc()
	m.AnalysisLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	m.RequestCount.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// Attach counts chat activity published on the bus. The returned func detaches.
func (m *Metrics) Attach(eb *bus.EventBus) (detach func()) {
	unsubTurns := eb.Subscribe(bus.EventTypeTurnAppended, func(e bus.Event) {
		if turn, ok := e.Data["turn"].(history.Turn); ok {
			m.TurnCount.WithLabelValues(string(turn.Role)).Inc()
		}
	})
	unsubData := eb.Subscribe(bus.EventTypeDatasetChanged, func(bus.Event) {
		m.DatasetUploads.Inc()
	})
	return func() {
		unsubTurns()
		unsubData()
	}
}
