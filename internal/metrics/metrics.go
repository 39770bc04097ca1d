// Package metrics exposes pipeline metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

const namespace = "vibeops"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics holds the collectors of one process. All methods are safe on a
// nil receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runsActive    prometheus.Gauge
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageRetries  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	eventsTotal   *prometheus.CounterVec
	inventoryCall *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by result",
			},
			[]string{"result"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_active",
				Help:      "Number of pipeline runs in progress",
			},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_total",
				Help:      "Total number of stage executions by stage and result",
			},
			[]string{"stage", "result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage executions in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"stage"},
		),
		stageRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_retries_total",
				Help:      "Total number of stage retry attempts",
			},
			[]string{"stage"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "terraform",
				Name:      "phase_duration_seconds",
				Help:      "Duration of terraform phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17min
			},
			[]string{"phase", "result"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "events_total",
				Help:      "Total number of wire events streamed by type",
			},
			[]string{"type"},
		),
		inventoryCall: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inventory",
				Name:      "calls_total",
				Help:      "Total number of inventory reads by source and result",
			},
			[]string{"source", "result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsTotal,
		m.runsActive,
		m.stageTotal,
		m.stageDuration,
		m.stageRetries,
		m.phaseDuration,
		m.eventsTotal,
		m.inventoryCall,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

func (m *Metrics) RunFinished(result string) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordStage(stage domain.StageName, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(string(stage), result).Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *Metrics) RecordRetry(stage domain.StageName) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(string(stage)).Inc()
}

// RecordPhase has the shape of deploy.PhaseObserver.
func (m *Metrics) RecordPhase(phase domain.ToolPhase, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase), resultOf(err)).Observe(d.Seconds())
}

func (m *Metrics) RecordEvent(t domain.EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) RecordInventory(source string, err error) {
	if m == nil {
		return
	}
	m.inventoryCall.WithLabelValues(source, resultOf(err)).Inc()
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
