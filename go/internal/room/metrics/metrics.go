// Package metrics records room engine activity.
package metrics

import (
	"context"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the measurements taken by the engine.
type Collector interface {
	RecordSignalAttempt(mode string, won bool, reason string)
	RecordAdjudication(mode, verdict string)
	RecordCountdown(outcome string)
	RecordStoreConflict()
	RecordAction(action, kind string, duration time.Duration)
	RecordEventPublished(eventType string, success bool, duration time.Duration)
	SetActiveConnections(n int)
}

// NoOp is a Collector that records nothing.
type NoOp struct{}

func (NoOp) RecordSignalAttempt(mode string, won bool, reason string)                   {}
func (NoOp) RecordAdjudication(mode, verdict string)                                    {}
func (NoOp) RecordCountdown(outcome string)                                             {}
func (NoOp) RecordStoreConflict()                                                       {}
func (NoOp) RecordAction(action, kind string, duration time.Duration)                   {}
func (NoOp) RecordEventPublished(eventType string, success bool, duration time.Duration) {}
func (NoOp) SetActiveConnections(n int)                                                 {}

// Prometheus implements Collector with prometheus metrics.
type Prometheus struct {
	signalAttempts  *prometheus.CounterVec
	adjudications   *prometheus.CounterVec
	countdowns      *prometheus.CounterVec
	storeConflicts  prometheus.Counter
	actionDuration  *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	connections     prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		signalAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzroom",
			Name:      "signal_attempts_total",
			Help:      "Signal attempts by mode and outcome.",
		}, []string{"mode", "outcome", "reason"}),
		adjudications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzroom",
			Name:      "adjudications_total",
			Help:      "Host verdicts by mode and verdict.",
		}, []string{"mode", "verdict"}),
		countdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzroom",
			Name:      "countdowns_total",
			Help:      "Countdowns by outcome.",
		}, []string{"outcome"}),
		storeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buzzroom",
			Name:      "store_conflicts_total",
			Help:      "Lost compare-and-set writes that were retried.",
		}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "buzzroom",
			Name:      "action_duration_seconds",
			Help:      "Client action latency by action and error kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action", "kind"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buzzroom",
			Name:      "events_published_total",
			Help:      "Published events by type and status.",
		}, []string{"type", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "buzzroom",
			Name:      "event_publish_duration_seconds",
			Help:      "Event publish latency by type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "buzzroom",
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
	}
	reg.MustRegister(
		m.signalAttempts,
		m.adjudications,
		m.countdowns,
		m.storeConflicts,
		m.actionDuration,
		m.eventsPublished,
		m.publishDuration,
		m.connections,
	)
	return m
}

func (m *Prometheus) RecordSignalAttempt(mode string, won bool, reason string) {
	outcome := "rejected"
	if won {
		outcome = "won"
		reason = ""
	}
	m.signalAttempts.WithLabelValues(mode, outcome, reason).Inc()
}

func (m *Prometheus) RecordAdjudication(mode, verdict string) {
	m.adjudications.WithLabelValues(mode, verdict).Inc()
}

func (m *Prometheus) RecordCountdown(outcome string) {
	m.countdowns.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) RecordStoreConflict() {
	m.storeConflicts.Inc()
}

func (m *Prometheus) RecordAction(action, kind string, duration time.Duration) {
	if kind == "" {
		kind = "ok"
	}
	m.actionDuration.WithLabelValues(action, kind).Observe(duration.Seconds())
}

func (m *Prometheus) RecordEventPublished(eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.eventsPublished.WithLabelValues(eventType, status).Inc()
	m.publishDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Prometheus) SetActiveConnections(n int) {
	m.connections.Set(float64(n))
}

// Publisher wraps an events.Publisher with metrics collection.
type Publisher struct {
	publisher events.Publisher
	metrics   Collector
}

func NewPublisher(publisher events.Publisher, metrics Collector) *Publisher {
	return &Publisher{publisher: publisher, metrics: metrics}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, e)

	p.metrics.RecordEventPublished(string(e.Type), err == nil, time.Since(start))
	return err
}
