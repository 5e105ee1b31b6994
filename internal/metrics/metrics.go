// Package metrics provides Prometheus collectors for the dispatch pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vcwarden"

// Collector holds all Prometheus metrics.
type Collector struct {
	// Queue metrics
	QueueEnqueued *prometheus.CounterVec
	QueueExecuted *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	SendDuration  prometheus.Histogram

	// Router metrics
	RouterCommands *prometheus.CounterVec

	// Classifier / ownership metrics
	RepliesClassified *prometheus.CounterVec
	OwnershipChanges  *prometheus.CounterVec

	// Config metrics
	ConfigReloads prometheus.Counter
}

// NewWithRegistry creates a collector registered on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		QueueEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_enqueued_total",
				Help:      "Actions enqueued, by lane",
			},
			[]string{"lane"},
		),
		QueueExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_executed_total",
				Help:      "Actions dequeued, by outcome",
			},
			[]string{"outcome"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Items waiting, by lane",
			},
			[]string{"lane"},
		),
		SendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Time spent in the send handler",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		RouterCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "router_commands_total",
				Help:      "Remote commands handled, by command and result",
			},
			[]string{"command", "result"},
		),
		RepliesClassified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_classified_total",
				Help:      "Moderation bot replies, by classified type",
			},
			[]string{"type"},
		),
		OwnershipChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ownership_changes_total",
				Help:      "Ownership slot updates, by slot",
			},
			[]string{"slot"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Successful config reloads",
			},
		),
	}
}

// Enqueued records an item entering lane ("priority" or "normal").
func (c *Collector) Enqueued(lane string) {
	if c == nil {
		return
	}
	c.QueueEnqueued.WithLabelValues(lane).Inc()
}

// Executed records a terminal queue outcome.
func (c *Collector) Executed(outcome string) {
	if c == nil {
		return
	}
	c.QueueExecuted.WithLabelValues(outcome).Inc()
}

// Depth sets the waiting item counts.
func (c *Collector) Depth(priority, normal int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues("priority").Set(float64(priority))
	c.QueueDepth.WithLabelValues("normal").Set(float64(normal))
}

// ObserveSend records send latency.
func (c *Collector) ObserveSend(d time.Duration) {
	if c == nil {
		return
	}
	c.SendDuration.Observe(d.Seconds())
}

// Command records a router outcome.
func (c *Collector) Command(name, result string) {
	if c == nil {
		return
	}
	c.RouterCommands.WithLabelValues(name, result).Inc()
}

// Classified records a reply classification.
func (c *Collector) Classified(typ string) {
	if c == nil {
		return
	}
	c.RepliesClassified.WithLabelValues(typ).Inc()
}

// OwnershipChanged records a slot update.
func (c *Collector) OwnershipChanged(slot string) {
	if c == nil {
		return
	}
	c.OwnershipChanges.WithLabelValues(slot).Inc()
}

// Reloaded records a config reload.
func (c *Collector) Reloaded() {
	if c == nil {
		return
	}
	c.ConfigReloads.Inc()
}
