// Package metrics declares the Prometheus instruments of the coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Mutations counts tool calls by method and outcome (ok, noop, or an error kind).
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codespace",
		Subsystem: "coordinator",
		Name:      "requests_total",
		Help:      "Tool-call requests handled by the session coordinator",
	}, []string{"method", "outcome"})

	// CompileDuration measures compiler collaborator latency.
	CompileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codespace",
		Subsystem: "compiler",
		Name:      "duration_seconds",
		Help:      "Compile latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	// ActiveSessions tracks resident session actors.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codespace",
		Subsystem: "coordinator",
		Name:      "active_sessions",
		Help:      "Session actors currently resident in memory",
	})

	// Subscribers tracks live connections across all sessions.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codespace",
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Live subscribers currently registered",
	})

	// DroppedSubscribers counts subscribers disconnected for backpressure.
	DroppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codespace",
		Subsystem: "hub",
		Name:      "dropped_subscribers_total",
		Help:      "Subscribers dropped because their outbound queue was full",
	})

	// Notifications counts enqueued change notifications.
	Notifications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codespace",
		Subsystem: "hub",
		Name:      "notifications_total",
		Help:      "Change notifications enqueued to subscribers",
	})

	// ArtifactWrites counts artifact puts by storage path (inline, blob).
	ArtifactWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codespace",
		Subsystem: "artifacts",
		Name:      "writes_total",
		Help:      "Artifact writes by storage path",
	}, []string{"path"})
)
