// Package metrics holds the process-wide Prometheus collectors. Collectors
// register on the default registry; the router exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dining_philosophers"

var (
	// MessagesDelivered counts persisted-and-broadcast messages by sender type.
	MessagesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_delivered_total",
		Help:      "Messages persisted and broadcast, by sender type.",
	}, []string{"sender_type"})

	// ThinkerTasks counts finished thinker response tasks by outcome.
	ThinkerTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thinker_tasks_total",
		Help:      "Thinker response tasks by final outcome (done, cancelled, failed).",
	}, []string{"outcome"})

	// GenerationErrors counts persona generation failures by classification.
	GenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_errors_total",
		Help:      "Persona generation failures by kind.",
	}, []string{"kind"})

	// ResearchTriggers counts background knowledge research jobs queued.
	ResearchTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "research_triggers_total",
		Help:      "Background knowledge research jobs queued.",
	})

	// GenerationCost accumulates the USD cost of all completed generations.
	GenerationCost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_cost_usd_total",
		Help:      "Accumulated USD cost of completed generations.",
	})
)
