package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_events_published_total",
		Help: "Total number of domain events published to the bus.",
	})

	RulesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_rules_matched_total",
		Help: "Total number of (rule, event) pairs whose conditions matched.",
	})

	JobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_jobs_dropped_backpressure_total",
		Help: "Total number of matched jobs dropped because the queue stayed full past the enqueue timeout.",
	})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_executions_total",
		Help: "Total number of rule executions, labelled by outcome.",
	}, []string{"outcome"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	ActionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_action_retries_total",
		Help: "Total number of action retry attempts after a transient failure.",
	})

	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_scheduler_ticks_total",
		Help: "Total number of synthetic schedule.tick events fired.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_queue_depth",
		Help: "Number of execution jobs currently waiting in the queue.",
	})

	BusyWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_busy_workers",
		Help: "Number of workers currently executing a job.",
	})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_execution_duration_ms",
		Help:    "Rule execution latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})
)
