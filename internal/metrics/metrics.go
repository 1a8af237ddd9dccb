// Package metrics exposes Prometheus instrumentation for the engine and the
// HTTP surface. Collectors register on the default registry via promauto and
// are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted into the log, per tenant.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoflow_events_ingested_total",
		Help: "Events appended to the tenant event log.",
	}, []string{"tenant"})

	// EventsRejected counts ingest rejections by reason.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoflow_events_rejected_total",
		Help: "Events rejected at ingest.",
	}, []string{"reason"})

	// Executions counts finalized (rule, event) evaluations by status.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoflow_executions_total",
		Help: "Finalized rule executions by terminal status.",
	}, []string{"status"})

	// DuplicateClaims counts insert-if-absent claims lost to an earlier
	// invocation. A nonzero rate under overlapping runs is expected.
	DuplicateClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autoflow_duplicate_claims_total",
		Help: "Execution claims already held by another invocation.",
	})

	// PendingCreated counts pending actions entering the confirm queue.
	PendingCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoflow_pending_created_total",
		Help: "Pending actions created, by action type.",
	}, []string{"action_type"})

	// PendingResolved counts pending actions leaving the queue by outcome.
	PendingResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoflow_pending_resolved_total",
		Help: "Pending actions resolved, by outcome.",
	}, []string{"outcome"})

	// RulesDisabled counts fail-safe rule disables performed by the engine.
	RulesDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autoflow_rules_disabled_total",
		Help: "Rules disabled automatically after failing to parse.",
	})

	// RunDuration observes wall time of one tenant engine pass.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoflow_run_duration_seconds",
		Help:    "Duration of one tenant engine pass.",
		Buckets: prometheus.DefBuckets,
	})
)
