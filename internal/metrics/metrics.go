// Package metrics exposes the Execution Loop's and Workflow Manager's
// Prometheus instrumentation, following the teacher's promauto-registered
// package-level collector convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflowd_active_workflows",
			Help: "Number of workflows currently held in the Executor's active set",
		},
	)

	pollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_poll_cycles_total",
			Help: "Total number of Execution Loop ticks completed",
		},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflowd_poll_duration_seconds",
			Help:    "Wall-clock duration of one Execution Loop tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	executorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_executor_errors_total",
			Help: "Total unexpected errors encountered by the Execution Loop, by kind",
		},
		[]string{"kind"},
	)

	stepsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_steps_submitted_total",
			Help: "Total steps submitted for execution, by app",
		},
		[]string{"app"},
	)

	stepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_steps_completed_total",
			Help: "Total steps that reached a terminal status, by app and status",
		},
		[]string{"app", "status"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflowd_step_duration_seconds",
			Help:    "Step execution duration as reported by the scheduler, by app",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"app"},
	)

	schedulerQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflowd_scheduler_query_duration_seconds",
			Help:    "Duration of AppService.query_tasks calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	schedulerQueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_scheduler_query_errors_total",
			Help: "Total errors querying the scheduler for task status",
		},
	)

	schedulerSubmitErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_scheduler_submit_errors_total",
			Help: "Total errors submitting a step to the scheduler, by app",
		},
		[]string{"app"},
	)

	workflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_workflows_completed_total",
			Help: "Total workflows that retired, by final status",
		},
		[]string{"status"},
	)

	workflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workflowd_workflow_duration_seconds",
			Help:    "Wall-clock duration from started_at to completed_at for retired workflows",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		},
	)
)

// UpdateActiveWorkflows sets the current size of the Executor's active set.
func UpdateActiveWorkflows(n int) { activeWorkflows.Set(float64(n)) }

// RecordPollCycle increments the tick counter.
func RecordPollCycle() { pollCycles.Inc() }

// RecordPollDuration records one tick's wall-clock duration in seconds.
func RecordPollDuration(seconds float64) { pollDuration.Observe(seconds) }

// RecordExecutorError increments the executor error counter for kind.
func RecordExecutorError(kind string) { executorErrors.WithLabelValues(kind).Inc() }

// RecordStepSubmitted increments the submitted-step counter for app.
func RecordStepSubmitted(app string) { stepsSubmitted.WithLabelValues(app).Inc() }

// RecordStepCompleted increments the completed-step counter for app/status
// ("succeeded" or "failed").
func RecordStepCompleted(app, status string) { stepsCompleted.WithLabelValues(app, status).Inc() }

// RecordStepDuration records a step's reported elapsed time in seconds.
func RecordStepDuration(app string, seconds float64) { stepDuration.WithLabelValues(app).Observe(seconds) }

// RecordSchedulerQueryDuration records one query_tasks call's duration.
func RecordSchedulerQueryDuration(seconds float64) { schedulerQueryDuration.Observe(seconds) }

// RecordSchedulerQueryError increments the query_tasks error counter.
func RecordSchedulerQueryError() { schedulerQueryErrors.Inc() }

// RecordSchedulerSubmitError increments the start_app2 error counter for app.
func RecordSchedulerSubmitError(app string) { schedulerSubmitErrors.WithLabelValues(app).Inc() }

// RecordWorkflowCompleted increments the workflow-completion counter for
// the final status ("succeeded", "failed", or "cancelled").
func RecordWorkflowCompleted(status string) { workflowsCompleted.WithLabelValues(status).Inc() }

// RecordWorkflowDuration records a retired workflow's wall-clock duration.
func RecordWorkflowDuration(seconds float64) { workflowDuration.Observe(seconds) }
