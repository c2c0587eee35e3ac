package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики жизненного цикла run.
var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "continuum_runs_started_total",
		Help: "Total number of workflow runs started",
	})
	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "continuum_runs_completed_total",
		Help: "Total number of workflow runs completed successfully",
	})
	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "continuum_runs_failed_total",
		Help: "Total number of workflow runs finished in FAILED",
	})
	RunsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "continuum_runs_timed_out_total",
		Help: "Total number of workflow runs finished in TIMED_OUT",
	})
)

// Метрики шагов.
var (
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "continuum_steps_executed_total",
		Help: "Total number of step executions by step name",
	}, []string{"step"})
	StepsMemoized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "continuum_steps_memoized_total",
		Help: "Total number of step executions skipped via the ledger",
	}, []string{"step"})
)

// Метрики callback'ов.
var (
	CallbacksRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "continuum_callbacks_registered_total",
		Help: "Total number of callbacks registered",
	})
	CallbacksResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "continuum_callbacks_resolved_total",
		Help: "Total number of callbacks resolved by outcome",
	}, []string{"outcome"})
)

// TokenVerifyFailures — отклонённые verification tokens по причине
// (malformed, signature, expired).
var TokenVerifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "continuum_token_verify_failures_total",
	Help: "Total number of rejected verification tokens by reason",
}, []string{"reason"})
