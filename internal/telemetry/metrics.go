package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в default registry и отдаются
// через promhttp на /metrics.
var (
	// RunsStarted — количество запущенных runs.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conduit_runs_started_total",
		Help: "Number of workflow runs started.",
	})

	// RunsTotal — количество завершённых runs по статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conduit_runs_total",
		Help: "Number of finished workflow runs by status.",
	}, []string{"status"})

	// StepsTotal — количество завершённых шагов по статусу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conduit_steps_total",
		Help: "Number of executed workflow steps by status.",
	}, []string{"status"})

	// StepDuration — длительность выполнения шага в секундах.
	StepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conduit_step_duration_seconds",
		Help:    "Workflow step execution time in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveSessions — количество открытых stateful-сессий.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conduit_active_sessions",
		Help: "Number of currently open stateful sessions.",
	})
)
