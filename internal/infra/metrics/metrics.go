// Package metrics provides Prometheus metrics for the achievement engine:
// evaluation passes, unlocks, dedups, notification delivery and streak
// cache refreshes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Evaluation ─────────────────────────────────────────────────────────────

// Evaluations counts evaluation passes by outcome (ok, error, aborted).
var Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "evaluations_total",
	Help:      "Total achievement evaluation passes by outcome.",
}, []string{"outcome"})

// EvaluationLatency tracks the duration of one evaluation pass in seconds.
var EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "breathe",
	Name:      "evaluation_latency_seconds",
	Help:      "Achievement evaluation pass duration in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
})

// ─── Unlocks ────────────────────────────────────────────────────────────────

// Unlocks counts achievements unlocked by category.
var Unlocks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "unlocks_total",
	Help:      "Total achievements unlocked.",
}, []string{"category"})

// UnlockDedups counts unlock attempts that found the work already done,
// by the layer that caught it (inflight, store).
var UnlockDedups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "unlock_dedups_total",
	Help:      "Unlock attempts short-circuited as duplicates.",
}, []string{"layer"})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationFailures counts failed delivery steps (record, fallback, push).
var NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "notification_failures_total",
	Help:      "Notification delivery failures by stage.",
}, []string{"stage"})

// PushesSuppressed counts pushes held back by policy.
var PushesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "pushes_suppressed_total",
	Help:      "Push requests suppressed by quiet hours or disabled push.",
})

// PushRetries counts push republish attempts by outcome (ok, requeued, exhausted, dropped).
var PushRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "push_retries_total",
	Help:      "Push request republish attempts by outcome.",
}, []string{"outcome"})

// PushRetryPending is the number of push requests waiting for a retry.
var PushRetryPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "breathe",
	Name:      "push_retry_pending",
	Help:      "Push requests waiting to be republished.",
})

// ─── Streak Cache ───────────────────────────────────────────────────────────

// StreakRefreshes counts recomputations of the cached profile streak.
var StreakRefreshes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "breathe",
	Name:      "streak_refreshes_total",
	Help:      "Cached streak recomputations triggered by slip status changes.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "breathe",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
