package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Moderation outcomes.
const (
	OutcomeClean       = "clean"
	OutcomeOffensive   = "offensive"
	OutcomeUnavailable = "unavailable"
)

// Submission results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Auto-reply job states.
const (
	JobScheduled = "scheduled"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
	JobFailed    = "failed"
)

var ModerationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postmod_moderation_checks_total",
	Help: "Total number of moderation checks by outcome",
}, []string{"outcome"})

var ModerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "postmod_moderation_duration_seconds",
	Help:    "Latency of calls to the moderation service",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
})

var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postmod_submissions_total",
	Help: "Total number of post and comment submissions by result",
}, []string{"kind", "result"})

var AutoReplyJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postmod_autoreply_jobs_total",
	Help: "Total number of auto-reply jobs by state transition",
}, []string{"state"})

var AutoReplyPending = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "postmod_autoreply_jobs_pending",
	Help: "Number of auto-reply jobs waiting for their delay to elapse",
})
