package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "jobs_submitted_total",
		Help:      "Jobs submitted to the compute pool by service type.",
	}, []string{"service_type"})

	JobsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "jobs_settled_total",
		Help:      "Jobs reaching a terminal state by outcome.",
	}, []string{"service_type", "outcome"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "cache_hits_total",
		Help:      "Requests served from a completed processing record.",
	}, []string{"service_type"})

	CreditsCharged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "credits_charged_total",
		Help:      "Credits deducted by the ledger.",
	}, []string{"service_type"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "payment_webhooks_total",
		Help:      "Payment rail deliveries by rail and result.",
	}, []string{"rail", "result"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stemforge",
		Name:      "scheduler_job_runs_total",
		Help:      "Scheduler job executions by job and result.",
	}, []string{"job", "result"})

	SchedulerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stemforge",
		Name:      "scheduler_job_duration_seconds",
		Help:      "Scheduler job wall time.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
)
