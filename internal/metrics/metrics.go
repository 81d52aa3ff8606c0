package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowsStarted tracks workflows started per pipeline
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_workflows_started_total",
			Help: "Total number of workflows started",
		},
		[]string{"pipeline"},
	)

	// WorkflowsFinished tracks workflows reaching a terminal state
	WorkflowsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_workflows_finished_total",
			Help: "Total number of workflows that reached a terminal state",
		},
		[]string{"pipeline", "state"},
	)

	// StepsSubmitted tracks writes accepted by the network
	StepsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_steps_submitted_total",
			Help: "Total number of workflow steps submitted",
		},
		[]string{"method"},
	)

	// StepFailures tracks failed steps by error kind
	StepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_step_failures_total",
			Help: "Total number of failed workflow steps",
		},
		[]string{"kind"},
	)

	// ConfirmationLatency tracks time from submission to confirmed receipt
	ConfirmationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketchain_confirmation_latency_seconds",
			Help:    "Time between submission and confirmed receipt",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"method"},
	)

	// SnapshotBuilds tracks snapshot builds by outcome
	SnapshotBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_snapshot_builds_total",
			Help: "Total number of snapshot builds",
		},
		[]string{"result"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketchain_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ViewCacheHits tracks read cache effectiveness
	ViewCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketchain_view_cache_total",
			Help: "View cache lookups by result",
		},
		[]string{"result"},
	)
)
