package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful ingestions.
	OutcomeSuccess = "success"
	// OutcomeError labels rejected or failed ingestions.
	OutcomeError = "error"

	// ClusterCreated labels clustering operations that founded a cluster.
	ClusterCreated = "created"
	// ClusterMerged labels clustering operations absorbed into an existing cluster.
	ClusterMerged = "merged"
)

var (
	errorsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_feedback",
			Name:      "errors_ingested_total",
			Help:      "Total number of error events ingested, partitioned by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	ingestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_feedback",
			Name:      "ingest_seconds",
			Help:      "Synchronous ingestion latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	clustersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_feedback",
			Name:      "clusters_total",
			Help:      "Total number of clustering operations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_feedback",
			Name:      "impact_analysis_seconds",
			Help:      "Impact analysis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_feedback",
			Name:      "executions_total",
			Help:      "Total number of finished feedback loop executions, partitioned by status.",
		},
		[]string{"status"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_feedback",
			Name:      "actions_total",
			Help:      "Total number of executed actions, partitioned by action and status.",
		},
		[]string{"action", "status"},
	)

	actionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_feedback",
			Name:      "action_seconds",
			Help:      "Action latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"action"},
	)
)

// Register attaches mirador-feedback collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		errorsIngestedTotal,
		ingestDurationSeconds,
		clustersTotal,
		analysisDurationSeconds,
		executionsTotal,
		actionsTotal,
		actionDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIngest records an ingestion duration and outcome label.
func ObserveIngest(source string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if source == "" {
		source = "unknown"
	}
	errorsIngestedTotal.WithLabelValues(source, label).Inc()
	if duration < 0 {
		duration = 0
	}
	ingestDurationSeconds.Observe(duration.Seconds())
}

// ObserveCluster counts a clustering operation as created or merged.
func ObserveCluster(created bool) {
	outcome := ClusterMerged
	if created {
		outcome = ClusterCreated
	}
	clustersTotal.WithLabelValues(outcome).Inc()
}

// ObserveAnalysis records an impact analysis duration.
func ObserveAnalysis(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveAction records the duration and outcome of a single action.
func ObserveAction(action, status string, duration time.Duration) {
	actionsTotal.WithLabelValues(action, status).Inc()
	if duration < 0 {
		duration = 0
	}
	actionDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveExecution counts a finished execution by terminal status.
func ObserveExecution(status string) {
	executionsTotal.WithLabelValues(status).Inc()
}
