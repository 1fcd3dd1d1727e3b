package metrics

import "github.com/prometheus/client_golang/prometheus"

var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0}

var (
	CommandsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpush_commands_created_total",
			Help: "Commands stored, by type",
		},
		[]string{"type"},
	)

	PullCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetpush_commands_pull_total",
			Help: "Total number of pull requests served",
		},
	)

	CommandsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetpush_commands_claimed_total",
			Help: "Commands moved from pending to running by a pull",
		},
	)

	PullHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetpush_commands_pull_duration_seconds",
			Help:    "Duration of the claim transaction",
			Buckets: durationBuckets,
		},
	)

	ResultsReported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpush_command_results_total",
			Help: "Result reports, by requested status and outcome",
		},
		[]string{"status", "outcome"},
	)

	UpdateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpush_update_checks_total",
			Help: "Update evaluations, by flavor",
		},
		[]string{"flavor"},
	)

	UpdateCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetpush_update_candidates",
			Help:    "Number of candidates returned per evaluation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsCreated)
	prometheus.MustRegister(PullCalls)
	prometheus.MustRegister(CommandsClaimed)
	prometheus.MustRegister(PullHistogram)
	prometheus.MustRegister(ResultsReported)
	prometheus.MustRegister(UpdateChecks)
	prometheus.MustRegister(UpdateCandidates)
}
