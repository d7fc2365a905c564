package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RotationTransitions counts rotation state changes by resulting status
	RotationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "envie",
			Subsystem: "rotation",
			Name:      "transitions_total",
			Help:      "Key rotation state transitions by resulting status.",
		},
		[]string{"status"},
	)

	// RotationCommits counts committed rotations by path
	RotationCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "envie",
			Subsystem: "rotation",
			Name:      "commits_total",
			Help:      "Committed key rotations by path (immediate or approved).",
		},
		[]string{"path"},
	)

	// RotationCommitFailures counts commits rolled back
	RotationCommitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "envie",
			Subsystem: "rotation",
			Name:      "commit_failures_total",
			Help:      "Key rotation commits that were rolled back.",
		},
	)

	// TokensInvalidated counts CLI tokens removed by rotations
	TokensInvalidated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "envie",
			Subsystem: "tokens",
			Name:      "invalidated_total",
			Help:      "Project tokens deleted by committed key rotations.",
		},
	)

	// CLIAuthFailures counts rejected CLI identities by reason
	CLIAuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "envie",
			Subsystem: "cli",
			Name:      "auth_failures_total",
			Help:      "Rejected CLI identity headers by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(RotationTransitions)
	prometheus.MustRegister(RotationCommits)
	prometheus.MustRegister(RotationCommitFailures)
	prometheus.MustRegister(TokensInvalidated)
	prometheus.MustRegister(CLIAuthFailures)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
