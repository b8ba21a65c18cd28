// Package metrics holds the prometheus collectors shared by the auth and sync packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgate"

var (
	// Resolutions counts request authentications by credential scheme and outcome.
	Resolutions = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Number of request authentications, by scheme and outcome.",
		},
		[]string{"scheme", "outcome"},
	)

	// CacheLookups counts token cache lookups by result (hit or miss).
	CacheLookups = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_lookups_total",
			Help:      "Number of token cache lookups, by result.",
		},
		[]string{"result"},
	)

	// SyncRuns counts directory sync passes by source and result.
	SyncRuns = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Number of directory sync passes, by source and result.",
		},
		[]string{"source", "result"},
	)

	// SyncAttempts is the number of consecutive failed sync passes.
	SyncAttempts = promauto.NewGaugeVec( //nolint:gochecknoglobals
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_failed_attempts",
			Help:      "Consecutive failed sync passes since the last success.",
		},
		[]string{"source"},
	)

	// SyncStopped is 1 once the sync coordinator gave up after too many failures.
	SyncStopped = promauto.NewGaugeVec( //nolint:gochecknoglobals
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_stopped",
			Help:      "1 when the sync schedule was cancelled after reaching the attempt limit.",
		},
		[]string{"source"},
	)
)
