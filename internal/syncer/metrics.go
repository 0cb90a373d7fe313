package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprucesync",
			Name:      "sync_runs_total",
			Help:      "Full sync attempts by outcome.",
		},
		[]string{"outcome"},
	)

	pagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sprucesync",
			Name:      "conversation_pages_fetched_total",
			Help:      "Conversation feed pages fetched during full syncs.",
		},
	)

	incrementalUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sprucesync",
			Name:      "incremental_updates_applied_total",
			Help:      "Conversations merged by incremental updates.",
		},
	)

	historyFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprucesync",
			Name:      "history_fetches_total",
			Help:      "History fetches by cache outcome.",
		},
		[]string{"cache"},
	)
)
