package verseindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// updateTotal counts index updates by event kind and result
	updateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faust_verse_index_updates_total",
		Help: "Total verse index updates by kind and result",
	}, []string{"kind", "result"})

	updateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faust_verse_index_update_duration_seconds",
		Help:    "Verse index update duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"kind"})

	entriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faust_verse_index_entries_written_total",
		Help: "Total verse entries written",
	})

	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faust_verse_index_queries_total",
		Help: "Total verse queries by cache outcome",
	}, []string{"cache"})
)
