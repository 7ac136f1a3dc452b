package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	descriptorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faust_descriptors_total",
		Help: "Descriptors processed by result",
	}, []string{"result"})

	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faust_descriptor_parse_duration_seconds",
		Help:    "Descriptor parse and store duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	unitsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faust_material_units_stored_total",
		Help: "Material units written by ingestion",
	})
)
