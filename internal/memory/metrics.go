package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HitsTotal counts retrievals that returned at least one record.
	HitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltm_hits_total",
			Help: "Total retrievals that returned at least one record",
		},
		[]string{"memory_type"},
	)

	// MissesTotal counts retrievals that returned nothing.
	MissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltm_misses_total",
			Help: "Total retrievals that returned no records",
		},
		[]string{"memory_type"},
	)
)

func observeRetrieval(memoryType string, results int) {
	if results > 0 {
		HitsTotal.WithLabelValues(memoryType).Inc()
	} else {
		MissesTotal.WithLabelValues(memoryType).Inc()
	}
}
