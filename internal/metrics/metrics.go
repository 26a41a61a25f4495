package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that produced a success envelope.
	OutcomeSuccess = "success"
	// OutcomeError labels analyses that ended in a pipeline error.
	OutcomeError = "error"
	// OutcomeCached labels analyses served from the cache.
	OutcomeCached = "cached"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marker_engine",
			Name:      "analyses_total",
			Help:      "Total number of analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "marker_engine",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	phaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marker_engine",
			Name:      "phase_seconds",
			Help:      "Per-phase pipeline latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"phase"},
	)

	phaseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marker_engine",
			Name:      "phase_errors_total",
			Help:      "Phase failures recorded in degraded analyses.",
		},
		[]string{"phase"},
	)

	markersDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marker_engine",
			Name:      "markers_detected_total",
			Help:      "Markers present in finalized envelopes, partitioned by marker type.",
		},
		[]string{"type"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marker_engine",
			Name:      "cache_lookups_total",
			Help:      "Analysis cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	catalogMarkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marker_engine",
			Name:      "catalog_markers",
			Help:      "Markers in the active definition snapshot.",
		},
	)
)

// Register attaches marker-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		phaseDurationSeconds,
		phaseErrorsTotal,
		markersDetectedTotal,
		cacheLookupsTotal,
		catalogMarkers,
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

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCached:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObservePhase records how long a pipeline phase took.
func ObservePhase(phase string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// PhaseFailed counts a degraded phase.
func PhaseFailed(phase string) {
	phaseErrorsTotal.WithLabelValues(phase).Inc()
}

// MarkersDetected adds n markers of markerType.
func MarkersDetected(markerType string, n int) {
	if n <= 0 {
		return
	}
	markersDetectedTotal.WithLabelValues(markerType).Add(float64(n))
}

// CacheLookup counts one cache lookup result.
func CacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetCatalogSize publishes the active catalog size.
func SetCatalogSize(n int) {
	catalogMarkers.Set(float64(n))
}
