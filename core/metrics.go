package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Collections by result: ok, skipped
	Collections *prometheus.CounterVec

	CollectionDuration prometheus.Histogram

	// Fingerprint sources that produced no artifact
	AbsentArtifacts *prometheus.CounterVec

	// Frame behavior probe resolutions by trigger
	FrameResolutions *prometheus.CounterVec

	SuspiciousFrames prometheus.Histogram

	// Sends by result: ok, failed
	Deliveries *prometheus.CounterVec
}

// NewMetrics registers the collector metrics on reg. A nil reg gets a
// private registry nobody scrapes.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Collections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskagent_collections_total",
			Help: "Collection cycles by result.",
		}, []string{"result"}),

		CollectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskagent_collection_duration_seconds",
			Help:    "Time to run one collection cycle.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, .75, 1, 2.5, 5},
		}),

		AbsentArtifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskagent_absent_artifacts_total",
			Help: "Fingerprint sources that produced no artifact.",
		}, []string{"source"}),

		FrameResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskagent_frame_probe_resolutions_total",
			Help: "Frame behavior probe resolutions by trigger.",
		}, []string{"trigger"}),

		SuspiciousFrames: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskagent_suspicious_frames",
			Help:    "Suspicious iframes per collection.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),

		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskagent_deliveries_total",
			Help: "Payload sends by result.",
		}, []string{"result"}),
	}
}
