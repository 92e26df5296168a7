package tracker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the tracker's Prometheus collectors on an isolated
// registry, the same shape as pkg/overlay.Metrics and the teacher's
// pkg/p2pnet.Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	OverlaysActive       prometheus.Gauge
	OverlaysSynthesized  prometheus.Counter
	OverlaysUnloaded     prometheus.Counter
	OverlaysKilled       prometheus.Counter
	IntroductionRequests *prometheus.CounterVec
	DestroyEvidenceLines prometheus.Counter
}

// NewMetrics builds a Metrics instance with every collector registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		OverlaysActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispersy_tracker_overlays_active",
			Help: "Number of overlay objects currently held in memory.",
		}),
		OverlaysSynthesized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_tracker_overlays_synthesized_total",
			Help: "Overlay objects synthesized on demand.",
		}),
		OverlaysUnloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_tracker_overlays_unloaded_total",
			Help: "Overlay objects unloaded for reaching the strike limit.",
		}),
		OverlaysKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_tracker_overlays_killed_total",
			Help: "Overlay objects replaced by a killed community after a destroy message.",
		}),
		IntroductionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispersy_tracker_introduction_requests_total",
			Help: "Introduction requests handled, by overlay state.",
		}, []string{"state"}),
		DestroyEvidenceLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_tracker_destroy_evidence_lines_total",
			Help: "Lines appended to the destroy-evidence log.",
		}),
	}

	reg.MustRegister(
		m.OverlaysActive,
		m.OverlaysSynthesized,
		m.OverlaysUnloaded,
		m.OverlaysKilled,
		m.IntroductionRequests,
		m.DestroyEvidenceLines,
	)
	return m
}
