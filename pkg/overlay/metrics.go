package overlay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the discovery-protocol Prometheus collectors, on an
// isolated registry so they never collide with a host process's default
// registry (mirrors pkg/p2pnet's Metrics in the host project this
// package grew out of). DiscoveryCommunity updates only
// SimilarityRequestsTotal (direction "in"), SimilarityResponsesTotal and
// IntroductionsSteeredTotal; the other collectors are registered but
// nothing in this package changes them.
type Metrics struct {
	Registry *prometheus.Registry

	TasteBuddiesTotal         prometheus.Gauge
	PossibleTasteBuddiesTotal prometheus.Gauge
	SimilarityRequestsTotal   *prometheus.CounterVec
	SimilarityResponsesTotal  *prometheus.CounterVec
	SimilarityTimeoutsTotal   prometheus.Counter
	PingRoundsTotal           prometheus.Counter
	PingEvictionsTotal        prometheus.Counter
	IntroductionsSteeredTotal prometheus.Counter
}

// NewMetrics builds a Metrics instance with every collector registered
// on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		TasteBuddiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispersy_discovery_taste_buddies",
			Help: "Number of confirmed taste buddies currently held.",
		}),
		PossibleTasteBuddiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispersy_discovery_possible_taste_buddies",
			Help: "Number of possible taste buddies currently held.",
		}),
		SimilarityRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispersy_discovery_similarity_requests_total",
			Help: "Similarity requests sent or received, by direction.",
		}, []string{"direction"}),
		SimilarityResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispersy_discovery_similarity_responses_total",
			Help: "Similarity responses sent or received, by direction.",
		}, []string{"direction"}),
		SimilarityTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_discovery_similarity_timeouts_total",
			Help: "Similarity attempts that timed out before a response arrived.",
		}),
		PingRoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_discovery_ping_rounds_total",
			Help: "Ping rounds started by the liveness task.",
		}),
		PingEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_discovery_ping_evictions_total",
			Help: "Taste buddies evicted for failing to answer a ping round.",
		}),
		IntroductionsSteeredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispersy_discovery_introductions_steered_total",
			Help: "Introduction targets overridden by similarity steering.",
		}),
	}

	reg.MustRegister(
		m.TasteBuddiesTotal,
		m.PossibleTasteBuddiesTotal,
		m.SimilarityRequestsTotal,
		m.SimilarityResponsesTotal,
		m.SimilarityTimeoutsTotal,
		m.PingRoundsTotal,
		m.PingEvictionsTotal,
		m.IntroductionsSteeredTotal,
	)
	return m
}
