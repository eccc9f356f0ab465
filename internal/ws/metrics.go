package ws

import "github.com/prometheus/client_golang/prometheus"

type hubMetrics struct {
	activeSessions   prometheus.Gauge
	onlineIdentities prometheus.Gauge
	events           *prometheus.CounterVec
	eventErrors      *prometheus.CounterVec
	eventLatency     *prometheus.HistogramVec
	dropped          prometheus.Counter
}

func newHubMetrics(reg prometheus.Registerer) *hubMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &hubMetrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_connections_active",
			Help: "Current number of live connections, joined or not.",
		}),
		onlineIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_identities_online",
			Help: "Current number of identities with at least one joined session.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_events_total",
			Help: "Inbound live events by type.",
		}, []string{"type"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_event_errors_total",
			Help: "Rejected inbound live events by error code.",
		}, []string{"code"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "murmur_event_latency_seconds",
			Help:    "Latency for handling inbound live events.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"op"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murmur_deliveries_dropped_total",
			Help: "Outbound frames discarded because the connection was gone or too slow.",
		}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.onlineIdentities,
		m.events,
		m.eventErrors,
		m.eventLatency,
		m.dropped,
	)
	return m
}
