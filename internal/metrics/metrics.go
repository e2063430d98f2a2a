// Package metrics provides Prometheus instrumentation for the matchmaker. It
// exposes gauges for live state sizes, counters for pairing and relay
// throughput, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaker_connections_total",
		Help: "Current number of open WebSocket connections",
	})

	// PoolSize tracks the number of registered users waiting for a partner.
	PoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaker_pool_size",
		Help: "Current number of users waiting in the matchmaking pool",
	})

	// ActiveRooms tracks rooms that have not been closed yet, in any state.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaker_rooms",
		Help: "Current number of open rooms",
	})

	// MatchesTotal counts pairings produced by the live pool.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchmaker_matches_total",
		Help: "Total number of pairings produced by the matchmaking pool",
	})

	// RelayedTotal counts forwarded events, labeled by kind: "offer",
	// "answer", "ice-candidate" or "chat-message".
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaker_relayed_total",
		Help: "Total number of relayed signaling and chat events",
	}, []string{"kind"})

	// DroppedTotal counts events that were not delivered, labeled by reason:
	// "invalid_room_access", "peer_unavailable", "rate_limited",
	// "invalid_message" or "send_failed".
	DroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaker_dropped_total",
		Help: "Total number of dropped events",
	}, []string{"reason"})

	// RoomsClosedTotal counts closed rooms, labeled by reason: "leave",
	// "disconnect" or "timeout".
	RoomsClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaker_rooms_closed_total",
		Help: "Total number of closed rooms",
	}, []string{"reason"})

	// MatchWait records the time a user spent in the pool before pairing.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchmaker_match_wait_seconds",
		Help:    "Time from registration to pairing",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// FrameLatency records inbound frame handling latency in seconds.
	FrameLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchmaker_frame_latency_seconds",
		Help:    "Inbound frame handling latency in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// EmbeddingFallbacks counts embeddings replaced by a random unit vector.
	EmbeddingFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchmaker_embedding_fallbacks_total",
		Help: "Total number of embeddings served by the random fallback",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		PoolSize,
		ActiveRooms,
		MatchesTotal,
		RelayedTotal,
		DroppedTotal,
		RoomsClosedTotal,
		MatchWait,
		FrameLatency,
		EmbeddingFallbacks,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
