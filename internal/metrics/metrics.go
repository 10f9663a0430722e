// Package metrics holds the Prometheus collectors for the arena.
// Labels are bounded; nothing is labelled per player or per connection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// World metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in a world tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_player_count",
		Help: "Current number of joined players",
	})

	nutrientCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_nutrient_count",
		Help: "Current number of nutrients in the arena",
	})

	moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_moves_total",
		Help: "Movement proposals by outcome",
	}, []string{"outcome"}) // Bounded: "accepted", "rejected"

	nutrientsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_nutrients_collected_total",
		Help: "Nutrients collected by players",
	})

	kills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_kills_total",
		Help: "Players absorbed by larger players",
	})

	eggReaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_egg_reached_total",
		Help: "Accepted moves that landed inside the egg radius",
	})

	// Transport metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_frames_total",
		Help: "Outbound frames by outcome",
	}, []string{"outcome"}) // Bounded: "queued", "coalesced", "overflow"

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or capacity checks",
	}, []string{"reason"}) // Bounded: "rate_limit", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}) // route is the chi pattern, not the full URL

	// Event log metrics
	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Audit events dropped due to rate limiting or a full buffer",
	})
)

// RecordTick records tick timing.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// SetWorldSize updates the player and nutrient gauges.
func SetWorldSize(players, nutrients int) {
	playerCount.Set(float64(players))
	nutrientCount.Set(float64(nutrients))
}

// RecordMove counts one movement proposal.
func RecordMove(accepted bool) {
	if accepted {
		moves.WithLabelValues("accepted").Inc()
		return
	}
	moves.WithLabelValues("rejected").Inc()
}

func IncNutrientCollected() { nutrientsCollected.Inc() }
func IncKill()              { kills.Inc() }
func IncEggReached()        { eggReaches.Inc() }
func IncEventLogDropped()   { eventLogDropped.Inc() }

// SetWSConnections updates the active connection gauge.
func SetWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordFrame counts one outbound frame.
// outcome must be one of: "queued", "coalesced", "overflow"
func RecordFrame(outcome string) {
	wsFrames.WithLabelValues(outcome).Inc()
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request latency.
func RecordRequest(method, route string, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
