package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the call-report engine.
//
// Naming convention: namespace_subsystem_name
// - namespace: callwatch (application-level grouping)
// - subsystem: gateway, room, asset, render, report, circuit_breaker, rate_limit
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (gateway connection, active rooms, participants)
// - Counter: Cumulative events (events processed, reports sent, errors)
// - Histogram: Latency distributions (render time, fetch time)

var (
	// GatewayConnected reports whether the gateway event source is currently connected (Gauge, 0 or 1).
	GatewayConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "callwatch",
		Subsystem: "gateway",
		Name:      "connected",
		Help:      "Whether the gateway event source connection is currently up (1) or down (0)",
	})

	// GatewayEventsTotal tracks gateway events received, by type and outcome (CounterVec).
	GatewayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "gateway",
		Name:      "events_total",
		Help:      "Total gateway events received",
	}, []string{"event_type", "status"})

	// GatewayEventProcessingDuration tracks the time spent translating and applying a gateway event (HistogramVec).
	GatewayEventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callwatch",
		Subsystem: "gateway",
		Name:      "event_processing_seconds",
		Help:      "Time spent applying a gateway event to room state",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// RoomsActive tracks the current number of open rooms (Gauge - current state).
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "callwatch",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of open rooms",
	})

	// RoomParticipants tracks the number of connected participants per channel (GaugeVec).
	// Gauge rather than Histogram because it is the current count per channel, not a
	// distribution of historical counts.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "callwatch",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of connected participants in each channel",
	}, []string{"channel_id"})

	// AssetCacheResults tracks asset cache lookups by hit/miss (CounterVec).
	AssetCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "asset",
		Name:      "cache_results_total",
		Help:      "Total asset cache lookups by result",
	}, []string{"result"})

	// AssetFetchDuration tracks the time spent fetching and palettizing an avatar (HistogramVec).
	AssetFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callwatch",
		Subsystem: "asset",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching and extracting a color palette for an avatar",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// RenderDuration tracks the time spent rasterizing a timeline to PNG (HistogramVec).
	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callwatch",
		Subsystem: "render",
		Name:      "duration_seconds",
		Help:      "Time spent rendering a timeline image",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// ReportsTotal tracks report publish/edit outcomes (CounterVec).
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "report",
		Name:      "total",
		Help:      "Total report publish or edit attempts",
	}, []string{"action", "status"})

	// CircuitBreakerState tracks the current state of each named circuit breaker (GaugeVec).
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "callwatch",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by a circuit breaker (CounterVec).
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests rejected by a rate limiter (CounterVec).
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against a rate limiter (CounterVec).
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwatch",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})
)

func SetGatewayConnected(connected bool) {
	if connected {
		GatewayConnected.Set(1)
	} else {
		GatewayConnected.Set(0)
	}
}
