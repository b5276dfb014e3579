package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Route guard metrics
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_route_decisions_total",
			Help: "Route guard decisions by outcome",
		},
		[]string{"outcome"},
	)

	// Store lifecycle metrics
	StoreTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_transitions_total",
			Help: "Lifecycle transitions applied to a store",
		},
		[]string{"store", "op", "status"},
	)

	StoreStaleCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_stale_completions_total",
			Help: "Completions discarded because a newer dispatch was already applied",
		},
		[]string{"store", "op"},
	)

	// Remote API metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_remote_request_duration_seconds",
			Help:    "Latency of calls to the remote BookBay API",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "outcome"},
	)

	// Workspace metrics
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_workspaces_active",
			Help: "Number of session workspaces held in memory",
		},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active store-state WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of state snapshots sent via WebSocket",
		},
		[]string{"type"},
	)
)
