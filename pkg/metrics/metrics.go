package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barter_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_chat_rooms_created_total",
			Help: "Total chat rooms created",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"message_type"},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_messages_deleted_total",
			Help: "Total messages soft-deleted",
		},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_media_uploads_total",
			Help: "Media uploads by category and outcome",
		},
		[]string{"category", "status"},
	)

	PresenceHeartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_presence_heartbeats_total",
			Help: "Total presence heartbeats",
		},
	)

	PresenceSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_presence_swept_total",
			Help: "Stale presence rows flipped offline by the sweeper",
		},
	)

	RealtimeEventsFanout = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_realtime_events_fanout_total",
			Help: "Realtime frames delivered to websocket clients",
		},
		[]string{"kind"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barter_websocket_connections",
			Help: "Open websocket connections",
		},
	)
)
