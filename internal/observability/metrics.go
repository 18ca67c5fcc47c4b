package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyhub_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// StudyRoomMembers is the number of sockets currently joined to study rooms.
	StudyRoomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyhub_study_room_members",
		Help: "Number of sockets joined to a study room",
	})

	// StudyRoomsActive is the number of non-empty study rooms held in memory.
	StudyRoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyhub_study_rooms_active",
		Help: "Number of study rooms with at least one member",
	})

	// SignalingEvents counts relayed signaling events by type and outcome.
	SignalingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_signaling_events_total",
		Help: "Total signaling events handled by type and outcome",
	}, []string{"event", "outcome"})

	// WebSocketConnectionsTotal is the gauge of open sockets by hub.
	WebSocketConnectionsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "studyhub_websocket_connections",
		Help: "Number of open WebSocket connections by hub",
	}, []string{"hub"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// AsyncWriterDrops counts records dropped because a background writer queue was full.
	AsyncWriterDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_async_writer_drops_total",
		Help: "Records dropped by background writers",
	}, []string{"writer"})

	// AsyncWriterFlushes counts batch flushes by writer and result.
	AsyncWriterFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_async_writer_flushes_total",
		Help: "Batch flushes by background writers",
	}, []string{"writer", "result"})

	// SSEClients is the number of connected server-sent-event subscribers.
	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyhub_sse_clients",
		Help: "Connected server-sent event clients",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
