package middleware

import (
	"time"

	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "balco").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "balco",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors for one server.
//
// Collected:
//   - balco_events_total: events by name and outcome
//   - balco_event_duration_seconds: time to handle an event, including persistence
//   - balco_broadcast_frames_total: frames delivered to room members
//   - balco_dropped_peers_total: peers closed because they could not take a frame
//   - balco_persist_errors_total: failed writes to the durable store
//   - balco_active_sessions: connected peers
//   - balco_active_rooms: rooms with at least one member
//   - balco_websocket_errors_total: transport errors by type
type Metrics struct {
	eventsTotal     *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	broadcastFrames prometheus.Counter
	droppedPeers    prometheus.Counter
	persistErrors   prometheus.Counter
	activeSessions  prometheus.Gauge
	activeRooms     prometheus.Gauge
	wsErrors        *prometheus.CounterVec
}

// NewMetrics registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of client events handled",
			ConstLabels: config.ConstLabels,
		}, []string{"event", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"event"}),

		broadcastFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcast_frames_total",
			Help:        "Total number of frames delivered to room members",
			ConstLabels: config.ConstLabels,
		}),

		droppedPeers: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dropped_peers_total",
			Help:        "Total number of peers closed because they could not accept a frame",
			ConstLabels: config.ConstLabels,
		}),

		persistErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "persist_errors_total",
			Help:        "Total number of failed writes to the room store backend",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of connected WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_rooms",
			Help:        "Number of rooms with at least one member",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// Prometheus is shorthand for NewMetrics(opts...).Middleware(). Use
// NewMetrics directly to also wire the hooks.
func Prometheus(opts ...MetricsOption) router.Middleware {
	return NewMetrics(opts...).Middleware()
}

// Middleware times and counts every event.
func (m *Metrics) Middleware() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			start := time.Now()
			err := next(c)

			event := eventLabel(c.Event())
			m.eventDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
			m.eventsTotal.WithLabelValues(event, statusLabel(c, err)).Inc()
			return err
		}
	}
}

// Hooks returns router hooks feeding the fan-out, persistence and
// membership metrics.
func (m *Metrics) Hooks() router.Hooks {
	return router.Hooks{
		OnPersistError: func(string, error) { m.persistErrors.Inc() },
		OnBroadcast: func(_ string, delivered, dropped int) {
			m.broadcastFrames.Add(float64(delivered))
			m.droppedPeers.Add(float64(dropped))
		},
		OnMembership: func(peers, rooms int) {
			m.activeSessions.Set(float64(peers))
			m.activeRooms.Set(float64(rooms))
		},
	}
}

// RecordWebSocketError counts a transport error.
func (m *Metrics) RecordWebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// statusLabel uses the router's outcome, falling back to the error when a
// middleware short-circuited before dispatch.
func statusLabel(c *router.Context, err error) string {
	if o := c.Outcome(); o != "" {
		return string(o)
	}
	if err != nil {
		return string(router.OutcomeFailed)
	}
	return string(router.OutcomeApplied)
}

var knownEvents = map[string]bool{
	protocol.EventJoinRoom:         true,
	protocol.EventUpdateNote:       true,
	protocol.EventDeleteNote:       true,
	protocol.EventUpdateConnection: true,
	protocol.EventDeleteConnection: true,
	protocol.EventUpdateRoomName:   true,
	protocol.EventCursorMove:       true,
	protocol.EventDisconnect:       true,
}

// eventLabel keeps client-chosen names out of label values.
func eventLabel(event string) string {
	if knownEvents[event] {
		return event
	}
	return "unknown"
}
