package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_messages_sent_total",
		Help: "Messages persisted, by channel (private or course).",
	}, []string{"channel"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_events_published_total",
		Help: "Real-time events handed to the broker, by event name.",
	}, []string{"event"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuschat_publish_failures_total",
		Help: "Real-time publishes that failed after the write was committed.",
	})

	SlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuschat_slow_clients_dropped_total",
		Help: "Websocket clients disconnected because their send buffer was full.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campuschat_ws_connections",
		Help: "Currently registered websocket clients.",
	})
)

const (
	ChannelPrivate = "private"
	ChannelCourse  = "course"
)
