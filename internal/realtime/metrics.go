package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_health",
		Subsystem: "realtime",
		Name:      "live_sessions",
		Help:      "Channels currently joined to the registry.",
	})

	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "realtime",
		Name:      "messages_sent_total",
		Help:      "Messages accepted by a live channel, labeled by event name.",
	}, []string{"event"})

	sendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "realtime",
		Name:      "send_failures_total",
		Help:      "Messages a live channel refused (closed or backed up), labeled by event name.",
	}, []string{"event"})

	relayMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "realtime",
		Name:      "relay_messages_total",
		Help:      "Messages crossing the Redis relay, labeled by direction (published, received, dropped).",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(liveSessions, messagesSent, sendFailures, relayMessages)
}

func recordSent(event string) {
	messagesSent.WithLabelValues(event).Inc()
}

func recordSendFailure(event string) {
	sendFailures.WithLabelValues(event).Inc()
}

func recordRelay(direction string) {
	relayMessages.WithLabelValues(direction).Inc()
}
