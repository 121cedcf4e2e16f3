package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskchat_realtime_connected",
		Help: "1 while the realtime chat connection is up.",
	})
	ConnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_realtime_connect_attempts_total",
		Help: "Connect attempts by result (ok, failed, rejected).",
	}, []string{"result"})

	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_realtime_events_total",
		Help: "Inbound realtime events by wire name.",
	}, []string{"event"})
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskchat_realtime_events_dropped_total",
		Help: "Inbound frames that could not be decoded.",
	})
	HandlerPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_dispatch_handler_panics_total",
		Help: "Subscriber panics recovered by the dispatcher, by event kind.",
	}, []string{"kind"})
	CommandsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_realtime_commands_total",
		Help: "Outbound realtime commands by wire name.",
	}, []string{"command"})

	RequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskchat_rest_errors_total",
		Help: "Failed REST calls by error kind.",
	}, []string{"kind"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskchat_rest_request_seconds",
		Help:    "REST call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RelayForwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskchat_relay_forwarded_total",
		Help: "Messages written to Kafka.",
	})
	RelayBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskchat_relay_backpressure_total",
		Help: "Messages dropped because the relay queue was full.",
	})
	RelayWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskchat_relay_write_errors_total",
		Help: "Messages whose Kafka write failed.",
	})
)

func Register() {
	prometheus.MustRegister(
		Connected, ConnectAttempts,
		EventsReceived, EventsDropped, HandlerPanics, CommandsSent,
		RequestErrors, RequestDuration,
		RelayForwarded, RelayBackpressure, RelayWriteErrors,
	)
}
