package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// FramesTotal: принятые WS-фреймы по семейству сообщений.
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "frames_total",
		Help:      "Total number of frames received from WebSocket, by message kind",
	}, []string{"kind"})

	// DecodeErrors: фреймы, которые не удалось разобрать.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "decode_errors_total",
		Help:      "Frames dropped because they could not be decoded",
	})

	// ProtocolErrors: error-фреймы от биржи.
	ProtocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "protocol_errors_total",
		Help:      "Error frames reported by the exchange",
	})

	// AuthResults: результаты auth-рукопожатия.
	AuthResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "auth_results_total",
		Help:      "Authenticated subscription outcomes",
	}, []string{"result"})

	// Connects: попытки установить соединение.
	Connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "connects_total",
		Help:      "WebSocket connection attempts",
	}, []string{"status"})

	// ConnectionState: текущее состояние state machine (значение stream.State).
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quotefeed",
		Subsystem: "ws",
		Name:      "connection_state",
		Help:      "Current connection state machine value",
	})

	// QuotesApplied: обновления котировок по символу.
	QuotesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "quotes",
		Name:      "applied_total",
		Help:      "Ticker updates written to the quote store",
	}, []string{"symbol"})

	// ListenerErrors: ошибки и паники подписчиков событий.
	ListenerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "events",
		Name:      "listener_errors_total",
		Help:      "Errors and panics raised by event listeners",
	}, []string{"event"})

	// SinkEvents: судьба тикеров в асинхронных sink'ах: ok | error | dropped.
	SinkEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefeed",
		Subsystem: "sink",
		Name:      "events_total",
		Help:      "Ticker events handled by sinks, by outcome",
	}, []string{"sink", "result"})

	// FrameLatency: время обработки одного фрейма.
	FrameLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quotefeed",
		Subsystem: "pipeline",
		Name:      "frame_latency_seconds",
		Help:      "Time spent decoding and dispatching one frame",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})
)

// Register регистрирует все метрики в заданном реестре
// (nil → prometheus.DefaultRegisterer).
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(
			FramesTotal,
			DecodeErrors,
			ProtocolErrors,
			AuthResults,
			Connects,
			ConnectionState,
			QuotesApplied,
			ListenerErrors,
			SinkEvents,
			FrameLatency,
		)
	})
}
