package metrics

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "signal_alerts_"

	resultSuccess = "success"
	resultError   = "error"
	resultDropped = "dropped"
)

var (
	registerOnce sync.Once
	mirrorOnce   sync.Once

	messagesTotal  *prometheus.CounterVec
	messageLatency *prometheus.HistogramVec
	inFlight       prometheus.Gauge

	alertTransitionsTotal *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	timeseriesWritesTotal *prometheus.CounterVec
	deadLettersTotal      *prometheus.CounterVec
)

// Init registers pipeline metrics and DB-backed gauges.
func Init(db *sql.DB, logger *slog.Logger) {
	registerOnce.Do(func() {
		messagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_total",
				Help: "Total queue messages by pipeline outcome",
			},
			[]string{"outcome"},
		)
		messageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "message_latency_seconds",
				Help:    "Message pipeline latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		inFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "in_flight_messages",
				Help: "Messages fetched but not yet acknowledged",
			},
		)

		alertTransitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_transitions_total",
				Help: "Total alert state machine decisions by transition",
			},
			[]string{"transition"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)
		timeseriesWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timeseries_writes_total",
				Help: "Total readings forwarded to time-series storage by result",
			},
			[]string{"result"},
		)
		deadLettersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dead_letters_total",
				Help: "Total dropped messages recorded by reason",
			},
			[]string{"reason"},
		)

		prometheus.MustRegister(
			messagesTotal,
			messageLatency,
			inFlight,
			alertTransitionsTotal,
			notificationsTotal,
			timeseriesWritesTotal,
			deadLettersTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// RegisterMirrorGauge exposes the in-memory active alert count.
func RegisterMirrorGauge(size func() int) {
	if size == nil {
		return
	}
	mirrorOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alerts_mirror",
				Help: "Active alerts held in the in-memory mirror",
			},
			func() float64 { return float64(size()) },
		))
	})
}

// ObserveMessage records a processed message and its latency.
func ObserveMessage(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(outcome).Inc()
	}
	if messageLatency != nil {
		messageLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// AddInFlight adjusts the in-flight gauge by delta.
func AddInFlight(delta int) {
	if inFlight != nil {
		inFlight.Add(float64(delta))
	}
}

// IncAlertTransition increments alert state machine counters.
func IncAlertTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	if alertTransitionsTotal != nil {
		alertTransitionsTotal.WithLabelValues(transition).Inc()
	}
}

// IncNotification increments notification delivery counters.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}

// AddTimeseriesWrites adds count readings with the given result.
func AddTimeseriesWrites(result string, count int) {
	if count <= 0 {
		return
	}
	if result == "" {
		result = resultSuccess
	}
	if timeseriesWritesTotal != nil {
		timeseriesWritesTotal.WithLabelValues(result).Add(float64(count))
	}
}

// IncDeadLetter increments dropped message counters.
func IncDeadLetter(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if deadLettersTotal != nil {
		deadLettersTotal.WithLabelValues(reason).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultDropped = resultDropped
)
