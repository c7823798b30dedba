package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_notification_dispatched_total",
			Help: "Total number of notifications dispatched",
		},
		[]string{"channel", "event"},
	)

	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_notification_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"channel", "status"}, // success|failure
	)

	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedwatch_notification_duration_seconds",
			Help:    "Notification send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	circuitBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_notification_circuit_breaker_open_total",
			Help: "Total number of circuit breaker open events",
		},
		[]string{"channel"},
	)

	notificationDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_notification_dropped_total",
			Help: "Total number of dropped notifications",
		},
		[]string{"channel", "reason"}, // pool_full|circuit_open|shutdown
	)

	activeNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedwatch_notification_active_goroutines",
			Help: "Number of active notification goroutines",
		},
	)

	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedwatch_notification_channels_enabled",
			Help: "Number of enabled notification channels",
		},
	)
)

func RecordDispatch(channel, event string) {
	notificationDispatchedTotal.WithLabelValues(channel, event).Inc()
}

func RecordSuccess(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "success").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordFailure(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "failure").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped: reason is pool_full, circuit_open or shutdown.
func RecordDropped(channel, reason string) {
	notificationDroppedTotal.WithLabelValues(channel, reason).Inc()
}

func RecordCircuitBreakerOpen(channel string) {
	circuitBreakerOpenTotal.WithLabelValues(channel).Inc()
}

func IncrementActiveGoroutines() { activeNotifications.Inc() }

func DecrementActiveGoroutines() { activeNotifications.Dec() }

func SetChannelsEnabled(count float64) { channelsEnabled.Set(count) }
