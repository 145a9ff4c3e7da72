// Package metrics provides Prometheus metrics for blazewatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "blazewatch"
)

// Push channel metrics
var (
	// StreamMessagesTotal counts messages received on the push channel.
	StreamMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total messages received on the real-time alert channel",
		},
	)

	// StreamMalformedTotal counts discarded push messages.
	StreamMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "malformed_total",
			Help:      "Total push messages discarded for missing line or source",
		},
	)

	// StreamState tracks the push channel state (0=disconnected, 1=connecting, 2=connected).
	StreamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current push channel state (0=disconnected, 1=connecting, 2=connected)",
		},
	)

	// StreamReconnectsTotal counts scheduled reconnect attempts.
	StreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts after unexpected channel closure",
		},
	)
)

// Poll metrics
var (
	// PollRequestsTotal counts snapshot poll fetches by kind and result.
	PollRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "requests_total",
			Help:      "Total poll fetches by kind (stats, alerts) and result (ok, error, skipped)",
		},
		[]string{"kind", "result"},
	)

	// PollDuration tracks poll fetch latency.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Poll fetch latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	// PollStaleTotal counts snapshots discarded because a newer one was applied.
	PollStaleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "stale_total",
			Help:      "Total alert snapshots discarded as older than the applied one",
		},
	)
)

// History metrics
var (
	// HistoryAppendedTotal counts new push-delivered alerts appended to history.
	HistoryAppendedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "appended_total",
			Help:      "Total new alerts appended from the push channel",
		},
	)

	// HistoryDuplicatesTotal counts push alerts dropped as duplicates.
	HistoryDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "duplicates_total",
			Help:      "Total push alerts discarded as duplicates of history",
		},
	)

	// HistoryReplayedTotal counts push alerts re-applied over a snapshot.
	HistoryReplayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "replayed_total",
			Help:      "Total push alerts re-applied after a snapshot replaced history",
		},
	)

	// HistorySize tracks the number of alerts held.
	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "size",
			Help:      "Number of alerts currently held in history",
		},
	)

	// MalformedDroppedTotal counts malformed records by origin.
	MalformedDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "malformed_dropped_total",
			Help:      "Total malformed records dropped by origin (push, poll, analyze)",
		},
		[]string{"origin"},
	)
)

// Session metrics
var (
	// DesiredTailing tracks whether the session wants the channel open.
	DesiredTailing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "desired_tailing",
			Help:      "1 when the session wants the push channel connected",
		},
	)

	// CommandsTotal counts start/stop commands by result.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Total tailing commands by op (start, stop) and result (ok, error)",
		},
		[]string{"op", "result"},
	)

	// NotificationsTotal counts severity notifications by severity.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "notifications_total",
			Help:      "Total notifications emitted for new qualifying alerts",
		},
		[]string{"severity"},
	)
)

// BoolGauge converts a bool to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
