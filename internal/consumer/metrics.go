package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/mergington/internal/events"
)

var (
	rosterChangesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mergington",
		Subsystem: "consumer",
		Name:      "roster_changes_total",
		Help:      "Roster changes consumed, by action and result.",
	}, []string{"action", "result"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mergington",
		Subsystem: "consumer",
		Name:      "undecodable_records_total",
		Help:      "Records dropped because they could not be decoded, by reason (framing, header, payload).",
	}, []string{"reason"})

	rosterSizeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mergington",
		Subsystem: "consumer",
		Name:      "roster_size",
		Help:      "Participant count carried by the latest consumed change per activity.",
	}, []string{"activity"})

	registrationDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mergington",
		Subsystem: "consumer",
		Name:      "registration_delay_seconds",
		Help:      "Time from a roster change being committed to it being handled here.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(rosterChangesCounter, decodeErrorCounter, rosterSizeGauge, registrationDelay)
}

func recordHandled(change events.RosterChange) {
	rosterChangesCounter.WithLabelValues(change.Action(), "stored").Inc()
	rosterSizeGauge.WithLabelValues(change.ActivityName).Set(float64(change.ParticipantCount))
	if !change.OccurredAt.IsZero() {
		registrationDelay.WithLabelValues(change.Action()).Observe(time.Since(change.OccurredAt).Seconds())
	}
}

func recordHandlerError(change events.RosterChange) {
	rosterChangesCounter.WithLabelValues(change.Action(), "failed").Inc()
}

func recordDecodeError(reason string) {
	decodeErrorCounter.WithLabelValues(reason).Inc()
}
