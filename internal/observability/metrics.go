// Package observability holds the Prometheus collectors shared across the service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registration actions.
const (
	ActionSignup     = "signup"
	ActionUnregister = "unregister"
)

// Registration outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

var (
	registrationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mergington",
		Subsystem: "registration",
		Name:      "requests_total",
		Help:      "Signup and unregister attempts grouped by action and outcome.",
	}, []string{"action", "outcome"})

	rosterChangeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mergington",
		Subsystem: "persistence",
		Name:      "last_roster_change_timestamp_seconds",
		Help:      "Unix timestamp of the most recent participant list change persisted to the store.",
	})

	seededGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mergington",
		Subsystem: "persistence",
		Name:      "seeded_activities",
		Help:      "Number of catalog activities inserted by the last seeding run.",
	})
)

func init() {
	prometheus.MustRegister(registrationCounter, rosterChangeGauge, seededGauge)
}

// RecordRegistration counts one signup or unregister attempt.
func RecordRegistration(action, outcome string) {
	registrationCounter.WithLabelValues(action, outcome).Inc()
}

// RecordRosterChanged updates the roster watermark gauge.
func RecordRosterChanged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	rosterChangeGauge.Set(float64(ts.Unix()))
}

// RecordSeeded stores how many activities the seeding run inserted.
func RecordSeeded(n int) {
	seededGauge.Set(float64(n))
}
