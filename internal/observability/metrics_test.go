package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRegistration(t *testing.T) {
	counter := registrationCounter.WithLabelValues(ActionSignup, OutcomeConflict)
	before := testutil.ToFloat64(counter)

	RecordRegistration(ActionSignup, OutcomeConflict)

	require.InDelta(t, before+1, testutil.ToFloat64(counter), 0.0001)
}

func TestRecordRosterChangedIgnoresZeroTime(t *testing.T) {
	ts := time.Date(2025, time.September, 1, 15, 30, 0, 0, time.UTC)
	RecordRosterChanged(ts)
	RecordRosterChanged(time.Time{})

	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(rosterChangeGauge))
}

func TestRecordSeeded(t *testing.T) {
	RecordSeeded(9)
	require.Equal(t, float64(9), testutil.ToFloat64(seededGauge))
}
