package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeSignedUp(t *testing.T) {
	occurred := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	payload, err := json.Marshal(ParticipantSignedUp{
		EventID:          "evt-1",
		ActivityName:     "Chess Club",
		Email:            "michael@mergington.edu",
		ParticipantCount: 3,
		MaxParticipants:  12,
		OccurredAt:       occurred,
	})
	require.NoError(t, err)

	change, err := Decode(TypeSignedUp, payload)
	require.NoError(t, err)
	require.Equal(t, RosterChange{
		Type:             TypeSignedUp,
		EventID:          "evt-1",
		ActivityName:     "Chess Club",
		Email:            "michael@mergington.edu",
		ParticipantCount: 3,
		MaxParticipants:  12,
		OccurredAt:       occurred,
	}, change)
	require.Equal(t, ActionSignup, change.Action())
}

func TestDecodeUnregistered(t *testing.T) {
	change, err := Decode(TypeUnregistered, []byte(`{"event_id":"evt-2","activity_name":"Drama Club","email":"a@mergington.edu","participant_count":0}`))
	require.NoError(t, err)
	require.Equal(t, ActionUnregister, change.Action())
	require.Zero(t, change.MaxParticipants)
	require.Zero(t, change.ParticipantCount)
}

func TestDecodeRejectsIncompleteEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		want      string
	}{
		{"unknown type", "registration.renamed", `{}`, "unsupported event type"},
		{"not json", TypeSignedUp, `not-json`, "decode registration.signed_up"},
		{"missing event id", TypeSignedUp, `{"activity_name":"Chess Club","email":"a@mergington.edu"}`, "missing event_id"},
		{"missing activity", TypeUnregistered, `{"event_id":"e","email":"a@mergington.edu"}`, "missing activity_name"},
		{"missing email", TypeUnregistered, `{"event_id":"e","activity_name":"Chess Club"}`, "missing email"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.eventType, []byte(tc.payload))
			require.ErrorContains(t, err, tc.want)
		})
	}
}
