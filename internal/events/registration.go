// Package events defines the registration event payloads published through the outbox.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried in the outbox and on the Kafka event_type header.
const (
	TypeSignedUp     = "registration.signed_up"
	TypeUnregistered = "registration.unregistered"
)

// ParticipantSignedUp is emitted after an email joins an activity roster.
type ParticipantSignedUp struct {
	EventID          string    `json:"event_id"`
	ActivityName     string    `json:"activity_name"`
	Email            string    `json:"email"`
	ParticipantCount int       `json:"participant_count"`
	MaxParticipants  int       `json:"max_participants"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ParticipantUnregistered is emitted after an email leaves an activity roster.
type ParticipantUnregistered struct {
	EventID          string    `json:"event_id"`
	ActivityName     string    `json:"activity_name"`
	Email            string    `json:"email"`
	ParticipantCount int       `json:"participant_count"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Roster actions reported by RosterChange.Action.
const (
	ActionSignup     = "signup"
	ActionUnregister = "unregister"
)

// RosterChange is either registration event flattened into one shape.
// MaxParticipants is zero for unregistrations.
type RosterChange struct {
	Type             string
	EventID          string
	ActivityName     string
	Email            string
	ParticipantCount int
	MaxParticipants  int
	OccurredAt       time.Time
}

// Action names the roster operation that produced the change.
func (c RosterChange) Action() string {
	if c.Type == TypeUnregistered {
		return ActionUnregister
	}
	return ActionSignup
}

// Decode parses payload according to eventType.
func Decode(eventType string, payload []byte) (RosterChange, error) {
	var change RosterChange
	switch eventType {
	case TypeSignedUp:
		var evt ParticipantSignedUp
		if err := json.Unmarshal(payload, &evt); err != nil {
			return RosterChange{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		change = RosterChange{
			EventID:          evt.EventID,
			ActivityName:     evt.ActivityName,
			Email:            evt.Email,
			ParticipantCount: evt.ParticipantCount,
			MaxParticipants:  evt.MaxParticipants,
			OccurredAt:       evt.OccurredAt,
		}
	case TypeUnregistered:
		var evt ParticipantUnregistered
		if err := json.Unmarshal(payload, &evt); err != nil {
			return RosterChange{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		change = RosterChange{
			EventID:          evt.EventID,
			ActivityName:     evt.ActivityName,
			Email:            evt.Email,
			ParticipantCount: evt.ParticipantCount,
			OccurredAt:       evt.OccurredAt,
		}
	default:
		return RosterChange{}, fmt.Errorf("unsupported event type %q", eventType)
	}
	change.Type = eventType

	switch {
	case change.EventID == "":
		return RosterChange{}, fmt.Errorf("%s: missing event_id", eventType)
	case change.ActivityName == "":
		return RosterChange{}, fmt.Errorf("%s: missing activity_name", eventType)
	case change.Email == "":
		return RosterChange{}, fmt.Errorf("%s: missing email", eventType)
	}
	return change, nil
}
