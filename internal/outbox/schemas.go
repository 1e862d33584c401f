package outbox

import "example.com/mergington/internal/events"

const participantSignedUpSchema = `{
  "type": "object",
  "title": "ParticipantSignedUp",
  "properties": {
    "event_id": {"type": "string"},
    "activity_name": {"type": "string"},
    "email": {"type": "string"},
    "participant_count": {"type": "integer", "minimum": 1},
    "max_participants": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "activity_name", "email", "participant_count", "max_participants", "occurred_at"],
  "additionalProperties": false
}`

const participantUnregisteredSchema = `{
  "type": "object",
  "title": "ParticipantUnregistered",
  "properties": {
    "event_id": {"type": "string"},
    "activity_name": {"type": "string"},
    "email": {"type": "string"},
    "participant_count": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "activity_name", "email", "participant_count", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeSignedUp:     {Schema: participantSignedUpSchema},
	events.TypeUnregistered: {Schema: participantUnregisteredSchema},
}
