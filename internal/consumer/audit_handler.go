package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mergington/internal/events"
)

// AuditHandler writes consumed registration events into registration_event_log.
// A record seen again, either redelivered at the same offset or republished with
// the same event_id, is ignored.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event payload.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO registration_event_log (event_type, activity_name, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT DO NOTHING`,
		msg.Change.Type,
		msg.Change.ActivityName,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store event %s: %w", msg.Change.EventID, err)
	}
	return nil
}

// LogHandler prints a one-line summary of each roster change.
type LogHandler struct {
	logger *log.Logger
}

// NewLogHandler constructs a LogHandler writing to logger.
func NewLogHandler(logger *log.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Handle implements Handler.
func (h *LogHandler) Handle(_ context.Context, msg Message) error {
	c := msg.Change
	switch c.Action() {
	case events.ActionUnregister:
		h.logger.Printf("%s unregistered from %q (%d left)", c.Email, c.ActivityName, c.ParticipantCount)
	default:
		h.logger.Printf("%s signed up for %q (%d/%d)", c.Email, c.ActivityName, c.ParticipantCount, c.MaxParticipants)
	}
	return nil
}

// Handlers fans a message out to every handler in order, stopping at the first error.
type Handlers []Handler

// Handle implements Handler.
func (hs Handlers) Handle(ctx context.Context, msg Message) error {
	for _, h := range hs {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
