// Package consumer reads registration events published by the outbox dispatcher.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/mergington/internal/events"
)

// Reader is the part of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded roster changes.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is one roster change together with where it was read from.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	SchemaSubject string
	SchemaID      int
	Change        events.RosterChange
	// Payload is the JSON body as published, kept for the audit log.
	Payload json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor feeds registration records from one reader into a Handler.
// A record is committed once handled, or straight away when it cannot be decoded.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		record, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		if p.process(ctx, record) {
			if err := p.reader.CommitMessages(ctx, record); err != nil {
				p.logger.Printf("commit error (topic=%s, offset=%d): %v", record.Topic, record.Offset, err)
			}
		}
	}
	return ctx.Err()
}

// process reports whether record should be committed.
func (p *Processor) process(ctx context.Context, record kafka.Message) bool {
	msg, err := decodeMessage(record)
	if err != nil {
		var de *decodeError
		reason := "payload"
		if errors.As(err, &de) {
			reason = de.reason
		}
		p.logger.Printf("dropping undecodable record (topic=%s, partition=%d, offset=%d): %v", record.Topic, record.Partition, record.Offset, err)
		recordDecodeError(reason)
		return true
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Printf("%s for %q by %s not stored: %v", msg.Change.Action(), msg.Change.ActivityName, msg.Change.Email, err)
		recordHandlerError(msg.Change)
		return false
	}
	recordHandled(msg.Change)
	return true
}

// decodeError labels why a record was rejected.
type decodeError struct {
	reason string
	err    error
}

func (e *decodeError) Error() string { return e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func rejected(reason string, format string, args ...any) error {
	return &decodeError{reason: reason, err: fmt.Errorf(format, args...)}
}

// decodeMessage unwraps the schema registry framing and parses the roster change.
// The aggregate_id header, when present, must name the same activity as the payload.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, rejected("framing", "record of %d bytes is shorter than the wire header", len(record.Value))
	}
	if record.Value[0] != 0 {
		return Message{}, rejected("framing", "unexpected magic byte %d", record.Value[0])
	}

	eventType, ok := header(record, "event_type")
	if !ok {
		return Message{}, rejected("header", "missing event_type header")
	}

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))
	change, err := events.Decode(eventType, payload)
	if err != nil {
		return Message{}, &decodeError{reason: "payload", err: err}
	}
	if activity, ok := header(record, "aggregate_id"); ok && activity != change.ActivityName {
		return Message{}, rejected("header", "aggregate_id %q does not match activity %q", activity, change.ActivityName)
	}

	subject, _ := header(record, "schema_subject")
	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		SchemaSubject: subject,
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Change:        change,
		Payload:       payload,
	}, nil
}

func header(record kafka.Message, key string) (string, bool) {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
