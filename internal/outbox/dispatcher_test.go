package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/mergington/internal/events"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	outbox := &memoryStore{pending: []Message{signedUpMessage(1, "Chess Club")}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := newTestDispatcher(outbox, producer, registry)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "activity_registrations", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	record := producer.writes[0].messages[0]
	require.Equal(t, "Chess Club", string(record.Key))
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	require.JSONEq(t, `{"activity_name":"Chess Club"}`, string(record.Value[5:]))
	require.Contains(t, record.Headers, kafka.Header{Key: "event_type", Value: []byte(events.TypeSignedUp)})

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Equal(t, []int64{1}, outbox.published)
	require.Empty(t, outbox.dlq)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	outbox := &memoryStore{pending: []Message{signedUpMessage(7, "Drama Club")}}
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := newTestDispatcher(outbox, producer, &stubRegistry{id: 7})

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("activity_registrations"))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("activity_registrations")), 0.0001)
	require.Len(t, outbox.dlq, 1)
	require.Contains(t, outbox.dlq[0].reason, "kafka write failed")
	require.Equal(t, []int64{7}, outbox.published, "failed events are parked, not retried from the outbox")
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	ctx := context.Background()
	outbox := &memoryStore{pending: []Message{
		signedUpMessage(1, "Chess Club"),
		signedUpMessage(2, "Chess Club"),
	}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := newTestDispatcher(outbox, producer, registry)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	msg := signedUpMessage(3, "Science Club")
	msg.EventType = "registration.unknown"
	outbox := &memoryStore{pending: []Message{msg}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := newTestDispatcher(outbox, producer, registry)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")
	require.Len(t, outbox.dlq, 1)
	require.Contains(t, outbox.dlq[0].reason, "no schema metadata for event_type=registration.unknown")
}

func TestDispatcherEmptyBatchIsNoop(t *testing.T) {
	outbox := &memoryStore{}
	producer := &stubProducer{}
	dispatcher := newTestDispatcher(outbox, producer, &stubRegistry{})

	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Empty(t, producer.writes)
	require.Empty(t, outbox.published)
}

func TestDispatcherStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := newTestDispatcher(&memoryStore{}, &stubProducer{}, &stubRegistry{})

	go dispatcher.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherClaimsWithLease(t *testing.T) {
	ctx := context.Background()

	outbox := &memoryStore{pending: []Message{signedUpMessage(1, "Chess Club")}}
	require.NoError(t, newTestDispatcher(outbox, &stubProducer{}, &stubRegistry{}).processBatch(ctx))
	require.Equal(t, DefaultClaimLease, outbox.lease)

	outbox = &memoryStore{}
	dispatcher := newDispatcher(outbox, &stubProducer{}, &stubRegistry{}, time.Second, 5,
		WithLogger(log.New(io.Discard, "", 0)), WithClaimLease(5*time.Second))
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Equal(t, 5*time.Second, outbox.lease)

	dispatcher = newDispatcher(outbox, &stubProducer{}, &stubRegistry{}, time.Second, 5, WithClaimLease(0))
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Equal(t, DefaultClaimLease, outbox.lease, "non-positive lease keeps the default")
}

func newTestDispatcher(s store, producer messageWriter, registry schemaRegistrar) *Dispatcher {
	return newDispatcher(s, producer, registry, 10*time.Millisecond, 5, WithLogger(log.New(io.Discard, "", 0)))
}

func signedUpMessage(id int64, activity string) Message {
	return Message{
		EventID:       id,
		AggregateType: "activity",
		AggregateID:   activity,
		EventType:     events.TypeSignedUp,
		Topic:         "activity_registrations",
		SchemaSubject: "activity_registrations-signed_up-value",
		PartitionKey:  activity,
		Payload:       []byte(`{"activity_name":"` + activity + `"}`),
	}
}

type dlqEntry struct {
	msg    Message
	reason string
}

type memoryStore struct {
	mu        sync.Mutex
	lease     time.Duration
	pending   []Message
	published []int64
	dlq       []dlqEntry
}

func (s *memoryStore) FetchAndClaim(_ context.Context, limit int, lease time.Duration) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lease = lease
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	out := append([]Message(nil), s.pending[:limit]...)
	s.pending = s.pending[limit:]
	return out, nil
}

func (s *memoryStore) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *memoryStore) WriteDLQ(_ context.Context, msg Message, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, dlqEntry{msg: msg, reason: reason})
	return nil
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
