package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	// ErrProducerClosed is returned by WriteMessages after Close.
	ErrProducerClosed  = errors.New("kafka producer closed")
	errMissingActivity = errors.New("registration record has no activity key")
)

// topicWriter is the part of *kafka.Writer the producer uses.
type topicWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes registration records with one writer per topic.
// Records are hash-partitioned on their key, the activity name, so every change to
// one roster is read back in commit order.
type KafkaProducer struct {
	open    func(topic string) topicWriter
	mu      sync.Mutex
	writers map[string]topicWriter
	closed  bool
}

// NewKafkaProducer creates a KafkaProducer for brokers. Writers are opened on first use.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return newKafkaProducer(func(topic string) topicWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: 10 * time.Millisecond,
		}
	})
}

func newKafkaProducer(open func(topic string) topicWriter) *KafkaProducer {
	return &KafkaProducer{open: open, writers: make(map[string]topicWriter)}
}

// WriteMessages publishes records to topic. Records without an activity key are
// rejected before anything is sent.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, records ...kafka.Message) error {
	for i, record := range records {
		if len(record.Key) == 0 {
			return fmt.Errorf("%w (topic=%s, index=%d)", errMissingActivity, topic, i)
		}
	}
	writer, err := p.writerFor(topic)
	if err != nil {
		return err
	}
	if err := writer.WriteMessages(ctx, records...); err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(records), topic, err)
	}
	return nil
}

func (p *KafkaProducer) writerFor(topic string) (topicWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProducerClosed
	}
	writer, ok := p.writers[topic]
	if !ok {
		writer = p.open(topic)
		p.writers[topic] = writer
	}
	return writer, nil
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer for %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
