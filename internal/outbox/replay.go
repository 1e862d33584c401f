package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQEntry is one parked event in outbox_dlq.
type DLQEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	AggregateID   string
	Reason        string
	CreatedAt     time.Time
	aggregateType string
	schemaSubject string
	partitionKey  string
	payload       []byte
}

// DLQ lists and requeues events the dispatcher could not deliver.
type DLQ struct {
	pool *pgxpool.Pool
}

// NewDLQ constructs a DLQ over pool.
func NewDLQ(pool *pgxpool.Pool) *DLQ {
	return &DLQ{pool: pool}
}

const selectDLQ = `SELECT dlq_id, event_id, event_type, topic, aggregate_id, reason, created_at, aggregate_type, schema_subject, partition_key, payload
        FROM outbox_dlq
        ORDER BY dlq_id
        LIMIT $1`

// List returns up to limit parked entries, oldest first.
func (q *DLQ) List(ctx context.Context, limit int) ([]DLQEntry, error) {
	rows, err := q.pool.Query(ctx, selectDLQ, limit)
	if err != nil {
		return nil, err
	}
	return collectDLQ(rows)
}

// Replay moves up to limit entries back into the outbox so the dispatcher retries them.
// Each entry is requeued and removed in its own transaction; failures are joined.
func (q *DLQ) Replay(ctx context.Context, limit int) (int, error) {
	entries, err := q.List(ctx, limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		if replayErr := q.replay(ctx, entry); replayErr != nil {
			err = errors.Join(err, fmt.Errorf("replay dlq entry %d: %w", entry.ID, replayErr))
			continue
		}
		replayedCounter.WithLabelValues(entry.Topic).Inc()
		replayed++
	}
	return replayed, err
}

func (q *DLQ) replay(ctx context.Context, entry DLQEntry) error {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if entry.schemaSubject == "" {
		return fmt.Errorf("missing schema_subject")
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`
	if _, err := tx.Exec(ctx, stmt,
		entry.aggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.schemaSubject,
		entry.partitionKey,
		entry.payload,
		fmt.Sprintf("replay:%d", entry.ID),
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func collectDLQ(rows pgx.Rows) ([]DLQEntry, error) {
	defer rows.Close()

	entries := make([]DLQEntry, 0)
	for rows.Next() {
		var e DLQEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.AggregateID, &e.Reason, &e.CreatedAt,
			&e.aggregateType, &e.schemaSubject, &e.partitionKey, &e.payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
