package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/events"
	"example.com/mergington/internal/observability"
)

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectActivity = `SELECT name, description, schedule, max_participants, participants FROM activities`

// List returns every activity.
func (r *Repository) List(ctx context.Context) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, selectActivity+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get retrieves an activity by name.
func (r *Repository) Get(ctx context.Context, name string) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, selectActivity+` WHERE name=$1`, name)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// AddParticipant appends email in a single conditional update and records the outbox event in the same transaction.
func (r *Repository) AddParticipant(ctx context.Context, name, email string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE activities
        SET participants = array_append(participants, $2), updated_at = $3
        WHERE name = $1
          AND NOT ($2 = ANY(participants))
          AND cardinality(participants) < max_participants
        RETURNING cardinality(participants), max_participants`

	now := time.Now().UTC()
	var count, capacity int
	if err = tx.QueryRow(ctx, stmt, name, email, now).Scan(&count, &capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrParticipantUnchanged
		}
		return err
	}

	eventID := uuid.NewString()
	if err = r.insertOutbox(ctx, tx, name, eventID, events.TypeSignedUp, events.ParticipantSignedUp{
		EventID:          eventID,
		ActivityName:     name,
		Email:            email,
		ParticipantCount: count,
		MaxParticipants:  capacity,
		OccurredAt:       now,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordRosterChanged(now)
	return nil
}

// RemoveParticipant drops email if present and records the outbox event in the same transaction.
func (r *Repository) RemoveParticipant(ctx context.Context, name, email string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE activities
        SET participants = array_remove(participants, $2), updated_at = $3
        WHERE name = $1 AND $2 = ANY(participants)
        RETURNING cardinality(participants)`

	now := time.Now().UTC()
	var count int
	if err = tx.QueryRow(ctx, stmt, name, email, now).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrParticipantUnchanged
		}
		return err
	}

	eventID := uuid.NewString()
	if err = r.insertOutbox(ctx, tx, name, eventID, events.TypeUnregistered, events.ParticipantUnregistered{
		EventID:          eventID,
		ActivityName:     name,
		Email:            email,
		ParticipantCount: count,
		OccurredAt:       now,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordRosterChanged(now)
	return nil
}

// Count returns the number of stored activities.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// InsertMany stores the activities in one transaction.
func (r *Repository) InsertMany(ctx context.Context, activities []domain.Activity) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO activities (name, description, schedule, max_participants, participants)
        VALUES ($1,$2,$3,$4,$5)`

	for _, activity := range activities {
		if _, err = tx.Exec(ctx, stmt,
			activity.Name,
			activity.Description,
			activity.Schedule,
			activity.MaxParticipants,
			activity.Participants.Emails(),
		); err != nil {
			return fmt.Errorf("insert activity %q: %w", activity.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activityName, eventID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		activityName,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		activityName,
		body,
		fmt.Sprintf("%s:%s", eventType, eventID),
	)
	return err
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		activity     domain.Activity
		participants []string
	)
	if err := row.Scan(&activity.Name, &activity.Description, &activity.Schedule, &activity.MaxParticipants, &participants); err != nil {
		return domain.Activity{}, err
	}
	activity.Participants = domain.NewRoster(participants...)
	return activity, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeSignedUp: {
		Topic:         "activity_registrations",
		SchemaSubject: "activity_registrations-signed_up-value",
	},
	events.TypeUnregistered: {
		Topic:         "activity_registrations",
		SchemaSubject: "activity_registrations-unregistered-value",
	},
}

var _ domain.ActivityRepository = (*Repository)(nil)
