// Package sqlite provides a SQLite-backed activity store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/observability"
	"example.com/mergington/internal/persistence/sqlite/migrations"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrAlreadyExists is returned when inserting an activity name that is taken.
var ErrAlreadyExists = errors.New("activity already exists")

// Store persists activities in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != MemoryPath {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// List returns every activity with its roster in signup order.
func (s *Store) List(ctx context.Context) ([]domain.Activity, error) {
	activities, err := s.listActivities(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(activities))
	for i, activity := range activities {
		index[activity.Name] = i
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT activity_name, email FROM activity_participants ORDER BY activity_name, position`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, email string
		if err := rows.Scan(&name, &email); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		if i, ok := index[name]; ok {
			activities[i].Participants.Add(email)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return activities, nil
}

// listActivities releases its connection before returning; the pool holds a single connection.
func (s *Store) listActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, description, schedule, max_participants FROM activities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(&activity.Name, &activity.Description, &activity.Schedule, &activity.MaxParticipants); err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		activity.Participants = domain.NewRoster()
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// Get returns one activity by name or nil when missing.
func (s *Store) Get(ctx context.Context, name string) (*domain.Activity, error) {
	var activity domain.Activity
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, description, schedule, max_participants FROM activities WHERE name = ?`, name,
	).Scan(&activity.Name, &activity.Description, &activity.Schedule, &activity.MaxParticipants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT email FROM activity_participants WHERE activity_name = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	activity.Participants = domain.NewRoster()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("get participants: %w", err)
		}
		activity.Participants.Add(email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	return &activity, nil
}

// AddParticipant appends email with a single guarded insert.
func (s *Store) AddParticipant(ctx context.Context, name, email string) error {
	now := time.Now().UTC()
	result, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO activity_participants (activity_name, email, position, joined_at)
		 SELECT a.name, ?,
		        COALESCE((SELECT MAX(p.position) FROM activity_participants p WHERE p.activity_name = a.name), 0) + 1,
		        ?
		   FROM activities a
		  WHERE a.name = ?
		    AND (SELECT COUNT(*) FROM activity_participants p WHERE p.activity_name = a.name) < a.max_participants
		    AND NOT EXISTS (SELECT 1 FROM activity_participants p WHERE p.activity_name = a.name AND p.email = ?)`,
		email, now.UnixMilli(), name, email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrParticipantUnchanged
		}
		return fmt.Errorf("add participant: %w", err)
	}
	return rosterChanged(result, now)
}

// RemoveParticipant deletes email from the roster.
func (s *Store) RemoveParticipant(ctx context.Context, name, email string) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM activity_participants WHERE activity_name = ? AND email = ?`, name, email)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return rosterChanged(result, time.Now().UTC())
}

// Count returns the number of stored activities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

// InsertMany stores activities and their rosters in one transaction.
func (s *Store) InsertMany(ctx context.Context, activities []domain.Activity) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	joinedAt := time.Now().UTC().UnixMilli()
	for _, activity := range activities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activities (name, description, schedule, max_participants) VALUES (?, ?, ?, ?)`,
			activity.Name, activity.Description, activity.Schedule, activity.MaxParticipants,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert activity %q: %w", activity.Name, ErrAlreadyExists)
			}
			return fmt.Errorf("insert activity %q: %w", activity.Name, err)
		}
		for i, email := range activity.Participants.Emails() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO activity_participants (activity_name, email, position, joined_at) VALUES (?, ?, ?, ?)`,
				activity.Name, email, i+1, joinedAt,
			); err != nil {
				return fmt.Errorf("insert participant %q: %w", email, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func rosterChanged(result sql.Result, at time.Time) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrParticipantUnchanged
	}
	observability.RecordRosterChanged(at)
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ domain.ActivityRepository = (*Store)(nil)
