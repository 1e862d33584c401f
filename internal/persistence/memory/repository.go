// Package memory provides an in-process activity store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/observability"
)

// Repository stores activities in memory keyed by name.
type Repository struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{activities: make(map[string]domain.Activity)}
}

// List implements domain.ActivityRepository.
func (r *Repository) List(ctx context.Context) ([]domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Activity, 0, len(r.activities))
	for _, activity := range r.activities {
		out = append(out, cloneActivity(activity))
	}
	return out, nil
}

// Get implements domain.ActivityRepository.
func (r *Repository) Get(ctx context.Context, name string) (*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[name]
	if !ok {
		return nil, nil
	}
	clone := cloneActivity(activity)
	return &clone, nil
}

// AddParticipant implements domain.ActivityRepository.
func (r *Repository) AddParticipant(ctx context.Context, name, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok || activity.IsFull() {
		return domain.ErrParticipantUnchanged
	}
	roster := activity.Participants.Clone()
	if !roster.Add(email) {
		return domain.ErrParticipantUnchanged
	}
	activity.Participants = roster
	r.activities[name] = activity
	observability.RecordRosterChanged(time.Now().UTC())
	return nil
}

// RemoveParticipant implements domain.ActivityRepository.
func (r *Repository) RemoveParticipant(ctx context.Context, name, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok {
		return domain.ErrParticipantUnchanged
	}
	roster := activity.Participants.Clone()
	if !roster.Remove(email) {
		return domain.ErrParticipantUnchanged
	}
	activity.Participants = roster
	r.activities[name] = activity
	observability.RecordRosterChanged(time.Now().UTC())
	return nil
}

// Count implements domain.ActivityRepository.
func (r *Repository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activities), nil
}

// InsertMany implements domain.ActivityRepository. Duplicate names fail the whole batch.
func (r *Repository) InsertMany(ctx context.Context, activities []domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(activities))
	for _, activity := range activities {
		if _, exists := r.activities[activity.Name]; exists {
			return fmt.Errorf("activity %q already exists", activity.Name)
		}
		if _, dup := seen[activity.Name]; dup {
			return fmt.Errorf("activity %q appears twice in batch", activity.Name)
		}
		seen[activity.Name] = struct{}{}
	}
	for _, activity := range activities {
		r.activities[activity.Name] = cloneActivity(activity)
	}
	return nil
}

func cloneActivity(a domain.Activity) domain.Activity {
	a.Participants = a.Participants.Clone()
	return a
}

var _ domain.ActivityRepository = (*Repository)(nil)
