// Package domain defines the registration rules for extracurricular activities.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"example.com/mergington/internal/observability"
)

var (
	// ErrActivityNotFound is returned when no activity has the requested name.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrConflict groups the registration failures caused by the current roster state.
	ErrConflict = errors.New("registration conflict")
	// ErrAlreadyRegistered is returned when signing up an email already on the roster.
	ErrAlreadyRegistered = fmt.Errorf("%w: student already registered", ErrConflict)
	// ErrNoSpotsLeft is returned when the roster is at capacity.
	ErrNoSpotsLeft = fmt.Errorf("%w: no spots left", ErrConflict)
	// ErrNotRegistered is returned when unregistering an email missing from the roster.
	ErrNotRegistered = fmt.Errorf("%w: student is not registered for this activity", ErrConflict)
	// ErrEmailRequired is returned for a blank email.
	ErrEmailRequired = errors.New("email is required")
	// ErrParticipantUnchanged is returned by repositories when a conditional roster update matched nothing.
	ErrParticipantUnchanged = errors.New("participant update did not apply")
)

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	List(ctx context.Context) ([]Activity, error)
	// Get returns nil, nil when the activity does not exist.
	Get(ctx context.Context, name string) (*Activity, error)
	// AddParticipant appends email only if it is absent and the roster is below capacity.
	AddParticipant(ctx context.Context, name, email string) error
	// RemoveParticipant removes email only if it is present.
	RemoveParticipant(ctx context.Context, name, email string) error
	Count(ctx context.Context) (int, error)
	InsertMany(ctx context.Context, activities []Activity) error
}

// Service orchestrates registration workflows.
type Service struct {
	repo  ActivityRepository
	locks *keyedMutex
}

// NewService constructs a Service.
func NewService(repo ActivityRepository) *Service {
	return &Service{repo: repo, locks: newKeyedMutex()}
}

// ListActivities returns every activity ordered by name.
func (s *Service) ListActivities(ctx context.Context) ([]Activity, error) {
	activities, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].Name < activities[j].Name })
	return activities, nil
}

// GetActivity fetches one activity by name.
func (s *Service) GetActivity(ctx context.Context, name string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get activity %q: %w", name, err)
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// Signup adds email to the activity roster. An unknown activity is reported
// before a blank email.
func (s *Service) Signup(ctx context.Context, activityName, email string) error {
	email = strings.TrimSpace(email)

	unlock, err := s.locks.Lock(ctx, activityName)
	if err != nil {
		return fmt.Errorf("wait for %q roster: %w", activityName, err)
	}
	defer unlock()

	activity, err := s.GetActivity(ctx, activityName)
	if err != nil {
		observability.RecordRegistration(observability.ActionSignup, outcomeOf(err))
		return err
	}
	if email == "" {
		return ErrEmailRequired
	}
	if err := checkSignup(*activity, email); err != nil {
		observability.RecordRegistration(observability.ActionSignup, outcomeOf(err))
		return err
	}

	if err := s.repo.AddParticipant(ctx, activityName, email); err != nil {
		if errors.Is(err, ErrParticipantUnchanged) {
			// Another writer changed the roster between read and write.
			err = s.reclassify(ctx, activityName, func(a Activity) error { return checkSignup(a, email) })
		} else {
			err = fmt.Errorf("add participant to %q: %w", activityName, err)
		}
		observability.RecordRegistration(observability.ActionSignup, outcomeOf(err))
		return err
	}

	observability.RecordRegistration(observability.ActionSignup, observability.OutcomeOK)
	return nil
}

// Unregister removes email from the activity roster.
func (s *Service) Unregister(ctx context.Context, activityName, email string) error {
	email = strings.TrimSpace(email)

	unlock, err := s.locks.Lock(ctx, activityName)
	if err != nil {
		return fmt.Errorf("wait for %q roster: %w", activityName, err)
	}
	defer unlock()

	activity, err := s.GetActivity(ctx, activityName)
	if err != nil {
		observability.RecordRegistration(observability.ActionUnregister, outcomeOf(err))
		return err
	}
	if email == "" {
		return ErrEmailRequired
	}
	if err := checkUnregister(*activity, email); err != nil {
		observability.RecordRegistration(observability.ActionUnregister, outcomeOf(err))
		return err
	}

	if err := s.repo.RemoveParticipant(ctx, activityName, email); err != nil {
		if errors.Is(err, ErrParticipantUnchanged) {
			err = s.reclassify(ctx, activityName, func(a Activity) error { return checkUnregister(a, email) })
		} else {
			err = fmt.Errorf("remove participant from %q: %w", activityName, err)
		}
		observability.RecordRegistration(observability.ActionUnregister, outcomeOf(err))
		return err
	}

	observability.RecordRegistration(observability.ActionUnregister, observability.OutcomeOK)
	return nil
}

// SeedIfEmpty inserts the catalog when the store holds no activities and reports whether it did.
func (s *Service) SeedIfEmpty(ctx context.Context, catalog []Activity) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count activities: %w", err)
	}
	if count > 0 || len(catalog) == 0 {
		return false, nil
	}
	if err := s.repo.InsertMany(ctx, catalog); err != nil {
		return false, fmt.Errorf("seed activities: %w", err)
	}
	observability.RecordSeeded(len(catalog))
	return true, nil
}

func (s *Service) reclassify(ctx context.Context, activityName string, check func(Activity) error) error {
	current, err := s.GetActivity(ctx, activityName)
	if err != nil {
		return err
	}
	if err := check(*current); err != nil {
		return err
	}
	return fmt.Errorf("%w: roster for %q changed concurrently", ErrConflict, activityName)
}

func checkSignup(activity Activity, email string) error {
	if activity.Participants.Contains(email) {
		return ErrAlreadyRegistered
	}
	if activity.IsFull() {
		return ErrNoSpotsLeft
	}
	return nil
}

func checkUnregister(activity Activity, email string) error {
	if !activity.Participants.Contains(email) {
		return ErrNotRegistered
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrActivityNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrConflict):
		return observability.OutcomeConflict
	default:
		return observability.OutcomeError
	}
}
