// Package storetest holds the behaviour every domain.ActivityRepository must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/mergington/internal/domain"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) domain.ActivityRepository

// Run exercises repo-level guarantees the service relies on.
func Run(t *testing.T, newRepo Factory) {
	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		repo := newRepo(t)
		activity, err := repo.Get(context.Background(), "Unknown Club")
		require.NoError(t, err)
		require.Nil(t, activity)
	})

	t.Run("InsertAndRead", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{
			activity("Chess Club", 12, "michael@mergington.edu", "daniel@mergington.edu"),
			activity("Art Club", 15),
		}))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		chess, err := repo.Get(ctx, "Chess Club")
		require.NoError(t, err)
		require.NotNil(t, chess)
		require.Equal(t, 12, chess.MaxParticipants)
		require.Equal(t, "Fridays, 3:30 PM - 5:00 PM", chess.Schedule)
		require.Equal(t, []string{"michael@mergington.edu", "daniel@mergington.edu"}, chess.Participants.Emails())

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, a := range all {
			require.NotNil(t, a.Participants.Emails())
		}

		missing, err := repo.Get(ctx, "chess club")
		require.NoError(t, err)
		require.Nil(t, missing, "names are case sensitive")
	})

	t.Run("InsertRejectsExistingName", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{activity("Chess Club", 12)}))
		require.Error(t, repo.InsertMany(ctx, []domain.Activity{activity("Chess Club", 3)}))

		chess, err := repo.Get(ctx, "Chess Club")
		require.NoError(t, err)
		require.Equal(t, 12, chess.MaxParticipants)
	})

	t.Run("ConditionalAdd", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{activity("Tiny Club", 2, "a@mergington.edu")}))

		require.ErrorIs(t, repo.AddParticipant(ctx, "Tiny Club", "a@mergington.edu"), domain.ErrParticipantUnchanged)
		require.NoError(t, repo.AddParticipant(ctx, "Tiny Club", "b@mergington.edu"))
		require.ErrorIs(t, repo.AddParticipant(ctx, "Tiny Club", "c@mergington.edu"), domain.ErrParticipantUnchanged)
		require.ErrorIs(t, repo.AddParticipant(ctx, "Unknown Club", "c@mergington.edu"), domain.ErrParticipantUnchanged)

		tiny, err := repo.Get(ctx, "Tiny Club")
		require.NoError(t, err)
		require.Equal(t, []string{"a@mergington.edu", "b@mergington.edu"}, tiny.Participants.Emails())
	})

	t.Run("ConditionalRemoveKeepsOrder", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{
			activity("Chess Club", 12, "a@mergington.edu", "b@mergington.edu", "c@mergington.edu"),
		}))

		require.NoError(t, repo.RemoveParticipant(ctx, "Chess Club", "b@mergington.edu"))
		require.ErrorIs(t, repo.RemoveParticipant(ctx, "Chess Club", "b@mergington.edu"), domain.ErrParticipantUnchanged)
		require.NoError(t, repo.AddParticipant(ctx, "Chess Club", "b@mergington.edu"))

		chess, err := repo.Get(ctx, "Chess Club")
		require.NoError(t, err)
		require.Equal(t, []string{"a@mergington.edu", "c@mergington.edu", "b@mergington.edu"}, chess.Participants.Emails())
	})

	t.Run("ConcurrentAddsRespectCapacity", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{activity("Tiny Club", 3)}))

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.AddParticipant(ctx, "Tiny Club", fmt.Sprintf("student%d@mergington.edu", i))
				if err != nil && !errors.Is(err, domain.ErrParticipantUnchanged) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		tiny, err := repo.Get(ctx, "Tiny Club")
		require.NoError(t, err)
		require.Equal(t, 3, ok)
		require.Equal(t, 3, tiny.Participants.Len())
	})

	t.Run("ReturnedActivitiesAreDetached", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.InsertMany(ctx, []domain.Activity{activity("Chess Club", 12, "a@mergington.edu")}))

		chess, err := repo.Get(ctx, "Chess Club")
		require.NoError(t, err)
		chess.Participants.Add("local@mergington.edu")

		again, err := repo.Get(ctx, "Chess Club")
		require.NoError(t, err)
		require.Equal(t, []string{"a@mergington.edu"}, again.Participants.Emails())
	})
}

func activity(name string, max int, participants ...string) domain.Activity {
	return domain.Activity{
		Name:            name,
		Description:     name + " meets weekly",
		Schedule:        "Fridays, 3:30 PM - 5:00 PM",
		MaxParticipants: max,
		Participants:    domain.NewRoster(participants...),
	}
}
