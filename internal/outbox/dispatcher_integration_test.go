//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/events"
	"example.com/mergington/internal/persistence/postgres"
)

func TestPostgresDispatcherPublishesSignup(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	service := seededService(t, ctx, pool)

	require.NoError(t, service.Signup(ctx, "Chess Club", "newstudent@mergington.edu"))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 42}, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "activity_registrations", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	record := producer.writes[0].messages[0]
	var payload events.ParticipantSignedUp
	require.NoError(t, json.Unmarshal(record.Value[5:], &payload))
	require.Equal(t, "Chess Club", payload.ActivityName)
	require.Equal(t, "newstudent@mergington.edu", payload.Email)
	require.Equal(t, 1, payload.ParticipantCount)
	require.Equal(t, 12, payload.MaxParticipants)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published rows are not claimed again")
}

func TestPostgresDispatcherRoutesFailuresToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	service := seededService(t, ctx, pool)

	require.NoError(t, service.Signup(ctx, "Chess Club", "newstudent@mergington.edu"))
	require.NoError(t, service.Unregister(ctx, "Chess Club", "newstudent@mergington.edu"))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 2, dlqCount)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq ORDER BY dlq_id LIMIT 1`).Scan(&reason))
	require.Contains(t, reason, "kafka write failed")

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)

	dlq := NewDLQ(pool)
	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, events.TypeSignedUp, entries[0].EventType)
	require.Equal(t, "Chess Club", entries[0].AggregateID)

	replayed, err := dlq.Replay(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, replayed)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	healthy := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, healthy, &stubRegistry{id: 7}, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, healthy.writes, 1)
	require.Len(t, healthy.writes[0].messages, 2)
}

func TestPostgresClaimHidesRowsFromOtherDispatchers(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	service := seededService(t, ctx, pool)

	for _, email := range []string{"a@mergington.edu", "b@mergington.edu", "c@mergington.edu"} {
		require.NoError(t, service.Signup(ctx, "Chess Club", email))
	}

	first, second := &pgStore{pool: pool}, &pgStore{pool: pool}

	claimed, err := first.FetchAndClaim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 3)

	stolen, err := second.FetchAndClaim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, stolen, "rows inside their lease belong to the first dispatcher")

	time.Sleep(50 * time.Millisecond)
	reclaimed, err := second.FetchAndClaim(ctx, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, reclaimed, 3, "an expired lease hands the rows out again")

	require.NoError(t, second.MarkPublished(ctx, eventIDs(reclaimed)))
	remaining, err := first.FetchAndClaim(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestPostgresDispatchersDeliverEachEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	service := seededService(t, ctx, pool)

	const signups = 10
	for i := 0; i < signups; i++ {
		require.NoError(t, service.Signup(ctx, "Chess Club", fmt.Sprintf("student%d@mergington.edu", i)))
	}

	producers := []*stubProducer{{}, {}}
	var wg sync.WaitGroup
	for _, producer := range producers {
		dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 3}, 10*time.Millisecond, 2, WithClaimLease(time.Minute))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < signups; i++ {
				if err := dispatcher.processBatch(ctx); err != nil {
					t.Errorf("process batch: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, producer := range producers {
		for _, batch := range producer.writes {
			for _, record := range batch.messages {
				var payload events.ParticipantSignedUp
				require.NoError(t, json.Unmarshal(record.Value[5:], &payload))
				seen[payload.EventID]++
			}
		}
	}
	require.Len(t, seen, signups)
	for id, n := range seen {
		require.Equal(t, 1, n, "event %s published %d times", id, n)
	}

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)
}

func seededService(t *testing.T, ctx context.Context, pool *pgxpool.Pool) *domain.Service {
	t.Helper()

	service := domain.NewService(postgres.NewRepository(pool))
	_, err := service.SeedIfEmpty(ctx, []domain.Activity{{
		Name:            "Chess Club",
		Description:     "Learn strategies and compete in chess tournaments",
		Schedule:        "Fridays, 3:30 PM - 5:00 PM",
		MaxParticipants: 12,
	}})
	require.NoError(t, err)
	return service
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("school"),
		postgrescontainer.WithUsername("school"),
		postgrescontainer.WithPassword("school"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.ApplyMigrations(ctx, pool))
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
