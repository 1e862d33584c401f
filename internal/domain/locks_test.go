package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, "Chess Club")
	require.NoError(t, err)

	other, err := locks.Lock(ctx, "Drama Club")
	require.NoError(t, err, "different activities do not contend")
	other()

	acquired := make(chan func())
	go func() {
		next, err := locks.Lock(ctx, "Chess Club")
		if err != nil {
			t.Errorf("second lock: %v", err)
			close(acquired)
			return
		}
		acquired <- next
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the first still held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	next := <-acquired
	require.NotNil(t, next)
	next()
	require.Empty(t, locks.entries)
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	locks := newKeyedMutex()

	unlock, err := locks.Lock(context.Background(), "Chess Club")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "Chess Club")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = locks.Lock(cancelled, "Drama Club")
	require.ErrorIs(t, err, context.Canceled, "a done context is refused even when the key is free")

	unlock()
	require.Empty(t, locks.entries, "abandoned waits release their references")
}
