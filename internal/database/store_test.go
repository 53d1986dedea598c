package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incrementAttempt(now time.Time) AttemptUpdateFunc {
	return func(rec *AttemptRecord) (bool, error) {
		rec.Attempts++
		rec.LastAttempt = now
		return true, nil
	}
}

// testAttemptStore exercises the AttemptStore contract shared by every backend.
func testAttemptStore(t *testing.T, store AttemptStore, a, b int) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("absent record reads as zero", func(t *testing.T) {
		rec, ok, err := store.GetAttemptRecord(ctx, a, b)
		require.NoError(t, err)
		assert.False(t, ok, "expected no record before the first attempt")
		assert.Equal(t, 0, rec.Attempts)
		assert.Nil(t, rec.CooldownUntil)
	})

	t.Run("update creates and increments", func(t *testing.T) {
		rec, err := store.UpdateAttemptRecord(ctx, a, b, incrementAttempt(now))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Attempts)

		got, ok, err := store.GetAttemptRecord(ctx, a, b)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, got.Attempts)
		assert.True(t, now.Equal(got.LastAttempt), "expected last attempt %v, got %v", now, got.LastAttempt)
	})

	t.Run("reverse direction is independent", func(t *testing.T) {
		_, ok, err := store.GetAttemptRecord(ctx, b, a)
		require.NoError(t, err)
		assert.False(t, ok, "expected reverse pair to have no record")
	})

	t.Run("unchanged update is not persisted", func(t *testing.T) {
		_, err := store.UpdateAttemptRecord(ctx, a, b, func(rec *AttemptRecord) (bool, error) {
			rec.Attempts = 99
			return false, nil
		})
		require.NoError(t, err)

		got, _, err := store.GetAttemptRecord(ctx, a, b)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("update error is returned and not persisted", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := store.UpdateAttemptRecord(ctx, a, b, func(rec *AttemptRecord) (bool, error) {
			rec.Attempts = 42
			return true, boom
		})
		assert.ErrorIs(t, err, boom)

		got, _, err := store.GetAttemptRecord(ctx, a, b)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("cooldown round trips", func(t *testing.T) {
		until := now.Add(2 * time.Minute)
		_, err := store.UpdateAttemptRecord(ctx, a, b, func(rec *AttemptRecord) (bool, error) {
			rec.Attempts = 0
			rec.CooldownUntil = &until
			return true, nil
		})
		require.NoError(t, err)

		got, _, err := store.GetAttemptRecord(ctx, a, b)
		require.NoError(t, err)
		require.NotNil(t, got.CooldownUntil)
		assert.True(t, until.Equal(*got.CooldownUntil))
		assert.Equal(t, 0, got.Attempts)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		const workers = 10

		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpdateAttemptRecord(ctx, b, a, incrementAttempt(now))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, _, err := store.GetAttemptRecord(ctx, b, a)
		require.NoError(t, err)
		assert.Equal(t, workers, got.Attempts)
	})
}
