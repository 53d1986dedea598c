package connect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/npezzotti/ravenchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_nextAttempt(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Second)
	past := now.Add(-time.Second)

	tcases := []struct {
		name          string
		rec           database.AttemptRecord
		expect        AttemptOutcome
		expectChanged bool
		expectRec     database.AttemptRecord
	}{
		{
			name:          "first attempt",
			rec:           database.AttemptRecord{},
			expect:        AttemptOutcome{Allowed: true, Attempt: 1},
			expectChanged: true,
			expectRec:     database.AttemptRecord{Attempts: 1, LastAttempt: now},
		},
		{
			name:          "cooldown active",
			rec:           database.AttemptRecord{Attempts: 0, CooldownUntil: &future},
			expect:        AttemptOutcome{Remaining: 30 * time.Second},
			expectChanged: false,
			expectRec:     database.AttemptRecord{Attempts: 0, CooldownUntil: &future},
		},
		{
			name:          "threshold reached",
			rec:           database.AttemptRecord{Attempts: MaxAttempts, LastAttempt: past},
			expect:        AttemptOutcome{Remaining: Cooldown},
			expectChanged: true,
		},
		{
			name:          "expired cooldown",
			rec:           database.AttemptRecord{Attempts: 0, CooldownUntil: &past},
			expect:        AttemptOutcome{Allowed: true, Attempt: 1},
			expectChanged: true,
			expectRec:     database.AttemptRecord{Attempts: 1, LastAttempt: now, CooldownUntil: &past},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tc.rec
			outcome, changed := nextAttempt(&rec, now)
			assert.Equal(t, tc.expect, outcome)
			assert.Equal(t, tc.expectChanged, changed)

			if tc.name == "threshold reached" {
				assert.Equal(t, 0, rec.Attempts, "expected counter to reset")
				require.NotNil(t, rec.CooldownUntil)
				assert.Equal(t, now.Add(Cooldown), *rec.CooldownUntil)
				return
			}
			assert.Equal(t, tc.expectRec, rec)
		})
	}
}

func TestLedger_RegisterAttempt(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	ledger := NewLedger(repo, testutil.TestLogger(t))
	now := time.Now().UTC()

	for i := 1; i <= MaxAttempts; i++ {
		outcome, err := ledger.RegisterAttempt(ctx, 1, 2, now)
		require.NoError(t, err)
		assert.True(t, outcome.Allowed, "expected attempt %d to be allowed", i)
		assert.Equal(t, i, outcome.Attempt)
	}

	sixth, err := ledger.RegisterAttempt(ctx, 1, 2, now)
	require.NoError(t, err)
	assert.False(t, sixth.Allowed, "expected 6th attempt to be blocked")
	assert.Equal(t, Cooldown, sixth.Remaining)
	assert.Equal(t, 120, sixth.RemainingSeconds())

	rec, _, err := repo.GetAttemptRecord(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts, "expected counter to reset when cooldown starts")
	require.NotNil(t, rec.CooldownUntil)

	seventh, err := ledger.RegisterAttempt(ctx, 1, 2, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, seventh.Allowed, "expected 7th attempt to be blocked")
	assert.LessOrEqual(t, seventh.Remaining, sixth.Remaining)
	assert.Equal(t, 110, seventh.RemainingSeconds())

	rec, _, err = repo.GetAttemptRecord(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts, "expected blocked attempt not to be counted")

	reverse, err := ledger.RegisterAttempt(ctx, 2, 1, now)
	require.NoError(t, err)
	assert.True(t, reverse.Allowed, "expected reverse direction to be independent")
	assert.Equal(t, 1, reverse.Attempt)

	after, err := ledger.RegisterAttempt(ctx, 1, 2, now.Add(Cooldown+time.Second))
	require.NoError(t, err)
	assert.True(t, after.Allowed, "expected attempts to resume after cooldown")
	assert.Equal(t, 1, after.Attempt)
}

func TestLedger_RegisterAttempt_Concurrent(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(database.NewMemoryRepository(), testutil.TestLogger(t))
	now := time.Now().UTC()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
		blocked atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := ledger.RegisterAttempt(ctx, 1, 2, now)
			if !assert.NoError(t, err) {
				return
			}
			if outcome.Allowed {
				allowed.Add(1)
			} else {
				blocked.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, MaxAttempts, allowed.Load(), "expected exactly %d allowed attempts", MaxAttempts)
	assert.EqualValues(t, 20-MaxAttempts, blocked.Load())
}

func TestLedger_RegisterAttempt_StoreError(t *testing.T) {
	repo := &database.MockRepository{}
	defer repo.AssertExpectations(t)

	boom := errors.New("boom")
	repo.On("UpdateAttemptRecord", 1, 2).Return(database.AttemptRecord{}, boom)

	_, err := NewLedger(repo, testutil.TestLogger(t)).RegisterAttempt(context.Background(), 1, 2, time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestAttemptOutcome_RemainingSeconds(t *testing.T) {
	assert.Equal(t, 0, AttemptOutcome{}.RemainingSeconds())
	assert.Equal(t, 1, AttemptOutcome{Remaining: time.Millisecond}.RemainingSeconds())
	assert.Equal(t, 2, AttemptOutcome{Remaining: 1500 * time.Millisecond}.RemainingSeconds())
	assert.Equal(t, 120, AttemptOutcome{Remaining: Cooldown}.RemainingSeconds())
}
