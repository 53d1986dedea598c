package connect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_EnsureConnection(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	r := NewRegistry(repo)

	first, err := r.EnsureConnection(ctx, 1, 2)
	require.NoError(t, err)

	second, err := r.EnsureConnection(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id, "expected the same connection in either order")

	conns, err := repo.ListConnections(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, conns, 1, "expected no duplicate connection")

	found, err := r.FindConnection(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Id, found.Id)

	_, err = r.FindConnection(ctx, 1, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.EnsureConnection(ctx, 4, 4)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "expected self connection to be rejected")
}

func TestRegistry_EnsureConnection_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	r := NewRegistry(repo)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int]struct{})
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := 1, 2
			if i%2 == 0 {
				a, b = b, a
			}
			c, err := r.EnsureConnection(ctx, a, b)
			if assert.NoError(t, err) {
				mu.Lock()
				ids[c.Id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 0, r.locks.len(), "expected all pair locks to be released")
}

func TestRegistry_EnsureConnection_StoreError(t *testing.T) {
	repo := &database.MockRepository{}
	defer repo.AssertExpectations(t)

	boom := errors.New("boom")
	repo.On("GetOrCreateConnection", 1, 2).Return(database.Connection{}, boom)

	_, err := NewRegistry(repo).EnsureConnection(context.Background(), 1, 2)
	assert.ErrorIs(t, err, boom)
}

func Test_keyedMutex(t *testing.T) {
	k := newKeyedMutex()
	assert.Equal(t, newPairKey(1, 2), newPairKey(2, 1))

	unlock := k.Lock(newPairKey(1, 2))

	acquired := make(chan struct{})
	go func() {
		u := k.Lock(newPairKey(2, 1))
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("expected second lock on the same pair to wait")
	case <-time.After(50 * time.Millisecond):
	}

	// other pairs are not blocked
	k.Lock(newPairKey(1, 3))()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected second lock to be acquired after unlock")
	}

	assert.Eventually(t, func() bool { return k.len() == 0 }, time.Second, 10*time.Millisecond)
}
