package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/ravenchat/internal/database"
)

// Registry keeps at most one connection per unordered pair of users.
type Registry struct {
	store database.ConnectionStore
	locks *keyedMutex
}

func NewRegistry(store database.ConnectionStore) *Registry {
	return &Registry{
		store: store,
		locks: newKeyedMutex(),
	}
}

// EnsureConnection returns the connection between a and b, creating it if
// neither orientation exists yet.
func (r *Registry) EnsureConnection(ctx context.Context, a, b int) (database.Connection, error) {
	if a == b {
		return database.Connection{}, invalid("target", "cannot connect to yourself")
	}

	unlock := r.locks.Lock(newPairKey(a, b))
	defer unlock()

	c, err := r.store.GetOrCreateConnection(ctx, a, b)
	if err != nil {
		return database.Connection{}, fmt.Errorf("get or create connection: %w", err)
	}

	return c, nil
}

func (r *Registry) FindConnection(ctx context.Context, a, b int) (database.Connection, error) {
	c, err := r.store.GetConnection(ctx, a, b)
	if errors.Is(err, database.ErrNotFound) {
		return database.Connection{}, ErrNotFound
	}

	return c, err
}
