package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

type attemptKey struct {
	requesterId int
	targetId    int
}

// MemoryRepository is a process-local Repository used for development and
// tests. A single mutex serializes every operation, which makes
// UpdateAttemptRecord atomic per ordered pair.
type MemoryRepository struct {
	mu          sync.Mutex
	users       []User
	connections []Connection
	messages    []Message
	attempts    map[attemptKey]AttemptRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		attempts: make(map[attemptKey]AttemptRecord),
	}
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func copyUser(u User) User {
	u.Questions = slices.Clone(u.Questions)
	u.Answers = slices.Clone(u.Answers)
	return u
}

func (m *MemoryRepository) CreateUser(_ context.Context, params CreateUserParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == params.Username {
			return User{}, ErrConflict
		}
	}

	u := User{
		Id:           len(m.users) + 1,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		Questions:    slices.Clone(params.Questions),
		Answers:      slices.Clone(params.Answers),
		Poem:         params.Poem,
		CreatedAt:    time.Now().UTC(),
	}
	m.users = append(m.users, u)

	return copyUser(u), nil
}

func (m *MemoryRepository) GetUserById(_ context.Context, id int) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Id == id {
			return copyUser(u), nil
		}
	}

	return User{}, ErrNotFound
}

func (m *MemoryRepository) GetUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}

	return User{}, ErrNotFound
}

func (m *MemoryRepository) GetAnswers(ctx context.Context, userId int) ([]string, error) {
	u, err := m.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}

	return u.Answers, nil
}

func (m *MemoryRepository) ListUsers(context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}

	return users, nil
}

func (m *MemoryRepository) findConnection(a, b int) (Connection, bool) {
	for _, c := range m.connections {
		if (c.User1Id == a && c.User2Id == b) || (c.User1Id == b && c.User2Id == a) {
			return c, true
		}
	}

	return Connection{}, false
}

func (m *MemoryRepository) GetOrCreateConnection(_ context.Context, a, b int) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.findConnection(a, b); ok {
		return c, nil
	}

	id, err := shortid.Generate()
	if err != nil {
		return Connection{}, err
	}

	c := Connection{
		Id:         len(m.connections) + 1,
		ExternalId: id,
		User1Id:    a,
		User2Id:    b,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	}
	m.connections = append(m.connections, c)

	return c, nil
}

func (m *MemoryRepository) GetConnection(_ context.Context, a, b int) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.findConnection(a, b); ok {
		return c, nil
	}

	return Connection{}, ErrNotFound
}

func (m *MemoryRepository) ListConnections(_ context.Context, userId int) ([]Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := make([]Connection, 0)
	for _, c := range m.connections {
		if c.Active && c.Includes(userId) {
			conns = append(conns, c)
		}
	}

	return conns, nil
}

func (m *MemoryRepository) AppendMessage(_ context.Context, params CreateMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := Message{
		Id:           len(m.messages) + 1,
		ConnectionId: params.ConnectionId,
		SenderId:     params.SenderId,
		Content:      params.Content,
		Timestamp:    params.Timestamp,
	}
	m.messages = append(m.messages, msg)

	return msg, nil
}

func (m *MemoryRepository) ListMessages(_ context.Context, connectionId int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.ConnectionId == connectionId {
			messages = append(messages, msg)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return messages, nil
}

func (m *MemoryRepository) GetAttemptRecord(_ context.Context, requesterId, targetId int) (AttemptRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.attempts[attemptKey{requesterId, targetId}]
	if !ok {
		return AttemptRecord{RequesterId: requesterId, TargetId: targetId}, false, nil
	}

	return rec, true, nil
}

func (m *MemoryRepository) UpdateAttemptRecord(_ context.Context, requesterId, targetId int, fn AttemptUpdateFunc) (AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := attemptKey{requesterId, targetId}
	rec, ok := m.attempts[key]
	if !ok {
		rec = AttemptRecord{RequesterId: requesterId, TargetId: targetId}
	}

	changed, err := fn(&rec)
	if err != nil {
		return AttemptRecord{}, err
	}

	if changed {
		m.attempts[key] = rec
	}

	return rec, nil
}
