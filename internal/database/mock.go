package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserById(ctx context.Context, id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAnswers(ctx context.Context, userId int) ([]string, error) {
	args := m.Called(userId)
	if answers, ok := args.Get(0).([]string); ok {
		return answers, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) ListUsers(ctx context.Context) ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) GetOrCreateConnection(ctx context.Context, a, b int) (Connection, error) {
	args := m.Called(a, b)
	return args.Get(0).(Connection), args.Error(1)
}
func (m *MockRepository) GetConnection(ctx context.Context, a, b int) (Connection, error) {
	args := m.Called(a, b)
	return args.Get(0).(Connection), args.Error(1)
}
func (m *MockRepository) ListConnections(ctx context.Context, userId int) ([]Connection, error) {
	args := m.Called(userId)
	return args.Get(0).([]Connection), args.Error(1)
}
func (m *MockRepository) AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) ListMessages(ctx context.Context, connectionId int) ([]Message, error) {
	args := m.Called(connectionId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) GetAttemptRecord(ctx context.Context, requesterId, targetId int) (AttemptRecord, bool, error) {
	args := m.Called(requesterId, targetId)
	return args.Get(0).(AttemptRecord), args.Bool(1), args.Error(2)
}

// UpdateAttemptRecord runs fn against the record returned by the expectation
// so callers still exercise their own transition logic.
func (m *MockRepository) UpdateAttemptRecord(ctx context.Context, requesterId, targetId int, fn AttemptUpdateFunc) (AttemptRecord, error) {
	args := m.Called(requesterId, targetId)
	if err := args.Error(1); err != nil {
		return AttemptRecord{}, err
	}

	rec := args.Get(0).(AttemptRecord)
	if _, err := fn(&rec); err != nil {
		return AttemptRecord{}, err
	}
	return rec, nil
}
