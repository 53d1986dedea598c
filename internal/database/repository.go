package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id int) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetAnswers(ctx context.Context, userId int) ([]string, error)
	ListUsers(ctx context.Context) ([]User, error)
}

type ConnectionStore interface {
	// GetOrCreateConnection returns the connection between a and b in
	// either stored orientation, creating it when none exists.
	GetOrCreateConnection(ctx context.Context, a, b int) (Connection, error)
	GetConnection(ctx context.Context, a, b int) (Connection, error)
	ListConnections(ctx context.Context, userId int) ([]Connection, error)
}

type MessageStore interface {
	AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	// ListMessages returns the messages of a connection by timestamp ascending.
	ListMessages(ctx context.Context, connectionId int) ([]Message, error)
}

type AttemptStore interface {
	GetAttemptRecord(ctx context.Context, requesterId, targetId int) (AttemptRecord, bool, error)
	// UpdateAttemptRecord applies fn to the record of the ordered pair as a
	// single atomic read-modify-write. An absent record is passed to fn as a
	// zero-attempt record.
	UpdateAttemptRecord(ctx context.Context, requesterId, targetId int, fn AttemptUpdateFunc) (AttemptRecord, error)
}

type Repository interface {
	UserStore
	ConnectionStore
	MessageStore
	AttemptStore
	Ping(ctx context.Context) error
	Close() error
}
