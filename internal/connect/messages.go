package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/ravenchat/internal/database"
)

const MaxMessageLength = 4096

// Contact is a connection seen from one side: the connection and the user on
// the other end.
type Contact struct {
	Connection database.Connection
	User       database.User
}

func (s *Service) ListConnections(ctx context.Context, userId int) ([]Contact, error) {
	conns, err := s.repo.ListConnections(ctx, userId)
	if err != nil {
		return nil, storageError("list connections", err)
	}

	contacts := make([]Contact, 0, len(conns))
	for _, c := range conns {
		u, err := s.repo.GetUserById(ctx, c.Other(userId))
		if err != nil {
			return nil, storageError("get connected user", err)
		}
		contacts = append(contacts, Contact{Connection: c, User: u})
	}

	return contacts, nil
}

// connectionWith resolves username and the connection userId has with them.
func (s *Service) connectionWith(ctx context.Context, userId int, username string) (database.Connection, database.User, error) {
	if strings.TrimSpace(username) == "" {
		return database.Connection{}, database.User{}, invalid("username", "required")
	}

	other, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Connection{}, database.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return database.Connection{}, database.User{}, storageError("get user", err)
	}

	conn, err := s.registry.FindConnection(ctx, userId, other.Id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return database.Connection{}, database.User{}, fmt.Errorf("connection with %q: %w", username, ErrNotFound)
		}
		return database.Connection{}, database.User{}, storageError("get connection", err)
	}

	return conn, other, nil
}

// SendMessage stores a message from senderId to the connected user named
// recipient.
func (s *Service) SendMessage(ctx context.Context, senderId int, recipient, text string, now time.Time) (database.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return database.Message{}, invalid("content", "required")
	}
	if len(text) > MaxMessageLength {
		return database.Message{}, invalid("content", fmt.Sprintf("longer than %d bytes", MaxMessageLength))
	}

	conn, _, err := s.connectionWith(ctx, senderId, recipient)
	if err != nil {
		return database.Message{}, err
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	msg, err := s.repo.AppendMessage(ctx, database.CreateMessageParams{
		ConnectionId: conn.Id,
		SenderId:     senderId,
		Content:      text,
		Timestamp:    now,
	})
	if err != nil {
		return database.Message{}, storageError("append message", err)
	}

	return msg, nil
}

// ListMessages returns the history between userId and the user named with,
// oldest first.
func (s *Service) ListMessages(ctx context.Context, userId int, with string) ([]database.Message, error) {
	conn, _, err := s.connectionWith(ctx, userId, with)
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, conn.Id)
	if err != nil {
		return nil, storageError("list messages", err)
	}

	return msgs, nil
}
