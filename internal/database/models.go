package database

import "time"

type User struct {
	Id           int
	Username     string
	PasswordHash string
	Questions    []string
	Answers      []string
	Poem         string
	CreatedAt    time.Time
}

// AttemptRecord tracks verification attempts for one requester against one
// target. The pair is directed: (a, b) and (b, a) are separate records.
type AttemptRecord struct {
	RequesterId   int
	TargetId      int
	Attempts      int
	LastAttempt   time.Time
	CooldownUntil *time.Time
}

type Connection struct {
	Id         int
	ExternalId string
	User1Id    int
	User2Id    int
	CreatedAt  time.Time
	Active     bool
}

// Other returns the participant of c that is not userId.
func (c Connection) Other(userId int) int {
	if c.User1Id == userId {
		return c.User2Id
	}
	return c.User1Id
}

// Includes reports whether userId is one of the two participants.
func (c Connection) Includes(userId int) bool {
	return c.User1Id == userId || c.User2Id == userId
}

type Message struct {
	Id           int
	ConnectionId int
	SenderId     int
	Content      string
	Timestamp    time.Time
	Read         bool
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
	Questions    []string
	Answers      []string
	Poem         string
}

type CreateMessageParams struct {
	ConnectionId int
	SenderId     int
	Content      string
	Timestamp    time.Time
}

// AttemptUpdateFunc mutates rec in place and reports whether the change
// must be persisted. It may be invoked more than once when a backend
// retries an optimistic transaction.
type AttemptUpdateFunc func(rec *AttemptRecord) (bool, error)
