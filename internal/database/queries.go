package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

const (
	uniqueViolation = "23505"

	selectUserQuery = "SELECT id, username, password_hash, questions, answers, poem, created_at FROM users "

	selectConnectionQuery = "SELECT id, external_id, user1_id, user2_id, created_at, is_active FROM connections " +
		"WHERE (user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1) LIMIT 1"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		pq.Array(&u.Questions),
		pq.Array(&u.Answers),
		&u.Poem,
		&u.CreatedAt,
	)

	return u, notFound(err)
}

func scanConnection(row rowScanner) (Connection, error) {
	var c Connection
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.User1Id,
		&c.User2Id,
		&c.CreatedAt,
		&c.Active,
	)

	return c, notFound(err)
}

func (db *PgRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash, questions, answers, poem, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, username, password_hash, questions, answers, poem, created_at",
		params.Username,
		params.PasswordHash,
		pq.Array(params.Questions),
		pq.Array(params.Answers),
		params.Poem,
		time.Now().UTC(),
	)

	u, err := scanUser(row)
	if isUniqueViolation(err) {
		return User{}, ErrConflict
	}

	return u, err
}

func (db *PgRepository) GetUserById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx, selectUserQuery+"WHERE id = $1 LIMIT 1", id)
	return scanUser(row)
}

func (db *PgRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx, selectUserQuery+"WHERE username = $1 LIMIT 1", username)
	return scanUser(row)
}

func (db *PgRepository) GetAnswers(ctx context.Context, userId int) ([]string, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT answers FROM users WHERE id = $1", userId)

	var answers []string
	if err := row.Scan(pq.Array(&answers)); err != nil {
		return nil, notFound(err)
	}

	return answers, nil
}

func (db *PgRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUserQuery+"ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgRepository) GetOrCreateConnection(ctx context.Context, a, b int) (Connection, error) {
	c, err := db.GetConnection(ctx, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Connection{}, err
	}

	// a concurrent insert for the same pair loses on the pair index and
	// falls through to the select below
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO connections (external_id, user1_id, user2_id, created_at, is_active) "+
			"VALUES ($1, $2, $3, $4, TRUE) ON CONFLICT DO NOTHING",
		shortid.MustGenerate(),
		a,
		b,
		time.Now().UTC(),
	)
	if err != nil {
		return Connection{}, fmt.Errorf("insert connection: %w", err)
	}

	return db.GetConnection(ctx, a, b)
}

func (db *PgRepository) GetConnection(ctx context.Context, a, b int) (Connection, error) {
	return scanConnection(db.conn.QueryRowContext(ctx, selectConnectionQuery, a, b))
}

func (db *PgRepository) ListConnections(ctx context.Context, userId int) ([]Connection, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, external_id, user1_id, user2_id, created_at, is_active FROM connections "+
			"WHERE (user1_id = $1 OR user2_id = $1) AND is_active ORDER BY created_at, id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := make([]Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}

	return conns, rows.Err()
}

func (db *PgRepository) AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (connection_id, sender_id, content, timestamp) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, connection_id, sender_id, content, timestamp, is_read",
		params.ConnectionId,
		params.SenderId,
		params.Content,
		params.Timestamp,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ConnectionId,
		&msg.SenderId,
		&msg.Content,
		&msg.Timestamp,
		&msg.Read,
	)

	return msg, err
}

func (db *PgRepository) ListMessages(ctx context.Context, connectionId int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, connection_id, sender_id, content, timestamp, is_read FROM messages "+
			"WHERE connection_id = $1 ORDER BY timestamp ASC, id ASC",
		connectionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.ConnectionId, &msg.SenderId, &msg.Content, &msg.Timestamp, &msg.Read); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgRepository) GetAttemptRecord(ctx context.Context, requesterId, targetId int) (AttemptRecord, bool, error) {
	rec, err := scanAttemptRecord(db.conn.QueryRowContext(ctx,
		"SELECT user_id, target_user_id, attempts, last_attempt, cooldown_until FROM connection_attempts "+
			"WHERE user_id = $1 AND target_user_id = $2",
		requesterId,
		targetId,
	))
	if errors.Is(err, ErrNotFound) {
		return AttemptRecord{RequesterId: requesterId, TargetId: targetId}, false, nil
	}
	if err != nil {
		return AttemptRecord{}, false, err
	}

	return rec, true, nil
}

// UpsertAttemptRecord writes rec unconditionally, creating the row for the
// ordered pair when it does not exist yet.
func (db *PgRepository) UpsertAttemptRecord(ctx context.Context, rec AttemptRecord) error {
	return upsertAttemptRecord(ctx, db.conn, rec)
}

func (db *PgRepository) UpdateAttemptRecord(ctx context.Context, requesterId, targetId int, fn AttemptUpdateFunc) (rec AttemptRecord, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return AttemptRecord{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// make sure a row exists so the select below can lock it
	_, err = tx.ExecContext(ctx,
		"INSERT INTO connection_attempts (user_id, target_user_id, attempts) VALUES ($1, $2, 0) "+
			"ON CONFLICT (user_id, target_user_id) DO NOTHING",
		requesterId,
		targetId,
	)
	if err != nil {
		return AttemptRecord{}, fmt.Errorf("insert attempt record: %w", err)
	}

	rec, err = scanAttemptRecord(tx.QueryRowContext(ctx,
		"SELECT user_id, target_user_id, attempts, last_attempt, cooldown_until FROM connection_attempts "+
			"WHERE user_id = $1 AND target_user_id = $2 FOR UPDATE",
		requesterId,
		targetId,
	))
	if err != nil {
		return AttemptRecord{}, fmt.Errorf("lock attempt record: %w", err)
	}

	changed, err := fn(&rec)
	if err != nil {
		return AttemptRecord{}, err
	}

	if changed {
		if err = upsertAttemptRecord(ctx, tx, rec); err != nil {
			return AttemptRecord{}, fmt.Errorf("update attempt record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return AttemptRecord{}, err
	}

	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertAttemptRecord(ctx context.Context, e execer, rec AttemptRecord) error {
	var lastAttempt, cooldownUntil sql.NullTime
	if !rec.LastAttempt.IsZero() {
		lastAttempt = sql.NullTime{Time: rec.LastAttempt, Valid: true}
	}
	if rec.CooldownUntil != nil {
		cooldownUntil = sql.NullTime{Time: *rec.CooldownUntil, Valid: true}
	}

	_, err := e.ExecContext(ctx,
		"INSERT INTO connection_attempts (user_id, target_user_id, attempts, last_attempt, cooldown_until) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (user_id, target_user_id) DO UPDATE "+
			"SET attempts = EXCLUDED.attempts, last_attempt = EXCLUDED.last_attempt, cooldown_until = EXCLUDED.cooldown_until",
		rec.RequesterId,
		rec.TargetId,
		rec.Attempts,
		lastAttempt,
		cooldownUntil,
	)

	return err
}

func scanAttemptRecord(row rowScanner) (AttemptRecord, error) {
	var (
		rec           AttemptRecord
		lastAttempt   sql.NullTime
		cooldownUntil sql.NullTime
	)

	err := row.Scan(
		&rec.RequesterId,
		&rec.TargetId,
		&rec.Attempts,
		&lastAttempt,
		&cooldownUntil,
	)
	if err != nil {
		return AttemptRecord{}, notFound(err)
	}

	if lastAttempt.Valid {
		rec.LastAttempt = lastAttempt.Time
	}
	if cooldownUntil.Valid {
		t := cooldownUntil.Time
		rec.CooldownUntil = &t
	}

	return rec, nil
}
