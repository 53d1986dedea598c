package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "ravenchat:attempts"
	maxTxRetries     = 32

	fieldAttempts      = "attempts"
	fieldLastAttempt   = "last_attempt"
	fieldCooldownUntil = "cooldown_until"
)

// RedisAttemptStore keeps attempt records in Redis hashes so several server
// instances share one rate-limit state. Updates use WATCH/MULTI/EXEC and are
// retried when another client touched the same key.
type RedisAttemptStore struct {
	client *redis.Client
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func attemptRedisKey(requesterId, targetId int) string {
	return fmt.Sprintf("%s:%d:%d", attemptKeyPrefix, requesterId, targetId)
}

func (s *RedisAttemptStore) GetAttemptRecord(ctx context.Context, requesterId, targetId int) (AttemptRecord, bool, error) {
	vals, err := s.client.HGetAll(ctx, attemptRedisKey(requesterId, targetId)).Result()
	if err != nil {
		return AttemptRecord{}, false, err
	}

	rec, err := decodeAttemptRecord(requesterId, targetId, vals)
	if err != nil {
		return AttemptRecord{}, false, err
	}

	return rec, len(vals) > 0, nil
}

func (s *RedisAttemptStore) UpdateAttemptRecord(ctx context.Context, requesterId, targetId int, fn AttemptUpdateFunc) (AttemptRecord, error) {
	key := attemptRedisKey(requesterId, targetId)

	var rec AttemptRecord
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		rec, err = decodeAttemptRecord(requesterId, targetId, vals)
		if err != nil {
			return err
		}

		changed, err := fn(&rec)
		if err != nil || !changed {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeAttemptRecord(rec))
			if rec.CooldownUntil == nil {
				pipe.HDel(ctx, key, fieldCooldownUntil)
			}
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return AttemptRecord{}, err
		}

		return rec, nil
	}

	return AttemptRecord{}, fmt.Errorf("update %s: too many concurrent writers", key)
}

func encodeAttemptRecord(rec AttemptRecord) map[string]any {
	fields := map[string]any{
		fieldAttempts: rec.Attempts,
	}
	if !rec.LastAttempt.IsZero() {
		fields[fieldLastAttempt] = rec.LastAttempt.UnixNano()
	}
	if rec.CooldownUntil != nil {
		fields[fieldCooldownUntil] = rec.CooldownUntil.UnixNano()
	}

	return fields
}

func decodeAttemptRecord(requesterId, targetId int, vals map[string]string) (AttemptRecord, error) {
	rec := AttemptRecord{RequesterId: requesterId, TargetId: targetId}

	if v, ok := vals[fieldAttempts]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return AttemptRecord{}, fmt.Errorf("decode %s: %w", fieldAttempts, err)
		}
		rec.Attempts = n
	}

	if v, ok := vals[fieldLastAttempt]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return AttemptRecord{}, fmt.Errorf("decode %s: %w", fieldLastAttempt, err)
		}
		rec.LastAttempt = time.Unix(0, ns).UTC()
	}

	if v, ok := vals[fieldCooldownUntil]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return AttemptRecord{}, fmt.Errorf("decode %s: %w", fieldCooldownUntil, err)
		}
		t := time.Unix(0, ns).UTC()
		rec.CooldownUntil = &t
	}

	return rec, nil
}
