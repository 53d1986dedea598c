package connect

import (
	"context"
	"time"

	"github.com/npezzotti/ravenchat/internal/database"
	"go.uber.org/zap"
)

const (
	MaxAttempts = 5
	Cooldown    = 2 * time.Minute
)

// AttemptOutcome is the result of registering one attempt. When Allowed is
// false, Remaining holds the cooldown left.
type AttemptOutcome struct {
	Allowed   bool
	Attempt   int
	Remaining time.Duration
}

func (o AttemptOutcome) RemainingSeconds() int {
	return ceilSeconds(o.Remaining)
}

// Ledger counts verification attempts per requester and target. Attempts in
// the other direction are tracked separately.
type Ledger struct {
	store database.AttemptStore
	log   *zap.Logger
}

func NewLedger(store database.AttemptStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, log: logger}
}

// nextAttempt applies one attempt to rec. It reports whether rec changed.
func nextAttempt(rec *database.AttemptRecord, now time.Time) (AttemptOutcome, bool) {
	if rec.CooldownUntil != nil && now.Before(*rec.CooldownUntil) {
		return AttemptOutcome{Remaining: rec.CooldownUntil.Sub(now)}, false
	}

	if rec.Attempts >= MaxAttempts {
		until := now.Add(Cooldown)
		rec.CooldownUntil = &until
		rec.Attempts = 0
		return AttemptOutcome{Remaining: Cooldown}, true
	}

	rec.Attempts++
	rec.LastAttempt = now
	return AttemptOutcome{Allowed: true, Attempt: rec.Attempts}, true
}

// RegisterAttempt records an attempt by requesterId against targetId made at
// now. The read-modify-write is atomic per ordered pair.
func (l *Ledger) RegisterAttempt(ctx context.Context, requesterId, targetId int, now time.Time) (AttemptOutcome, error) {
	var outcome AttemptOutcome
	_, err := l.store.UpdateAttemptRecord(ctx, requesterId, targetId, func(rec *database.AttemptRecord) (bool, error) {
		var changed bool
		outcome, changed = nextAttempt(rec, now)
		return changed, nil
	})
	if err != nil {
		return AttemptOutcome{}, err
	}

	if !outcome.Allowed {
		l.log.Info("attempt blocked",
			zap.Int("requester_id", requesterId),
			zap.Int("target_id", targetId),
			zap.Int("retry_after", outcome.RemainingSeconds()),
		)
	}

	return outcome, nil
}
