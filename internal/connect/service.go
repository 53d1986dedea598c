// Package connect implements the rules for connecting two users: answer
// scoring, the attempt ledger, the connection registry, and the account and
// messaging operations built on them.
package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/ravenchat/internal/content"
	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/npezzotti/ravenchat/internal/stats"
	"go.uber.org/zap"
)

const (
	metricAttempts        = "NumConnectionAttempts"
	metricBlockedAttempts = "NumBlockedAttempts"
	metricConnections     = "NumSuccessfulAttempts"
)

type Options struct {
	// AttemptStore overrides where attempt records are kept. Defaults to the
	// repository.
	AttemptStore database.AttemptStore
	Poems        content.Generator
	Cryptic      content.Generator
	Stats        stats.StatsProvider
}

type Service struct {
	repo     database.Repository
	ledger   *Ledger
	registry *Registry
	poems    content.Generator
	cryptic  content.Generator
	stats    stats.StatsProvider
	log      *zap.Logger
}

func NewService(repo database.Repository, logger *zap.Logger, opts Options) *Service {
	attempts := opts.AttemptStore
	if attempts == nil {
		attempts = repo
	}
	if opts.Poems == nil {
		opts.Poems = content.NewPoemGenerator()
	}
	if opts.Cryptic == nil {
		opts.Cryptic = content.NewCrypticGenerator()
	}

	s := &Service{
		repo:     repo,
		ledger:   NewLedger(attempts, logger),
		registry: NewRegistry(repo),
		poems:    opts.Poems,
		cryptic:  opts.Cryptic,
		stats:    opts.Stats,
		log:      logger,
	}

	if s.stats != nil {
		s.stats.RegisterMetric(metricAttempts)
		s.stats.RegisterMetric(metricBlockedAttempts)
		s.stats.RegisterMetric(metricConnections)
	}

	return s
}

func (s *Service) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

type AttemptRequest struct {
	RequesterId    int
	TargetUsername string
	Answers        []string
	// Now defaults to the current time when zero.
	Now time.Time
}

func (r AttemptRequest) validate() error {
	switch {
	case r.RequesterId <= 0:
		return invalid("requester_id", "required")
	case strings.TrimSpace(r.TargetUsername) == "":
		return invalid("target_username", "required")
	case r.Answers == nil:
		return invalid("answers", "required")
	}
	return nil
}

type AttemptResult struct {
	Success        bool
	CorrectAnswers int
	// PitchLevel is only set on failure.
	PitchLevel     string
	CrypticMessage string
	Message        string
	Connection     *database.Connection
}

// AttemptConnection verifies req.Answers against the target's secret answers
// and connects the two users on a perfect score. Blocked attempts return a
// *RateLimitError and are not scored.
func (s *Service) AttemptConnection(ctx context.Context, req AttemptRequest) (AttemptResult, error) {
	if err := req.validate(); err != nil {
		return AttemptResult{}, err
	}

	target, err := s.repo.GetUserByUsername(ctx, req.TargetUsername)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return AttemptResult{}, fmt.Errorf("user %q: %w", req.TargetUsername, ErrNotFound)
		}
		return AttemptResult{}, storageError("get target", err)
	}

	if target.Id == req.RequesterId {
		return AttemptResult{}, invalid("target_username", "cannot connect to yourself")
	}

	answers, err := s.repo.GetAnswers(ctx, target.Id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return AttemptResult{}, fmt.Errorf("answers for %q: %w", req.TargetUsername, ErrNotFound)
		}
		return AttemptResult{}, storageError("get answers", err)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.incr(metricAttempts)
	outcome, err := s.ledger.RegisterAttempt(ctx, req.RequesterId, target.Id, now)
	if err != nil {
		return AttemptResult{}, storageError("register attempt", err)
	}
	if !outcome.Allowed {
		s.incr(metricBlockedAttempts)
		return AttemptResult{}, &RateLimitError{Remaining: outcome.Remaining}
	}

	correct := Score(req.Answers, answers)
	result := AttemptResult{
		CorrectAnswers: correct,
		CrypticMessage: s.cryptic.Generate(ctx, req.Answers),
	}

	if correct != RequiredCorrect {
		result.PitchLevel = PitchLevel(correct)
		result.Message = fmt.Sprintf("Only %d/%d answers correct. Try again.", correct, RequiredCorrect)
		return result, nil
	}

	// the attempt is already counted, so a failure here must surface
	conn, err := s.registry.EnsureConnection(ctx, req.RequesterId, target.Id)
	if err != nil {
		return AttemptResult{}, storageError("ensure connection", err)
	}

	s.incr(metricConnections)
	s.log.Info("users connected",
		zap.Int("requester_id", req.RequesterId),
		zap.Int("target_id", target.Id),
		zap.Int("connection_id", conn.Id),
	)

	result.Success = true
	result.Connection = &conn
	result.Message = "Connection successful! You can now chat."

	return result, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
