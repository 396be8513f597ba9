package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/models"
)

// QueueStore is the duel pool keyed by user id. Implementations live in
// repository (Postgres, memory) and cache (Redis).
type QueueStore interface {
	// Upsert replaces the user's entry and assigns a new Version.
	Upsert(ctx context.Context, e *models.QueueEntry) error
	// Restore re-inserts a claimed entry unless the user has queued again.
	Restore(ctx context.Context, e *models.QueueEntry) error
	Get(ctx context.Context, userID uuid.UUID) (*models.QueueEntry, error)
	Delete(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context) ([]*models.QueueEntry, error)
	// Claim removes both entries only if their versions are unchanged,
	// otherwise it fails with apperr.ErrAlreadyMatched and removes nothing.
	Claim(ctx context.Context, a, b *models.QueueEntry) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AccountReader looks up cached balances.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// MatchCreator turns a claimed pair into a funded match.
type MatchCreator interface {
	CreateMatch(ctx context.Context, a, b *models.QueueEntry) (*models.Match, error)
}

// errPairDropped means a pair was claimed but one side could not fund its hold.
var errPairDropped = errors.New("pair dropped")

// QueueService runs join, leave and the matchmaking critical section.
type QueueService struct {
	Store    QueueStore
	Accounts AccountReader
	Matches  MatchCreator
	Rules    config.Duel
	Logger   logrus.FieldLogger
	// Kick, when set, schedules an immediate matchmaking pass after a join.
	Kick func(ctx context.Context) error
	now  func() time.Time
}

func NewQueueService(store QueueStore, accounts AccountReader, matches MatchCreator, rules config.Duel, logger logrus.FieldLogger) *QueueService {
	return &QueueService{Store: store, Accounts: accounts, Matches: matches, Rules: rules, Logger: logger, now: time.Now}
}

// Join validates the request and upserts the user's entry. A repeated join
// replaces the earlier entry.
func (s *QueueService) Join(ctx context.Context, req JoinRequest) (*models.QueueEntry, error) {
	if err := ValidateJoin(req, s.Rules); err != nil {
		return nil, err
	}

	acc, err := s.Accounts.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	hold := req.EntryFee
	if req.SafetyBelt {
		hold += s.Rules.SafetyBeltFee
	}
	if acc.Available() < hold {
		return nil, fmt.Errorf("join: need %d credits, %d available: %w", hold, acc.Available(), apperr.ErrInsufficientFunds)
	}

	now := s.now().UTC()
	e := &models.QueueEntry{
		UserID:       req.UserID,
		StanceType:   req.StanceType,
		PersonaLabel: req.PersonaLabel,
		PingMs:       req.PingMs,
		EntryFee:     req.EntryFee,
		SafetyBelt:   req.SafetyBelt,
		Duration:     req.Duration,
		JoinedAt:     now,
		ExpiresAt:    now.Add(s.Rules.QueueTTL),
	}
	if err := s.Store.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{
		"user_id":   e.UserID,
		"stance":    e.StanceType,
		"entry_fee": e.EntryFee,
		"duration":  e.Duration,
		"version":   e.Version,
	}).Info("queue joined")

	if s.Kick != nil {
		if err := s.Kick(ctx); err != nil {
			s.Logger.WithError(err).Warn("schedule matchmaking")
		}
	}
	return e, nil
}

// Leave removes the user's entry.
func (s *QueueService) Leave(ctx context.Context, userID uuid.UUID) error {
	if err := s.Store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	s.Logger.WithField("user_id", userID).Info("queue left")
	return nil
}

// List returns the live pool in join order.
func (s *QueueService) List(ctx context.Context) ([]*models.QueueEntry, error) {
	entries, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return inJoinOrder(ExpireStale(entries, s.now())), nil
}

// Diagnose explains why two queued users are or are not compatible.
func (s *QueueService) Diagnose(ctx context.Context, a, b uuid.UUID) ([]Incompatibility, error) {
	ea, err := s.Store.Get(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", a, err)
	}
	eb, err := s.Store.Get(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", b, err)
	}
	return Diagnose(ea, eb, s.Rules), nil
}

// ExpireQueue deletes lapsed entries from the store.
func (s *QueueService) ExpireQueue(ctx context.Context) (int, error) {
	return s.Store.DeleteExpired(ctx, s.now())
}

// Matchmake pairs the pool until no compatible pair remains or
// Rules.MaxMatchesPerTick matches were created.
func (s *QueueService) Matchmake(ctx context.Context) ([]*models.Match, error) {
	var created []*models.Match
	for len(created) < s.Rules.MaxMatchesPerTick {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		m, err := s.matchOnce(ctx)
		if errors.Is(err, errPairDropped) {
			continue
		}
		if err != nil {
			return created, err
		}
		if m == nil {
			break
		}
		created = append(created, m)
	}
	return created, nil
}

// matchOnce snapshots the pool, finds a pair and claims it. A lost claim race
// restarts from a fresh snapshot, up to Rules.MatchRetryLimit attempts.
func (s *QueueService) matchOnce(ctx context.Context) (*models.Match, error) {
	for attempt := 1; attempt <= s.Rules.MatchRetryLimit; attempt++ {
		entries, err := s.Store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list queue: %w", err)
		}
		a, b, ok := FindMatch(ExpireStale(entries, s.now()), s.Rules)
		if !ok {
			return nil, nil
		}

		if err := s.Store.Claim(ctx, a, b); err != nil {
			if errors.Is(err, apperr.ErrAlreadyMatched) {
				s.Logger.WithFields(logrus.Fields{"user_a": a.UserID, "user_b": b.UserID, "attempt": attempt}).Debug("claim lost, retrying")
				continue
			}
			return nil, fmt.Errorf("claim pair: %w", err)
		}

		m, err := s.Matches.CreateMatch(ctx, a, b)
		if err == nil {
			return m, nil
		}

		var holdErr *HoldError
		if errors.As(err, &holdErr) {
			keep := a
			if holdErr.UserID == a.UserID {
				keep = b
			}
			if rerr := s.Store.Restore(ctx, keep); rerr != nil {
				return nil, fmt.Errorf("restore %s: %w", keep.UserID, rerr)
			}
			s.Logger.WithFields(logrus.Fields{
				"dropped_user":  holdErr.UserID,
				"restored_user": keep.UserID,
			}).WithError(holdErr.Err).Warn("match hold failed, entry dropped")
			return nil, errPairDropped
		}

		for _, e := range []*models.QueueEntry{a, b} {
			if rerr := s.Store.Restore(ctx, e); rerr != nil {
				s.Logger.WithError(rerr).WithField("user_id", e.UserID).Error("restore after failed match")
			}
		}
		return nil, fmt.Errorf("create match: %w", err)
	}
	return nil, fmt.Errorf("matchmake after %d attempts: %w", s.Rules.MatchRetryLimit, apperr.ErrAlreadyMatched)
}
