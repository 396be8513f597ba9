package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MatchRepo is the match store used by settlement.
type MatchRepo interface {
	Create(ctx context.Context, tx pgx.Tx, m *models.Match) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Match, error)
	Update(ctx context.Context, tx pgx.Tx, m *models.Match) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Match, error)
}

// Escrow abstracts the ledger operations settlement needs.
type Escrow interface {
	PlaceHold(ctx context.Context, tx pgx.Tx, userID, matchID uuid.UUID, amount int64) error
	SettleMatch(ctx context.Context, tx pgx.Tx, m *models.Match, scoreA, scoreB int) (*models.MatchResult, error)
	CancelMatch(ctx context.Context, tx pgx.Tx, m *models.Match) error
}

// HoldError reports which side of a new match could not fund its hold.
type HoldError struct {
	UserID uuid.UUID
	Err    error
}

func (e *HoldError) Error() string { return fmt.Sprintf("hold for %s: %v", e.UserID, e.Err) }
func (e *HoldError) Unwrap() error { return e.Err }

// SettlementService owns the match state machine. Each transition runs in one
// transaction with the match row locked, so concurrent callers in different
// processes serialize on the database.
type SettlementService struct {
	Pool    TxBeginner
	Matches MatchRepo
	Escrow  Escrow
	Rules   config.Duel
	Logger  logrus.FieldLogger
	now     func() time.Time
}

func NewSettlementService(pool TxBeginner, matches MatchRepo, escrow Escrow, rules config.Duel, logger logrus.FieldLogger) *SettlementService {
	return &SettlementService{Pool: pool, Matches: matches, Escrow: escrow, Rules: rules, Logger: logger, now: time.Now}
}

// CreateMatch records a match for two claimed entries and places both holds in
// the same transaction. A side that cannot fund its hold is reported as *HoldError.
func (s *SettlementService) CreateMatch(ctx context.Context, a, b *models.QueueEntry) (*models.Match, error) {
	m := &models.Match{
		ID:       uuid.New(),
		A:        models.NewMatchSide(a, s.Rules.SafetyBeltFee),
		B:        models.NewMatchSide(b, s.Rules.SafetyBeltFee),
		Status:   models.MatchStatusMatching,
		Duration: a.Duration,
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Matches.Create(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	sides := []*models.MatchSide{&m.A, &m.B}
	sort.Slice(sides, func(i, j int) bool { return sides[i].UserID.String() < sides[j].UserID.String() })
	for _, side := range sides {
		if err := s.Escrow.PlaceHold(ctx, tx, side.UserID, m.ID, side.Hold); err != nil {
			if errors.Is(err, apperr.ErrInsufficientFunds) || errors.Is(err, apperr.ErrNotFound) {
				return nil, &HoldError{UserID: side.UserID, Err: err}
			}
			return nil, fmt.Errorf("place hold: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"match_id": m.ID,
		"user_a":   m.A.UserID,
		"user_b":   m.B.UserID,
		"hold_a":   m.A.Hold,
		"hold_b":   m.B.Hold,
	}).Info("match created")
	return m, nil
}

func (s *SettlementService) Get(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return s.Matches.GetByID(ctx, id)
}

func (s *SettlementService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Matches.ListByUser(ctx, userID, limit)
}

// Ready moves a match from matching to ready.
func (s *SettlementService) Ready(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return s.transition(ctx, id, func(_ pgx.Tx, m *models.Match) error {
		if m.Status != models.MatchStatusMatching {
			return fmt.Errorf("%w: ready from %s", apperr.ErrInvalidStateTransition, m.Status)
		}
		m.Status = models.MatchStatusReady
		return nil
	})
}

// Start moves a match from ready to in_progress.
func (s *SettlementService) Start(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return s.transition(ctx, id, func(_ pgx.Tx, m *models.Match) error {
		if m.Status != models.MatchStatusReady {
			return fmt.Errorf("%w: start from %s", apperr.ErrInvalidStateTransition, m.Status)
		}
		m.Status = models.MatchStatusInProgress
		return nil
	})
}

// Settle finishes an in_progress match and writes its ledger events
// atomically. A second call on a finished match fails with ErrAlreadySettled
// and writes nothing.
func (s *SettlementService) Settle(ctx context.Context, id uuid.UUID, scoreA, scoreB int) (*models.Match, error) {
	if scoreA < 0 || scoreB < 0 {
		return nil, fmt.Errorf("%w: scores must not be negative", apperr.ErrInvalidConfig)
	}
	m, err := s.transition(ctx, id, func(tx pgx.Tx, m *models.Match) error {
		switch m.Status {
		case models.MatchStatusInProgress:
		case models.MatchStatusFinished:
			return apperr.ErrAlreadySettled
		default:
			return fmt.Errorf("%w: settle from %s", apperr.ErrInvalidStateTransition, m.Status)
		}
		result, err := s.Escrow.SettleMatch(ctx, tx, m, scoreA, scoreB)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		m.Result = result
		m.Status = models.MatchStatusFinished
		m.FinishedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"match_id":    m.ID,
		"winner":      m.Result.Winner,
		"deduction_a": m.Result.DeductionA,
		"deduction_b": m.Result.DeductionB,
	}).Info("match settled")
	return m, nil
}

// Cancel releases both holds and moves the match to cancelled. Finished and
// already cancelled matches cannot be cancelled.
func (s *SettlementService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Match, error) {
	m, err := s.transition(ctx, id, func(tx pgx.Tx, m *models.Match) error {
		switch m.Status {
		case models.MatchStatusMatching, models.MatchStatusReady, models.MatchStatusInProgress:
		default:
			return fmt.Errorf("%w: cancel from %s", apperr.ErrInvalidStateTransition, m.Status)
		}
		if err := s.Escrow.CancelMatch(ctx, tx, m); err != nil {
			return err
		}
		now := s.now().UTC()
		m.Status = models.MatchStatusCancelled
		m.CancelReason = reason
		m.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"match_id": m.ID, "reason": reason}).Info("match cancelled")
	return m, nil
}

// transition locks the match, applies fn and persists the result in one transaction.
func (s *SettlementService) transition(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx, m *models.Match) error) (*models.Match, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	m, err := s.Matches.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, m); err != nil {
		return nil, err
	}
	if err := s.Matches.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("update match %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
