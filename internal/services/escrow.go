package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/models"
)

// SafetyBeltPolicy adjusts a losing side's stake deduction. The result is
// clamped to [0, deduction].
type SafetyBeltPolicy func(deduction int64, hasBelt bool) int64

// NoSafetyBelt charges the full stake whether or not the loser is belted.
func NoSafetyBelt(deduction int64, _ bool) int64 { return deduction }

// CappedSafetyBelt limits a belted loser's deduction to limit.
func CappedSafetyBelt(limit int64) SafetyBeltPolicy {
	return func(deduction int64, hasBelt bool) int64 {
		if hasBelt && deduction > limit {
			return limit
		}
		return deduction
	}
}

// SafetyBeltFromConfig returns CappedSafetyBelt when SAFETY_BELT_CAP is set.
func SafetyBeltFromConfig(rules config.Duel) SafetyBeltPolicy {
	if rules.SafetyBeltCap > 0 {
		return CappedSafetyBelt(rules.SafetyBeltCap)
	}
	return NoSafetyBelt
}

// EscrowService moves credits between the accounts cache and the credit_ledger
// event log. Every method runs inside the caller's transaction.
type EscrowService struct {
	AccountRepo EscrowAccountRepo
	LedgerRepo  EscrowLedgerRepo
	SafetyBelt  SafetyBeltPolicy
}

// EscrowAccountRepo is the minimal account repository interface for escrow.
type EscrowAccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	Hold(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	Release(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error)
}

// EscrowLedgerRepo is the minimal credit ledger interface for escrow.
type EscrowLedgerRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, ev *models.CreditLedgerEvent) error
}

// NewEscrowService returns a new EscrowService. A nil policy charges full stakes.
func NewEscrowService(accountRepo EscrowAccountRepo, ledgerRepo EscrowLedgerRepo, policy SafetyBeltPolicy) *EscrowService {
	if policy == nil {
		policy = NoSafetyBelt
	}
	return &EscrowService{AccountRepo: accountRepo, LedgerRepo: ledgerRepo, SafetyBelt: policy}
}

// Grant credits amount to the user and records a GRANT.
func (s *EscrowService) Grant(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: grant amount must be positive", apperr.ErrInvalidConfig)
	}
	if _, err := s.AccountRepo.GetByIDForUpdate(ctx, tx, userID); err != nil {
		return err
	}
	return s.apply(ctx, tx, newEvent(userID, models.LedgerGrant, amount, nil, reason))
}

// PlaceHold locks the account row, checks the available balance and freezes
// amount against the match.
func (s *EscrowService) PlaceHold(ctx context.Context, tx pgx.Tx, userID, matchID uuid.UUID, amount int64) error {
	acc, err := s.AccountRepo.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if acc.Available() < amount {
		return apperr.ErrInsufficientFunds
	}
	return s.apply(ctx, tx, newEvent(userID, models.LedgerHold, amount, &matchID, models.ReasonMatchHold))
}

// SettleMatch releases both holds and applies the outcome of the scores.
// Both accounts are locked in deterministic order to avoid deadlock.
func (s *EscrowService) SettleMatch(ctx context.Context, tx pgx.Tx, m *models.Match, scoreA, scoreB int) (*models.MatchResult, error) {
	if err := s.lockSides(ctx, tx, m); err != nil {
		return nil, err
	}
	result, events := SettlementPlan(m, scoreA, scoreB, s.SafetyBelt)
	for _, ev := range events {
		if err := s.apply(ctx, tx, ev); err != nil {
			return nil, fmt.Errorf("settle match %s: %s %d for %s: %w", m.ID, ev.Type, ev.Amount, ev.UserID, err)
		}
	}
	return result, nil
}

// CancelMatch returns both holds in full. The safety premium is not charged
// for a match that was never played out.
func (s *EscrowService) CancelMatch(ctx context.Context, tx pgx.Tx, m *models.Match) error {
	if err := s.lockSides(ctx, tx, m); err != nil {
		return err
	}
	for _, ev := range CancellationPlan(m) {
		if err := s.apply(ctx, tx, ev); err != nil {
			return fmt.Errorf("cancel match %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *EscrowService) lockSides(ctx context.Context, tx pgx.Tx, m *models.Match) error {
	ids := []uuid.UUID{m.A.UserID, m.B.UserID}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if _, err := s.AccountRepo.GetByIDForUpdate(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// apply updates the cached totals for one event and appends it to the log.
// Zero-amount events are skipped.
func (s *EscrowService) apply(ctx context.Context, tx pgx.Tx, ev *models.CreditLedgerEvent) error {
	if ev.Amount == 0 {
		return nil
	}
	var err error
	switch ev.Type {
	case models.LedgerHold:
		err = s.AccountRepo.Hold(ctx, tx, ev.UserID, ev.Amount)
	case models.LedgerRelease:
		err = s.AccountRepo.Release(ctx, tx, ev.UserID, ev.Amount)
	case models.LedgerDeduct:
		_, err = s.AccountRepo.DeductCredits(ctx, tx, ev.UserID, ev.Amount)
	case models.LedgerGrant, models.LedgerReward:
		_, err = s.AccountRepo.AddCredits(ctx, tx, ev.UserID, ev.Amount)
	default:
		err = fmt.Errorf("unknown ledger event type %q", ev.Type)
	}
	if err != nil {
		return err
	}
	return s.LedgerRepo.CreateTx(ctx, tx, ev)
}

// SettlementPlan computes the result and the ledger events for a finished
// match without touching any store.
//
// Both holds are always released. On a draw nothing else moves. Otherwise the
// loser is charged their entry fee as adjusted by policy and the winner is
// credited the same amount, so the pair's combined balance is unchanged by
// the stake transfer. With a capping policy the winner's REWARD is therefore
// the capped stake, not the loser's full entry fee; VictoryReward still
// reports feeA + feeB. Safety premiums are charged to every belted side
// regardless of outcome. Deductions report everything removed from a side.
func SettlementPlan(m *models.Match, scoreA, scoreB int, policy SafetyBeltPolicy) (*models.MatchResult, []*models.CreditLedgerEvent) {
	if policy == nil {
		policy = NoSafetyBelt
	}
	matchID := m.ID
	result := &models.MatchResult{ScoreA: scoreA, ScoreB: scoreB}
	events := []*models.CreditLedgerEvent{
		newEvent(m.A.UserID, models.LedgerRelease, m.A.Hold, &matchID, models.ReasonMatchRelease),
		newEvent(m.B.UserID, models.LedgerRelease, m.B.Hold, &matchID, models.ReasonMatchRelease),
	}

	if scoreA == scoreB {
		result.Winner = models.WinnerDraw
	} else {
		winner, loser := &m.A, &m.B
		lossDeduction := &result.DeductionB
		result.Winner = models.WinnerA
		if scoreB > scoreA {
			winner, loser = &m.B, &m.A
			lossDeduction = &result.DeductionA
			result.Winner = models.WinnerB
		}
		stake := policy(loser.EntryFee, loser.SafetyBelt)
		if stake < 0 {
			stake = 0
		}
		if stake > loser.EntryFee {
			stake = loser.EntryFee
		}
		*lossDeduction = stake
		result.VictoryReward = m.A.EntryFee + m.B.EntryFee
		events = append(events,
			newEvent(loser.UserID, models.LedgerDeduct, stake, &matchID, models.ReasonStakeLost),
			newEvent(winner.UserID, models.LedgerReward, stake, &matchID, models.ReasonStakeWon),
		)
	}

	if m.A.SafetyFee > 0 {
		result.DeductionA += m.A.SafetyFee
		events = append(events, newEvent(m.A.UserID, models.LedgerDeduct, m.A.SafetyFee, &matchID, models.ReasonSafetyPremium))
	}
	if m.B.SafetyFee > 0 {
		result.DeductionB += m.B.SafetyFee
		events = append(events, newEvent(m.B.UserID, models.LedgerDeduct, m.B.SafetyFee, &matchID, models.ReasonSafetyPremium))
	}
	return result, events
}

// CancellationPlan releases both holds in full.
func CancellationPlan(m *models.Match) []*models.CreditLedgerEvent {
	matchID := m.ID
	return []*models.CreditLedgerEvent{
		newEvent(m.A.UserID, models.LedgerRelease, m.A.Hold, &matchID, models.ReasonMatchCancel),
		newEvent(m.B.UserID, models.LedgerRelease, m.B.Hold, &matchID, models.ReasonMatchCancel),
	}
}

func newEvent(userID uuid.UUID, typ string, amount int64, matchID *uuid.UUID, reason string) *models.CreditLedgerEvent {
	return &models.CreditLedgerEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		MatchID:   matchID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}
