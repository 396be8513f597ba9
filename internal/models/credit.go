package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger event types.
const (
	LedgerGrant   = "GRANT"
	LedgerHold    = "HOLD"
	LedgerRelease = "RELEASE"
	LedgerDeduct  = "DEDUCT"
	LedgerReward  = "REWARD"
)

// Ledger event reasons.
const (
	ReasonSignupBonus   = "signup_bonus"
	ReasonAdminGrant    = "admin_grant"
	ReasonMatchHold     = "match_hold"
	ReasonMatchRelease  = "match_release"
	ReasonMatchCancel   = "match_cancel"
	ReasonStakeLost     = "stake_lost"
	ReasonStakeWon      = "stake_won"
	ReasonSafetyPremium = "safety_premium"
)

// CreditLedgerEvent is an append-only balance change. Amount is never negative;
// Type decides its direction.
type CreditLedgerEvent struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	Amount    int64      `json:"amount"`
	MatchID   *uuid.UUID `json:"match_id,omitempty"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}
