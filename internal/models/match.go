package models

import (
	"time"

	"github.com/google/uuid"
)

// Match status enums.
const (
	MatchStatusMatching   = "matching"
	MatchStatusReady      = "ready"
	MatchStatusInProgress = "in_progress"
	MatchStatusFinished   = "finished"
	MatchStatusCancelled  = "cancelled"
)

// Winner values stored in MatchResult.Winner.
const (
	WinnerA    = "A"
	WinnerB    = "B"
	WinnerDraw = "draw"
)

// MatchSide is one player's snapshot taken from their queue entry at match time.
type MatchSide struct {
	UserID       uuid.UUID `json:"user_id"`
	StanceType   string    `json:"stance_type"`
	PersonaLabel string    `json:"persona_label"`
	PingMs       int       `json:"ping_ms"`
	EntryFee     int64     `json:"entry_fee"`
	SafetyBelt   bool      `json:"safety_belt"`
	SafetyFee    int64     `json:"safety_fee"`
	Hold         int64     `json:"hold"`
}

type MatchResult struct {
	Winner        string `json:"winner"`
	ScoreA        int    `json:"score_a"`
	ScoreB        int    `json:"score_b"`
	VictoryReward int64  `json:"victory_reward"`
	DeductionA    int64  `json:"deduction_a"`
	DeductionB    int64  `json:"deduction_b"`
}

type Match struct {
	ID           uuid.UUID    `json:"id"`
	A            MatchSide    `json:"a"`
	B            MatchSide    `json:"b"`
	Status       string       `json:"status"`
	Duration     int          `json:"duration"`
	Result       *MatchResult `json:"result,omitempty"`
	CancelReason string       `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
}

// Side returns the side played by userID, or nil if the user is not in the match.
func (m *Match) Side(userID uuid.UUID) *MatchSide {
	switch userID {
	case m.A.UserID:
		return &m.A
	case m.B.UserID:
		return &m.B
	}
	return nil
}

// NewMatchSide snapshots a queue entry. safetyFee is charged only when the entry is belted.
func NewMatchSide(e *QueueEntry, safetyFee int64) MatchSide {
	s := MatchSide{
		UserID:       e.UserID,
		StanceType:   e.StanceType,
		PersonaLabel: e.PersonaLabel,
		PingMs:       e.PingMs,
		EntryFee:     e.EntryFee,
		SafetyBelt:   e.SafetyBelt,
	}
	if e.SafetyBelt {
		s.SafetyFee = safetyFee
	}
	s.Hold = s.EntryFee + s.SafetyFee
	return s
}
