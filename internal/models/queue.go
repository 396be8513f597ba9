package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is one user waiting in the duel pool. There is at most one live
// entry per user; Version changes on every upsert and guards claims.
type QueueEntry struct {
	UserID       uuid.UUID `json:"user_id"`
	StanceType   string    `json:"stance_type"`
	PersonaLabel string    `json:"persona_label"`
	PingMs       int       `json:"ping_ms"`
	EntryFee     int64     `json:"entry_fee"`
	SafetyBelt   bool      `json:"safety_belt"`
	Duration     int       `json:"duration"`
	JoinedAt     time.Time `json:"joined_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Version      int64     `json:"version"`
}

// Expired reports whether the entry has lapsed at now.
func (e *QueueEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
