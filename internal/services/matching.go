package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/models"
)

// Incompatibility names one unmet pairing condition.
type Incompatibility string

const (
	IncompatibleSameUser Incompatibility = "same_user"
	IncompatibleStance   Incompatibility = "stance"
	IncompatibleDuration Incompatibility = "duration"
	IncompatiblePing     Incompatibility = "ping"
	IncompatibleFee      Incompatibility = "fee"
)

// Diagnose lists every condition that keeps a and b from being paired.
// An empty result means the two entries are compatible.
func Diagnose(a, b *models.QueueEntry, rules config.Duel) []Incompatibility {
	var out []Incompatibility
	if a.UserID == b.UserID {
		out = append(out, IncompatibleSameUser)
	}
	if a.StanceType == b.StanceType {
		out = append(out, IncompatibleStance)
	}
	if a.Duration != b.Duration {
		out = append(out, IncompatibleDuration)
	}
	if absInt(a.PingMs-b.PingMs) > rules.PingToleranceMs {
		out = append(out, IncompatiblePing)
	}
	if absInt64(a.EntryFee-b.EntryFee) > rules.FeeTolerance {
		out = append(out, IncompatibleFee)
	}
	return out
}

// IsCompatible reports whether a and b may duel. Stances must differ, the
// durations must be equal, and the ping and fee gaps must be within tolerance
// (inclusive). The relation is symmetric.
func IsCompatible(a, b *models.QueueEntry, rules config.Duel) bool {
	return len(Diagnose(a, b, rules)) == 0
}

// FindMatch returns the first compatible pair in join order: each entry is
// tried against every later-joined entry before moving on. The input slice is
// not modified.
func FindMatch(entries []*models.QueueEntry, rules config.Duel) (*models.QueueEntry, *models.QueueEntry, bool) {
	ordered := inJoinOrder(entries)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if IsCompatible(ordered[i], ordered[j], rules) {
				return ordered[i], ordered[j], true
			}
		}
	}
	return nil, nil, false
}

// ExpireStale drops entries whose expiry is at or before now.
func ExpireStale(entries []*models.QueueEntry, now time.Time) []*models.QueueEntry {
	live := make([]*models.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	return live
}

// JoinRequest is the caller-supplied part of a queue entry.
type JoinRequest struct {
	UserID       uuid.UUID
	StanceType   string
	PersonaLabel string
	PingMs       int
	EntryFee     int64
	SafetyBelt   bool
	Duration     int
}

// ValidateJoin checks a join request against the arena rules. Values are
// rejected, never clamped.
func ValidateJoin(req JoinRequest, rules config.Duel) error {
	if req.StanceType == "" {
		return fmt.Errorf("%w: stance_type is required", apperr.ErrInvalidConfig)
	}
	if req.PingMs < 0 {
		return fmt.Errorf("%w: ping_ms must not be negative", apperr.ErrInvalidConfig)
	}
	if req.EntryFee < rules.MinEntryFee || req.EntryFee > rules.MaxEntryFee {
		return fmt.Errorf("%w: entry_fee %d outside [%d, %d]", apperr.ErrInvalidConfig, req.EntryFee, rules.MinEntryFee, rules.MaxEntryFee)
	}
	if req.SafetyBelt && req.EntryFee < rules.SafetyBeltThreshold {
		return fmt.Errorf("%w: safety_belt requires entry_fee >= %d", apperr.ErrInvalidConfig, rules.SafetyBeltThreshold)
	}
	if !rules.DurationAllowed(req.Duration) {
		return fmt.Errorf("%w: duration %ds not offered", apperr.ErrInvalidConfig, req.Duration)
	}
	return nil
}

// inJoinOrder sorts a copy by join time, breaking ties by user id so the scan
// order is stable across calls.
func inJoinOrder(entries []*models.QueueEntry) []*models.QueueEntry {
	ordered := make([]*models.QueueEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].UserID.String() < ordered[j].UserID.String()
	})
	return ordered
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
