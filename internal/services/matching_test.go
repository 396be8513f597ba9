package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(stance string, ping int, fee int64, duration int, joinedOffset time.Duration) *models.QueueEntry {
	joined := t0.Add(joinedOffset)
	return &models.QueueEntry{
		UserID:     uuid.New(),
		StanceType: stance,
		PingMs:     ping,
		EntryFee:   fee,
		Duration:   duration,
		JoinedAt:   joined,
		ExpiresAt:  joined.Add(90 * time.Second),
		Version:    1,
	}
}

// ---------------------------------------------------------------------------
// IsCompatible
// ---------------------------------------------------------------------------

func TestIsCompatible_Symmetric(t *testing.T) {
	rules := config.DefaultDuel()
	pool := []*models.QueueEntry{
		entry("nationalist", 80, 10, 30, 0),
		entry("globalist", 120, 12, 30, time.Second),
		entry("globalist", 200, 12, 30, 2*time.Second),
		entry("centrist", 100, 18, 45, 3*time.Second),
		entry("nationalist", 140, 15, 30, 4*time.Second),
		entry("centrist", 130, 5, 30, 5*time.Second),
	}
	for _, a := range pool {
		for _, b := range pool {
			assert.Equal(t, IsCompatible(a, b, rules), IsCompatible(b, a, rules),
				"compatibility of %s/%s must be symmetric", a.StanceType, b.StanceType)
		}
	}
}

func TestIsCompatible_SameStanceNeverMatches(t *testing.T) {
	rules := config.DefaultDuel()
	a := entry("globalist", 100, 10, 30, 0)
	b := entry("globalist", 100, 10, 30, 0)
	assert.False(t, IsCompatible(a, b, rules))
	assert.Equal(t, []Incompatibility{IncompatibleStance}, Diagnose(a, b, rules))
}

func TestIsCompatible_Boundaries(t *testing.T) {
	rules := config.DefaultDuel()
	cases := []struct {
		name         string
		pingA, pingB int
		feeA, feeB   int64
		want         bool
	}{
		{"ping diff 60 inclusive", 100, 160, 10, 10, true},
		{"ping diff 61", 100, 161, 10, 10, false},
		{"fee diff 5 inclusive", 100, 100, 10, 15, true},
		{"fee diff 6", 100, 100, 10, 16, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := entry("nationalist", tc.pingA, tc.feeA, 30, 0)
			b := entry("globalist", tc.pingB, tc.feeB, 30, 0)
			assert.Equal(t, tc.want, IsCompatible(a, b, rules))
		})
	}
}

func TestIsCompatible_DurationMustMatch(t *testing.T) {
	rules := config.DefaultDuel()
	a := entry("nationalist", 100, 10, 30, 0)
	b := entry("globalist", 100, 10, 45, 0)
	assert.False(t, IsCompatible(a, b, rules))
}

func TestIsCompatible_NeverWithSelf(t *testing.T) {
	rules := config.DefaultDuel()
	a := entry("nationalist", 100, 10, 30, 0)
	b := *a
	b.StanceType = "globalist"
	assert.False(t, IsCompatible(a, &b, rules))
	assert.Contains(t, Diagnose(a, &b, rules), IncompatibleSameUser)
}

func TestDiagnose_ReportsEveryCondition(t *testing.T) {
	rules := config.DefaultDuel()
	a := entry("globalist", 10, 1, 30, 0)
	b := entry("globalist", 500, 20, 45, 0)

	want := []Incompatibility{IncompatibleStance, IncompatibleDuration, IncompatiblePing, IncompatibleFee}
	if diff := cmp.Diff(want, Diagnose(a, b, rules)); diff != "" {
		t.Errorf("Diagnose mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// FindMatch / ExpireStale
// ---------------------------------------------------------------------------

func TestFindMatch_ScenarioXY(t *testing.T) {
	rules := config.DefaultDuel()
	x := entry("nationalist", 80, 10, 30, 0)
	y := entry("globalist", 120, 12, 30, time.Second)

	a, b, ok := FindMatch([]*models.QueueEntry{y, x}, rules)
	require.True(t, ok)
	assert.Equal(t, x.UserID, a.UserID, "earliest joiner is side A")
	assert.Equal(t, y.UserID, b.UserID)
}

func TestFindMatch_PrefersEarliestJoiner(t *testing.T) {
	rules := config.DefaultDuel()
	first := entry("nationalist", 100, 10, 30, 0)
	second := entry("nationalist", 100, 10, 30, time.Second)
	third := entry("globalist", 100, 10, 30, 2*time.Second)
	fourth := entry("globalist", 100, 10, 30, 3*time.Second)

	pool := []*models.QueueEntry{fourth, third, second, first}
	a, b, ok := FindMatch(pool, rules)
	require.True(t, ok)
	assert.Equal(t, first.UserID, a.UserID)
	assert.Equal(t, third.UserID, b.UserID)

	// input order untouched
	assert.Equal(t, fourth.UserID, pool[0].UserID)
}

func TestFindMatch_NoPair(t *testing.T) {
	rules := config.DefaultDuel()
	pool := []*models.QueueEntry{
		entry("globalist", 100, 10, 30, 0),
		entry("globalist", 100, 10, 30, time.Second),
		entry("nationalist", 300, 10, 30, 2*time.Second),
	}
	_, _, ok := FindMatch(pool, rules)
	assert.False(t, ok)

	_, _, ok = FindMatch(nil, rules)
	assert.False(t, ok)
}

func TestFindMatch_RemovedPairNeverReturnedAgain(t *testing.T) {
	rules := config.DefaultDuel()
	pool := []*models.QueueEntry{
		entry("nationalist", 100, 10, 30, 0),
		entry("globalist", 110, 11, 30, time.Second),
		entry("centrist", 120, 12, 30, 2*time.Second),
		entry("globalist", 130, 13, 30, 3*time.Second),
	}

	seen := map[uuid.UUID]bool{}
	for {
		a, b, ok := FindMatch(pool, rules)
		if !ok {
			break
		}
		assert.False(t, seen[a.UserID], "user matched twice")
		assert.False(t, seen[b.UserID], "user matched twice")
		seen[a.UserID], seen[b.UserID] = true, true

		var rest []*models.QueueEntry
		for _, e := range pool {
			if e.UserID != a.UserID && e.UserID != b.UserID {
				rest = append(rest, e)
			}
		}
		pool = rest
	}
	assert.Len(t, seen, 4)
}

func TestExpireStale(t *testing.T) {
	live := entry("nationalist", 100, 10, 30, 0)
	boundary := entry("globalist", 100, 10, 30, 0)
	boundary.ExpiresAt = t0.Add(10 * time.Second)
	gone := entry("globalist", 100, 10, 30, 0)
	gone.ExpiresAt = t0.Add(5 * time.Second)

	out := ExpireStale([]*models.QueueEntry{live, boundary, gone}, t0.Add(10*time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, live.UserID, out[0].UserID)
}

// ---------------------------------------------------------------------------
// ValidateJoin
// ---------------------------------------------------------------------------

func TestValidateJoin(t *testing.T) {
	rules := config.DefaultDuel()
	ok := JoinRequest{UserID: uuid.New(), StanceType: "globalist", PingMs: 40, EntryFee: 10, Duration: 30}

	require.NoError(t, ValidateJoin(ok, rules))

	belted := ok
	belted.EntryFee, belted.SafetyBelt = 18, true
	require.NoError(t, ValidateJoin(belted, rules))

	cases := map[string]func(r *JoinRequest){
		"fee below range":       func(r *JoinRequest) { r.EntryFee = 0 },
		"fee above range":       func(r *JoinRequest) { r.EntryFee = 21 },
		"belt below threshold":  func(r *JoinRequest) { r.EntryFee, r.SafetyBelt = 17, true },
		"duration not offered":  func(r *JoinRequest) { r.Duration = 60 },
		"missing stance":        func(r *JoinRequest) { r.StanceType = "" },
		"negative ping":         func(r *JoinRequest) { r.PingMs = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := ok
			mutate(&req)
			err := ValidateJoin(req, rules)
			assert.True(t, errors.Is(err, apperr.ErrInvalidConfig), "got %v", err)
		})
	}
}
