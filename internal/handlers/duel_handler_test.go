package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/ledger"
	"github.com/duelarena/backend/internal/middleware"
	"github.com/duelarena/backend/internal/models"
	"github.com/duelarena/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockQueue struct {
	mu      sync.Mutex
	joined  []services.JoinRequest
	joinErr error
	left    []uuid.UUID
}

func (m *mockQueue) Join(_ context.Context, req services.JoinRequest) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	m.joined = append(m.joined, req)
	return &models.QueueEntry{UserID: req.UserID, StanceType: req.StanceType, EntryFee: req.EntryFee, Version: 1}, nil
}

func (m *mockQueue) Leave(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.left {
		if id == userID {
			return apperr.ErrNotFound
		}
	}
	m.left = append(m.left, userID)
	return nil
}

func (m *mockQueue) List(context.Context) ([]*models.QueueEntry, error) { return nil, nil }

func (m *mockQueue) Diagnose(_ context.Context, a, b uuid.UUID) ([]services.Incompatibility, error) {
	if a == b {
		return []services.Incompatibility{services.IncompatibleSameUser}, nil
	}
	return nil, nil
}

type mockMatches struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*models.Match
	settled map[uuid.UUID]bool
}

func newMockMatches(ms ...*models.Match) *mockMatches {
	m := &mockMatches{matches: map[uuid.UUID]*models.Match{}, settled: map[uuid.UUID]bool{}}
	for _, match := range ms {
		m.matches[match.ID] = match
	}
	return m
}

func (m *mockMatches) Get(_ context.Context, id uuid.UUID) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (m *mockMatches) ListForUser(context.Context, uuid.UUID, int) ([]*models.Match, error) {
	return nil, nil
}

func (m *mockMatches) setStatus(id uuid.UUID, from, to string) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := m.matches[id]
	if match.Status != from {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidStateTransition, match.Status)
	}
	match.Status = to
	cp := *match
	return &cp, nil
}

func (m *mockMatches) Ready(_ context.Context, id uuid.UUID) (*models.Match, error) {
	return m.setStatus(id, models.MatchStatusMatching, models.MatchStatusReady)
}

func (m *mockMatches) Start(_ context.Context, id uuid.UUID) (*models.Match, error) {
	return m.setStatus(id, models.MatchStatusReady, models.MatchStatusInProgress)
}

func (m *mockMatches) Settle(_ context.Context, id uuid.UUID, a, b int) (*models.Match, error) {
	m.mu.Lock()
	done := m.settled[id]
	m.settled[id] = true
	m.mu.Unlock()
	if done {
		return nil, apperr.ErrAlreadySettled
	}
	match, err := m.setStatus(id, models.MatchStatusInProgress, models.MatchStatusFinished)
	if err != nil {
		return nil, err
	}
	match.Result = &models.MatchResult{Winner: models.WinnerA, ScoreA: a, ScoreB: b}
	return match, nil
}

func (m *mockMatches) Cancel(_ context.Context, id uuid.UUID, reason string) (*models.Match, error) {
	match, err := m.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	match.Status = models.MatchStatusCancelled
	match.CancelReason = reason
	return match, nil
}

type stubLedger struct{}

func (stubLedger) Balance(_ context.Context, userID uuid.UUID) (ledger.Balance, error) {
	return ledger.Balance{Total: 100, Held: 10, Available: 90}, nil
}
func (stubLedger) Events(context.Context, uuid.UUID, int) ([]*models.CreditLedgerEvent, error) {
	return nil, nil
}
func (stubLedger) Reconcile(context.Context, uuid.UUID) (*ledger.Reconciliation, error) {
	return &ledger.Reconciliation{InSync: true}, nil
}
func (stubLedger) Grant(context.Context, uuid.UUID, int64, string) error { return nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newDuelHandler(t *testing.T, q QueueAPI, m MatchAPI) *DuelHandler {
	t.Helper()
	v, err := services.NewValidator()
	require.NoError(t, err)
	return &DuelHandler{Queue: q, Matches: m, Validator: v, Logger: quietLogger()}
}

// serve routes through a mux so {id} path values resolve.
func serve(h *DuelHandler, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/duel/queue", h.JoinQueue)
	mux.HandleFunc("DELETE /v1/duel/queue", h.LeaveQueue)
	mux.HandleFunc("GET /v1/duel/queue/diagnose", h.DiagnoseQueue)
	mux.HandleFunc("GET /v1/duel/matches/{id}", h.GetMatch)
	mux.HandleFunc("POST /v1/duel/matches/{id}/ready", h.ReadyMatch)
	mux.HandleFunc("POST /v1/duel/matches/{id}/start", h.StartMatch)
	mux.HandleFunc("POST /v1/duel/matches/{id}/settle", h.SettleMatch)
	mux.HandleFunc("POST /v1/duel/matches/{id}/cancel", h.CancelMatch)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func twoSidedMatch(status string) *models.Match {
	return &models.Match{
		ID:     uuid.New(),
		A:      models.MatchSide{UserID: uuid.New(), EntryFee: 10, Hold: 10},
		B:      models.MatchSide{UserID: uuid.New(), EntryFee: 12, Hold: 12},
		Status: status,
	}
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

func TestJoinQueue(t *testing.T) {
	q := &mockQueue{}
	h := newDuelHandler(t, q, newMockMatches())
	user := uuid.New()

	rec := serve(h, user, http.MethodPost, "/v1/duel/queue",
		`{"stance_type":"nationalist","ping_ms":80,"entry_fee":10,"duration":30}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, q.joined, 1)
	assert.Equal(t, user, q.joined[0].UserID, "user comes from the token, never the body")
	assert.Equal(t, int64(10), q.joined[0].EntryFee)
}

func TestJoinQueue_Errors(t *testing.T) {
	user := uuid.New()

	h := newDuelHandler(t, &mockQueue{}, newMockMatches())
	rec := serve(h, user, http.MethodPost, "/v1/duel/queue", `{"stance_type":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h, uuid.Nil, http.MethodPost, "/v1/duel/queue",
		`{"stance_type":"x","ping_ms":1,"entry_fee":10,"duration":30}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cases := map[error]int{
		fmt.Errorf("%w: entry fee 25 outside [1, 20]", apperr.ErrInvalidConfig): http.StatusBadRequest,
		fmt.Errorf("join: %w", apperr.ErrInsufficientFunds):                     http.StatusPaymentRequired,
		fmt.Errorf("join: %w", apperr.ErrNotFound):                              http.StatusNotFound,
		fmt.Errorf("connection refused"):                                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		h := newDuelHandler(t, &mockQueue{joinErr: err}, newMockMatches())
		rec := serve(h, user, http.MethodPost, "/v1/duel/queue",
			`{"stance_type":"x","ping_ms":1,"entry_fee":10,"duration":30}`)
		assert.Equal(t, want, rec.Code, err.Error())
	}
}

func TestLeaveQueue(t *testing.T) {
	h := newDuelHandler(t, &mockQueue{}, newMockMatches())
	user := uuid.New()

	assert.Equal(t, http.StatusNoContent, serve(h, user, http.MethodDelete, "/v1/duel/queue", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, user, http.MethodDelete, "/v1/duel/queue", "").Code)
}

func TestDiagnoseQueue(t *testing.T) {
	h := newDuelHandler(t, &mockQueue{}, newMockMatches())
	a := uuid.New()

	rec := serve(h, a, http.MethodGet, fmt.Sprintf("/v1/duel/queue/diagnose?a=%s&b=%s", a, a), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Compatible bool     `json:"compatible"`
		Reasons    []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Compatible)
	assert.Equal(t, []string{"same_user"}, out.Reasons)

	rec = serve(h, a, http.MethodGet, "/v1/duel/queue/diagnose?a=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// Matches
// ---------------------------------------------------------------------------

func TestMatchLifecycle(t *testing.T) {
	m := twoSidedMatch(models.MatchStatusMatching)
	h := newDuelHandler(t, &mockQueue{}, newMockMatches(m))
	base := "/v1/duel/matches/" + m.ID.String()

	assert.Equal(t, http.StatusOK, serve(h, m.A.UserID, http.MethodPost, base+"/ready", "").Code)
	assert.Equal(t, http.StatusConflict, serve(h, m.A.UserID, http.MethodPost, base+"/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, m.B.UserID, http.MethodPost, base+"/start", "").Code)

	rec := serve(h, m.A.UserID, http.MethodPost, base+"/settle", `{"score_a":7,"score_b":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var settled models.Match
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	assert.Equal(t, models.MatchStatusFinished, settled.Status)
	require.NotNil(t, settled.Result)
	assert.Equal(t, 7, settled.Result.ScoreA)

	rec = serve(h, m.B.UserID, http.MethodPost, base+"/settle", `{"score_a":7,"score_b":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already settled")
}

func TestMatch_Guards(t *testing.T) {
	m := twoSidedMatch(models.MatchStatusInProgress)
	h := newDuelHandler(t, &mockQueue{}, newMockMatches(m))
	base := "/v1/duel/matches/" + m.ID.String()

	assert.Equal(t, http.StatusForbidden, serve(h, uuid.New(), http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, m.A.UserID, http.MethodGet, "/v1/duel/matches/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, m.A.UserID, http.MethodGet, "/v1/duel/matches/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		serve(h, m.A.UserID, http.MethodPost, base+"/settle", `{"score_a":-1,"score_b":0}`).Code)

	rec := serve(h, m.B.UserID, http.MethodPost, base+"/cancel", `{"reason":"disconnect"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancel_reason":"disconnect"`)
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

func TestLedgerBalance(t *testing.T) {
	h := &LedgerHandler{Ledger: stubLedger{}, Logger: quietLogger()}
	user := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/balance", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Balance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":100,"held":10,"available":90}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Events(rec, req)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Balance(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
