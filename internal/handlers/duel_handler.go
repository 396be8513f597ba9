package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/models"
	"github.com/duelarena/backend/internal/services"
)

// QueueAPI is the queue surface the handler needs.
type QueueAPI interface {
	Join(ctx context.Context, req services.JoinRequest) (*models.QueueEntry, error)
	Leave(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context) ([]*models.QueueEntry, error)
	Diagnose(ctx context.Context, a, b uuid.UUID) ([]services.Incompatibility, error)
}

// MatchAPI is the match lifecycle surface the handler needs.
type MatchAPI interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Match, error)
	Ready(ctx context.Context, id uuid.UUID) (*models.Match, error)
	Start(ctx context.Context, id uuid.UUID) (*models.Match, error)
	Settle(ctx context.Context, id uuid.UUID, scoreA, scoreB int) (*models.Match, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Match, error)
}

// DuelHandler serves /v1/duel endpoints.
type DuelHandler struct {
	Queue     QueueAPI
	Matches   MatchAPI
	Validator *services.Validator
	Logger    logrus.FieldLogger
}

// --- queue ---

type joinQueueRequest struct {
	StanceType   string `json:"stance_type"`
	PersonaLabel string `json:"persona_label"`
	PingMs       int    `json:"ping_ms"`
	EntryFee     int64  `json:"entry_fee"`
	SafetyBelt   bool   `json:"safety_belt"`
	Duration     int    `json:"duration"`
}

// JoinQueue handles POST /v1/duel/queue.
func (h *DuelHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req joinQueueRequest
	if err := decodeValidated(r, h.Validator, services.SchemaJoinQueue, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	entry, err := h.Queue.Join(r.Context(), services.JoinRequest{
		UserID:       userID,
		StanceType:   req.StanceType,
		PersonaLabel: req.PersonaLabel,
		PingMs:       req.PingMs,
		EntryFee:     req.EntryFee,
		SafetyBelt:   req.SafetyBelt,
		Duration:     req.Duration,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

// LeaveQueue handles DELETE /v1/duel/queue.
func (h *DuelHandler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Queue.Leave(r.Context(), userID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListQueue handles GET /v1/duel/queue.
func (h *DuelHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Queue.List(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// DiagnoseQueue handles GET /v1/duel/queue/diagnose?a=&b=.
func (h *DuelHandler) DiagnoseQueue(w http.ResponseWriter, r *http.Request) {
	a, errA := uuid.Parse(r.URL.Query().Get("a"))
	b, errB := uuid.Parse(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a and b must be user ids"})
		return
	}
	reasons, err := h.Queue.Diagnose(r.Context(), a, b)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if reasons == nil {
		reasons = []services.Incompatibility{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"compatible": len(reasons) == 0,
		"reasons":    reasons,
	})
}

// --- matches ---

// ListMatches handles GET /v1/duel/matches?limit=.
func (h *DuelHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.Matches.ListForUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// GetMatch handles GET /v1/duel/matches/{id}.
func (h *DuelHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.participantMatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ReadyMatch handles POST /v1/duel/matches/{id}/ready.
func (h *DuelHandler) ReadyMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Matches.Ready)
}

// StartMatch handles POST /v1/duel/matches/{id}/start.
func (h *DuelHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Matches.Start)
}

type settleMatchRequest struct {
	ScoreA int `json:"score_a"`
	ScoreB int `json:"score_b"`
}

// SettleMatch handles POST /v1/duel/matches/{id}/settle.
func (h *DuelHandler) SettleMatch(w http.ResponseWriter, r *http.Request) {
	var req settleMatchRequest
	if err := decodeValidated(r, h.Validator, services.SchemaSettleMatch, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*models.Match, error) {
		return h.Matches.Settle(ctx, id, req.ScoreA, req.ScoreB)
	})
}

type cancelMatchRequest struct {
	Reason string `json:"reason"`
}

// CancelMatch handles POST /v1/duel/matches/{id}/cancel.
func (h *DuelHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	var req cancelMatchRequest
	if err := decodeValidated(r, h.Validator, services.SchemaCancelMatch, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*models.Match, error) {
		return h.Matches.Cancel(ctx, id, req.Reason)
	})
}

func (h *DuelHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*models.Match, error)) {
	m, ok := h.participantMatch(w, r)
	if !ok {
		return
	}
	m, err := fn(r.Context(), m.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// participantMatch loads the {id} match and rejects callers who are not one of its two sides.
func (h *DuelHandler) participantMatch(w http.ResponseWriter, r *http.Request) (*models.Match, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	m, err := h.Matches.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return nil, false
	}
	if m.Side(userID) == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "caller is not a participant"})
		return nil, false
	}
	return m, true
}
