package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/auth"
	"github.com/duelarena/backend/internal/ledger"
	"github.com/duelarena/backend/internal/models"
)

const recentMatches = 10

// AccountReader loads an account by id.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// MatchLister lists a user's most recent matches.
type MatchLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Match, error)
}

// Handler serves the signed-in user's account summary.
type Handler struct {
	authSvc  auth.Service
	accounts AccountReader
	matches  MatchLister
	log      logrus.FieldLogger
}

func NewHandler(authSvc auth.Service, accounts AccountReader, matches MatchLister, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{authSvc: authSvc, accounts: accounts, matches: matches, log: log}
}

func (h *Handler) accountIDFromRequest(r *http.Request) (uuid.UUID, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		h.log.WithError(err).Error("get account failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	matches, err := h.matches.ListForUser(r.Context(), accountID, recentMatches)
	if err != nil {
		h.log.WithError(err).WithField("user_id", accountID).Warn("list recent matches failed")
		matches = nil
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             acc.ID,
		"email":          acc.Email,
		"display_name":   acc.DisplayName,
		"balance":        ledger.BalanceOf(acc),
		"recent_matches": matches,
		"created_at":     acc.CreatedAt,
	})
}
