package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/ledger"
	"github.com/duelarena/backend/internal/models"
)

// LedgerHandler serves /v1/ledger endpoints for the authenticated user.
type LedgerHandler struct {
	Ledger ledger.Service
	Logger logrus.FieldLogger
}

// Balance handles GET /v1/ledger/balance.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	bal, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// Events handles GET /v1/ledger/events?limit=.
func (h *LedgerHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.Ledger.Events(r.Context(), userID, limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if events == nil {
		events = []*models.CreditLedgerEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Reconcile handles GET /v1/ledger/reconcile.
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rec, err := h.Ledger.Reconcile(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
