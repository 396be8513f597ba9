package main

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/app"
	"github.com/duelarena/backend/internal/handlers"
	"github.com/duelarena/backend/internal/middleware"
	"github.com/duelarena/backend/internal/services"
)

// RegisterV1Routes adds the /v1/ duel and ledger endpoints to the given mux.
// Every route requires a user JWT.
func RegisterV1Routes(
	mux *http.ServeMux,
	a *app.App,
	tokens middleware.TokenValidator,
	validator *services.Validator,
	logger logrus.FieldLogger,
) {
	dh := &handlers.DuelHandler{
		Queue:     a.Queue,
		Matches:   a.Settlement,
		Validator: validator,
		Logger:    logger,
	}
	lh := &handlers.LedgerHandler{Ledger: a.Ledger, Logger: logger}

	auth := middleware.UserAuth(tokens)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	handle("POST /v1/duel/queue", dh.JoinQueue)
	handle("DELETE /v1/duel/queue", dh.LeaveQueue)
	handle("GET /v1/duel/queue", dh.ListQueue)
	handle("GET /v1/duel/queue/diagnose", dh.DiagnoseQueue)

	handle("GET /v1/duel/matches", dh.ListMatches)
	handle("GET /v1/duel/matches/{id}", dh.GetMatch)
	handle("POST /v1/duel/matches/{id}/ready", dh.ReadyMatch)
	handle("POST /v1/duel/matches/{id}/start", dh.StartMatch)
	handle("POST /v1/duel/matches/{id}/settle", dh.SettleMatch)
	handle("POST /v1/duel/matches/{id}/cancel", dh.CancelMatch)

	handle("GET /v1/ledger/balance", lh.Balance)
	handle("GET /v1/ledger/events", lh.Events)
	handle("GET /v1/ledger/reconcile", lh.Reconcile)
}
