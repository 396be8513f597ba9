// Package apperr holds the error conditions shared by the duel queue, match
// settlement and the credit ledger. Callers match them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidConfig is returned when a join request violates the fee range,
	// the safety-belt threshold or the allowed durations.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNotFound is returned for an unknown user, queue entry or match.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMatched is returned when a queue entry was claimed by a
	// concurrent matchmaking pass. Retry matchmaking from scratch.
	ErrAlreadyMatched = errors.New("already matched")

	// ErrInvalidStateTransition is returned when a match status does not
	// permit the requested operation.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAlreadySettled is returned when settling a finished match.
	ErrAlreadySettled = errors.New("already settled")

	// ErrInsufficientFunds is returned when available credits cannot cover a hold or deduction.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// HTTPStatus maps an error to the response code the API layer reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrAlreadyMatched),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
