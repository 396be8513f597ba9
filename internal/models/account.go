package models

import (
	"time"

	"github.com/google/uuid"
)

// Account carries the cached ledger totals for a user. Balance is the total
// owned; Held is the part frozen by match holds.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Balance      int64     `json:"balance"`
	Held         int64     `json:"held"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available is the part of the balance that can still be held or spent.
func (a *Account) Available() int64 {
	return a.Balance - a.Held
}
