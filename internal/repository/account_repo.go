package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

const accountColumns = `id, email, display_name, password_hash, balance, held, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Balance, &a.Held, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// Hold freezes amount if the available balance covers it.
func (r *AccountRepo) Hold(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET held = held + $1, updated_at = now()
		WHERE id = $2 AND balance - held >= $1
	`, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrInsufficientFunds
	}
	return nil
}

// Release unfreezes amount. Releasing more than is held is a ledger bug, not a user error.
func (r *AccountRepo) Release(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET held = held - $1, updated_at = now()
		WHERE id = $2 AND held >= $1
	`, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release %d on account %s exceeds held credits", amount, id)
	}
	return nil
}

// DeductCredits removes amount from the unheld balance. Returns the new balance.
func (r *AccountRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance - held >= $1
		RETURNING balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.ErrInsufficientFunds
	}
	return newBalance, err
}

// AddCredits adds amount to account and returns new balance.
func (r *AccountRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.ErrNotFound
	}
	return newBalance, err
}
