package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

const matchColumns = `id, side_a, side_b, status, duration, result, cancel_reason, created_at, updated_at, finished_at, cancelled_at`

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(&m.ID, &m.A, &m.B, &m.Status, &m.Duration, &m.Result, &m.CancelReason,
		&m.CreatedAt, &m.UpdatedAt, &m.FinishedAt, &m.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts the match inside the caller's transaction.
func (r *MatchRepo) Create(ctx context.Context, tx pgx.Tx, m *models.Match) error {
	return tx.QueryRow(ctx, `
		INSERT INTO duel_matches (id, a_user_id, b_user_id, side_a, side_b, status, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, m.ID, m.A.UserID, m.B.UserID, m.A, m.B, m.Status, m.Duration).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *MatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return scanMatch(r.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM duel_matches WHERE id = $1`, id))
}

// GetByIDForUpdate locks the match row. Call within a transaction.
func (r *MatchRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Match, error) {
	return scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM duel_matches WHERE id = $1 FOR UPDATE`, id))
}

// Update writes the mutable match fields inside the caller's transaction.
func (r *MatchRepo) Update(ctx context.Context, tx pgx.Tx, m *models.Match) error {
	return tx.QueryRow(ctx, `
		UPDATE duel_matches
		SET status = $2, result = $3, cancel_reason = $4, finished_at = $5, cancelled_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, m.ID, m.Status, m.Result, m.CancelReason, m.FinishedAt, m.CancelledAt).Scan(&m.UpdatedAt)
}

// ListByUser returns the user's most recent matches, newest first.
func (r *MatchRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Match, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+matchColumns+` FROM duel_matches
		WHERE a_user_id = $1 OR b_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
