package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelarena/backend/internal/models"
)

// Repository is the append-only credit_ledger store. Cached totals live on the
// accounts row and are updated by the caller in the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateTx appends an event inside the given transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, ev *models.CreditLedgerEvent) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, user_id, type, amount, match_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, ev.ID, ev.UserID, ev.Type, ev.Amount, ev.MatchID, ev.Reason).Scan(&ev.CreatedAt)
}

// ListByUser returns the newest events first. limit <= 0 returns the full history
// oldest first, which is the order Fold expects.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedgerEvent, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.pool.Query(ctx, `
			SELECT id, user_id, type, amount, match_id, reason, created_at
			FROM credit_ledger WHERE user_id = $1 ORDER BY seq DESC LIMIT $2
		`, userID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, user_id, type, amount, match_id, reason, created_at
			FROM credit_ledger WHERE user_id = $1 ORDER BY seq
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLedgerEvent
	for rows.Next() {
		var ev models.CreditLedgerEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Type, &ev.Amount, &ev.MatchID, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &ev)
	}
	return list, rows.Err()
}
