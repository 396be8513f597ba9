package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

const queueColumns = `user_id, stance_type, persona_label, ping_ms, entry_fee, safety_belt, duration, joined_at, expires_at, version`

// QueueRepo stores the duel pool in the duel_queue table. Every write draws a
// fresh version from duel_queue_version_seq so a claim can never match a
// re-joined entry by accident.
type QueueRepo struct {
	pool *pgxpool.Pool
}

func NewQueueRepo(pool *pgxpool.Pool) *QueueRepo {
	return &QueueRepo{pool: pool}
}

func scanQueueEntry(row pgx.Row) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := row.Scan(&e.UserID, &e.StanceType, &e.PersonaLabel, &e.PingMs, &e.EntryFee, &e.SafetyBelt,
		&e.Duration, &e.JoinedAt, &e.ExpiresAt, &e.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Upsert inserts or replaces the user's entry and sets e.Version.
func (r *QueueRepo) Upsert(ctx context.Context, e *models.QueueEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO duel_queue (user_id, stance_type, persona_label, ping_ms, entry_fee, safety_belt, duration, joined_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			stance_type = EXCLUDED.stance_type,
			persona_label = EXCLUDED.persona_label,
			ping_ms = EXCLUDED.ping_ms,
			entry_fee = EXCLUDED.entry_fee,
			safety_belt = EXCLUDED.safety_belt,
			duration = EXCLUDED.duration,
			joined_at = EXCLUDED.joined_at,
			expires_at = EXCLUDED.expires_at,
			version = nextval('duel_queue_version_seq')
		RETURNING version
	`, e.UserID, e.StanceType, e.PersonaLabel, e.PingMs, e.EntryFee, e.SafetyBelt, e.Duration, e.JoinedAt, e.ExpiresAt).Scan(&e.Version)
}

// Restore re-inserts a claimed entry unless the user has queued again since.
func (r *QueueRepo) Restore(ctx context.Context, e *models.QueueEntry) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO duel_queue (user_id, stance_type, persona_label, ping_ms, entry_fee, safety_belt, duration, joined_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING version
	`, e.UserID, e.StanceType, e.PersonaLabel, e.PingMs, e.EntryFee, e.SafetyBelt, e.Duration, e.JoinedAt, e.ExpiresAt).Scan(&e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (r *QueueRepo) Get(ctx context.Context, userID uuid.UUID) (*models.QueueEntry, error) {
	return scanQueueEntry(r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM duel_queue WHERE user_id = $1`, userID))
}

func (r *QueueRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM duel_queue WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns every stored entry in join order, expired ones included.
func (r *QueueRepo) List(ctx context.Context) ([]*models.QueueEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM duel_queue ORDER BY joined_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Claim deletes both entries in one transaction, only if both still carry the
// versions that were read. Otherwise nothing is deleted.
func (r *QueueRepo) Claim(ctx context.Context, a, b *models.QueueEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM duel_queue
		WHERE (user_id = $1 AND version = $2) OR (user_id = $3 AND version = $4)
	`, a.UserID, a.Version, b.UserID, b.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 2 {
		return apperr.ErrAlreadyMatched
	}
	return tx.Commit(ctx)
}

func (r *QueueRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM duel_queue WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
