package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (Balance, error)
	Events(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedgerEvent, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) error
}

// EventStore reads the event log.
type EventStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedgerEvent, error)
}

// AccountReader reads the cached totals.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Granter credits an account and records the GRANT event inside tx.
type Granter interface {
	Grant(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string) error
}

// Reconciliation compares the cached account totals with a replay of the log.
type Reconciliation struct {
	Cached  Balance `json:"cached"`
	Folded  Balance `json:"folded"`
	Events  int     `json:"events"`
	InSync  bool    `json:"in_sync"`
	FoldErr string  `json:"fold_error,omitempty"`
}

type service struct {
	events   EventStore
	accounts AccountReader
	pool     TxBeginner
	granter  Granter
}

func NewService(events EventStore, accounts AccountReader, pool TxBeginner, granter Granter) Service {
	return &service{events: events, accounts: accounts, pool: pool, granter: granter}
}

var _ Service = (*service)(nil)

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (Balance, error) {
	acc, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return BalanceOf(acc), nil
}

func (s *service) Events(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedgerEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.events.ListByUser(ctx, userID, limit)
}

func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	acc, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{Cached: BalanceOf(acc), Events: len(events)}
	folded, err := Fold(events)
	if err != nil {
		rec.FoldErr = err.Error()
		return rec, nil
	}
	rec.Folded = folded
	rec.InSync = folded == rec.Cached
	return rec, nil
}

func (s *service) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: grant amount must be positive", apperr.ErrInvalidConfig)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.granter.Grant(ctx, tx, userID, amount, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
