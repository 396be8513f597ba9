package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

type fakeEvents struct {
	events []*models.CreditLedgerEvent
	limits []int
}

func (f *fakeEvents) ListByUser(_ context.Context, _ uuid.UUID, limit int) ([]*models.CreditLedgerEvent, error) {
	f.limits = append(f.limits, limit)
	return f.events, nil
}

type fakeAccounts struct{ acc *models.Account }

func (f fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if f.acc == nil || f.acc.ID != id {
		return nil, apperr.ErrNotFound
	}
	return f.acc, nil
}

type fakeTx struct {
	pgx.Tx
	committed *bool
}

func (t fakeTx) Commit(context.Context) error {
	*t.committed = true
	return nil
}
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{ committed bool }

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{committed: &p.committed}, nil }

type fakeGranter struct{ total int64 }

func (g *fakeGranter) Grant(_ context.Context, _ pgx.Tx, _ uuid.UUID, amount int64, _ string) error {
	g.total += amount
	return nil
}

func userEvent(user uuid.UUID, typ string, amount int64, at time.Time) *models.CreditLedgerEvent {
	return &models.CreditLedgerEvent{ID: uuid.New(), UserID: user, Type: typ, Amount: amount, CreatedAt: at}
}

func TestReconcile_InSync(t *testing.T) {
	user := uuid.New()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []*models.CreditLedgerEvent{
		userEvent(user, models.LedgerGrant, 100, t0),
		userEvent(user, models.LedgerHold, 10, t0.Add(time.Second)),
		userEvent(user, models.LedgerRelease, 10, t0.Add(2*time.Second)),
		userEvent(user, models.LedgerReward, 12, t0.Add(3*time.Second)),
	}}
	acc := &models.Account{ID: user, Balance: 112}
	svc := NewService(events, fakeAccounts{acc}, &fakePool{}, &fakeGranter{})

	rec, err := svc.Reconcile(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, rec.InSync)
	assert.Equal(t, 4, rec.Events)
	assert.Equal(t, Balance{Total: 112, Held: 0, Available: 112}, rec.Folded)
	assert.Equal(t, []int{0}, events.limits, "reconcile reads the full history")
}

func TestReconcile_Drift(t *testing.T) {
	user := uuid.New()
	events := &fakeEvents{events: []*models.CreditLedgerEvent{userEvent(user, models.LedgerGrant, 100, time.Now())}}
	svc := NewService(events, fakeAccounts{&models.Account{ID: user, Balance: 90}}, &fakePool{}, &fakeGranter{})

	rec, err := svc.Reconcile(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, rec.InSync)
	assert.Equal(t, int64(90), rec.Cached.Total)
	assert.Equal(t, int64(100), rec.Folded.Total)
}

func TestReconcile_BrokenLog(t *testing.T) {
	user := uuid.New()
	events := &fakeEvents{events: []*models.CreditLedgerEvent{userEvent(user, models.LedgerDeduct, 5, time.Now())}}
	svc := NewService(events, fakeAccounts{&models.Account{ID: user}}, &fakePool{}, &fakeGranter{})

	rec, err := svc.Reconcile(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, rec.InSync)
	assert.NotEmpty(t, rec.FoldErr)
}

func TestBalanceAndEvents(t *testing.T) {
	user := uuid.New()
	events := &fakeEvents{}
	svc := NewService(events, fakeAccounts{&models.Account{ID: user, Balance: 50, Held: 20}}, &fakePool{}, &fakeGranter{})
	ctx := context.Background()

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, Balance{Total: 50, Held: 20, Available: 30}, bal)

	_, err = svc.Balance(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.Events(ctx, user, 0)
	require.NoError(t, err)
	_, err = svc.Events(ctx, user, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10}, events.limits)
}

func TestGrant(t *testing.T) {
	pool, granter := &fakePool{}, &fakeGranter{}
	svc := NewService(&fakeEvents{}, fakeAccounts{}, pool, granter)

	require.NoError(t, svc.Grant(context.Background(), uuid.New(), 25, models.ReasonAdminGrant))
	assert.True(t, pool.committed)
	assert.Equal(t, int64(25), granter.total)

	err := svc.Grant(context.Background(), uuid.New(), -1, models.ReasonAdminGrant)
	assert.True(t, errors.Is(err, apperr.ErrInvalidConfig))
}
