package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

// MemoryQueue is a single-process queue store guarded by a mutex. It backs
// QUEUE_BACKEND=memory and the service tests.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]models.QueueEntry
	seq     int64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[uuid.UUID]models.QueueEntry)}
}

func (q *MemoryQueue) Upsert(_ context.Context, e *models.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e.Version = q.seq
	q.entries[e.UserID] = *e
	return nil
}

// Restore puts a claimed entry back unless the user has queued again since.
func (q *MemoryQueue) Restore(_ context.Context, e *models.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[e.UserID]; ok {
		return nil
	}
	q.seq++
	e.Version = q.seq
	q.entries[e.UserID] = *e
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, userID uuid.UUID) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

func (q *MemoryQueue) Delete(_ context.Context, userID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[userID]; !ok {
		return apperr.ErrNotFound
	}
	delete(q.entries, userID)
	return nil
}

// List returns every stored entry in join order, expired ones included.
func (q *MemoryQueue) List(_ context.Context) ([]*models.QueueEntry, error) {
	q.mu.Lock()
	out := make([]*models.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		cp := e
		out = append(out, &cp)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Claim removes both entries if neither changed since it was read.
func (q *MemoryQueue) Claim(_ context.Context, a, b *models.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, want := range []*models.QueueEntry{a, b} {
		got, ok := q.entries[want.UserID]
		if !ok || got.Version != want.Version {
			return apperr.ErrAlreadyMatched
		}
	}
	delete(q.entries, a.UserID)
	delete(q.entries, b.UserID)
	return nil
}

func (q *MemoryQueue) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, e := range q.entries {
		if e.Expired(now) {
			delete(q.entries, id)
			n++
		}
	}
	return n, nil
}
