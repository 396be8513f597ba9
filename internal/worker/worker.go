package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/models"
)

// MatchmakeArgs runs one matchmaking pass over the duel pool.
type MatchmakeArgs struct{}

func (MatchmakeArgs) Kind() string { return "duel_matchmake" }

// ExpireQueueArgs deletes lapsed queue entries.
type ExpireQueueArgs struct{}

func (ExpireQueueArgs) Kind() string { return "duel_expire_queue" }

// Matchmaker defines the contract the workers need from the queue service.
type Matchmaker interface {
	Matchmake(ctx context.Context) ([]*models.Match, error)
	ExpireQueue(ctx context.Context) (int, error)
}

type MatchmakeWorker struct {
	river.WorkerDefaults[MatchmakeArgs]
	queue  Matchmaker
	logger logrus.FieldLogger
}

func NewMatchmakeWorker(q Matchmaker, logger logrus.FieldLogger) *MatchmakeWorker {
	return &MatchmakeWorker{queue: q, logger: logger.WithField("worker", MatchmakeArgs{}.Kind())}
}

// Work returns the store error so River retries the pass. Matches created
// before the error are kept.
func (w *MatchmakeWorker) Work(ctx context.Context, job *river.Job[MatchmakeArgs]) error {
	matches, err := w.queue.Matchmake(ctx)
	if len(matches) > 0 {
		w.logger.WithField("matches", len(matches)).Info("matchmaking pass")
	}
	if err != nil {
		return fmt.Errorf("matchmake: %w", err)
	}
	return nil
}

// Timeout bounds a single pass; the next tick picks up where it stopped.
func (w *MatchmakeWorker) Timeout(*river.Job[MatchmakeArgs]) time.Duration { return 30 * time.Second }

type ExpireQueueWorker struct {
	river.WorkerDefaults[ExpireQueueArgs]
	queue  Matchmaker
	logger logrus.FieldLogger
}

func NewExpireQueueWorker(q Matchmaker, logger logrus.FieldLogger) *ExpireQueueWorker {
	return &ExpireQueueWorker{queue: q, logger: logger.WithField("worker", ExpireQueueArgs{}.Kind())}
}

func (w *ExpireQueueWorker) Work(ctx context.Context, job *river.Job[ExpireQueueArgs]) error {
	n, err := w.queue.ExpireQueue(ctx)
	if err != nil {
		return fmt.Errorf("expire queue: %w", err)
	}
	if n > 0 {
		w.logger.WithField("expired", n).Info("queue sweep")
	}
	return nil
}

// Register adds both workers to workers.
func Register(workers *river.Workers, q Matchmaker, logger logrus.FieldLogger) {
	river.AddWorker(workers, NewMatchmakeWorker(q, logger))
	river.AddWorker(workers, NewExpireQueueWorker(q, logger))
}

// PeriodicJobs schedules the matchmaking tick and the expiry sweep.
func PeriodicJobs(matchmakeEvery, sweepEvery time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(matchmakeEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				return MatchmakeArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(sweepEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpireQueueArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Inserter is the part of *river.Client used to schedule ad-hoc passes.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// KickFunc returns a function that enqueues an immediate matchmaking pass.
// Kicks inside the same second collapse into one job.
func KickFunc(client Inserter) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.Insert(ctx, MatchmakeArgs{}, &river.InsertOpts{
			UniqueOpts: river.UniqueOpts{ByPeriod: time.Second},
		})
		return err
	}
}
