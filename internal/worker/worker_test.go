package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelarena/backend/internal/models"
)

type fakeQueue struct {
	matches []*models.Match
	expired int
	err     error
	passes  int
	sweeps  int
}

func (f *fakeQueue) Matchmake(context.Context) ([]*models.Match, error) {
	f.passes++
	return f.matches, f.err
}

func (f *fakeQueue) ExpireQueue(context.Context) (int, error) {
	f.sweeps++
	return f.expired, f.err
}

type fakeInserter struct {
	args []river.JobArgs
	opts []*river.InsertOpts
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.args = append(f.args, args)
	f.opts = append(f.opts, opts)
	return &rivertype.JobInsertResult{}, nil
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMatchmakeWorker(t *testing.T) {
	q := &fakeQueue{matches: []*models.Match{{}, {}}}
	w := NewMatchmakeWorker(q, quiet())

	require.NoError(t, w.Work(context.Background(), &river.Job[MatchmakeArgs]{}))
	assert.Equal(t, 1, q.passes)

	q.err = errors.New("connection reset")
	err := w.Work(context.Background(), &river.Job[MatchmakeArgs]{})
	require.Error(t, err)
	assert.ErrorIs(t, err, q.err)
}

func TestExpireQueueWorker(t *testing.T) {
	q := &fakeQueue{expired: 3}
	w := NewExpireQueueWorker(q, quiet())

	require.NoError(t, w.Work(context.Background(), &river.Job[ExpireQueueArgs]{}))
	assert.Equal(t, 1, q.sweeps)
}

func TestPeriodicJobs(t *testing.T) {
	jobs := PeriodicJobs(2*time.Second, 30*time.Second)
	assert.Len(t, jobs, 2)
}

func TestKickFunc_DeduplicatesPerSecond(t *testing.T) {
	ins := &fakeInserter{}
	kick := KickFunc(ins)

	require.NoError(t, kick(context.Background()))
	require.Len(t, ins.args, 1)
	assert.Equal(t, "duel_matchmake", ins.args[0].Kind())
	require.NotNil(t, ins.opts[0])
	assert.Equal(t, time.Second, ins.opts[0].UniqueOpts.ByPeriod)
}
