package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"node-ledger/services"
)

type countingSweeper struct {
	calls atomic.Int32
	ran   chan struct{}
}

func (s *countingSweeper) Sweep(context.Context) (services.SweepResult, error) {
	if s.calls.Add(1) == 1 {
		close(s.ran)
	}
	return services.SweepResult{}, nil
}

func TestSweepScheduler_runsOnStartAndStops(t *testing.T) {
	sweeper := &countingSweeper{ran: make(chan struct{})}
	sched := NewSweepScheduler(sweeper, time.Hour, nil, nil)

	require.NoError(t, sched.Start(context.Background()))
	select {
	case <-sweeper.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not run on start")
	}
	require.NoError(t, sched.Stop())
	require.EqualValues(t, 1, sweeper.calls.Load())
}

func TestSweepScheduler_withRedisLocker(t *testing.T) {
	_, rdb := newRedis(t)
	sweeper := &countingSweeper{ran: make(chan struct{})}
	sched := NewSweepScheduler(sweeper, time.Hour, nil, NewRedisLocker(rdb, time.Minute))

	require.NoError(t, sched.Start(context.Background()))
	select {
	case <-sweeper.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not run under the distributed lock")
	}
	require.NoError(t, sched.Stop())
}

func TestSweepScheduler_stopWithoutStart(t *testing.T) {
	require.NoError(t, NewSweepScheduler(&countingSweeper{}, time.Hour, nil, nil).Stop())
}
