package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"node-ledger/services"
)

// Sweeper is the part of the node lifecycle the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// SweepScheduler runs the maturity sweep every interval. At most one sweep
// runs per process; with a locker, at most one across replicas.
type SweepScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clockwork.Clock
	locker   gocron.Locker

	sched gocron.Scheduler
}

func NewSweepScheduler(sweeper Sweeper, interval time.Duration, clock clockwork.Clock, locker gocron.Locker) *SweepScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SweepScheduler{sweeper: sweeper, interval: interval, clock: clock, locker: locker}
}

func (s *SweepScheduler) Start(ctx context.Context) error {
	opts := []gocron.SchedulerOption{
		gocron.WithClock(s.clock),
		gocron.WithLocation(time.UTC),
	}
	if s.locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(s.locker))
	}

	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return errors.Wrap(err, "create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.runOnce(ctx)
		}),
		gocron.WithName("node-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return errors.Wrap(err, "schedule sweep")
	}

	s.sched = sched
	sched.Start()
	log.WithField("interval", s.interval.String()).Info("[SWEEP] sweep scheduler started")
	return nil
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		log.WithError(err).Error("[SWEEP] sweep failed")
	}
}

func (s *SweepScheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	if err := s.sched.Shutdown(); err != nil {
		return errors.Wrap(err, "shutdown scheduler")
	}
	log.Info("[SWEEP] sweep scheduler stopped")
	return nil
}
