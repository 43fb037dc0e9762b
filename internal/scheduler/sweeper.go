// Package scheduler runs the lifecycle sweeps as explicit scheduled tasks.
// The sweep owns no state of its own: it only invokes the lifecycle
// transition functions, which are idempotent and safe to call concurrently,
// so overlapping or duplicated runs are harmless.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/application"
	"github.com/rparedes/callbid/internal/shared/logger"
)

var log = logger.GetLogger()

// Sweeper advances SCHEDULED auctions to LIVE and LIVE auctions past their
// deadline to ENDED on a fixed interval.
type Sweeper struct {
	lifecycle *application.LifecycleService
	interval  time.Duration
	sched     gocron.Scheduler
}

func NewSweeper(lifecycle *application.LifecycleService, interval time.Duration) (*Sweeper, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{lifecycle: lifecycle, interval: interval, sched: sched}, nil
}

// Start schedules the sweep job and begins running it.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
	)
	if err != nil {
		return err
	}
	s.sched.Start()
	log.Info("lifecycle sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}

// Sweep runs one open-then-close pass. Each transition inside is CAS-guarded,
// so concurrent sweeps cannot corrupt an auction.
func (s *Sweeper) Sweep(ctx context.Context) {
	opened, err := s.lifecycle.OpenDue(ctx)
	if err != nil {
		log.Warn("open sweep failed", zap.Error(err))
	}
	closed, err := s.lifecycle.CloseDue(ctx)
	if err != nil {
		log.Warn("close sweep failed", zap.Error(err))
	}
	if opened > 0 || closed > 0 {
		log.Info("lifecycle sweep", zap.Int("opened", opened), zap.Int("closed", closed))
	}
}
