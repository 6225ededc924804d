package accrual

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"hashmine/pkg/lock"
	"hashmine/pkg/rediskey"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"
)

type Runner interface {
	Run(ctx context.Context, now time.Time) (TickReport, error)
}

// Scheduler drives a Runner once per period. A tick that finds the previous
// one still running is skipped, never queued.
type Scheduler struct {
	runner Runner
	clock  clock.Clock
	period time.Duration
	// locker, when set, makes the tick exclusive across processes.
	locker lock.Locker

	running atomic.Bool
	skipped atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// onTick observes every finished tick.
	onTick func(TickReport, error)
}

type SchedulerOptions struct {
	Clock  clock.Clock
	Period time.Duration
	Locker lock.Locker
	OnTick func(TickReport, error)
}

func NewScheduler(runner Runner, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	return &Scheduler{
		runner: runner,
		clock:  opts.Clock,
		period: opts.Period,
		locker: opts.Locker,
		onTick: opts.OnTick,
	}
}

var ErrAlreadyStarted = errors.New("scheduler already started")

// Start begins ticking in the background until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ticker := s.clock.Ticker(s.period)
	s.wg.Add(1)
	go s.loop(ctx, ticker)

	zap.L().Info("[Accrual] scheduler started", zap.Duration("period", s.period))
	return nil
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	zap.L().Info("[Accrual] scheduler stopped")
}

// Skipped is the number of ticks dropped because of overlap.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		s.skip("overlap", now)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if s.locker != nil {
			unlock, ok, err := s.locker.TryLock(ctx, rediskey.AccrualTickLock)
			if err != nil {
				zap.L().Warn("[Accrual] tick lock unavailable", zap.Error(err))
				s.skip("lock_error", now)
				return
			}
			if !ok {
				s.skip("locked", now)
				return
			}
			defer unlock()
		}

		s.run(ctx, now)
	}()
}

func (s *Scheduler) skip(reason string, now time.Time) {
	s.skipped.Add(1)
	ticksSkipped.WithLabelValues(reason).Inc()
	zap.L().Debug("[Accrual] tick skipped", zap.String("reason", reason), zap.Time("at", now))
}

func (s *Scheduler) run(ctx context.Context, now time.Time) {
	start := time.Now()
	report, err := s.runner.Run(ctx, now)
	tickDuration.Observe(time.Since(start).Seconds())
	ticksTotal.Inc()

	if err != nil {
		zap.L().Error("[Accrual] tick failed", zap.Time("at", now), zap.Error(err))
	} else if report.Selected > 0 {
		zap.L().Info("[Accrual] tick finished",
			zap.Time("at", report.At),
			zap.Int64("bucket", report.Bucket),
			zap.Int("selected", report.Selected),
			zap.Int("credited", report.Credited),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Duration("duration", time.Since(start)),
		)
	}

	if s.onTick != nil {
		s.onTick(report, err)
	}
}
