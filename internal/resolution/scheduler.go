package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/btc-guess/internal/metrics"
	"go.uber.org/zap"
)

// Runner runs one resolution cycle
type Runner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Locker grants an exclusive, expiring lock shared by all replicas
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
	// Locker is optional; without it only in-process overlap is prevented
	Locker  Locker
	LockKey string
	LockTTL time.Duration
	Logger  *zap.Logger
}

// Scheduler runs cycles on a fixed interval. At most one cycle runs at a
// time in this process; a tick that arrives while a cycle is still running
// is dropped. Errors and panics from a cycle are logged, never returned.
type Scheduler struct {
	runner  Runner
	cfg     SchedulerConfig
	logger  *zap.Logger
	running atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for runner
func NewScheduler(runner Runner, cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("scheduler"),
	}
}

// Run ticks until ctx is cancelled, then waits for any in-flight cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("resolution interval must be positive, got %s", s.cfg.Interval)
	}

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Bool("run_on_start", s.cfg.RunOnStart),
		zap.Bool("distributed_lock", s.cfg.Locker != nil),
	)

	if s.cfg.RunOnStart {
		s.spawn(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped", zap.Int64("skipped_ticks", s.skipped.Load()))
			return nil
		case <-ticker.C:
			s.spawn(ctx)
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx)
	}()
}

// Tick runs one cycle unless another is in flight here or holds the
// distributed lock. It reports whether a cycle ran.
func (s *Scheduler) Tick(ctx context.Context) (ran bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		metrics.ResolutionCycles.WithLabelValues("skipped_busy").Inc()
		s.logger.Warn("previous resolution cycle still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			metrics.ResolutionCycles.WithLabelValues("panic").Inc()
			s.logger.Error("resolution cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if s.cfg.Locker != nil {
		release, err := s.cfg.Locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			s.skipped.Add(1)
			metrics.ResolutionCycles.WithLabelValues("skipped_locked").Inc()
			s.logger.Info("resolution lock not acquired, skipping tick", zap.Error(err))
			return false
		}
		defer release()
	}

	ran = true
	report, err := s.runner.RunCycle(ctx)
	metrics.ResolutionCycles.WithLabelValues(cycleResult(err)).Inc()
	if err != nil {
		s.logger.Error("resolution cycle failed", zap.Error(err), zap.Duration("duration", report.Duration))
	}
	return ran
}

// Skipped returns how many ticks were dropped
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func cycleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrFeedUnavailable):
		return "feed_error"
	case errors.Is(err, ErrPersistSnapshot):
		return "persist_error"
	case errors.Is(err, ErrEnumerateGuesses):
		return "enumerate_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
