package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/shopwatch/internal/service"
	"github.com/robfig/cron/v3"
)

// Cycle runs one scrape cycle
type Cycle interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

// LeaseSweeper maintains the lease table
type LeaseSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
	ReleaseOwned(ctx context.Context) (int64, error)
	Owner() string
}

// JobPruner drops finished on-demand jobs
type JobPruner interface {
	Prune(maxAge time.Duration) int
}

// Config holds the cron expressions driving the scheduler
type Config struct {
	ScrapeSchedule    string
	LockSweepSchedule string
	JobRetention      time.Duration
}

// Scheduler triggers scrape cycles and lease maintenance on cron schedules.
// Every replica runs the same schedule; shops are serialized by their lease.
type Scheduler struct {
	cfg    Config
	cycle  Cycle
	leases LeaseSweeper
	jobs   JobPruner
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler and validates its schedules. jobs may be nil.
func New(cfg Config, cycle Cycle, leases LeaseSweeper, jobs JobPruner) (*Scheduler, error) {
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = time.Hour
	}

	s := &Scheduler{
		cfg:    cfg,
		cycle:  cycle,
		leases: leases,
		jobs:   jobs,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
	}

	if _, err := s.cron.AddFunc(cfg.ScrapeSchedule, s.runCycle); err != nil {
		return nil, fmt.Errorf("invalid scrape schedule %q: %w", cfg.ScrapeSchedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.LockSweepSchedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid lock sweep schedule %q: %w", cfg.LockSweepSchedule, err)
	}

	return s, nil
}

// Start begins scheduling and runs a first cycle immediately
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	slog.Info("Starting scheduler",
		"worker_id", s.leases.Owner(),
		"scrape_schedule", s.cfg.ScrapeSchedule,
		"lock_sweep_schedule", s.cfg.LockSweepSchedule,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle()
	}()

	s.cron.Start()
}

// Stop stops triggering, waits for in-flight jobs until ctx expires, then
// releases every lease held by this worker
func (s *Scheduler) Stop(ctx context.Context) {
	slog.Info("Stopping scheduler", "worker_id", s.leases.Owner())

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("All scheduled runs completed")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for scheduled runs, cancelling")
		if s.cancel != nil {
			s.cancel()
		}
		<-done
	}
	if s.cancel != nil {
		s.cancel()
	}

	released, err := s.leases.ReleaseOwned(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("Failed to release leases during shutdown", "error", err)
	} else if released > 0 {
		slog.Info("Released leases during shutdown", "count", released)
	}

	slog.Info("Scheduler stopped", "worker_id", s.leases.Owner())
}

func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.cycle.RunCycle(s.ctx); err != nil {
		slog.Error("Scrape cycle failed", "error", err)
	}
}

func (s *Scheduler) sweep() {
	if s.ctx.Err() != nil {
		return
	}

	if swept, err := s.leases.SweepExpired(s.ctx); err != nil {
		slog.Error("Failed to sweep expired leases", "error", err)
	} else if swept > 0 {
		slog.Info("Swept expired leases", "count", swept)
	}

	if s.jobs != nil {
		if pruned := s.jobs.Prune(s.cfg.JobRetention); pruned > 0 {
			slog.Debug("Pruned finished refresh jobs", "count", pruned)
		}
	}
}
