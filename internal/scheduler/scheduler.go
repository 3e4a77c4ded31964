// Package scheduler runs the periodic background jobs: the batch status
// sweep and database backups.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
)

// Sweeper refreshes batch statuses and raises alerts.
type Sweeper interface {
	Run(ctx context.Context) (*inventory.SweepReport, error)
}

// Backuper writes a database backup and returns its path.
type Backuper interface {
	Backup(ctx context.Context) (string, error)
}

// Config sets job intervals. A zero interval disables the job.
type Config struct {
	SweepInterval  time.Duration
	BackupInterval time.Duration
}

// Scheduler owns a gocron scheduler and its jobs.
type Scheduler struct {
	cfg     Config
	sweeper Sweeper
	backups Backuper
	metrics *metrics.Collector
}

// New creates a scheduler. backups may be nil when backups are not
// configured.
func New(cfg Config, sweeper Sweeper, backups Backuper, m *metrics.Collector) *Scheduler {
	return &Scheduler{cfg: cfg, sweeper: sweeper, backups: backups, metrics: m}
}

// Run registers the jobs and blocks until ctx is cancelled. The sweep runs
// once immediately so statuses are current at startup.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	if s.cfg.SweepInterval > 0 && s.sweeper != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(s.cfg.SweepInterval),
			gocron.NewTask(func() { s.sweep(ctx) }),
			gocron.WithName("stock-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("scheduling sweep: %w", err), sched.Shutdown())
		}
	}

	if s.cfg.BackupInterval > 0 && s.backups != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(s.cfg.BackupInterval),
			gocron.NewTask(func() { s.backup(ctx) }),
			gocron.WithName("database-backup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("scheduling backup: %w", err), sched.Shutdown())
		}
	}

	slog.Info("scheduler started", "sweep_interval", s.cfg.SweepInterval, "backup_interval", s.cfg.BackupInterval)
	sched.Start()

	<-ctx.Done()

	slog.Info("scheduler stopping")
	return sched.Shutdown()
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.sweeper.Run(ctx)
	if err != nil {
		slog.Error("stock sweep failed", "error", err)
		return
	}
	if report.Changed() > 0 {
		slog.Info("stock sweep changed batches", "changed", report.Changed(), "scanned", report.Scanned)
	}
}

func (s *Scheduler) backup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	path, err := s.backups.Backup(ctx)
	if err != nil {
		slog.Error("scheduled backup failed", "error", err)
		return
	}
	s.metrics.BackupWritten()
	slog.Debug("scheduled backup written", "path", path)
}
