package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/scheduler"
	"github.com/pharmacore/pharmacore/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the pharmacy console",
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	return withEnv(setupOptions{}, console)(cmd, args)
}

// console runs the TUI with the background scheduler and, when enabled, the
// metrics endpoint. Closing the console stops everything else.
func console(ctx context.Context, e *env, _ []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var backups scheduler.Backuper
	if e.db.BackupDir() != "" {
		backups = e.db
	}
	sched := scheduler.New(scheduler.Config{
		SweepInterval:  e.cfg.Inventory.SweepIntervalDuration(),
		BackupInterval: time.Duration(e.cfg.Database.BackupIntervalHours) * time.Hour,
	}, e.sweeper(), backups, e.metrics)
	g.Go(func() error { return sched.Run(ctx) })

	if e.cfg.Metrics.Enabled {
		g.Go(func() error { return metrics.Serve(ctx, e.cfg.Metrics.ListenAddr, e.metrics) })
	}

	g.Go(func() error {
		defer cancel()
		slog.Info("starting console", "operator", operator)
		return tui.Run(ctx, e.cfg, e.svc, e.clock, operator)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("PharmaCore shutdown complete")
	return nil
}
