package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

func init() {
	dbCmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Run the connection and integrity checks",
			Args:  cobra.NoArgs,
			RunE:  withEnv(setupOptions{}, runDBCheck),
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Write a backup now and prune expired ones",
			Args:  cobra.NoArgs,
			RunE:  withEnv(setupOptions{}, runDBBackup),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show database file statistics",
			Args:  cobra.NoArgs,
			RunE:  withEnv(setupOptions{}, runDBStats),
		},
	)
	rootCmd.AddCommand(dbCmd)
}

func runDBCheck(ctx context.Context, e *env, _ []string) error {
	if err := e.db.HealthCheck(ctx); err != nil {
		return err
	}
	if err := e.db.CheckIntegrity(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout(), "%s: ok\n", e.db.Path())
	return nil
}

func runDBBackup(ctx context.Context, e *env, _ []string) error {
	path, err := e.db.Backup(ctx)
	if err != nil {
		return err
	}
	e.metrics.BackupWritten()
	fmt.Fprintf(stdout(), "Backup written to %s\n", path)
	return nil
}

func runDBStats(ctx context.Context, e *env, _ []string) error {
	stats, err := e.db.GetStats(ctx)
	if err != nil {
		return err
	}
	tw := newTable(stdout())
	fmt.Fprintf(tw, "path\t%s\t\n", stats.Path)
	fmt.Fprintf(tw, "size\t%d bytes\t\n", stats.SizeBytes)
	fmt.Fprintf(tw, "wal\t%d bytes\t\n", stats.WALSizeBytes)
	fmt.Fprintf(tw, "pages\t%d of %d bytes, %d free\t\n", stats.PageCount, stats.PageSize, stats.FreePageCount)
	fmt.Fprintf(tw, "journal\t%s\t\n", stats.JournalMode)
	return tw.Flush()
}
