package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// backupPrefix names every file written by Backup. The timestamp that follows
// sorts lexically in creation order.
const backupPrefix = "pharmacore-"

// RecoveryResult indicates the outcome of a recovery attempt.
type RecoveryResult int

const (
	RecoverySuccess RecoveryResult = iota
	RecoveryFromBackup
	RecoveryFailed
)

func (r RecoveryResult) String() string {
	switch r {
	case RecoverySuccess:
		return "success"
	case RecoveryFromBackup:
		return "restored_from_backup"
	case RecoveryFailed:
		return "failed"
	}
	return "unknown"
}

// RecoveryReport describes what AttemptRecovery did to the file.
type RecoveryReport struct {
	Result       RecoveryResult
	DatabasePath string
	BackupUsed   string
	// Preserved is where the damaged file was moved before a restore.
	Preserved    string
	WALRecovered bool
	Steps        []RecoveryStep
}

// RecoveryStep is one phase of the recovery process.
type RecoveryStep struct {
	Name      string
	Succeeded bool
	Message   string
	Duration  time.Duration
}

// Summary renders the steps as "name=ok, name=failed" for logging.
func (r *RecoveryReport) Summary() string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		state := "ok"
		if !s.Succeeded {
			state = "failed"
		}
		parts[i] = s.Name + "=" + state
	}
	return strings.Join(parts, ", ")
}

// AttemptRecovery checks the database file before it is opened for service.
// The phases are an integrity check, a WAL checkpoint replay and a restore of
// the newest healthy backup; the first one that leaves a healthy file wins.
// A restore loses every ledger row written after the backup was taken, so it
// is reported as RecoveryFromBackup and the damaged file is kept alongside.
func AttemptRecovery(ctx context.Context, dbPath, backupDir string) (*RecoveryReport, error) {
	report := &RecoveryReport{DatabasePath: dbPath}

	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		report.Steps = append(report.Steps, RecoveryStep{Name: "check_exists", Succeeded: true, Message: "first run"})
		return report, nil
	}

	check := func() (string, error) { return "ok", checkFile(ctx, dbPath, false) }

	if report.run("integrity_check", check).Succeeded {
		return report, nil
	}
	slog.Warn("database integrity check failed", "path", dbPath)

	if _, err := os.Stat(dbPath + "-wal"); err == nil {
		replay := report.run("wal_recovery", func() (string, error) { return replayWAL(ctx, dbPath) })
		if replay.Succeeded && report.run("post_wal_integrity", check).Succeeded {
			report.WALRecovered = true
			slog.Info("database recovered via WAL replay", "path", dbPath)
			return report, nil
		}
	}

	if backupDir != "" {
		restore := report.run("backup_restoration", func() (string, error) {
			return report.restoreNewest(ctx, backupDir)
		})
		if restore.Succeeded {
			report.Result = RecoveryFromBackup
			slog.Warn("database restored from backup; ledger entries after the backup are lost",
				"path", dbPath, "backup", report.BackupUsed, "preserved", report.Preserved)
			return report, nil
		}
	}

	report.Result = RecoveryFailed
	slog.Error("database recovery failed", "path", dbPath, "steps", report.Summary())
	return report, errors.New("all recovery attempts failed")
}

func (r *RecoveryReport) run(name string, fn func() (string, error)) RecoveryStep {
	start := time.Now()
	msg, err := fn()
	step := RecoveryStep{Name: name, Succeeded: err == nil, Message: msg, Duration: time.Since(start)}
	if err != nil {
		step.Message = err.Error()
	}
	r.Steps = append(r.Steps, step)
	return step
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// integrityCheck runs PRAGMA integrity_check and returns nil only for a
// single "ok" row.
func integrityCheck(ctx context.Context, q queryer) error {
	rows, err := q.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating results: %w", err)
	}

	if len(results) != 1 || results[0] != "ok" {
		return fmt.Errorf("integrity check failed: %s", strings.Join(results, "; "))
	}
	return nil
}

// checkFile opens path read-only and checks it. With schema set, a file
// without the migrations or ledger table is refused.
func checkFile(ctx context.Context, path string, schema bool) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := integrityCheck(ctx, db); err != nil {
		return err
	}
	if !schema {
		return nil
	}

	var tables int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('schema_migrations', 'stock_transactions')").Scan(&tables)
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	if tables < 2 {
		return errors.New("no pharmacore schema found")
	}
	return nil
}

func replayWAL(ctx context.Context, dbPath string) (string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate", dbPath))
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return "", fmt.Errorf("WAL checkpoint: %w", err)
	}
	return "WAL checkpoint complete", nil
}

// listBackups returns backup files in backupDir, newest first.
func listBackups(backupDir string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || filepath.Ext(name) != ".db" {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	slices.Reverse(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(backupDir, name)
	}
	return paths, nil
}

func (r *RecoveryReport) restoreNewest(ctx context.Context, backupDir string) (string, error) {
	backups, err := listBackups(backupDir)
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", errors.New("no backup files found")
	}

	for _, b := range backups {
		if err := checkFile(ctx, b, true); err != nil {
			slog.Debug("skipping unusable backup", "path", b, "error", err)
			continue
		}

		r.Preserved = r.DatabasePath + ".corrupted." + time.Now().UTC().Format("20060102-150405")
		if err := os.Rename(r.DatabasePath, r.Preserved); err != nil {
			slog.Warn("failed to preserve corrupted database", "path", r.DatabasePath, "error", err)
			r.Preserved = ""
		}
		os.Remove(r.DatabasePath + "-wal")
		os.Remove(r.DatabasePath + "-shm")

		if err := copyFile(b, r.DatabasePath); err != nil {
			return "", fmt.Errorf("copying backup: %w", err)
		}
		r.BackupUsed = b
		return b, nil
	}

	return "", errors.New("no valid backup found")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return out.Sync()
}
