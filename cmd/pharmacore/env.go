package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/catalog"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/tui"
	"github.com/pharmacore/pharmacore/internal/util"
)

// env is everything a command needs once configuration, logging and the
// database are up.
type env struct {
	cfg     *config.Config
	cfgPath string
	paths   config.Paths
	db      *database.DB
	metrics *metrics.Collector
	clock   util.Clock
	svc     tui.Services

	logFile *os.File
}

// setupOptions select what newEnv prepares.
type setupOptions struct {
	// skipMigrate leaves the schema as it is, for the migrate command.
	skipMigrate bool
}

// newEnv loads configuration, configures logging, recovers and opens the
// database, applies migrations and wires the services.
func newEnv(ctx context.Context, so setupOptions) (*env, error) {
	cfg, cfgPath, err := config.Load(opts.configPath, true)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", cfgPath, err)
	}

	paths, err := config.ResolvePaths(cfg)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, cfgPath: cfgPath, paths: paths}
	if err := e.setupLogging(); err != nil {
		return nil, err
	}

	slog.Info("PharmaCore starting",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cfgPath,
		"pharmacy", cfg.Pharmacy.Code,
	)

	if e.clock, err = clockFor(opts.at); err != nil {
		e.Close()
		return nil, err
	}

	if err := e.openDatabase(ctx, so); err != nil {
		e.Close()
		return nil, err
	}

	e.metrics = metrics.NewCollector()
	store := inventory.NewStore(e.db, cfg.Inventory,
		inventory.WithClock(e.clock),
		inventory.WithMetrics(e.metrics),
	)
	e.svc = tui.Services{
		Store:   store,
		Ledger:  inventory.NewLedger(store),
		Catalog: catalog.NewService(e.db, e.clock),
		Dispensing: dispensing.NewService(e.db, store, cfg.Dispensing,
			dispensing.WithInteractionChecker(dispensing.NewStaticInteractionTable(cfg.Clinical.Interactions)),
			dispensing.WithAllergyChecker(dispensing.NewStaticAllergyTable(cfg.Clinical.Allergies)),
		),
	}
	return e, nil
}

func (e *env) setupLogging() error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	} else {
		switch e.cfg.Logging.Level {
		case config.LogLevelDebug:
			level = slog.LevelDebug
		case config.LogLevelWarn:
			level = slog.LevelWarn
		case config.LogLevelError:
			level = slog.LevelError
		}
	}

	var handler slog.Handler
	if e.paths.LogFile != "" {
		f, err := os.OpenFile(e.paths.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		e.logFile = f
		handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler).With("pharmacy", e.cfg.Pharmacy.Code))
	return nil
}

func (e *env) openDatabase(ctx context.Context, so setupOptions) error {
	dbPath, backupDir := e.paths.Database, e.paths.Backups
	if backupDir == "" {
		slog.Warn("backup directory unavailable, backups disabled")
	}

	report, err := database.AttemptRecovery(ctx, dbPath, backupDir)
	if err != nil {
		slog.Error("database recovery failed", "path", dbPath, "error", err)
		return fmt.Errorf("database recovery failed: %w", err)
	}
	switch report.Result {
	case database.RecoveryFromBackup:
		slog.Warn("database restored from backup", "backup", report.BackupUsed)
	case database.RecoverySuccess:
		slog.Debug("database integrity verified")
	}

	e.db, err = database.Open(dbPath, &e.cfg.Database, backupDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if so.skipMigrate {
		return nil
	}
	migrator, err := database.NewMigrator(e.db)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	result, err := migrator.MigrateUp(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if len(result.Applied) > 0 {
		slog.Info("applied migrations", "count", len(result.Applied), "to_version", result.TargetVersion)
	}
	return nil
}

// Close releases the database and log file.
func (e *env) Close() {
	if e.db != nil {
		slog.Info("closing database")
		if err := e.db.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

func clockFor(at string) (util.Clock, error) {
	if at == "" {
		return util.SystemClock{}, nil
	}
	t, err := util.ParseDate(at)
	if err != nil {
		return nil, fmt.Errorf("invalid --at date %q: %w", at, err)
	}
	slog.Warn("running against a fixed clock", "at", util.FormatDate(t))
	return util.NewFixedClock(t), nil
}

// batchKey resolves a medicine code and batch number to a batch key.
func (e *env) batchKey(ctx context.Context, code, batch string) (models.BatchKey, error) {
	if batch == "" {
		return models.BatchKey{}, errors.New("batch number is required")
	}
	med, err := e.svc.Catalog.GetMedicineByCode(ctx, code)
	if err != nil {
		return models.BatchKey{}, err
	}
	return models.BatchKey{MedicineID: med.ID, BatchNumber: batch}, nil
}

// operator returns the --operator flag, refusing an empty one.
func (e *env) operator() (string, error) {
	if opts.operator == "" {
		return "", errors.New("--operator is required")
	}
	return opts.operator, nil
}

// withEnv adapts a command body that needs a ready env.
func withEnv(so setupOptions, run func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEnv(ctx, so)
		if err != nil {
			return err
		}
		defer e.Close()
		return run(ctx, e, args)
	}
}
