package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/database/seed"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or list schema migrations",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      withEnv(setupOptions{skipMigrate: true}, runMigrate),
}

var seedOpts struct {
	prescriptions int
	randomSeed    int64
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo catalog, stock and prescriptions into an empty database",
	Args:  cobra.NoArgs,
	RunE:  withEnv(setupOptions{}, runSeed),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the batch status sweep once",
	Args:  cobra.NoArgs,
	RunE:  withEnv(setupOptions{}, runSweep),
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and settle the stock ledger",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every batch's ledger chain against its stock",
	Args:  cobra.NoArgs,
	RunE:  withEnv(setupOptions{}, runLedgerVerify),
}

var ledgerReject bool

var ledgerReviewCmd = &cobra.Command{
	Use:   "review <transaction-number>",
	Short: "Approve or reject a ledger row pending review",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(setupOptions{}, runLedgerReview),
}

var ledgerPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List ledger rows pending review",
	Args:  cobra.NoArgs,
	RunE:  withEnv(setupOptions{}, runLedgerPending),
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.prescriptions, "prescriptions", 25, "number of reviewed prescriptions to create")
	seedCmd.Flags().Int64Var(&seedOpts.randomSeed, "random-seed", 2026, "random seed for reproducible data")

	ledgerReviewCmd.Flags().BoolVar(&ledgerReject, "reject", false, "reject the row and restore its quantity")
	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerReviewCmd, ledgerPendingCmd)

	rootCmd.AddCommand(migrateCmd, seedCmd, sweepCmd, ledgerCmd)
}

func runMigrate(ctx context.Context, e *env, args []string) error {
	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	migrator, err := database.NewMigrator(e.db)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	out := stdout()

	switch action {
	case "up":
		result, err := migrator.MigrateUp(ctx)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintf(out, "Applied %d migration(s), schema at version %d\n", len(result.Applied), result.TargetVersion)
	case "down":
		result, err := migrator.MigrateDown(ctx)
		if err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		fmt.Fprintf(out, "Rolled back to version %d\n", result.TargetVersion)
	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := newTable(out)
		fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tAPPLIED\t")
		for _, m := range status {
			applied := "pending"
			switch {
			case m.Drifted:
				applied = "DRIFTED " + util.FormatDateTime(m.AppliedAt)
			case m.Applied:
				applied = util.FormatDateTime(m.AppliedAt)
			}
			fmt.Fprintf(tw, "%03d\t%s\t%s\t\n", m.Version, m.Description, applied)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}

func runSeed(ctx context.Context, e *env, _ []string) error {
	list, err := e.svc.Catalog.ListMedicines(ctx, models.MedicineFilter{}, models.Pagination{Page: 1, PageSize: 1})
	if err != nil {
		return err
	}
	if list.Total > 0 {
		fmt.Fprintf(stdout(), "Catalog already holds %d medicine(s), skipping seed\n", list.Total)
		return nil
	}

	cfg := seed.DefaultConfig(e.clock.Now())
	cfg.Prescriptions = seedOpts.prescriptions
	cfg.RandomSeed = seedOpts.randomSeed
	if opts.operator != "" {
		cfg.Operator = opts.operator
	}

	report, err := seed.NewGenerator(e.db, e.svc.Catalog, e.svc.Store, cfg).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generating seed data: %w", err)
	}
	fmt.Fprintf(stdout(), "Seeded %d medicines, %d batches (%d units) and %d prescriptions\n",
		report.Medicines, report.Batches, report.Units, report.Prescriptions)
	return nil
}

func (e *env) sweeper() *inventory.Sweeper {
	return inventory.NewSweeper(e.svc.Store)
}

func runSweep(ctx context.Context, e *env, _ []string) error {
	report, err := e.sweeper().Run(ctx)
	if err != nil {
		return err
	}

	out := stdout()
	fmt.Fprintf(out, "Scanned %d batch(es) in %s, %d status change(s)\n", report.Scanned, report.Duration.Round(time.Millisecond), report.Changed())
	for _, status := range sortedKeys(report.Transitions) {
		fmt.Fprintf(out, "  -> %-10s %d\n", status, report.Transitions[models.BatchStatus(status)])
	}
	for _, kind := range sortedKeys(report.Alerts) {
		fmt.Fprintf(out, "  alert %-12s %d\n", kind, report.Alerts[models.AlertKind(kind)])
	}
	return nil
}

func runLedgerVerify(ctx context.Context, e *env, _ []string) error {
	report, err := e.svc.Ledger.VerifyAll(ctx)
	if err != nil {
		return err
	}

	out := stdout()
	fmt.Fprintf(out, "Verified %d of %d batch ledger(s)\n", report.Verified, report.Batches)
	if report.OK() {
		return nil
	}
	for _, v := range report.Violations {
		fmt.Fprintf(out, "  %s\n", v.Error())
	}
	return fmt.Errorf("%d ledger(s) failed verification: %w", len(report.Violations), models.ErrLedgerIntegrity)
}

func runLedgerReview(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	tx, err := e.svc.Ledger.Review(ctx, args[0], operator, !ledgerReject)
	if err != nil {
		return err
	}
	printTransaction(stdout(), tx)
	return nil
}

func runLedgerPending(ctx context.Context, e *env, _ []string) error {
	status := models.TransactionStatusPendingReview
	list, err := e.svc.Ledger.History(ctx, models.TransactionFilter{Status: &status}, models.Pagination{Page: 1, PageSize: 100})
	if err != nil {
		return err
	}
	if len(list.Transactions) == 0 {
		fmt.Fprintln(stdout(), "No ledger rows pending review")
		return nil
	}
	printTransactions(stdout(), list.Transactions)
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
