package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Query and move batch stock",
}

var stockOpts struct {
	batch       string
	expiry      string
	produced    string
	price       string
	location    string
	reason      string
	destination string
	holder      string
}

func init() {
	level := &cobra.Command{
		Use:   "level <medicine-code>",
		Short: "Show the stock level of a medicine and its batches",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, runStockLevel),
	}

	receive := &cobra.Command{
		Use:   "receive <medicine-code> <batch> <quantity>",
		Short: "Record received stock",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockReceive),
	}
	receive.Flags().StringVar(&stockOpts.expiry, "expiry", "", "expiry date (YYYY-MM-DD), required for new batches")
	receive.Flags().StringVar(&stockOpts.produced, "produced", "", "production date (YYYY-MM-DD)")
	receive.Flags().StringVar(&stockOpts.price, "price", "", "purchase unit price")
	receive.Flags().StringVar(&stockOpts.location, "location", "", "shelf location")

	reserve := &cobra.Command{
		Use:   "reserve <medicine-code> <quantity>",
		Short: "Reserve stock on one batch, or across batches first-expiry-first-out",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, runStockReserve),
	}
	reserve.Flags().StringVar(&stockOpts.batch, "batch", "", "reserve on this batch only")
	reserve.Flags().StringVar(&stockOpts.holder, "holder", "", "reference recorded on a cross-batch reservation")

	release := &cobra.Command{
		Use:   "release <medicine-code> <batch> <quantity>",
		Short: "Release reserved stock",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockRelease),
	}

	freeze := &cobra.Command{
		Use:   "freeze <medicine-code> <batch>",
		Short: "Freeze a batch so it cannot be allocated",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, statusSetter(models.BatchStatusFrozen)),
	}
	unfreeze := &cobra.Command{
		Use:   "unfreeze <medicine-code> <batch>",
		Short: "Return a frozen batch to service",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, statusSetter(models.BatchStatusNormal)),
	}

	take := &cobra.Command{
		Use:   "take <medicine-code> <batch> <counted>",
		Short: "Record a physical stock count",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockTake),
	}

	transfer := &cobra.Command{
		Use:   "transfer <medicine-code> <batch> <quantity>",
		Short: "Transfer stock out to another location",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockTransfer),
	}
	transfer.Flags().StringVar(&stockOpts.destination, "to", "", "destination location or pharmacy")
	_ = transfer.MarkFlagRequired("to")

	loss := &cobra.Command{
		Use:   "loss <medicine-code> <batch> <quantity>",
		Short: "Record damaged or missing units",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockLoss),
	}

	writeoff := &cobra.Command{
		Use:   "writeoff <medicine-code> <batch>",
		Short: "Write off all stock of an expired batch",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, runStockWriteOff),
	}

	history := &cobra.Command{
		Use:   "history <medicine-code> [batch]",
		Short: "Show ledger rows for a medicine or one batch",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  withEnv(setupOptions{}, runStockHistory),
	}

	for _, c := range []*cobra.Command{freeze, unfreeze, take, loss, transfer} {
		c.Flags().StringVar(&stockOpts.reason, "reason", "", "reason recorded on the ledger")
	}

	lock := &cobra.Command{
		Use:   "lock <medicine-code> <batch> <quantity>",
		Short: "Hold stock outside normal allocation",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockLock),
	}
	unlock := &cobra.Command{
		Use:   "unlock <medicine-code> <batch> <quantity>",
		Short: "Release locked stock",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runStockUnlock),
	}

	stockCmd.AddCommand(level, receive, reserve, release, lock, unlock, freeze, unfreeze, take, transfer, loss, writeoff, history)
	rootCmd.AddCommand(stockCmd)
}

func parseQuantity(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := util.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &t, nil
}

func runStockLevel(ctx context.Context, e *env, args []string) error {
	med, err := e.svc.Catalog.GetMedicineByCode(ctx, args[0])
	if err != nil {
		return err
	}
	level, err := e.svc.Store.GetCurrentStockLevel(ctx, med.ID)
	if err != nil {
		return err
	}
	list, err := e.svc.Store.ListBatches(ctx, models.BatchFilter{MedicineID: med.ID}, models.Pagination{Page: 1, PageSize: 100})
	if err != nil {
		return err
	}
	printLevel(stdout(), med, level, list.Batches)
	return nil
}

func runStockReceive(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}

	meta := models.BatchMeta{Location: stockOpts.location}
	if meta.ExpiryDate, err = parseOptionalDate(stockOpts.expiry); err != nil {
		return err
	}
	if meta.ProductionDate, err = parseOptionalDate(stockOpts.produced); err != nil {
		return err
	}
	if stockOpts.price != "" {
		if meta.PurchasePrice, err = decimal.NewFromString(stockOpts.price); err != nil {
			return fmt.Errorf("invalid price %q: %w", stockOpts.price, err)
		}
	}

	tx, err := e.svc.Store.AddStock(ctx, inventory.AddStockInput{
		Key:      key,
		Quantity: qty,
		Meta:     meta,
		Entry:    inventory.Entry{Operator: operator, Reason: "received", UnitPrice: meta.PurchasePrice},
	})
	if err != nil {
		return err
	}
	printTransaction(stdout(), tx)
	return nil
}

func runStockReserve(ctx context.Context, e *env, args []string) error {
	qty, err := parseQuantity(args[1])
	if err != nil {
		return err
	}

	if stockOpts.batch != "" {
		key, err := e.batchKey(ctx, args[0], stockOpts.batch)
		if err != nil {
			return err
		}
		outcome, err := e.svc.Store.Reserve(ctx, key, qty)
		if err != nil {
			return err
		}
		return printOutcome(stdout(), "Reserved", key, qty, outcome)
	}

	med, err := e.svc.Catalog.GetMedicineByCode(ctx, args[0])
	if err != nil {
		return err
	}
	holder := stockOpts.holder
	if holder == "" {
		holder = opts.operator
	}
	res, err := inventory.NewReservationManager(e.svc.Store).ReserveAcrossBatches(ctx, med.ID, qty, holder)
	if err != nil {
		return err
	}
	out := stdout()
	fmt.Fprintf(out, "Reserved %d %s across %d batch(es)\n", res.Quantity, med.Code, len(res.Allocations))
	for _, a := range res.Allocations {
		fmt.Fprintf(out, "  %s x%d  expires %s\n", a.Key.BatchNumber, a.Quantity, util.FormatOptionalDate(a.ExpiryDate))
	}
	return nil
}

func runStockRelease(ctx context.Context, e *env, args []string) error {
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	released, err := e.svc.Store.ReleaseReserved(ctx, key, qty)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(), "Released %d of %d reserved on %s\n", released, qty, key.BatchNumber)
	return nil
}

func statusSetter(status models.BatchStatus) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		operator, err := e.operator()
		if err != nil {
			return err
		}
		key, err := e.batchKey(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if err := e.svc.Store.SetStatus(ctx, key, status, operator, stockOpts.reason); err != nil {
			return err
		}
		fmt.Fprintf(stdout(), "%s is now %s\n", key.BatchNumber, status)
		return nil
	}
}

func runStockTake(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	counted, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	tx, err := e.svc.Store.PerformStockTake(ctx, inventory.StockTakeInput{
		Key: key, Counted: counted, Operator: operator, Reason: stockOpts.reason,
	})
	if err != nil {
		return err
	}
	printTransaction(stdout(), tx)
	return nil
}

func runStockWriteOff(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	tx, err := e.svc.Store.WriteOffExpired(ctx, key, operator)
	if err != nil {
		return err
	}
	if tx == nil {
		fmt.Fprintf(stdout(), "%s has no stock to write off\n", key.BatchNumber)
		return nil
	}
	printTransaction(stdout(), tx)
	return nil
}

func runStockTransfer(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	tx, err := e.svc.Store.TransferStock(ctx, inventory.TransferInput{
		Key: key, Quantity: qty, Destination: stockOpts.destination, Operator: operator, Reason: stockOpts.reason,
	})
	if err != nil {
		return err
	}
	printTransaction(stdout(), tx)
	return nil
}

func runStockLoss(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	tx, err := e.svc.Store.RecordLoss(ctx, inventory.LossInput{
		Key: key, Quantity: qty, Operator: operator, Reason: stockOpts.reason,
	})
	if err != nil {
		return err
	}
	printTransaction(stdout(), tx)
	if tx.Status == models.TransactionStatusPendingReview {
		fmt.Fprintf(stdout(), "Pending review: pharmacore ledger review %s\n", tx.TransactionNumber)
	}
	return nil
}

func runStockHistory(ctx context.Context, e *env, args []string) error {
	med, err := e.svc.Catalog.GetMedicineByCode(ctx, args[0])
	if err != nil {
		return err
	}
	filter := models.TransactionFilter{MedicineID: med.ID}
	if len(args) == 2 {
		filter.BatchNumber = args[1]
	}
	list, err := e.svc.Ledger.History(ctx, filter, models.Pagination{Page: 1, PageSize: 50})
	if err != nil {
		return err
	}
	printTransactions(stdout(), list.Transactions)
	return nil
}

func runStockLock(ctx context.Context, e *env, args []string) error {
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	outcome, err := e.svc.Store.Lock(ctx, key, qty)
	if err != nil {
		return err
	}
	return printOutcome(stdout(), "Locked", key, qty, outcome)
}

func runStockUnlock(ctx context.Context, e *env, args []string) error {
	key, err := e.batchKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	unlocked, err := e.svc.Store.Unlock(ctx, key, qty)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(), "Unlocked %d of %d locked on %s\n", unlocked, qty, key.BatchNumber)
	return nil
}
