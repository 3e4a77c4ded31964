package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
)

var dispenseCmd = &cobra.Command{
	Use:   "dispense",
	Short: "Run the prescription dispense workflow",
}

var dispenseOpts struct {
	reason   string
	comments string
	reject   bool
	failed   bool
	batch    string
	quantity int64
	withhold []int
}

func init() {
	queue := &cobra.Command{
		Use:   "queue",
		Short: "List reviewed prescriptions and active dispense records",
		Args:  cobra.NoArgs,
		RunE:  withEnv(setupOptions{}, runDispenseQueue),
	}
	show := &cobra.Command{
		Use:   "show <dispense-number>",
		Short: "Show a dispense record and its items",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, recordCmd(func(_ context.Context, _ *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			return rec, nil
		})),
	}
	check := &cobra.Command{
		Use:   "check <prescription-number>",
		Short: "Check whether a prescription can be dispensed, without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, runDispenseCheck),
	}
	enqueue := &cobra.Command{
		Use:   "enqueue <prescription-number>",
		Short: "Open a pending dispense record without starting it",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, runDispenseEnqueue),
	}
	start := &cobra.Command{
		Use:   "start <prescription-number>",
		Short: "Start dispensing a prescription",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, runDispenseStart),
	}
	auto := &cobra.Command{
		Use:   "auto <dispense-number>",
		Short: "Dispense every remaining item first-expiry-first-out",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(setupOptions{}, runDispenseAuto),
	}
	item := &cobra.Command{
		Use:   "item <dispense-number> <line>",
		Short: "Dispense one item, optionally from a chosen batch",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, runDispenseItem),
	}
	item.Flags().StringVar(&dispenseOpts.batch, "batch", "", "dispense from this batch")
	item.Flags().Int64Var(&dispenseOpts.quantity, "quantity", 0, "quantity to dispense, defaults to the prescribed quantity")

	substitute := &cobra.Command{
		Use:   "substitute <dispense-number> <line> <medicine-code>",
		Short: "Replace an item's medicine",
		Args:  cobra.ExactArgs(3),
		RunE:  withEnv(setupOptions{}, runDispenseSubstitute),
	}
	substitute.Flags().StringVar(&dispenseOpts.batch, "batch", "", "dispense the substitute from this batch")

	complete := &cobra.Command{
		Use:   "complete <dispense-number>",
		Short: "Complete dispensing once every item is settled",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			return e.svc.Dispensing.Complete(ctx, rec.ID)
		})),
	}
	quality := &cobra.Command{
		Use:   "quality <dispense-number>",
		Short: "Record a manual quality check",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			operator, err := e.operator()
			if err != nil {
				return nil, err
			}
			return e.svc.Dispensing.RecordQualityCheck(ctx, rec.ID, operator, !dispenseOpts.failed, dispenseOpts.comments)
		})),
	}
	quality.Flags().BoolVar(&dispenseOpts.failed, "failed", false, "record the check as failed")

	review := &cobra.Command{
		Use:   "review <dispense-number>",
		Short: "Approve or reject a record that needs pharmacist review",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			operator, err := e.operator()
			if err != nil {
				return nil, err
			}
			return e.svc.Dispensing.Review(ctx, rec.ID, dispensing.ReviewInput{
				ReviewerID: operator,
				Comments:   dispenseOpts.comments,
				Approved:   !dispenseOpts.reject,
			})
		})),
	}
	review.Flags().BoolVar(&dispenseOpts.reject, "reject", false, "reject instead of approve")

	deliver := &cobra.Command{
		Use:   "deliver <dispense-number>",
		Short: "Hand dispensed items to the patient",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			operator, err := e.operator()
			if err != nil {
				return nil, err
			}
			withheld, err := itemIDs(rec, dispenseOpts.withhold)
			if err != nil {
				return nil, err
			}
			return e.svc.Dispensing.Deliver(ctx, dispensing.DeliverInput{
				RecordID:        rec.ID,
				PharmacistID:    operator,
				WithheldItemIDs: withheld,
			})
		})),
	}
	deliver.Flags().IntSliceVar(&dispenseOpts.withhold, "withhold", nil, "line numbers not handed over this time")

	ret := &cobra.Command{
		Use:   "return <dispense-number>",
		Short: "Take back a dispensed prescription and restore its stock",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			operator, err := e.operator()
			if err != nil {
				return nil, err
			}
			return e.svc.Dispensing.Return(ctx, rec.ID, operator, dispenseOpts.reason)
		})),
	}
	cancel := &cobra.Command{
		Use:   "cancel <dispense-number>",
		Short: "Cancel a record and restore any consumed stock",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(setupOptions{}, recordCmd(func(ctx context.Context, e *env, rec *models.DispenseRecord) (*models.DispenseRecord, error) {
			operator, err := e.operator()
			if err != nil {
				return nil, err
			}
			return e.svc.Dispensing.Cancel(ctx, rec.ID, operator, dispenseOpts.reason)
		})),
	}
	returnItem := &cobra.Command{
		Use:   "return-item <dispense-number> <line>",
		Short: "Take back one dispensed item so it can be dispensed again",
		Args:  cobra.ExactArgs(2),
		RunE:  withEnv(setupOptions{}, runDispenseReturnItem),
	}
	for _, c := range []*cobra.Command{ret, cancel, substitute, returnItem} {
		c.Flags().StringVar(&dispenseOpts.reason, "reason", "", "reason recorded on the record")
		_ = c.MarkFlagRequired("reason")
	}
	for _, c := range []*cobra.Command{quality, review} {
		c.Flags().StringVar(&dispenseOpts.comments, "comments", "", "comments recorded with the check")
	}

	dispenseCmd.AddCommand(queue, show, check, enqueue, start, auto, item, substitute, returnItem, complete, quality, review, deliver, ret, cancel)
	rootCmd.AddCommand(dispenseCmd)
}

// recordCmd looks up the record named by the first argument, applies fn and
// prints the result.
func recordCmd(fn func(context.Context, *env, *models.DispenseRecord) (*models.DispenseRecord, error)) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		rec, err := e.svc.Dispensing.GetByNumber(ctx, args[0])
		if err != nil {
			return err
		}
		rec, err = fn(ctx, e, rec)
		if err != nil {
			return err
		}
		printRecord(stdout(), rec)
		return nil
	}
}

func itemByLine(rec *models.DispenseRecord, arg string) (*models.DispenseItem, error) {
	line, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid line number %q", arg)
	}
	for _, it := range rec.Items {
		if it.LineNo == line {
			return it, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "dispense item", Key: rec.DispenseNumber + " line " + arg}
}

func itemIDs(rec *models.DispenseRecord, lines []int) ([]string, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		it, err := itemByLine(rec, strconv.Itoa(line))
		if err != nil {
			return nil, err
		}
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func runDispenseQueue(ctx context.Context, e *env, _ []string) error {
	out := stdout()
	page := models.Pagination{Page: 1, PageSize: 50}

	active, err := e.svc.Dispensing.List(ctx, models.DispenseFilter{ActiveOnly: true}, page)
	if err != nil {
		return err
	}
	ready, total, err := e.svc.Dispensing.ReadyPrescriptions(ctx, page)
	if err != nil {
		return err
	}
	if len(active.Records) == 0 && total == 0 {
		fmt.Fprintln(out, "No prescriptions waiting")
		return nil
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "NUMBER\tPATIENT\tSTATUS\tSTOCK\tCHECK\tAMOUNT\t")
	busy := make(map[string]bool, len(active.Records))
	for _, rec := range active.Records {
		busy[rec.PrescriptionID] = true
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", rec.DispenseNumber, rec.PatientID, rec.Status,
			rec.StockCheckResult, rec.ValidationResult, rec.TotalAmount.StringFixed(2))
	}
	for _, rx := range ready {
		if busy[rx.ID] {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\tREADY\t-\t-\t-\t\n", rx.PrescriptionNumber, rx.PatientID)
	}
	return tw.Flush()
}

func runDispenseCheck(ctx context.Context, e *env, args []string) error {
	rx, err := e.svc.Dispensing.GetPrescriptionByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	report, err := e.svc.Dispensing.CheckEligibility(ctx, rx.ID)
	if err != nil {
		return err
	}
	printEligibility(stdout(), report)
	return nil
}

func runDispenseEnqueue(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rx, err := e.svc.Dispensing.GetPrescriptionByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.Enqueue(ctx, rx.ID, operator)
	if err != nil {
		return err
	}
	printRecord(stdout(), rec)
	return nil
}

func runDispenseStart(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rx, err := e.svc.Dispensing.GetPrescriptionByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.Start(ctx, rx.ID, operator)
	if err != nil {
		return err
	}
	printRecord(stdout(), rec)
	return nil
}

func runDispenseAuto(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.GetByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	report, err := e.svc.Dispensing.DispenseRemaining(ctx, rec.ID, operator)
	if err != nil {
		return err
	}

	out := stdout()
	fmt.Fprintf(out, "%d line(s) dispensed\n", len(report.Dispensed))
	for _, short := range report.Short {
		switch {
		case short.Shortage != nil:
			fmt.Fprintf(out, "  line %d: %s\n", short.Item.LineNo, short.Shortage.Error())
		case short.Unavailable != nil:
			fmt.Fprintf(out, "  line %d: %s\n", short.Item.LineNo, short.Unavailable.Error())
		}
	}
	return nil
}

func runDispenseItem(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.GetByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	it, err := itemByLine(rec, args[1])
	if err != nil {
		return err
	}

	res, err := e.svc.Dispensing.DispenseItem(ctx, dispensing.DispenseItemInput{
		RecordID:     rec.ID,
		ItemID:       it.ID,
		BatchNumber:  dispenseOpts.batch,
		Quantity:     dispenseOpts.quantity,
		PharmacistID: operator,
	})
	if err != nil {
		return err
	}

	out := stdout()
	if !res.Dispensed() {
		if res.Shortage != nil {
			return res.Shortage
		}
		return res.Unavailable
	}
	fmt.Fprintf(out, "Line %d: %d %s dispensed\n", res.Item.LineNo, res.Item.DispensedQuantity, res.Item.Unit)
	for _, a := range res.Allocations {
		fmt.Fprintf(out, "  %s x%d\n", a.BatchNumber, a.Quantity)
	}
	return nil
}

func runDispenseSubstitute(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.GetByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	it, err := itemByLine(rec, args[1])
	if err != nil {
		return err
	}
	med, err := e.svc.Catalog.GetMedicineByCode(ctx, args[2])
	if err != nil {
		return err
	}

	item, err := e.svc.Dispensing.Substitute(ctx, dispensing.SubstituteInput{
		RecordID:      rec.ID,
		ItemID:        it.ID,
		NewMedicineID: med.ID,
		Reason:        dispenseOpts.reason,
		BatchNumber:   dispenseOpts.batch,
		PharmacistID:  operator,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(), "Line %d substituted with %s: %d dispensed, %s\n", item.LineNo, med.Code, item.DispensedQuantity, item.Status)
	return nil
}

func runDispenseReturnItem(ctx context.Context, e *env, args []string) error {
	operator, err := e.operator()
	if err != nil {
		return err
	}
	rec, err := e.svc.Dispensing.GetByNumber(ctx, args[0])
	if err != nil {
		return err
	}
	it, err := itemByLine(rec, args[1])
	if err != nil {
		return err
	}
	item, err := e.svc.Dispensing.ReturnItem(ctx, rec.ID, it.ID, operator, dispenseOpts.reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(), "Line %d returned, %s\n", item.LineNo, item.Status)
	return nil
}
