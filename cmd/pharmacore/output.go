package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

var output io.Writer = os.Stdout

func stdout() io.Writer { return output }

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printTransaction(w io.Writer, tx *models.StockTransaction) {
	fmt.Fprintf(w, "%s  %s %+d  %d -> %d  %s\n",
		tx.TransactionNumber, tx.Type, tx.Quantity, tx.StockBefore, tx.StockAfter, tx.Status)
}

func printTransactions(w io.Writer, txs []*models.StockTransaction) {
	tw := newTable(w)
	fmt.Fprintln(tw, "NUMBER\tBATCH\tTYPE\tQTY\tBEFORE\tAFTER\tSTATUS\tOPERATOR\tREASON\t")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%+d\t%d\t%d\t%s\t%s\t%s\t\n",
			tx.TransactionNumber, tx.BatchNumber, tx.Type, tx.Quantity,
			tx.StockBefore, tx.StockAfter, tx.Status, tx.Operator, tx.Reason)
	}
	_ = tw.Flush()
}

func printLevel(w io.Writer, med *models.Medicine, level *models.StockLevel, batches []*models.BatchInventory) {
	fmt.Fprintf(w, "%s  %s\n", med.Code, med.Name)
	fmt.Fprintf(w, "  current %d  reserved %d  locked %d  available %d  safety %d\n",
		level.Current, level.Reserved, level.Locked, level.Available, level.SafetyStock)
	if level.BelowSafetyStock {
		fmt.Fprintln(w, "  BELOW SAFETY STOCK")
	}
	if len(batches) == 0 {
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  BATCH\tSTATUS\tCURRENT\tRESERVED\tLOCKED\tAVAILABLE\tEXPIRY\tLOCATION\t")
	for _, b := range batches {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t\n",
			b.BatchNumber, b.Status(), b.Current(), b.Reserved(), b.Locked(), b.Available(),
			util.FormatOptionalDate(b.ExpiryDate), b.Location)
	}
	_ = tw.Flush()
}

func printOutcome(w io.Writer, what string, key models.BatchKey, qty int64, o inventory.HoldOutcome) error {
	if err := o.Err(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d on %s: available %d, reserved %d, locked %d\n",
		what, qty, key.BatchNumber, o.Levels.Available, o.Levels.Reserved, o.Levels.Locked)
	return nil
}

func printRecord(w io.Writer, rec *models.DispenseRecord) {
	fmt.Fprintf(w, "%s  %s  patient %s\n", rec.DispenseNumber, rec.Status, rec.PatientID)
	fmt.Fprintf(w, "  validation %s  stock %s  quality %s  amount %s\n",
		rec.ValidationResult, rec.StockCheckResult, rec.QualityCheckResult, rec.TotalAmount.StringFixed(2))
	if rec.ValidationNotes != "" {
		fmt.Fprintf(w, "  notes: %s\n", rec.ValidationNotes)
	}
	if len(rec.Items) == 0 {
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  LINE\tITEM\tBATCH\tDISPENSED\tSTATUS\tAMOUNT\t")
	for _, it := range rec.Items {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%d/%d\t%s\t%s\t\n",
			it.LineNo, it.ID, orDash(it.BatchNumber), it.DispensedQuantity, it.PrescribedQuantity,
			it.Status, it.Amount.StringFixed(2))
	}
	_ = tw.Flush()
}

func printEligibility(w io.Writer, r *dispensing.EligibilityReport) {
	if r.Eligible {
		fmt.Fprintln(w, "Eligible for dispensing")
	} else {
		fmt.Fprintln(w, "Not eligible: "+strings.Join(r.Reasons, "; "))
	}
	fmt.Fprintf(w, "  validation %s  stock %s\n", r.Validation, r.StockCheck)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	for _, it := range r.Items {
		allocated := int64(0)
		if it.Plan != nil {
			allocated = it.Plan.Allocated
		}
		fmt.Fprintf(w, "  %-12s %d of %d allocatable\n", it.MedicineCode, allocated, it.Requested)
		if it.Plan == nil {
			continue
		}
		for _, a := range it.Plan.Allocations {
			fmt.Fprintf(w, "      %s x%d  expires %s\n", a.Key.BatchNumber, a.Quantity, util.FormatOptionalDate(a.ExpiryDate))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
