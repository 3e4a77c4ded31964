// Package dispense provides the console dispensing queue.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/tui/components"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Workflow is the part of the dispensing service the queue drives.
type Workflow interface {
	ReadyPrescriptions(ctx context.Context, page models.Pagination) ([]*models.Prescription, int, error)
	List(ctx context.Context, filter models.DispenseFilter, page models.Pagination) (*models.DispenseList, error)
	Get(ctx context.Context, id string) (*models.DispenseRecord, error)
	CheckEligibility(ctx context.Context, prescriptionID string) (*dispensing.EligibilityReport, error)
	Start(ctx context.Context, prescriptionID, pharmacistID string) (*models.DispenseRecord, error)
	DispenseRemaining(ctx context.Context, recordID, pharmacistID string) (*dispensing.AutoDispenseReport, error)
	Complete(ctx context.Context, recordID string) (*models.DispenseRecord, error)
	Review(ctx context.Context, recordID string, in dispensing.ReviewInput) (*models.DispenseRecord, error)
	Deliver(ctx context.Context, in dispensing.DeliverInput) (*models.DispenseRecord, error)
	Cancel(ctx context.Context, recordID, operator, reason string) (*models.DispenseRecord, error)
}

// entry is one queue row: a prescription waiting for its first record, or
// an open record.
type entry struct {
	rx  *models.Prescription
	rec *models.DispenseRecord
}

func (e entry) prescriptionID() string {
	if e.rec != nil {
		return e.rec.PrescriptionID
	}
	return e.rx.ID
}

// ErrNoSelection is returned by actions when the queue is empty.
var ErrNoSelection = errors.New("nothing selected")

// Queue lists ready prescriptions and open dispense records.
type Queue struct {
	workflow Workflow
	styles   components.Styles
	table    *components.Table
	entries  []entry

	detail      *models.DispenseRecord
	eligibility *dispensing.EligibilityReport
	err         error
}

// NewQueue creates the dispensing queue.
func NewQueue(workflow Workflow, styles components.Styles) *Queue {
	table := components.NewTable([]components.Column{
		{Title: "Number", Width: 22},
		{Title: "Patient", Width: 12},
		{Title: "Amount", Width: 9, Align: lipgloss.Right},
		{Title: "Status", Width: 20},
		{Title: "Stock", Width: 12},
		{Title: "Check", Width: 8},
	}, styles)
	table.SetVisibleRows(15)
	table.Focus(true)
	return &Queue{workflow: workflow, styles: styles, table: table}
}

// Load rebuilds the queue: open records first, then reviewed prescriptions
// that have none.
func (q *Queue) Load(ctx context.Context) error {
	q.err = nil
	open, err := q.workflow.List(ctx, models.DispenseFilter{ActiveOnly: true}, models.Pagination{Page: 1, PageSize: 50})
	if err != nil {
		q.err = err
		return err
	}
	ready, _, err := q.workflow.ReadyPrescriptions(ctx, models.Pagination{Page: 1, PageSize: 50})
	if err != nil {
		q.err = err
		return err
	}

	busy := make(map[string]bool, len(open.Records))
	entries := make([]entry, 0, len(open.Records)+len(ready))
	for _, rec := range open.Records {
		busy[rec.PrescriptionID] = true
		entries = append(entries, entry{rec: rec})
	}
	for _, rx := range ready {
		if !busy[rx.ID] {
			entries = append(entries, entry{rx: rx})
		}
	}
	q.setEntries(entries)
	return nil
}

func (q *Queue) setEntries(entries []entry) {
	q.entries = entries
	rows := make([][]string, len(entries))
	for i, e := range entries {
		if e.rec != nil {
			rows[i] = []string{
				e.rec.DispenseNumber,
				e.rec.PatientID,
				e.rec.TotalAmount.StringFixed(2),
				string(e.rec.Status),
				string(e.rec.StockCheckResult),
				string(e.rec.ValidationResult),
			}
			continue
		}
		rows[i] = []string{e.rx.PrescriptionNumber, e.rx.PatientID, "-", "READY", "-", "-"}
	}
	q.table.SetRows(rows)
	for i, e := range entries {
		switch {
		case e.rec == nil:
			q.table.Mark(i, components.MarkMuted)
		case e.rec.StockCheckResult == models.StockCheckInsufficient || e.rec.ValidationResult == models.ValidationFail:
			q.table.Mark(i, components.MarkError)
		case e.rec.StockCheckResult == models.StockCheckPartial || e.rec.ValidationResult == models.ValidationNeedsReview:
			q.table.Mark(i, components.MarkWarning)
		}
	}
	q.table.SetPagination(1, 1, len(entries))
}

func (q *Queue) MoveUp()   { q.table.MoveUp() }
func (q *Queue) MoveDown() { q.table.MoveDown() }

func (q *Queue) selected() (entry, error) {
	i := q.table.Selected()
	if i < 0 || i >= len(q.entries) {
		return entry{}, ErrNoSelection
	}
	return q.entries[i], nil
}

func (q *Queue) selectedRecord(op string) (*models.DispenseRecord, error) {
	e, err := q.selected()
	if err != nil {
		return nil, err
	}
	if e.rec == nil {
		return nil, fmt.Errorf("%s: prescription %s has not been started", op, e.rx.PrescriptionNumber)
	}
	return e.rec, nil
}

// OpenDetail loads the selected record with its items, or the eligibility
// report of a prescription that has not been started.
func (q *Queue) OpenDetail(ctx context.Context) error {
	e, err := q.selected()
	if err != nil {
		return err
	}
	q.detail, q.eligibility = nil, nil
	if e.rec != nil {
		q.detail, err = q.workflow.Get(ctx, e.rec.ID)
		return err
	}
	q.eligibility, err = q.workflow.CheckEligibility(ctx, e.rx.ID)
	return err
}

// CloseDetail returns to the list.
func (q *Queue) CloseDetail() {
	q.detail, q.eligibility = nil, nil
}

// Start opens or promotes the record of the selected prescription.
func (q *Queue) Start(ctx context.Context, pharmacist string) (string, error) {
	e, err := q.selected()
	if err != nil {
		return "", err
	}
	rec, err := q.workflow.Start(ctx, e.prescriptionID(), pharmacist)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s started (%s)", rec.DispenseNumber, rec.StockCheckResult), nil
}

// AutoDispense dispenses every outstanding line of the selected record.
func (q *Queue) AutoDispense(ctx context.Context, pharmacist string) (string, error) {
	rec, err := q.selectedRecord("dispense")
	if err != nil {
		return "", err
	}
	report, err := q.workflow.DispenseRemaining(ctx, rec.ID, pharmacist)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("%s: %d line(s) dispensed", rec.DispenseNumber, len(report.Dispensed))
	for _, short := range report.Short {
		switch {
		case short.Shortage != nil:
			msg += "; " + short.Shortage.Error()
		case short.Unavailable != nil:
			msg += "; " + short.Unavailable.Error()
		}
	}
	return msg, nil
}

// Complete closes dispensing on the selected record.
func (q *Queue) Complete(ctx context.Context) (string, error) {
	rec, err := q.selectedRecord("complete")
	if err != nil {
		return "", err
	}
	done, err := q.workflow.Complete(ctx, rec.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s dispensed, quality %s", done.DispenseNumber, done.QualityCheckResult), nil
}

// Approve records a passing pharmacist review.
func (q *Queue) Approve(ctx context.Context, pharmacist string) (string, error) {
	rec, err := q.selectedRecord("review")
	if err != nil {
		return "", err
	}
	done, err := q.workflow.Review(ctx, rec.ID, dispensing.ReviewInput{
		ReviewerID: pharmacist,
		Comments:   "approved at console",
		Approved:   true,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s reviewed by %s", done.DispenseNumber, pharmacist), nil
}

// Deliver hands every dispensed line of the selected record over.
func (q *Queue) Deliver(ctx context.Context, pharmacist string) (string, error) {
	rec, err := q.selectedRecord("deliver")
	if err != nil {
		return "", err
	}
	done, err := q.workflow.Deliver(ctx, dispensing.DeliverInput{RecordID: rec.ID, PharmacistID: pharmacist})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", done.DispenseNumber, strings.ToLower(string(done.Status))), nil
}

// Cancel abandons the selected record and restores its stock.
func (q *Queue) Cancel(ctx context.Context, pharmacist string) (string, error) {
	rec, err := q.selectedRecord("cancel")
	if err != nil {
		return "", err
	}
	done, err := q.workflow.Cancel(ctx, rec.ID, pharmacist, "cancelled at console")
	if err != nil {
		return "", err
	}
	return done.DispenseNumber + " cancelled", nil
}

// InDetail reports whether a detail page is open.
func (q *Queue) InDetail() bool {
	return q.detail != nil || q.eligibility != nil
}

// Render draws the queue.
func (q *Queue) Render(width int) string {
	var b strings.Builder

	b.WriteString(q.styles.Title.Render("=== DISPENSING QUEUE ==="))
	b.WriteString("\n\n")

	if q.err != nil {
		b.WriteString(q.styles.Error.Render("Error: " + models.UserMessage(q.err)))
		b.WriteString("\n\n")
	}
	if q.table.Empty() {
		b.WriteString(q.styles.Label.Render("No prescriptions waiting."))
		b.WriteString("\n")
	} else {
		b.WriteString(q.table.Render())
	}

	b.WriteString("\n")
	if width < 80 {
		b.WriteString(q.styles.Help.Render("s:Start a:Auto c:Done r:Rev d:Dlv x:Cncl"))
	} else {
		b.WriteString(q.styles.Help.Render("Enter:Detail  s:Start  a:Auto-dispense  c:Complete  r:Approve  d:Deliver  x:Cancel"))
	}
	return b.String()
}

// RenderDetail draws the open detail page.
func (q *Queue) RenderDetail() string {
	switch {
	case q.detail != nil:
		return q.renderRecord(q.detail)
	case q.eligibility != nil:
		return q.renderEligibility(q.eligibility)
	}
	return q.styles.Label.Render("Nothing selected")
}

func (q *Queue) field(k, v string) string {
	return q.styles.Label.Width(16).Render(k+":") + " " + q.styles.Value.Render(v) + "\n"
}

func (q *Queue) renderRecord(rec *models.DispenseRecord) string {
	var b strings.Builder
	b.WriteString(q.styles.Title.Render("=== " + rec.DispenseNumber + " ==="))
	b.WriteString("\n\n")

	b.WriteString(q.field("Status", string(rec.Status)))
	b.WriteString(q.field("Patient", rec.PatientID))
	b.WriteString(q.field("Pharmacist", rec.PharmacistID))
	b.WriteString(q.field("Validation", strings.TrimSpace(string(rec.ValidationResult)+" "+rec.ValidationNotes)))
	b.WriteString(q.field("Stock check", string(rec.StockCheckResult)))
	b.WriteString(q.field("Quality", strings.TrimSpace(string(rec.QualityCheckResult)+" "+rec.QualityNotes)))
	if rec.ReviewerID != nil {
		b.WriteString(q.field("Reviewed by", *rec.ReviewerID+" "+util.FormatOptionalDate(rec.ReviewedAt)))
	}
	b.WriteString(q.field("Total", rec.TotalAmount.StringFixed(2)))
	if rec.Status != models.DispenseStatusPending && rec.Status != models.DispenseStatusInProgress {
		b.WriteString(q.field("Actual", rec.ActualAmount.StringFixed(2)))
	}
	if rec.Reason != "" {
		b.WriteString(q.field("Reason", rec.Reason))
	}
	b.WriteString("\n")

	b.WriteString(q.styles.Section.Render("ITEMS"))
	b.WriteString("\n")
	for _, it := range rec.Items {
		line := fmt.Sprintf("  %2d  %-12s %4d/%-4d %-12s %s",
			it.LineNo, it.MedicineID, it.DispensedQuantity, it.PrescribedQuantity, it.Status, it.BatchNumber)
		if it.OriginalMedicineID != nil {
			line += "  (for " + *it.OriginalMedicineID + ": " + it.SubstitutionReason + ")"
		}
		style := q.styles.Value
		switch it.Status {
		case models.DispenseItemOutOfStock:
			style = q.styles.Error
		case models.DispenseItemPending, models.DispenseItemReturned:
			style = q.styles.Muted
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
		for _, a := range it.ActiveAllocations() {
			b.WriteString(q.styles.Muted.Render(fmt.Sprintf("        %s x%d  %s", a.BatchNumber, a.Quantity, a.TransactionNumber)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(q.styles.Help.Render("Esc:Back"))
	return b.String()
}

func (q *Queue) renderEligibility(r *dispensing.EligibilityReport) string {
	var b strings.Builder
	b.WriteString(q.styles.Title.Render("=== ELIGIBILITY ==="))
	b.WriteString("\n\n")

	if r.Eligible {
		b.WriteString(q.styles.Success.Render("Eligible for dispensing"))
	} else {
		b.WriteString(q.styles.Error.Render("Not eligible"))
	}
	b.WriteString("\n")
	for _, reason := range r.Reasons {
		b.WriteString(q.styles.Error.Render("  - " + reason))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(q.field("Stock check", string(r.StockCheck)))
	b.WriteString(q.field("Validation", string(r.Validation)))
	for _, w := range r.Warnings {
		b.WriteString(q.styles.Warning.Render("  ! " + w.String()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(q.styles.Section.Render("PLAN"))
	b.WriteString("\n")
	for _, it := range r.Items {
		style := q.styles.Value
		if !it.Plan.Satisfied() {
			style = q.styles.Warning
		}
		b.WriteString(style.Render(fmt.Sprintf("  %-12s %d of %d allocatable", it.MedicineCode, it.Plan.Allocated, it.Requested)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(q.styles.Help.Render("Esc:Back  s:Start"))
	return b.String()
}
