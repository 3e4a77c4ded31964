package dispensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

// ============================================================================
// Opening a record
// ============================================================================

// Enqueue creates a Pending record so the prescription shows in the
// dispense queue. Start promotes it.
func (s *Service) Enqueue(ctx context.Context, prescriptionID, pharmacistID string) (*models.DispenseRecord, error) {
	unlock := s.lockPrescription(prescriptionID)
	defer unlock()

	report, err := s.CheckEligibility(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if report.PendingRecord != nil {
		return report.PendingRecord, nil
	}
	if !report.Eligible {
		return nil, fmt.Errorf("%w: %s", models.ErrPrescriptionNotEligible, strings.Join(report.Reasons, "; "))
	}

	return s.open(ctx, prescriptionID, pharmacistID, report, false)
}

// Start begins dispensing. The prescription must be reviewed, unexpired and
// without an open record; a queued Pending record is promoted. The
// eligibility results are stamped on the record, and a failed clinical
// check rejects the start.
func (s *Service) Start(ctx context.Context, prescriptionID, pharmacistID string) (*models.DispenseRecord, error) {
	if pharmacistID == "" {
		return nil, errors.New("pharmacist is required")
	}
	unlock := s.lockPrescription(prescriptionID)
	defer unlock()

	report, err := s.CheckEligibility(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if !report.Eligible {
		slog.Warn("dispensing refused", "prescription_id", prescriptionID, "reasons", report.Reasons)
		return nil, fmt.Errorf("%w: %s", models.ErrPrescriptionNotEligible, strings.Join(report.Reasons, "; "))
	}

	if pending := report.PendingRecord; pending != nil {
		unlockRecord := s.lockRecord(pending.ID)
		defer unlockRecord()
		return s.run(ctx, pending.ID, "start", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
			if err := rec.TransitionTo(models.DispenseStatusInProgress, m.Now(), "start"); err != nil {
				return err
			}
			rec.PharmacistID = pharmacistID
			stamp(rec, report)
			return nil
		})
	}
	return s.open(ctx, prescriptionID, pharmacistID, report, true)
}

// open creates a record for the prescription, Pending or already started.
func (s *Service) open(ctx context.Context, prescriptionID, pharmacistID string, report *EligibilityReport, start bool) (*models.DispenseRecord, error) {
	var rec *models.DispenseRecord
	err := s.store.Atomic(ctx, nil, func(m *inventory.Mutator) error {
		rx, err := s.prescriptions.Get(ctx, m.Tx(), prescriptionID)
		if err != nil {
			return err
		}
		rec, err = s.newRecord(ctx, m, rx, pharmacistID)
		if err != nil {
			return err
		}
		if start {
			stamp(rec, report)
			if err := rec.TransitionTo(models.DispenseStatusInProgress, m.Now(), "start"); err != nil {
				return err
			}
		}
		return s.records.CreateRecord(ctx, m.Tx(), rec)
	})
	if err != nil {
		return nil, fmt.Errorf("opening dispense record: %w", err)
	}
	s.observe("open", "", rec)
	return rec, nil
}

func (s *Service) newRecord(ctx context.Context, m *inventory.Mutator, rx *models.Prescription, pharmacistID string) (*models.DispenseRecord, error) {
	now := m.Now()
	rec := &models.DispenseRecord{
		ID:                 s.idGenerator.NewID(),
		DispenseNumber:     util.DocumentNumber(util.PrefixDispense, now),
		PrescriptionID:     rx.ID,
		PatientID:          rx.PatientID,
		PharmacistID:       pharmacistID,
		Status:             models.DispenseStatusPending,
		TotalAmount:        decimal.Zero,
		ActualAmount:       decimal.Zero,
		ValidationResult:   models.ValidationPass,
		StockCheckResult:   models.StockCheckSufficient,
		QualityCheckResult: models.QualityCheckPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, line := range rx.Items {
		med, err := m.Medicine(ctx, line.MedicineID)
		if err != nil {
			return nil, err
		}
		rec.Items = append(rec.Items, &models.DispenseItem{
			ID:                 s.idGenerator.NewID(),
			RecordID:           rec.ID,
			PrescriptionItemID: line.ID,
			LineNo:             line.LineNo,
			MedicineID:         line.MedicineID,
			PrescribedQuantity: line.Quantity,
			Unit:               line.Unit,
			UnitPrice:          med.RetailPrice,
			Amount:             decimal.Zero,
			Status:             models.DispenseItemPending,
			UpdatedAt:          now,
		})
		rec.TotalAmount = rec.TotalAmount.Add(med.RetailPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return rec, nil
}

func stamp(rec *models.DispenseRecord, report *EligibilityReport) {
	rec.ValidationResult = report.Validation
	rec.ValidationNotes = report.ValidationNotes
	rec.StockCheckResult = report.StockCheck
}

// ============================================================================
// Completion, review and delivery
// ============================================================================

// Complete moves a record whose items are all Dispensed or Substituted to
// Dispensed, totals the actual amount and runs the quality check when
// configured.
func (s *Service) Complete(ctx context.Context, recordID string) (*models.DispenseRecord, error) {
	unlock := s.lockRecord(recordID)
	defer unlock()

	return s.run(ctx, recordID, "complete", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
		if err := rec.Require("complete", models.DispenseStatusInProgress); err != nil {
			return err
		}
		if open := rec.IncompleteItems(); len(open) > 0 {
			lines := make([]string, 0, len(open))
			for _, it := range open {
				lines = append(lines, fmt.Sprintf("line %d %s", it.LineNo, it.Status))
			}
			return &models.InvalidTransitionError{
				Entity:    "dispense record",
				ID:        rec.DispenseNumber,
				From:      "IN_PROGRESS with " + strings.Join(lines, ", "),
				Operation: "complete",
			}
		}
		if err := rec.TransitionTo(models.DispenseStatusDispensed, m.Now(), "complete"); err != nil {
			return err
		}
		rec.ActualAmount = actualAmount(rec)
		return s.qualityCheck(ctx, m, rec)
	})
}

func actualAmount(rec *models.DispenseRecord) decimal.Decimal {
	total := decimal.Zero
	for _, it := range rec.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// qualityCheck passes when every item was dispensed in full and no consumed
// batch has expired. It only runs when configured.
func (s *Service) qualityCheck(ctx context.Context, m *inventory.Mutator, rec *models.DispenseRecord) error {
	if !s.cfg.AutoQualityCheck {
		return nil
	}
	var problems []string
	for _, it := range rec.Items {
		if it.DispensedQuantity != it.PrescribedQuantity {
			problems = append(problems, fmt.Sprintf("line %d dispensed %d of %d", it.LineNo, it.DispensedQuantity, it.PrescribedQuantity))
		}
		for _, a := range it.ActiveAllocations() {
			b, err := s.store.Batches().Get(ctx, m.Tx(), a.BatchKey())
			if err != nil {
				return err
			}
			if b.IsExpired(m.Now()) {
				problems = append(problems, fmt.Sprintf("line %d batch %s has expired", it.LineNo, a.BatchNumber))
			}
		}
	}
	if len(problems) > 0 {
		rec.QualityCheckResult = models.QualityCheckFail
		rec.QualityNotes = strings.Join(problems, "; ")
		return nil
	}
	rec.QualityCheckResult = models.QualityCheckPass
	rec.QualityNotes = "automatic check passed"
	return nil
}

// RecordQualityCheck records a manual quality inspection, overriding the
// automatic result.
func (s *Service) RecordQualityCheck(ctx context.Context, recordID, inspector string, passed bool, notes string) (*models.DispenseRecord, error) {
	if inspector == "" {
		return nil, errors.New("inspector is required")
	}
	unlock := s.lockRecord(recordID)
	defer unlock()

	return s.run(ctx, recordID, "quality check", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
		if err := rec.Require("record quality check", models.DispenseStatusDispensed, models.DispenseStatusPartiallyDelivered); err != nil {
			return err
		}
		rec.QualityCheckResult = models.QualityCheckFail
		if passed {
			rec.QualityCheckResult = models.QualityCheckPass
		}
		rec.QualityNotes = fmt.Sprintf("%s: %s", inspector, notes)
		return nil
	})
}

// Review attaches a pharmacist review. Approval clears a NeedsReview
// validation to Pass; rejection sets it to Fail.
func (s *Service) Review(ctx context.Context, recordID string, in ReviewInput) (*models.DispenseRecord, error) {
	if in.ReviewerID == "" {
		return nil, errors.New("reviewer is required")
	}
	unlock := s.lockRecord(recordID)
	defer unlock()

	return s.run(ctx, recordID, "review", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
		if err := rec.Require("review",
			models.DispenseStatusInProgress, models.DispenseStatusDispensed, models.DispenseStatusPartiallyDelivered); err != nil {
			return err
		}
		reviewer := in.ReviewerID
		at := m.Now()
		rec.ReviewerID = &reviewer
		rec.ReviewedAt = &at
		rec.ReviewComments = in.Comments
		if in.Approved {
			rec.ValidationResult = models.ValidationPass
		} else {
			rec.ValidationResult = models.ValidationFail
		}
		return nil
	})
}

// Deliver hands dispensed items to the patient. Validation and quality must
// both have passed. Withheld items leave the record PartiallyDelivered; once
// everything is handed over it is Delivered and the prescription is marked
// Dispensed.
func (s *Service) Deliver(ctx context.Context, in DeliverInput) (*models.DispenseRecord, error) {
	unlock := s.lockRecord(in.RecordID)
	defer unlock()

	withheld := make(map[string]bool, len(in.WithheldItemIDs))
	for _, id := range in.WithheldItemIDs {
		withheld[id] = true
	}

	return s.run(ctx, in.RecordID, "deliver", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
		if err := rec.Require("deliver", models.DispenseStatusDispensed, models.DispenseStatusPartiallyDelivered); err != nil {
			return err
		}
		if rec.ValidationResult != models.ValidationPass {
			return &models.InvalidTransitionError{Entity: "dispense record", ID: rec.DispenseNumber,
				From: "validation " + string(rec.ValidationResult), Operation: "deliver"}
		}
		if rec.QualityCheckResult != models.QualityCheckPass {
			return &models.InvalidTransitionError{Entity: "dispense record", ID: rec.DispenseNumber,
				From: "quality check " + string(rec.QualityCheckResult), Operation: "deliver"}
		}
		for id := range withheld {
			if rec.Item(id) == nil {
				return &models.NotFoundError{Entity: "dispense item", Key: id}
			}
		}

		outstanding := 0
		for _, it := range rec.Items {
			if !it.Status.Complete() || it.DeliveredAt != nil {
				continue
			}
			if withheld[it.ID] {
				outstanding++
				continue
			}
			at := m.Now()
			it.DeliveredAt = &at
			it.UpdatedAt = at
			if err := s.records.UpdateItem(ctx, m.Tx(), it); err != nil {
				return err
			}
		}

		if outstanding > 0 {
			if rec.Status == models.DispenseStatusPartiallyDelivered {
				return nil
			}
			return rec.TransitionTo(models.DispenseStatusPartiallyDelivered, m.Now(), "deliver")
		}
		if err := rec.TransitionTo(models.DispenseStatusDelivered, m.Now(), "deliver"); err != nil {
			return err
		}
		rx, err := s.prescriptions.Get(ctx, m.Tx(), rec.PrescriptionID)
		if err != nil {
			return err
		}
		rx.Status = models.PrescriptionStatusDispensed
		rx.UpdatedAt = m.Now()
		return s.prescriptions.UpdateStatus(ctx, m.Tx(), rx)
	})
}

// ============================================================================
// Retreat
// ============================================================================

// Return takes back a dispensed prescription. Every consumed allocation is
// restored and the prescription can be dispensed again.
func (s *Service) Return(ctx context.Context, recordID, operator, reason string) (*models.DispenseRecord, error) {
	return s.retreat(ctx, recordID, operator, reason, models.DispenseStatusReturned, "return")
}

// Cancel abandons a record before it is dispensed, restoring any stock its
// items consumed.
func (s *Service) Cancel(ctx context.Context, recordID, operator, reason string) (*models.DispenseRecord, error) {
	return s.retreat(ctx, recordID, operator, reason, models.DispenseStatusCancelled, "cancel")
}

func (s *Service) retreat(ctx context.Context, recordID, operator, reason string, to models.DispenseStatus, op string) (*models.DispenseRecord, error) {
	if reason == "" {
		return nil, fmt.Errorf("%s reason is required", op)
	}
	unlock := s.lockRecord(recordID)
	defer unlock()

	rec, err := s.records.GetRecord(ctx, nil, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransition(to) {
		return nil, s.fail(op, recordID, &models.InvalidTransitionError{
			Entity: "dispense record", ID: rec.DispenseNumber, From: string(rec.Status), Operation: op})
	}

	return s.run(ctx, recordID, op, allocationKeys(rec.Items...), func(m *inventory.Mutator, cur *models.DispenseRecord) error {
		if err := cur.TransitionTo(to, m.Now(), op); err != nil {
			return err
		}
		cur.Reason = reason
		for _, it := range cur.Items {
			if len(it.ActiveAllocations()) == 0 {
				continue
			}
			if err := s.restore(ctx, m, it, operator, fmt.Sprintf("%s of %s: %s", op, cur.DispenseNumber, reason)); err != nil {
				return err
			}
			if it.Status.Complete() {
				if err := it.MarkReturned(m.Now()); err != nil {
					return err
				}
			}
			it.UpdatedAt = m.Now()
			if err := s.records.UpdateItem(ctx, m.Tx(), it); err != nil {
				return err
			}
		}

		rx, err := s.prescriptions.Get(ctx, m.Tx(), cur.PrescriptionID)
		if err != nil {
			return err
		}
		if rx.Status != models.PrescriptionStatusReviewed {
			rx.Status = models.PrescriptionStatusReviewed
			rx.UpdatedAt = m.Now()
			return s.prescriptions.UpdateStatus(ctx, m.Tx(), rx)
		}
		return nil
	})
}
