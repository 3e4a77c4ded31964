package dispensing

import (
	"context"
	"fmt"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
)

// CheckEligibility reports whether a prescription can be dispensed, with a
// per-item allocation plan and clinical findings. It changes nothing.
func (s *Service) CheckEligibility(ctx context.Context, prescriptionID string) (*EligibilityReport, error) {
	rx, err := s.prescriptions.Get(ctx, nil, prescriptionID)
	if err != nil {
		return nil, err
	}
	meds, err := s.medicines.GetMany(ctx, nil, rx.MedicineIDs())
	if err != nil {
		return nil, fmt.Errorf("loading medicines: %w", err)
	}

	report := &EligibilityReport{PrescriptionID: rx.ID, StockCheck: models.StockCheckSufficient}
	now := s.clock.Now()

	switch {
	case rx.IsExpired(now):
		report.Reasons = append(report.Reasons, "prescription has expired")
	case rx.Status != models.PrescriptionStatusReviewed:
		report.Reasons = append(report.Reasons, fmt.Sprintf("prescription is %s, not REVIEWED", rx.Status))
	}
	if len(rx.Items) == 0 {
		report.Reasons = append(report.Reasons, "prescription has no items")
	}

	active, err := s.records.GetActiveByPrescription(ctx, nil, rx.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.Status == models.DispenseStatusPending {
			report.PendingRecord = active
		} else {
			report.Reasons = append(report.Reasons,
				fmt.Sprintf("dispense %s is already %s", active.DispenseNumber, active.Status))
		}
	}

	list := make([]*models.Medicine, 0, len(meds))
	shortItems, emptyItems := 0, 0
	for _, it := range rx.Items {
		med, ok := meds[it.MedicineID]
		if !ok {
			report.Reasons = append(report.Reasons, fmt.Sprintf("line %d names unknown medicine %s", it.LineNo, it.MedicineID))
			continue
		}
		list = append(list, med)

		plan, err := s.reservations.Allocator().Plan(ctx, it.MedicineID, it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("planning line %d: %w", it.LineNo, err)
		}
		report.Items = append(report.Items, ItemEligibility{
			PrescriptionItemID: it.ID,
			MedicineID:         it.MedicineID,
			MedicineCode:       med.Code,
			Requested:          it.Quantity,
			Plan:               plan,
		})
		if !plan.Satisfied() {
			shortItems++
			if plan.Allocated == 0 {
				emptyItems++
			}
		}
	}
	switch {
	case len(report.Items) > 0 && emptyItems == len(report.Items):
		report.StockCheck = models.StockCheckInsufficient
	case shortItems > 0:
		report.StockCheck = models.StockCheckPartial
	}

	warnings, err := s.clinicalWarnings(ctx, rx.PatientID, list)
	if err != nil {
		return nil, err
	}
	report.Warnings = warnings
	report.Validation, report.ValidationNotes = classify(warnings)
	if report.Validation == models.ValidationFail {
		report.Reasons = append(report.Reasons, "clinical check failed: "+report.ValidationNotes)
	}

	report.Eligible = len(report.Reasons) == 0
	return report, nil
}

func (s *Service) clinicalWarnings(ctx context.Context, patientID string, meds []*models.Medicine) ([]ClinicalWarning, error) {
	interactions, err := s.interactions.CheckInteractions(ctx, patientID, meds)
	if err != nil {
		return nil, fmt.Errorf("checking interactions: %w", err)
	}
	allergies, err := s.allergies.CheckAllergies(ctx, patientID, meds)
	if err != nil {
		return nil, fmt.Errorf("checking allergies: %w", err)
	}

	warnings := append(interactions, allergies...)
	if s.cfg.ReviewControlled {
		for _, m := range meds {
			if m.Controlled {
				warnings = append(warnings, ClinicalWarning{
					Kind:     WarningControlled,
					Severity: config.SeverityWarn,
					Codes:    []string{m.Code},
					Note:     "controlled substance",
				})
			}
		}
	}
	return warnings, nil
}
