package dispensing

import (
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/allocation"
)

// DispenseItemInput dispenses one line of an in-progress record.
type DispenseItemInput struct {
	RecordID string
	ItemID   string
	// BatchNumber pins a batch; empty allocates first-expiry-first-out.
	BatchNumber string
	// Quantity defaults to the prescribed quantity.
	Quantity     int64
	PharmacistID string
}

// DispenseResult is the outcome of dispensing one item. A shortage is an
// outcome, not an error: the item is marked OutOfStock and the record
// stays in progress.
type DispenseResult struct {
	Item        *models.DispenseItem
	Allocations []*models.DispenseAllocation
	Shortage    *models.InsufficientStockError
	Unavailable *models.BatchUnavailableError
}

// Dispensed reports whether stock was consumed.
func (r *DispenseResult) Dispensed() bool {
	return r.Shortage == nil && r.Unavailable == nil
}

// SubstituteInput replaces the medicine of one item.
type SubstituteInput struct {
	RecordID      string
	ItemID        string
	NewMedicineID string
	Reason        string
	// BatchNumber pins a batch of the new medicine.
	BatchNumber  string
	PharmacistID string
}

// ReviewInput records a pharmacist review.
type ReviewInput struct {
	ReviewerID string
	Comments   string
	Approved   bool
}

// DeliverInput hands dispensed items to the patient.
type DeliverInput struct {
	RecordID     string
	PharmacistID string
	// WithheldItemIDs are items not handed over this time.
	WithheldItemIDs []string
}

// ItemEligibility is the planned allocation for one prescribed line.
type ItemEligibility struct {
	PrescriptionItemID string
	MedicineID         string
	MedicineCode       string
	Requested          int64
	Plan               *allocation.Plan
}

// EligibilityReport is the side-effect-free outcome of CheckEligibility.
type EligibilityReport struct {
	PrescriptionID  string
	Eligible        bool
	Reasons         []string
	Items           []ItemEligibility
	StockCheck      models.StockCheckResult
	Validation      models.ValidationResult
	ValidationNotes string
	Warnings        []ClinicalWarning
	// PendingRecord is a queued record that Start will promote.
	PendingRecord *models.DispenseRecord
}

// AutoDispenseReport summarizes DispenseRemaining.
type AutoDispenseReport struct {
	Dispensed []*models.DispenseItem
	Short     []*DispenseResult
}
