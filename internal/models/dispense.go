package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DispenseStatus is the state of a dispense record.
type DispenseStatus string

const (
	DispenseStatusPending            DispenseStatus = "PENDING"
	DispenseStatusInProgress         DispenseStatus = "IN_PROGRESS"
	DispenseStatusDispensed          DispenseStatus = "DISPENSED"
	DispenseStatusDelivered          DispenseStatus = "DELIVERED"
	DispenseStatusPartiallyDelivered DispenseStatus = "PARTIALLY_DELIVERED"
	DispenseStatusReturned           DispenseStatus = "RETURNED"
	DispenseStatusCancelled          DispenseStatus = "CANCELLED"
)

func (s DispenseStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s DispenseStatus) Terminal() bool {
	switch s {
	case DispenseStatusDelivered, DispenseStatusReturned, DispenseStatusCancelled:
		return true
	}
	return false
}

var dispenseTransitions = map[DispenseStatus][]DispenseStatus{
	DispenseStatusPending:            {DispenseStatusInProgress, DispenseStatusCancelled},
	DispenseStatusInProgress:         {DispenseStatusDispensed, DispenseStatusReturned, DispenseStatusCancelled},
	DispenseStatusDispensed:          {DispenseStatusDelivered, DispenseStatusPartiallyDelivered, DispenseStatusReturned},
	DispenseStatusPartiallyDelivered: {DispenseStatusDelivered, DispenseStatusReturned},
}

// CanTransition reports whether from → to is an edge of the workflow.
func (s DispenseStatus) CanTransition(to DispenseStatus) bool {
	for _, next := range dispenseTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidationResult is the outcome of the clinical eligibility check.
type ValidationResult string

const (
	ValidationPass        ValidationResult = "PASS"
	ValidationNeedsReview ValidationResult = "NEEDS_REVIEW"
	ValidationFail        ValidationResult = "FAIL"
)

// StockCheckResult summarizes stock sufficiency across the record's items.
type StockCheckResult string

const (
	StockCheckSufficient   StockCheckResult = "SUFFICIENT"
	StockCheckPartial      StockCheckResult = "PARTIAL"
	StockCheckInsufficient StockCheckResult = "INSUFFICIENT"
)

// Downgrade returns the worse of the two results.
func (r StockCheckResult) Downgrade(other StockCheckResult) StockCheckResult {
	rank := map[StockCheckResult]int{StockCheckSufficient: 0, StockCheckPartial: 1, StockCheckInsufficient: 2}
	if rank[other] > rank[r] {
		return other
	}
	return r
}

// QualityCheckResult is the outcome of the pre-delivery check.
type QualityCheckResult string

const (
	QualityCheckPending QualityCheckResult = "PENDING"
	QualityCheckPass    QualityCheckResult = "PASS"
	QualityCheckFail    QualityCheckResult = "FAIL"
)

// DispenseRecord is one dispensing attempt for a prescription. Status only
// changes through TransitionTo.
type DispenseRecord struct {
	ID                 string
	DispenseNumber     string
	PrescriptionID     string
	PatientID          string
	PharmacistID       string
	Status             DispenseStatus
	TotalAmount        decimal.Decimal
	ActualAmount       decimal.Decimal
	ValidationResult   ValidationResult
	ValidationNotes    string
	StockCheckResult   StockCheckResult
	QualityCheckResult QualityCheckResult
	QualityNotes       string
	ReviewerID         *string
	ReviewComments     string
	ReviewedAt         *time.Time
	Reason             string // return or cancel reason
	CreatedAt          time.Time
	StartedAt          *time.Time
	DispensedAt        *time.Time
	DeliveredAt        *time.Time
	ReturnedAt         *time.Time
	CancelledAt        *time.Time
	UpdatedAt          time.Time
	Version            int64

	Items []*DispenseItem
}

// TransitionTo moves the record along a workflow edge and stamps the
// corresponding timestamp.
func (r *DispenseRecord) TransitionTo(to DispenseStatus, now time.Time, operation string) error {
	if !r.Status.CanTransition(to) {
		return &InvalidTransitionError{Entity: "dispense record", ID: r.DispenseNumber, From: string(r.Status), Operation: operation}
	}
	r.Status = to
	t := now
	switch to {
	case DispenseStatusInProgress:
		r.StartedAt = &t
	case DispenseStatusDispensed:
		r.DispensedAt = &t
	case DispenseStatusDelivered, DispenseStatusPartiallyDelivered:
		r.DeliveredAt = &t
	case DispenseStatusReturned:
		r.ReturnedAt = &t
	case DispenseStatusCancelled:
		r.CancelledAt = &t
	}
	return nil
}

// Require rejects operations outside the allowed states.
func (r *DispenseRecord) Require(operation string, allowed ...DispenseStatus) error {
	for _, s := range allowed {
		if r.Status == s {
			return nil
		}
	}
	return &InvalidTransitionError{Entity: "dispense record", ID: r.DispenseNumber, From: string(r.Status), Operation: operation}
}

// Item returns the item with the given ID, or nil.
func (r *DispenseRecord) Item(id string) *DispenseItem {
	for _, it := range r.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// IncompleteItems returns items that are neither Dispensed nor Substituted.
func (r *DispenseRecord) IncompleteItems() []*DispenseItem {
	var out []*DispenseItem
	for _, it := range r.Items {
		if !it.Status.Complete() {
			out = append(out, it)
		}
	}
	return out
}

// DispenseItemStatus is the state of one line of a dispense record.
type DispenseItemStatus string

const (
	DispenseItemPending     DispenseItemStatus = "PENDING"
	DispenseItemDispensed   DispenseItemStatus = "DISPENSED"
	DispenseItemOutOfStock  DispenseItemStatus = "OUT_OF_STOCK"
	DispenseItemSubstituted DispenseItemStatus = "SUBSTITUTED"
	DispenseItemReturned    DispenseItemStatus = "RETURNED"
)

func (s DispenseItemStatus) String() string {
	return string(s)
}

// Complete reports whether the item counts towards completion.
func (s DispenseItemStatus) Complete() bool {
	return s == DispenseItemDispensed || s == DispenseItemSubstituted
}

// Dispensable reports whether stock may be consumed for the item.
func (s DispenseItemStatus) Dispensable() bool {
	switch s {
	case DispenseItemPending, DispenseItemOutOfStock, DispenseItemReturned:
		return true
	}
	return false
}

// DispenseItem is one prescribed line within a record.
type DispenseItem struct {
	ID                 string
	RecordID           string
	PrescriptionItemID string
	LineNo             int
	MedicineID         string
	BatchNumber        string
	PrescribedQuantity int64
	DispensedQuantity  int64
	Unit               string
	UnitPrice          decimal.Decimal
	Amount             decimal.Decimal
	Status             DispenseItemStatus
	OriginalMedicineID *string
	SubstitutionReason string
	// StockBefore and StockAfter snapshot the first allocation's batch. An
	// item split across batches keeps the per-batch detail, with each
	// ledger transaction number, in Allocations.
	StockBefore        *int64
	StockAfter         *int64
	DispensedAt        *time.Time
	DeliveredAt        *time.Time
	ReturnedAt         *time.Time
	UpdatedAt          time.Time

	Allocations []*DispenseAllocation
}

// ActiveAllocations returns allocations whose stock has not been restored.
func (it *DispenseItem) ActiveAllocations() []*DispenseAllocation {
	var out []*DispenseAllocation
	for _, a := range it.Allocations {
		if !a.Restored {
			out = append(out, a)
		}
	}
	return out
}

// MarkDispensed records a successful consumption. batchNumber and the
// snapshots describe the first allocation only.
func (it *DispenseItem) MarkDispensed(batchNumber string, qty, before, after int64, now time.Time) error {
	if !it.Status.Dispensable() {
		return &InvalidTransitionError{Entity: "dispense item", ID: it.ID, From: string(it.Status), Operation: "dispense"}
	}
	it.Status = DispenseItemDispensed
	it.BatchNumber = batchNumber
	it.DispensedQuantity = qty
	it.StockBefore = &before
	it.StockAfter = &after
	it.Amount = it.UnitPrice.Mul(decimal.NewFromInt(qty))
	t := now
	it.DispensedAt = &t
	it.ReturnedAt = nil
	return nil
}

// MarkOutOfStock records a failed allocation.
func (it *DispenseItem) MarkOutOfStock() error {
	if !it.Status.Dispensable() {
		return &InvalidTransitionError{Entity: "dispense item", ID: it.ID, From: string(it.Status), Operation: "mark out of stock"}
	}
	it.Status = DispenseItemOutOfStock
	return nil
}

// MarkSubstituted records a replacement medicine, preserving the prescribed
// quantity and the original medicine.
func (it *DispenseItem) MarkSubstituted(newMedicineID, reason, batchNumber string, unitPrice decimal.Decimal, before, after int64, now time.Time) error {
	if it.OriginalMedicineID == nil {
		orig := it.MedicineID
		it.OriginalMedicineID = &orig
	}
	it.MedicineID = newMedicineID
	it.SubstitutionReason = reason
	it.Status = DispenseItemSubstituted
	it.BatchNumber = batchNumber
	it.UnitPrice = unitPrice
	it.DispensedQuantity = it.PrescribedQuantity
	it.Amount = unitPrice.Mul(decimal.NewFromInt(it.PrescribedQuantity))
	it.StockBefore = &before
	it.StockAfter = &after
	t := now
	it.DispensedAt = &t
	it.ReturnedAt = nil
	return nil
}

// MarkReturned records that the item's stock has been restored.
func (it *DispenseItem) MarkReturned(now time.Time) error {
	if !it.Status.Complete() {
		return &InvalidTransitionError{Entity: "dispense item", ID: it.ID, From: string(it.Status), Operation: "return"}
	}
	it.Status = DispenseItemReturned
	it.DispensedQuantity = 0
	it.Amount = decimal.Zero
	t := now
	it.ReturnedAt = &t
	it.DeliveredAt = nil
	return nil
}

// DispenseAllocation records stock one item consumed from one batch.
type DispenseAllocation struct {
	ID                string
	ItemID            string
	MedicineID        string
	BatchNumber       string
	Quantity          int64
	TransactionNumber string
	Restored          bool
	CreatedAt         time.Time
}

// BatchKey returns the key of the consumed batch.
func (a *DispenseAllocation) BatchKey() BatchKey {
	return BatchKey{MedicineID: a.MedicineID, BatchNumber: a.BatchNumber}
}

// DispenseFilter filters record listings.
type DispenseFilter struct {
	Status         *DispenseStatus
	PrescriptionID string
	ActiveOnly     bool
}

// DispenseList is a page of dispense records.
type DispenseList struct {
	Records    []*DispenseRecord
	Total      int
	Page       int
	TotalPages int
}
