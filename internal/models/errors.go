package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match these through errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrBatchUnavailable        = errors.New("batch unavailable")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrConcurrentModification  = errors.New("concurrent modification conflict")
	ErrLedgerIntegrity         = errors.New("ledger integrity violation")
	ErrPrescriptionNotEligible = errors.New("prescription not eligible for dispensing")
)

// InsufficientStockError reports how far a request fell short.
type InsufficientStockError struct {
	MedicineID  string
	BatchNumber string // empty when the shortage spans all batches of a medicine
	Requested   int64
	Available   int64
}

// Shortage returns the missing quantity.
func (e *InsufficientStockError) Shortage() int64 {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	if e.BatchNumber != "" {
		return fmt.Sprintf("insufficient stock for medicine %s batch %s: requested %d, available %d (short %d)",
			e.MedicineID, e.BatchNumber, e.Requested, e.Available, e.Shortage())
	}
	return fmt.Sprintf("insufficient stock for medicine %s: requested %d, available %d (short %d)",
		e.MedicineID, e.Requested, e.Available, e.Shortage())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// BatchUnavailableError reports a batch excluded by its status.
type BatchUnavailableError struct {
	MedicineID  string
	BatchNumber string
	Status      BatchStatus
}

func (e *BatchUnavailableError) Error() string {
	return fmt.Sprintf("batch %s of medicine %s is %s", e.BatchNumber, e.MedicineID, e.Status)
}

func (e *BatchUnavailableError) Is(target error) bool {
	return target == ErrBatchUnavailable
}

// InvalidTransitionError reports a workflow operation attempted from a state
// that forbids it.
type InvalidTransitionError struct {
	Entity    string // "dispense record", "dispense item", "transaction"
	ID        string
	From      string
	Operation string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Operation, e.Entity, e.ID, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// LedgerIntegrityError reports a ledger chain that does not reconcile.
type LedgerIntegrityError struct {
	MedicineID  string
	BatchNumber string
	Sequence    int64
	Expected    int64
	Got         int64
	Detail      string
}

func (e *LedgerIntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation on %s/%s at sequence %d: %s (expected %d, got %d)",
		e.MedicineID, e.BatchNumber, e.Sequence, e.Detail, e.Expected, e.Got)
}

func (e *LedgerIntegrityError) Is(target error) bool {
	return target == ErrLedgerIntegrity
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UserMessage renders an error for display to pharmacy staff. Integrity
// failures are reported opaquely.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrLedgerIntegrity) {
		return "ledger integrity failure, contact support"
	}
	return err.Error()
}
