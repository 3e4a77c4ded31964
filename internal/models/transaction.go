package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of stock-affecting event.
type TransactionType string

const (
	TransactionTypeIn             TransactionType = "IN"
	TransactionTypeOut            TransactionType = "OUT"
	TransactionTypeTransfer       TransactionType = "TRANSFER"
	TransactionTypeStockTake      TransactionType = "STOCK_TAKE"
	TransactionTypeLoss           TransactionType = "LOSS"
	TransactionTypeReturn         TransactionType = "RETURN"
	TransactionTypeExpiryWriteOff TransactionType = "EXPIRY_WRITE_OFF"
)

func (t TransactionType) String() string {
	return string(t)
}

// Valid reports whether t is one of the declared types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeTransfer, TransactionTypeStockTake,
		TransactionTypeLoss, TransactionTypeReturn, TransactionTypeExpiryWriteOff:
		return true
	}
	return false
}

// Inbound reports whether the type may increase stock.
func (t TransactionType) Inbound() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeReturn, TransactionTypeTransfer, TransactionTypeStockTake:
		return true
	}
	return false
}

// Outbound reports whether the type may decrease stock.
func (t TransactionType) Outbound() bool {
	switch t {
	case TransactionTypeOut, TransactionTypeLoss, TransactionTypeExpiryWriteOff,
		TransactionTypeTransfer, TransactionTypeStockTake:
		return true
	}
	return false
}

// ParseTransactionType converts a stored value into a TransactionType.
func ParseTransactionType(v string) (TransactionType, error) {
	t := TransactionType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", v)
	}
	return t, nil
}

// TransactionStatus is the review status of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPendingReview TransactionStatus = "PENDING_REVIEW"
	TransactionStatusConfirmed     TransactionStatus = "CONFIRMED"
	TransactionStatusCancelled     TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the declared statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPendingReview, TransactionStatusConfirmed, TransactionStatusCancelled:
		return true
	}
	return false
}

// Reference types recorded on ledger entries.
const (
	ReferenceDispenseItem = "DISPENSE_ITEM"
	ReferenceTransaction  = "STOCK_TRANSACTION"
	ReferenceTransfer     = "TRANSFER"
	ReferenceSweep        = "SWEEP"
	ReferenceSeed         = "SEED"
)

// StockTransaction is one immutable ledger entry. Quantity is signed:
// positive entries raise current stock, negative ones lower it.
type StockTransaction struct {
	ID                string
	TransactionNumber string
	BatchID           string
	MedicineID        string
	BatchNumber       string
	Sequence          int64 // 1-based position in the batch's chain
	Type              TransactionType
	Quantity          int64
	UnitPrice         decimal.Decimal
	StockBefore       int64
	StockAfter        int64
	Status            TransactionStatus
	Reason            string
	ReferenceType     string
	ReferenceID       string
	Operator          string
	Reviewer          *string
	ReviewedAt        *time.Time
	OccurredAt        time.Time
	CreatedAt         time.Time
}

// BatchKey returns the key of the batch this entry belongs to.
func (t *StockTransaction) BatchKey() BatchKey {
	return BatchKey{MedicineID: t.MedicineID, BatchNumber: t.BatchNumber}
}

// Amount is the absolute value of the movement at unit price.
func (t *StockTransaction) Amount() decimal.Decimal {
	q := t.Quantity
	if q < 0 {
		q = -q
	}
	return t.UnitPrice.Mul(decimal.NewFromInt(q))
}

// Reconciles reports whether the snapshot pair is consistent with the quantity.
func (t *StockTransaction) Reconciles() bool {
	return t.StockAfter-t.StockBefore == t.Quantity && t.StockAfter >= 0 && t.StockBefore >= 0
}

// TransactionFilter filters ledger queries.
type TransactionFilter struct {
	MedicineID    string
	BatchNumber   string
	Type          *TransactionType
	Status        *TransactionStatus
	ReferenceType string
	ReferenceID   string
	Since         *time.Time
	Until         *time.Time
}

// TransactionList is a page of ledger entries.
type TransactionList struct {
	Transactions []*StockTransaction
	Total        int
	Page         int
	TotalPages   int
}
