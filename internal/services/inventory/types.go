package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/models"
)

// Entry carries the audit attributes of one ledger row.
type Entry struct {
	Operator      string
	Reason        string
	ReferenceType string
	ReferenceID   string
	// UnitPrice defaults to the batch purchase price.
	UnitPrice decimal.Decimal
	// Pending records the row as PendingReview instead of Confirmed.
	Pending bool
}

// AddStockInput describes an inbound movement.
type AddStockInput struct {
	Key      models.BatchKey
	Quantity int64
	// Type is In, Return or Transfer. Defaults to In.
	Type  models.TransactionType
	Meta  models.BatchMeta
	Entry Entry
}

// ReduceStockInput describes an outbound movement.
type ReduceStockInput struct {
	Key      models.BatchKey
	Quantity int64
	// Type is Out, Transfer, Loss or ExpiryWriteOff. Defaults to Out.
	Type models.TransactionType
	// ReleaseReserved and ReleaseLocked are drawn from held units first.
	ReleaseReserved int64
	ReleaseLocked   int64
	Entry           Entry
}

// TransferInput moves stock out to another location or pharmacy.
type TransferInput struct {
	Key         models.BatchKey
	Quantity    int64
	Destination string
	Operator    string
	Reason      string
}

// LossInput records damaged, broken or missing units.
type LossInput struct {
	Key      models.BatchKey
	Quantity int64
	Operator string
	Reason   string
}

// StockTakeInput records a physical count.
type StockTakeInput struct {
	Key      models.BatchKey
	Counted  int64
	Operator string
	Reason   string
}

// HoldOutcome is the result of a reserve or lock. Refusals are outcomes,
// not errors: exactly one of Shortage and Unavailable is set when Applied is
// false.
type HoldOutcome struct {
	Applied     bool
	Levels      models.StockLevels
	Shortage    *models.InsufficientStockError
	Unavailable *models.BatchUnavailableError
}

// Err returns the refusal as an error, or nil when applied.
func (o HoldOutcome) Err() error {
	switch {
	case o.Applied:
		return nil
	case o.Shortage != nil:
		return o.Shortage
	case o.Unavailable != nil:
		return o.Unavailable
	}
	return models.ErrInsufficientStock
}
