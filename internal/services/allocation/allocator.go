// Package allocation plans which batches satisfy a requested quantity.
// Plans are computed from a snapshot of batch state and never change it.
package allocation

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Reason explains why a batch was left out of a plan.
type Reason string

const (
	ReasonExpired Reason = "EXPIRED"
	ReasonFrozen  Reason = "FROZEN"
	ReasonDamaged Reason = "DAMAGED"
	ReasonEmpty   Reason = "EMPTY"
)

// Allocation is one batch's share of a plan.
type Allocation struct {
	Key            models.BatchKey
	Quantity       int64
	ExpiryDate     *time.Time
	ProductionDate *time.Time
}

// Exclusion names a batch rejected by the planner.
type Exclusion struct {
	Key    models.BatchKey
	Reason Reason
	Status models.BatchStatus
}

// Plan is the outcome of allocating one medicine.
type Plan struct {
	MedicineID  string
	Allocations []Allocation
	Requested   int64
	Allocated   int64
	Shortage    int64
	Excluded    []Exclusion
}

// Satisfied reports whether the plan covers the full request.
func (p *Plan) Satisfied() bool {
	return p.Shortage == 0
}

// Keys returns the batch keys of the plan's allocations.
func (p *Plan) Keys() []models.BatchKey {
	keys := make([]models.BatchKey, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		keys = append(keys, a.Key)
	}
	return keys
}

// Err returns nil for a satisfied plan. When nothing could be allocated and
// every batch with stock was excluded by status, it reports the batch as
// unavailable; otherwise it reports the shortage.
func (p *Plan) Err() error {
	if p.Satisfied() {
		return nil
	}
	if p.Allocated == 0 {
		for _, ex := range p.Excluded {
			if ex.Reason != ReasonEmpty {
				return &models.BatchUnavailableError{
					MedicineID:  p.MedicineID,
					BatchNumber: ex.Key.BatchNumber,
					Status:      ex.Status,
				}
			}
		}
	}
	return &models.InsufficientStockError{
		MedicineID: p.MedicineID,
		Requested:  p.Requested,
		Available:  p.Allocated,
	}
}

// BatchSource lists the batches of a medicine.
type BatchSource interface {
	ListByMedicine(ctx context.Context, tx *sql.Tx, medicineID string) ([]*models.BatchInventory, error)
}

// Allocator plans allocations against a batch source.
type Allocator struct {
	source BatchSource
	clock  util.Clock
}

// NewAllocator creates an allocator.
func NewAllocator(source BatchSource, clock util.Clock) *Allocator {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Allocator{source: source, clock: clock}
}

// Plan reads the medicine's batches and plans qty units.
func (a *Allocator) Plan(ctx context.Context, medicineID string, qty int64) (*Plan, error) {
	return a.PlanTx(ctx, nil, medicineID, qty)
}

// PlanTx plans inside an open transaction.
func (a *Allocator) PlanTx(ctx context.Context, tx *sql.Tx, medicineID string, qty int64) (*Plan, error) {
	if qty <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	batches, err := a.source.ListByMedicine(ctx, tx, medicineID)
	if err != nil {
		return nil, err
	}
	plan := PlanFromBatches(batches, qty, a.clock.Now())
	plan.MedicineID = medicineID
	return plan, nil
}

// PlanFromBatches allocates qty units first-expiry-first-out. Batches are
// ordered by expiry date, then production date, then batch number, with
// missing dates last. Warning batches (at or below safety stock) remain
// eligible; only Expired, Frozen, Damaged and empty batches are excluded.
func PlanFromBatches(batches []*models.BatchInventory, qty int64, now time.Time) *Plan {
	plan := &Plan{Requested: qty}
	if len(batches) > 0 {
		plan.MedicineID = batches[0].MedicineID
	}

	var eligible []*models.BatchInventory
	for _, b := range batches {
		if reason, ok := exclusion(b, now); ok {
			plan.Excluded = append(plan.Excluded, Exclusion{Key: b.Key(), Reason: reason, Status: b.EffectiveStatus(now)})
			continue
		}
		eligible = append(eligible, b)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if c := compareDates(a.ExpiryDate, b.ExpiryDate); c != 0 {
			return c < 0
		}
		if c := compareDates(a.ProductionDate, b.ProductionDate); c != 0 {
			return c < 0
		}
		return a.BatchNumber < b.BatchNumber
	})

	remaining := qty
	for _, b := range eligible {
		if remaining == 0 {
			break
		}
		take := min(remaining, b.Available())
		plan.Allocations = append(plan.Allocations, Allocation{
			Key:            b.Key(),
			Quantity:       take,
			ExpiryDate:     b.ExpiryDate,
			ProductionDate: b.ProductionDate,
		})
		plan.Allocated += take
		remaining -= take
	}
	plan.Shortage = remaining
	return plan
}

func exclusion(b *models.BatchInventory, now time.Time) (Reason, bool) {
	switch b.EffectiveStatus(now) {
	case models.BatchStatusExpired:
		return ReasonExpired, true
	case models.BatchStatusFrozen:
		return ReasonFrozen, true
	case models.BatchStatusDamaged:
		return ReasonDamaged, true
	}
	if b.Available() <= 0 {
		return ReasonEmpty, true
	}
	return "", false
}

// compareDates orders nil after any date.
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
