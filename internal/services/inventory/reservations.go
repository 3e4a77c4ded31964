package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/allocation"
)

// Reservation is the set of batch holds placed for one request.
type Reservation struct {
	MedicineID  string
	Holder      string
	Quantity    int64
	Allocations []allocation.Allocation
}

// ReservationManager reserves a medicine quantity across several batches as
// one all-or-nothing step.
type ReservationManager struct {
	store     *Store
	allocator *allocation.Allocator
	replans   int
}

// NewReservationManager creates a manager planning with the store's batches.
func NewReservationManager(s *Store) *ReservationManager {
	return &ReservationManager{
		store:     s,
		allocator: allocation.NewAllocator(s.batches, s.clock),
		replans:   s.cfg.ReservationReplans,
	}
}

// Allocator returns the planner used by the manager.
func (r *ReservationManager) Allocator() *allocation.Allocator { return r.allocator }

// errReplan signals that a planned share no longer fits and the block was
// rolled back.
var errReplan = errors.New("allocation plan is stale")

// ReservationRequest describes a reservation made together with other work.
type ReservationRequest struct {
	MedicineID string
	Quantity   int64
	Holder     string
	// BatchNumber pins the reservation to one batch instead of planning.
	BatchNumber string
	// ExtraKeys are locked alongside the planned batches, for callers that
	// touch other batches in the same block.
	ExtraKeys []models.BatchKey
}

// ReserveAcrossBatches reserves qty units of a medicine first-expiry-first-out.
// Either every share is reserved or none is. A lost race triggers a fresh
// plan, up to the configured number of times.
func (r *ReservationManager) ReserveAcrossBatches(ctx context.Context, medicineID string, qty int64, holder string) (*Reservation, error) {
	return r.WithReservation(ctx, ReservationRequest{MedicineID: medicineID, Quantity: qty, Holder: holder}, nil)
}

// WithReservation reserves the requested quantity and then runs fn in the
// same atomic block, so fn can consume the holds and write its own rows. An
// error from fn rolls back the reservation as well.
func (r *ReservationManager) WithReservation(ctx context.Context, req ReservationRequest, fn func(m *Mutator, res *Reservation) error) (*Reservation, error) {
	if req.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	for attempt := 0; ; attempt++ {
		plan, err := r.plan(ctx, req)
		if err != nil {
			return nil, err
		}
		if !plan.Satisfied() {
			return nil, plan.Err()
		}

		res := &Reservation{
			MedicineID:  req.MedicineID,
			Holder:      req.Holder,
			Quantity:    req.Quantity,
			Allocations: plan.Allocations,
		}
		keys := append(plan.Keys(), req.ExtraKeys...)
		err = r.store.Atomic(ctx, keys, func(m *Mutator) error {
			for _, a := range plan.Allocations {
				out, err := m.Reserve(ctx, a.Key, a.Quantity)
				if err != nil {
					return err
				}
				if !out.Applied {
					if req.BatchNumber != "" {
						return out.Err()
					}
					return fmt.Errorf("%w: %v", errReplan, out.Err())
				}
			}
			if fn == nil {
				return nil
			}
			return fn(m, res)
		})
		switch {
		case err == nil:
			slog.Debug("reserved across batches", "medicine_id", req.MedicineID, "quantity", req.Quantity,
				"holder", req.Holder, "batches", len(plan.Allocations))
			return res, nil
		case !errors.Is(err, errReplan):
			return nil, err
		case attempt >= r.replans:
			return nil, r.shortfall(ctx, req.MedicineID, req.Quantity)
		}
		r.store.metrics.ConflictRetry("reserve_across_batches")
	}
}

// plan builds the allocation for a request. A pinned batch yields a single
// share whose fit is checked under the batch lock.
func (r *ReservationManager) plan(ctx context.Context, req ReservationRequest) (*allocation.Plan, error) {
	if req.BatchNumber == "" {
		return r.allocator.Plan(ctx, req.MedicineID, req.Quantity)
	}
	key := models.BatchKey{MedicineID: req.MedicineID, BatchNumber: req.BatchNumber}
	b, err := r.store.batches.Get(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	return &allocation.Plan{
		MedicineID: req.MedicineID,
		Requested:  req.Quantity,
		Allocated:  req.Quantity,
		Allocations: []allocation.Allocation{{
			Key:            key,
			Quantity:       req.Quantity,
			ExpiryDate:     b.ExpiryDate,
			ProductionDate: b.ProductionDate,
		}},
	}, nil
}

// shortfall reports how much of qty is currently allocatable.
func (r *ReservationManager) shortfall(ctx context.Context, medicineID string, qty int64) error {
	plan, err := r.allocator.Plan(ctx, medicineID, qty)
	if err != nil {
		return err
	}
	if plan.Satisfied() {
		// Stock exists but every plan lost its race.
		return fmt.Errorf("reserving %d of %s: %w", qty, medicineID, models.ErrConcurrentModification)
	}
	return plan.Err()
}

// ReleaseAllocations returns the reserved units of a reservation. Releasing
// more than is still reserved clamps, so a repeated release is harmless.
func (r *ReservationManager) ReleaseAllocations(ctx context.Context, allocations []allocation.Allocation) (int64, error) {
	keys := make([]models.BatchKey, 0, len(allocations))
	for _, a := range allocations {
		keys = append(keys, a.Key)
	}

	var released int64
	err := r.store.Atomic(ctx, keys, func(m *Mutator) error {
		released = 0
		for _, a := range allocations {
			if a.Quantity <= 0 {
				continue
			}
			n, err := m.Release(ctx, a.Key, a.Quantity)
			if err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	return released, err
}
