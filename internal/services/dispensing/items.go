package dispensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
)

// DispenseItem reserves and consumes stock for one item in a single atomic
// step. A shortage marks the item OutOfStock, downgrades the record's stock
// check and is reported in the result; the record stays in progress.
func (s *Service) DispenseItem(ctx context.Context, in DispenseItemInput) (*DispenseResult, error) {
	unlock := s.lockRecord(in.RecordID)
	defer unlock()

	rec, err := s.records.GetRecord(ctx, nil, in.RecordID)
	if err != nil {
		return nil, err
	}
	if err := rec.Require("dispense item", models.DispenseStatusInProgress); err != nil {
		return nil, s.fail("dispense item", rec.ID, err)
	}
	it := rec.Item(in.ItemID)
	if it == nil {
		return nil, &models.NotFoundError{Entity: "dispense item", Key: in.ItemID}
	}
	if !it.Status.Dispensable() {
		return nil, s.fail("dispense item", rec.ID, &models.InvalidTransitionError{
			Entity: "dispense item", ID: it.ID, From: string(it.Status), Operation: "dispense"})
	}

	qty := in.Quantity
	if qty == 0 {
		qty = it.PrescribedQuantity
	}
	switch {
	case qty < 0 || qty > it.PrescribedQuantity:
		return nil, fmt.Errorf("%w: %d of %d prescribed", models.ErrInvalidQuantity, qty, it.PrescribedQuantity)
	case qty < it.PrescribedQuantity && !s.cfg.AllowPartialQuantity:
		return nil, fmt.Errorf("partial quantity %d of %d is not allowed", qty, it.PrescribedQuantity)
	}

	result := &DispenseResult{}
	var prev models.DispenseStatus
	_, err = s.reservations.WithReservation(ctx, inventory.ReservationRequest{
		MedicineID:  it.MedicineID,
		Quantity:    qty,
		Holder:      rec.DispenseNumber,
		BatchNumber: in.BatchNumber,
	}, func(m *inventory.Mutator, res *inventory.Reservation) error {
		var updated *models.DispenseRecord
		var err error
		updated, prev, err = s.apply(ctx, m, rec.ID, func(m *inventory.Mutator, cur *models.DispenseRecord) error {
			if err := cur.Require("dispense item", models.DispenseStatusInProgress); err != nil {
				return err
			}
			cit := cur.Item(it.ID)
			allocs, first, err := s.consume(ctx, m, cur, cit, res, in.PharmacistID)
			if err != nil {
				return err
			}
			if err := cit.MarkDispensed(first.BatchNumber, qty, first.StockBefore, first.StockAfter, m.Now()); err != nil {
				return err
			}
			cit.UpdatedAt = m.Now()
			result.Item = cit
			result.Allocations = allocs
			return s.records.UpdateItem(ctx, m.Tx(), cit)
		})
		if err == nil {
			s.observe("dispense item", prev, updated)
		}
		return err
	})

	var shortage *models.InsufficientStockError
	var unavailable *models.BatchUnavailableError
	switch {
	case err == nil:
		slog.Info("dispense item completed", "record_id", rec.ID, "item_id", it.ID,
			"medicine_id", it.MedicineID, "quantity", qty, "batches", len(result.Allocations))
		return result, nil
	case errors.As(err, &shortage):
		result.Shortage = shortage
	case errors.As(err, &unavailable):
		result.Unavailable = unavailable
	default:
		return nil, s.fail("dispense item", rec.ID, err)
	}

	item, err := s.markShort(ctx, rec.ID, it.ID, result)
	if err != nil {
		return nil, err
	}
	result.Item = item
	return result, nil
}

// consume draws the reserved shares of res from stock and records one
// allocation per batch. It returns the first ledger row for the item's
// snapshot.
func (s *Service) consume(ctx context.Context, m *inventory.Mutator, rec *models.DispenseRecord, it *models.DispenseItem, res *inventory.Reservation, operator string) ([]*models.DispenseAllocation, *models.StockTransaction, error) {
	var (
		allocs []*models.DispenseAllocation
		first  *models.StockTransaction
	)
	for _, share := range res.Allocations {
		txn, err := m.Reduce(ctx, inventory.ReduceStockInput{
			Key:             share.Key,
			Quantity:        share.Quantity,
			ReleaseReserved: share.Quantity,
			Entry: inventory.Entry{
				Operator:      operator,
				Reason:        "dispensed on " + rec.DispenseNumber,
				ReferenceType: models.ReferenceDispenseItem,
				ReferenceID:   it.ID,
			},
		})
		if err != nil {
			return nil, nil, err
		}
		a := &models.DispenseAllocation{
			ID:                s.idGenerator.NewID(),
			ItemID:            it.ID,
			MedicineID:        share.Key.MedicineID,
			BatchNumber:       share.Key.BatchNumber,
			Quantity:          share.Quantity,
			TransactionNumber: txn.TransactionNumber,
			CreatedAt:         m.Now(),
		}
		if err := s.records.AddAllocation(ctx, m.Tx(), a); err != nil {
			return nil, nil, err
		}
		allocs = append(allocs, a)
		it.Allocations = append(it.Allocations, a)
		if first == nil {
			first = txn
		}
	}
	return allocs, first, nil
}

// restore returns every unrestored allocation of an item to its batch with
// an inbound Return row.
func (s *Service) restore(ctx context.Context, m *inventory.Mutator, it *models.DispenseItem, operator, reason string) error {
	for _, a := range it.ActiveAllocations() {
		_, err := m.Receive(ctx, inventory.AddStockInput{
			Key:      a.BatchKey(),
			Quantity: a.Quantity,
			Type:     models.TransactionTypeReturn,
			Entry: inventory.Entry{
				Operator:      operator,
				Reason:        reason,
				ReferenceType: models.ReferenceDispenseItem,
				ReferenceID:   it.ID,
			},
		})
		if err != nil {
			return fmt.Errorf("restoring %s: %w", a.BatchKey(), err)
		}
		if err := s.records.MarkAllocationRestored(ctx, m.Tx(), a.ID); err != nil {
			return err
		}
		a.Restored = true
	}
	return nil
}

func (s *Service) markShort(ctx context.Context, recordID, itemID string, result *DispenseResult) (*models.DispenseItem, error) {
	downgrade := models.StockCheckPartial
	if result.Unavailable != nil || (result.Shortage != nil && result.Shortage.Available == 0) {
		downgrade = models.StockCheckInsufficient
	}

	var item *models.DispenseItem
	_, err := s.run(ctx, recordID, "mark out of stock", nil, func(m *inventory.Mutator, rec *models.DispenseRecord) error {
		item = rec.Item(itemID)
		if err := item.MarkOutOfStock(); err != nil {
			return err
		}
		item.UpdatedAt = m.Now()
		rec.StockCheckResult = rec.StockCheckResult.Downgrade(downgrade)
		return s.records.UpdateItem(ctx, m.Tx(), item)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ItemShortage()
	slog.Warn("dispense item short", "record_id", recordID, "item_id", itemID, "medicine_id", item.MedicineID,
		"shortage", shortageOf(result), "stock_check", downgrade)
	return item, nil
}

func shortageOf(r *DispenseResult) int64 {
	if r.Shortage != nil {
		return r.Shortage.Shortage()
	}
	return 0
}

// DispenseRemaining dispenses every item still awaiting stock, first-expiry-
// first-out, and reports which items came up short.
func (s *Service) DispenseRemaining(ctx context.Context, recordID, pharmacistID string) (*AutoDispenseReport, error) {
	rec, err := s.records.GetRecord(ctx, nil, recordID)
	if err != nil {
		return nil, err
	}

	report := &AutoDispenseReport{}
	for _, it := range rec.Items {
		if !it.Status.Dispensable() {
			continue
		}
		res, err := s.DispenseItem(ctx, DispenseItemInput{RecordID: recordID, ItemID: it.ID, PharmacistID: pharmacistID})
		if err != nil {
			return report, err
		}
		if res.Dispensed() {
			report.Dispensed = append(report.Dispensed, res.Item)
		} else {
			report.Short = append(report.Short, res)
		}
	}
	return report, nil
}

// Substitute replaces an item's medicine before delivery. Stock the item
// already consumed is restored and the full prescribed quantity of the new
// medicine is allocated, all in one step. A shortage of the new medicine
// leaves the item unchanged and is returned as the typed error.
func (s *Service) Substitute(ctx context.Context, in SubstituteInput) (*models.DispenseItem, error) {
	if in.Reason == "" {
		return nil, errors.New("substitution reason is required")
	}
	unlock := s.lockRecord(in.RecordID)
	defer unlock()

	rec, err := s.records.GetRecord(ctx, nil, in.RecordID)
	if err != nil {
		return nil, err
	}
	if err := rec.Require("substitute", models.DispenseStatusInProgress, models.DispenseStatusDispensed); err != nil {
		return nil, s.fail("substitute", rec.ID, err)
	}
	it := rec.Item(in.ItemID)
	if it == nil {
		return nil, &models.NotFoundError{Entity: "dispense item", Key: in.ItemID}
	}
	if in.NewMedicineID == it.MedicineID {
		return nil, errors.New("substitute must be a different medicine")
	}
	med, err := s.medicines.GetByID(ctx, nil, in.NewMedicineID)
	if err != nil {
		return nil, err
	}

	var item *models.DispenseItem
	var prev models.DispenseStatus
	_, err = s.reservations.WithReservation(ctx, inventory.ReservationRequest{
		MedicineID:  med.ID,
		Quantity:    it.PrescribedQuantity,
		Holder:      rec.DispenseNumber,
		BatchNumber: in.BatchNumber,
		ExtraKeys:   allocationKeys(it),
	}, func(m *inventory.Mutator, res *inventory.Reservation) error {
		updated, p, err := s.apply(ctx, m, rec.ID, func(m *inventory.Mutator, cur *models.DispenseRecord) error {
			if err := cur.Require("substitute", models.DispenseStatusInProgress, models.DispenseStatusDispensed); err != nil {
				return err
			}
			cit := cur.Item(it.ID)
			if err := s.restore(ctx, m, cit, in.PharmacistID, "substituted by "+med.Code); err != nil {
				return err
			}
			_, first, err := s.consume(ctx, m, cur, cit, res, in.PharmacistID)
			if err != nil {
				return err
			}
			if err := cit.MarkSubstituted(med.ID, in.Reason, first.BatchNumber, med.RetailPrice, first.StockBefore, first.StockAfter, m.Now()); err != nil {
				return err
			}
			cit.UpdatedAt = m.Now()
			if err := s.records.UpdateItem(ctx, m.Tx(), cit); err != nil {
				return err
			}
			item = cit
			if cur.Status == models.DispenseStatusDispensed {
				cur.ActualAmount = actualAmount(cur)
				return s.qualityCheck(ctx, m, cur)
			}
			return nil
		})
		if err == nil {
			prev = p
			s.observe("substitute", prev, updated)
		}
		return err
	})
	if err != nil {
		return nil, s.fail("substitute", rec.ID, err)
	}

	slog.Info("dispense item substituted", "record_id", rec.ID, "item_id", it.ID,
		"from", it.MedicineID, "to", med.ID, "reason", in.Reason)
	return item, nil
}

// ReturnItem restores one dispensed item's stock while the record is in
// progress. The item can then be dispensed again.
func (s *Service) ReturnItem(ctx context.Context, recordID, itemID, operator, reason string) (*models.DispenseItem, error) {
	unlock := s.lockRecord(recordID)
	defer unlock()

	rec, err := s.records.GetRecord(ctx, nil, recordID)
	if err != nil {
		return nil, err
	}
	it := rec.Item(itemID)
	if it == nil {
		return nil, &models.NotFoundError{Entity: "dispense item", Key: itemID}
	}

	var item *models.DispenseItem
	_, err = s.run(ctx, recordID, "return item", allocationKeys(it), func(m *inventory.Mutator, cur *models.DispenseRecord) error {
		if err := cur.Require("return item", models.DispenseStatusInProgress); err != nil {
			return err
		}
		item = cur.Item(itemID)
		if !item.Status.Complete() {
			return &models.InvalidTransitionError{Entity: "dispense item", ID: item.ID, From: string(item.Status), Operation: "return"}
		}
		if err := s.restore(ctx, m, item, operator, reason); err != nil {
			return err
		}
		if err := item.MarkReturned(m.Now()); err != nil {
			return err
		}
		item.UpdatedAt = m.Now()
		return s.records.UpdateItem(ctx, m.Tx(), item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
