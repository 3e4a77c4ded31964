package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDispenseStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from DispenseStatus
		to   DispenseStatus
		want bool
	}{
		{DispenseStatusPending, DispenseStatusInProgress, true},
		{DispenseStatusPending, DispenseStatusCancelled, true},
		{DispenseStatusPending, DispenseStatusDispensed, false},
		{DispenseStatusInProgress, DispenseStatusDispensed, true},
		{DispenseStatusInProgress, DispenseStatusReturned, true},
		{DispenseStatusInProgress, DispenseStatusCancelled, true},
		{DispenseStatusInProgress, DispenseStatusDelivered, false},
		{DispenseStatusDispensed, DispenseStatusDelivered, true},
		{DispenseStatusDispensed, DispenseStatusPartiallyDelivered, true},
		{DispenseStatusDispensed, DispenseStatusReturned, true},
		{DispenseStatusDispensed, DispenseStatusCancelled, false},
		{DispenseStatusPartiallyDelivered, DispenseStatusDelivered, true},
		{DispenseStatusPartiallyDelivered, DispenseStatusReturned, true},
		{DispenseStatusDelivered, DispenseStatusReturned, false},
		{DispenseStatusReturned, DispenseStatusInProgress, false},
		{DispenseStatusCancelled, DispenseStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispenseStatus_Terminal(t *testing.T) {
	for _, s := range []DispenseStatus{DispenseStatusDelivered, DispenseStatusReturned, DispenseStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		for _, to := range []DispenseStatus{DispenseStatusPending, DispenseStatusInProgress, DispenseStatusDispensed} {
			if s.CanTransition(to) {
				t.Errorf("terminal %s allows transition to %s", s, to)
			}
		}
	}
}

func TestDispenseRecord_TransitionTo(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &DispenseRecord{DispenseNumber: "DSP-1", Status: DispenseStatusPending}

	if err := r.TransitionTo(DispenseStatusInProgress, now, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.StartedAt == nil || !r.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, now)
	}

	err := r.TransitionTo(DispenseStatusDelivered, now, "deliver")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != string(DispenseStatusInProgress) || r.Status != DispenseStatusInProgress {
		t.Errorf("from = %s status = %s", ite.From, r.Status)
	}
}

func TestStockCheckResult_Downgrade(t *testing.T) {
	tests := []struct {
		a, b, want StockCheckResult
	}{
		{StockCheckSufficient, StockCheckPartial, StockCheckPartial},
		{StockCheckPartial, StockCheckSufficient, StockCheckPartial},
		{StockCheckPartial, StockCheckInsufficient, StockCheckInsufficient},
		{StockCheckInsufficient, StockCheckSufficient, StockCheckInsufficient},
	}
	for _, tt := range tests {
		if got := tt.a.Downgrade(tt.b); got != tt.want {
			t.Errorf("%s.Downgrade(%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDispenseItem_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newItem := func() *DispenseItem {
		return &DispenseItem{
			ID: "item-1", MedicineID: "med-a", PrescribedQuantity: 10,
			UnitPrice: decimal.RequireFromString("1.25"), Status: DispenseItemPending,
		}
	}

	t.Run("Dispense sets snapshots and amount", func(t *testing.T) {
		it := newItem()
		if err := it.MarkDispensed("L1", 10, 100, 90, now); err != nil {
			t.Fatalf("MarkDispensed() error = %v", err)
		}
		if *it.StockBefore != 100 || *it.StockAfter != 90 {
			t.Errorf("snapshots = %d/%d", *it.StockBefore, *it.StockAfter)
		}
		if !it.Amount.Equal(decimal.RequireFromString("12.50")) {
			t.Errorf("amount = %s, want 12.50", it.Amount)
		}
		if err := it.MarkDispensed("L1", 10, 90, 80, now); !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("double dispense error = %v", err)
		}
	})

	t.Run("Out of stock then substitute", func(t *testing.T) {
		it := newItem()
		if err := it.MarkOutOfStock(); err != nil {
			t.Fatalf("MarkOutOfStock() error = %v", err)
		}
		if it.Status.Complete() {
			t.Error("OUT_OF_STOCK should not count as complete")
		}
		err := it.MarkSubstituted("med-b", "shortage", "S1", decimal.NewFromInt(2), 50, 40, now)
		if err != nil {
			t.Fatalf("MarkSubstituted() error = %v", err)
		}
		if it.OriginalMedicineID == nil || *it.OriginalMedicineID != "med-a" {
			t.Errorf("original medicine = %v, want med-a", it.OriginalMedicineID)
		}
		if it.DispensedQuantity != 10 || !it.Status.Complete() {
			t.Errorf("quantity = %d status = %s", it.DispensedQuantity, it.Status)
		}

		_ = it.MarkSubstituted("med-c", "again", "C1", decimal.NewFromInt(3), 5, 0, now)
		if *it.OriginalMedicineID != "med-a" {
			t.Errorf("original medicine overwritten: %s", *it.OriginalMedicineID)
		}
	})

	t.Run("Return and re-dispense", func(t *testing.T) {
		it := newItem()
		if err := it.MarkReturned(now); !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("return of pending item error = %v", err)
		}
		_ = it.MarkDispensed("L1", 10, 100, 90, now)
		if err := it.MarkReturned(now); err != nil {
			t.Fatalf("MarkReturned() error = %v", err)
		}
		if it.DispensedQuantity != 0 || !it.Amount.IsZero() {
			t.Errorf("returned item keeps quantity %d amount %s", it.DispensedQuantity, it.Amount)
		}
		if err := it.MarkDispensed("L2", 10, 90, 80, now); err != nil {
			t.Errorf("re-dispense error = %v", err)
		}
	})
}

func TestDispenseRecord_IncompleteItems(t *testing.T) {
	r := &DispenseRecord{Items: []*DispenseItem{
		{ID: "a", Status: DispenseItemDispensed},
		{ID: "b", Status: DispenseItemOutOfStock},
		{ID: "c", Status: DispenseItemSubstituted},
		{ID: "d", Status: DispenseItemPending},
	}}
	got := r.IncompleteItems()
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
		t.Errorf("IncompleteItems() = %v", got)
	}
	if r.Item("c") == nil || r.Item("zz") != nil {
		t.Error("Item lookup mismatch")
	}
}
