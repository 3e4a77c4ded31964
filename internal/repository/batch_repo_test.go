package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/testutil"
)

func setupBatchTest(t *testing.T) (*BatchRepository, *models.Medicine, context.Context) {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	med := testutil.FixtureMedicine()
	if err := NewMedicineRepository(db.DB.DB).Create(ctx, nil, med); err != nil {
		t.Fatalf("setup medicine: %v", err)
	}
	return NewBatchRepository(db.DB.DB), med, ctx
}

func TestBatchRepository_InsertAndGet(t *testing.T) {
	repo, med, ctx := setupBatchTest(t)

	batch := testutil.FixtureBatch(med.ID)
	if err := batch.Receive(100); err != nil {
		t.Fatal(err)
	}
	if err := batch.Reserve(30, testutil.FixtureTime); err != nil {
		t.Fatal(err)
	}

	t.Run("Insert batch", func(t *testing.T) {
		if err := repo.Insert(ctx, nil, batch); err != nil {
			t.Fatalf("failed to insert batch: %v", err)
		}
		if batch.Version != 1 {
			t.Errorf("expected version 1, got %d", batch.Version)
		}
	})

	t.Run("Get by key", func(t *testing.T) {
		got, err := repo.Get(ctx, nil, batch.Key())
		if err != nil {
			t.Fatalf("failed to get batch: %v", err)
		}
		if got.Levels() != batch.Levels() {
			t.Errorf("expected levels %+v, got %+v", batch.Levels(), got.Levels())
		}
		if got.Available() != 70 {
			t.Errorf("expected available 70, got %d", got.Available())
		}
		if got.ExpiryDate == nil || !got.ExpiryDate.Equal(*batch.ExpiryDate) {
			t.Errorf("expected expiry %v, got %v", batch.ExpiryDate, got.ExpiryDate)
		}
		if !got.PurchasePrice.Equal(batch.PurchasePrice) {
			t.Errorf("expected price %s, got %s", batch.PurchasePrice, got.PurchasePrice)
		}
	})

	t.Run("Duplicate key conflicts", func(t *testing.T) {
		dup := testutil.FixtureBatch(med.ID, func(b *models.BatchInventory) {
			b.BatchNumber = batch.BatchNumber
		})
		err := repo.Insert(ctx, nil, dup)
		if !errors.Is(err, models.ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification, got %v", err)
		}
	})

	t.Run("Missing batch", func(t *testing.T) {
		_, err := repo.Get(ctx, nil, models.BatchKey{MedicineID: med.ID, BatchNumber: "NOPE"})
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBatchRepository_UpdateVersionCheck(t *testing.T) {
	repo, med, ctx := setupBatchTest(t)

	batch := testutil.FixtureBatch(med.ID)
	if err := batch.Receive(50); err != nil {
		t.Fatal(err)
	}
	if err := repo.Insert(ctx, nil, batch); err != nil {
		t.Fatalf("setup: %v", err)
	}

	first, _ := repo.Get(ctx, nil, batch.Key())
	second, _ := repo.Get(ctx, nil, batch.Key())

	if err := first.Reserve(10, testutil.FixtureTime); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, nil, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("expected version 2, got %d", first.Version)
	}

	if err := second.Reserve(10, testutil.FixtureTime); err != nil {
		t.Fatal(err)
	}
	err := repo.Update(ctx, nil, second)
	if !errors.Is(err, models.ErrConcurrentModification) {
		t.Fatalf("expected stale update to conflict, got %v", err)
	}

	got, _ := repo.Get(ctx, nil, batch.Key())
	if got.Reserved() != 10 {
		t.Errorf("expected reserved 10, got %d", got.Reserved())
	}
}

func TestBatchRepository_ListByMedicineFEFO(t *testing.T) {
	repo, med, ctx := setupBatchTest(t)

	late := testutil.FixtureBatch(med.ID, func(b *models.BatchInventory) {
		b.BatchNumber = "B-LATE"
		e := testutil.FixtureTime.AddDate(2, 0, 0)
		b.ExpiryDate = &e
	})
	early := testutil.FixtureBatch(med.ID, func(b *models.BatchInventory) {
		b.BatchNumber = "C-EARLY"
		e := testutil.FixtureTime.AddDate(0, 2, 0)
		b.ExpiryDate = &e
	})
	undated := testutil.FixtureBatch(med.ID, func(b *models.BatchInventory) {
		b.BatchNumber = "A-NONE"
		b.ExpiryDate = nil
	})
	for _, b := range []*models.BatchInventory{late, early, undated} {
		if err := repo.Insert(ctx, nil, b); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	batches, err := repo.ListByMedicine(ctx, nil, med.ID)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}

	want := []string{"C-EARLY", "B-LATE", "A-NONE"}
	if len(batches) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(batches))
	}
	for i, b := range batches {
		if b.BatchNumber != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], b.BatchNumber)
		}
	}
}

func TestBatchRepository_List(t *testing.T) {
	repo, med, ctx := setupBatchTest(t)

	for i := 0; i < 3; i++ {
		b := testutil.FixtureBatch(med.ID)
		if i > 0 {
			if err := b.Receive(int64(i * 10)); err != nil {
				t.Fatal(err)
			}
		}
		if err := repo.Insert(ctx, nil, b); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	t.Run("Only in stock", func(t *testing.T) {
		list, err := repo.List(ctx, models.BatchFilter{MedicineID: med.ID, OnlyInStock: true}, models.DefaultPagination())
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if list.Total != 2 {
			t.Errorf("expected 2 batches in stock, got %d", list.Total)
		}
	})

	t.Run("Expiring before", func(t *testing.T) {
		cutoff := testutil.FixtureTime.AddDate(0, 6, 0)
		list, err := repo.List(ctx, models.BatchFilter{ExpiringBefore: &cutoff}, models.DefaultPagination())
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if list.Total != 0 {
			t.Errorf("expected no batches expiring within 6 months, got %d", list.Total)
		}
	})
}
