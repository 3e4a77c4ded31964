package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/testutil"
)

func setupMedicineTest(t *testing.T) (*MedicineRepository, *testutil.TestDB, context.Context) {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewMedicineRepository(db.DB.DB), db, context.Background()
}

func TestMedicineRepository_CRUD(t *testing.T) {
	repo, _, ctx := setupMedicineTest(t)
	med := testutil.FixtureMedicine(func(m *models.Medicine) { m.Controlled = true })

	t.Run("Create medicine", func(t *testing.T) {
		if err := repo.Create(ctx, nil, med); err != nil {
			t.Fatalf("failed to create medicine: %v", err)
		}
		got, err := repo.GetByID(ctx, nil, med.ID)
		if err != nil {
			t.Fatalf("failed to get medicine: %v", err)
		}
		if got.Code != med.Code {
			t.Errorf("expected code %s, got %s", med.Code, got.Code)
		}
		if !got.Controlled || !got.PrescriptionRequired {
			t.Errorf("expected controlled prescription medicine, got %+v", got)
		}
		if !got.RetailPrice.Equal(med.RetailPrice) {
			t.Errorf("expected price %s, got %s", med.RetailPrice, got.RetailPrice)
		}
	})

	t.Run("Duplicate code fails", func(t *testing.T) {
		dup := testutil.FixtureMedicine(func(m *models.Medicine) { m.Code = med.Code })
		if err := repo.Create(ctx, nil, dup); err == nil {
			t.Error("expected error for duplicate code")
		}
	})

	t.Run("Update medicine", func(t *testing.T) {
		med.SafetyStock = 40
		med.Name = "Amoxicillin 500mg caps"
		if err := repo.Update(ctx, nil, med); err != nil {
			t.Fatalf("failed to update: %v", err)
		}
		got, _ := repo.GetByCode(ctx, med.Code)
		if got.SafetyStock != 40 || got.Name != med.Name {
			t.Errorf("update not applied: %+v", got)
		}
	})

	t.Run("Missing medicine", func(t *testing.T) {
		_, err := repo.GetByID(ctx, nil, "missing")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMedicineRepository_List(t *testing.T) {
	repo, _, ctx := setupMedicineTest(t)

	for _, name := range []string{"Ibuprofen 200mg", "Ibuprofen 400mg", "Paracetamol 500mg"} {
		m := testutil.FixtureMedicine(func(m *models.Medicine) {
			m.Name = name
			m.Category = "ANALGESIC"
		})
		if err := repo.Create(ctx, nil, m); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	list, err := repo.List(ctx, models.MedicineFilter{Search: "Ibuprofen"}, models.DefaultPagination())
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("expected 2 matches, got %d", list.Total)
	}

	list, err = repo.List(ctx, models.MedicineFilter{Category: "ANALGESIC"}, models.Pagination{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if list.Total != 3 || len(list.Medicines) != 1 || list.TotalPages != 2 {
		t.Errorf("expected page 2 of 2 with one medicine, got %d of %d (%d)", len(list.Medicines), list.TotalPages, list.Total)
	}
}

func TestAlertRepository_RaiseIsIdempotent(t *testing.T) {
	repo, db, ctx := setupMedicineTest(t)
	med := testutil.FixtureMedicine()
	if err := repo.Create(ctx, nil, med); err != nil {
		t.Fatalf("setup: %v", err)
	}
	alerts := NewAlertRepository(db.DB.DB)

	alert := func(id string) *models.StockAlert {
		return &models.StockAlert{ID: id, MedicineID: med.ID, BatchNumber: "L1", Kind: models.AlertKindNearExpiry,
			Message: "expires soon", CreatedAt: testutil.FixtureTime}
	}

	raised, err := alerts.Raise(ctx, nil, alert("a1"))
	if err != nil || !raised {
		t.Fatalf("expected first alert to be raised, got %v, %v", raised, err)
	}
	raised, err = alerts.Raise(ctx, nil, alert("a2"))
	if err != nil || raised {
		t.Fatalf("expected duplicate open alert to be ignored, got %v, %v", raised, err)
	}

	if err := alerts.Acknowledge(ctx, "a1", testutil.FixtureTime); err != nil {
		t.Fatalf("failed to acknowledge: %v", err)
	}
	raised, err = alerts.Raise(ctx, nil, alert("a3"))
	if err != nil || !raised {
		t.Errorf("expected alert to be raised again after acknowledgement, got %v, %v", raised, err)
	}

	open, err := alerts.ListOpen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != "a3" {
		t.Errorf("expected only a3 open, got %+v", open)
	}
}
