package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/models"
)

// FixtureTime is the reference instant used by fixtures and fixed clocks.
var FixtureTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// FixtureMedicine creates a test medicine with sensible defaults.
func FixtureMedicine(overrides ...func(*models.Medicine)) *models.Medicine {
	id := uuid.New().String()

	medicine := &models.Medicine{
		ID:                   id,
		Code:                 "MED-" + strings.ToUpper(id[:8]),
		Name:                 "Amoxicillin 500mg",
		GenericName:          "amoxicillin",
		Category:             "ANTIBIOTIC",
		Unit:                 "capsule",
		MinStock:             20,
		MaxStock:             500,
		SafetyStock:          10,
		RetailPrice:          decimal.RequireFromString("0.45"),
		PrescriptionRequired: true,
		CreatedAt:            FixtureTime,
		UpdatedAt:            FixtureTime,
	}

	for _, override := range overrides {
		override(medicine)
	}

	return medicine
}

// FixtureBatch creates an empty batch of medicineID that expires a year after
// FixtureTime.
func FixtureBatch(medicineID string, overrides ...func(*models.BatchInventory)) *models.BatchInventory {
	id := uuid.New().String()
	expiry := FixtureTime.AddDate(1, 0, 0)
	produced := FixtureTime.AddDate(0, -6, 0)

	batch := models.NewBatch(id,
		models.BatchKey{MedicineID: medicineID, BatchNumber: "LOT-" + strings.ToUpper(id[:6])},
		models.BatchMeta{
			PurchasePrice:  decimal.RequireFromString("0.20"),
			ProductionDate: &produced,
			ExpiryDate:     &expiry,
			Location:       "A-01",
		})
	batch.CreatedAt = FixtureTime
	batch.UpdatedAt = FixtureTime

	for _, override := range overrides {
		override(batch)
	}

	return batch
}

// FixturePrescription creates a reviewed prescription with one line per
// medicine, each for qty units.
func FixturePrescription(qty int64, medicineIDs []string, overrides ...func(*models.Prescription)) *models.Prescription {
	id := uuid.New().String()
	expires := FixtureTime.AddDate(0, 1, 0)

	p := &models.Prescription{
		ID:                 id,
		PrescriptionNumber: "RX-" + strings.ToUpper(id[:8]),
		PatientID:          "patient-" + id[:4],
		PrescriberID:       "dr-house",
		Status:             models.PrescriptionStatusReviewed,
		IssuedAt:           FixtureTime.AddDate(0, 0, -1),
		ExpiresAt:          &expires,
		CreatedAt:          FixtureTime,
		UpdatedAt:          FixtureTime,
	}
	for i, med := range medicineIDs {
		p.Items = append(p.Items, &models.PrescriptionItem{
			ID:             uuid.New().String(),
			PrescriptionID: id,
			LineNo:         i + 1,
			MedicineID:     med,
			Quantity:       qty,
			Unit:           "capsule",
			Dosage:         fmt.Sprintf("%d times daily", i+1),
		})
	}

	for _, override := range overrides {
		override(p)
	}

	return p
}
