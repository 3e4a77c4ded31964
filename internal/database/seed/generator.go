package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/services/catalog"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Config configures the seed data generator.
type Config struct {
	// Now anchors batch expiries and prescription dates.
	Now time.Time
	// BatchesPerMedicine is the upper bound of batches received per medicine.
	BatchesPerMedicine int
	Prescriptions      int
	// NearExpiryShare is the fraction of batches that expire within a month.
	NearExpiryShare float64
	RandomSeed      int64
	Operator        string
}

// DefaultConfig returns a default seed configuration.
func DefaultConfig(now time.Time) Config {
	return Config{
		Now:                now,
		BatchesPerMedicine: 3,
		Prescriptions:      25,
		NearExpiryShare:    0.15,
		RandomSeed:         2026,
		Operator:           "seed",
	}
}

// Report counts what Generate created.
type Report struct {
	Medicines     int
	Batches       int
	Units         int64
	Prescriptions int
}

// Generator generates demo data through the services, so every batch is
// backed by a ledger row.
type Generator struct {
	cfg           Config
	rng           *rand.Rand
	catalog       *catalog.Service
	store         *inventory.Store
	prescriptions *repository.PrescriptionRepository

	medicines []*models.Medicine
}

// NewGenerator creates a new seed data generator.
func NewGenerator(db *database.DB, cat *catalog.Service, store *inventory.Store, cfg Config) *Generator {
	if cfg.Operator == "" {
		cfg.Operator = "seed"
	}
	return &Generator{
		cfg:           cfg,
		rng:           rand.New(rand.NewSource(cfg.RandomSeed)),
		catalog:       cat,
		store:         store,
		prescriptions: repository.NewPrescriptionRepository(db.DB),
	}
}

// Generate creates all seed data. It is not idempotent; callers check for an
// empty catalog first.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	slog.Info("starting seed data generation",
		"medicines", len(Medicines),
		"prescriptions", g.cfg.Prescriptions,
	)

	report := &Report{}
	if err := g.generateMedicines(ctx, report); err != nil {
		return nil, fmt.Errorf("generating medicines: %w", err)
	}
	if err := g.generateBatches(ctx, report); err != nil {
		return nil, fmt.Errorf("generating batches: %w", err)
	}
	if err := g.generatePrescriptions(ctx, report); err != nil {
		return nil, fmt.Errorf("generating prescriptions: %w", err)
	}

	slog.Info("seed data generation complete",
		"medicines", report.Medicines,
		"batches", report.Batches,
		"units", report.Units,
		"prescriptions", report.Prescriptions,
	)
	return report, nil
}

func (g *Generator) generateMedicines(ctx context.Context, report *Report) error {
	for _, t := range Medicines {
		med, err := g.catalog.CreateMedicine(ctx, catalog.CreateMedicineInput{
			Code:                 t.Code,
			Name:                 t.Name,
			GenericName:          t.GenericName,
			Category:             t.Category,
			Unit:                 t.Unit,
			MinStock:             t.MinStock,
			MaxStock:             t.MaxStock,
			SafetyStock:          t.SafetyStock,
			RetailPrice:          decimal.RequireFromString(t.Price),
			PrescriptionRequired: true,
			Controlled:           t.Controlled,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", t.Code, err)
		}
		g.medicines = append(g.medicines, med)
		report.Medicines++
	}
	return nil
}

func (g *Generator) generateBatches(ctx context.Context, report *Report) error {
	for i, med := range g.medicines {
		t := Medicines[i]
		n := 1 + g.rng.Intn(max(g.cfg.BatchesPerMedicine, 1))

		for b := 0; b < n; b++ {
			packs := 1 + g.rng.Int63n(max(t.MaxStock/(int64(n)*t.PackSize)/2, 1))
			qty := packs * t.PackSize

			expiry := g.expiry()
			produced := expiry.AddDate(-2, 0, 0)
			// Purchase price is 55-75% of retail.
			margin := decimal.NewFromInt(int64(55 + g.rng.Intn(21))).Div(decimal.NewFromInt(100))
			price := med.RetailPrice.Mul(margin).Round(4)

			location := Locations[g.rng.Intn(len(Locations))]
			if t.Controlled {
				location = "SAFE-01"
			}

			key := models.BatchKey{
				MedicineID:  med.ID,
				BatchNumber: fmt.Sprintf("%s-%s-%02d", strings.SplitN(t.Code, "-", 2)[0], expiry.Format("0601"), b+1),
			}
			if _, err := g.store.AddStock(ctx, inventory.AddStockInput{
				Key:      key,
				Quantity: qty,
				Meta: models.BatchMeta{
					PurchasePrice:  price,
					ProductionDate: &produced,
					ExpiryDate:     &expiry,
					Location:       location,
				},
				Entry: inventory.Entry{
					Operator:      g.cfg.Operator,
					Reason:        "opening stock",
					ReferenceType: models.ReferenceSeed,
				},
			}); err != nil {
				return fmt.Errorf("receiving %s: %w", key, err)
			}
			report.Batches++
			report.Units += qty
		}
	}
	return nil
}

// expiry picks a batch expiry: mostly 3 to 24 months out, some within the
// near-expiry window.
func (g *Generator) expiry() time.Time {
	day := util.StartOfDay(g.cfg.Now)
	if g.rng.Float64() < g.cfg.NearExpiryShare {
		return day.AddDate(0, 0, 3+g.rng.Intn(25))
	}
	return day.AddDate(0, 3+g.rng.Intn(22), g.rng.Intn(28))
}

func (g *Generator) generatePrescriptions(ctx context.Context, report *Report) error {
	idGen := util.NewIDGenerator()

	for i := 0; i < g.cfg.Prescriptions; i++ {
		issued := g.cfg.Now.Add(-time.Duration(g.rng.Intn(72)) * time.Hour)
		expires := issued.AddDate(0, 1, 0)
		surname := Surnames[g.rng.Intn(len(Surnames))]

		rx := &models.Prescription{
			ID:                 idGen.NewID(),
			PrescriptionNumber: util.DocumentNumber(util.PrefixPrescription, issued),
			PatientID:          fmt.Sprintf("pt-%s-%04d", strings.ToLower(surname), g.rng.Intn(10000)),
			PrescriberID:       Prescribers[g.rng.Intn(len(Prescribers))],
			Status:             models.PrescriptionStatusReviewed,
			IssuedAt:           issued,
			ExpiresAt:          &expires,
			CreatedAt:          issued,
			UpdatedAt:          issued,
		}

		lines := 1 + g.rng.Intn(3)
		picked := make(map[int]bool, lines)
		for len(rx.Items) < lines {
			m := g.rng.Intn(len(g.medicines))
			if picked[m] {
				continue
			}
			picked[m] = true

			t := Medicines[m]
			rx.Items = append(rx.Items, &models.PrescriptionItem{
				ID:             idGen.NewID(),
				PrescriptionID: rx.ID,
				LineNo:         len(rx.Items) + 1,
				MedicineID:     g.medicines[m].ID,
				Quantity:       t.PackSize * int64(1+g.rng.Intn(2)),
				Unit:           t.Unit,
				Dosage:         Dosages[g.rng.Intn(len(Dosages))],
			})
		}

		if err := g.prescriptions.Create(ctx, nil, rx); err != nil {
			return fmt.Errorf("creating %s: %w", rx.PrescriptionNumber, err)
		}
		report.Prescriptions++
	}
	return nil
}
