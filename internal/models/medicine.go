package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medicine is a catalog entry. Identity (ID, Code) never changes.
type Medicine struct {
	ID                   string
	Code                 string // "AMOX-500"
	Name                 string
	GenericName          string
	Category             string // "ANTIBIOTIC", "ANALGESIC", ...
	Unit                 string // "tablet", "capsule", "ml"
	MinStock             int64
	MaxStock             int64
	SafetyStock          int64 // Batches at or under this level are flagged Warning
	RetailPrice          decimal.Decimal
	PrescriptionRequired bool
	Controlled           bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MedicineFilter filters catalog listings.
type MedicineFilter struct {
	Category string
	Search   string // matches code, name or generic name
}

// MedicineList is a page of medicines.
type MedicineList struct {
	Medicines  []*Medicine
	Total      int
	Page       int
	TotalPages int
}
