package models

import "time"

// PrescriptionStatus is owned by the prescribing collaborator; dispensing only
// reads it, except for stamping Dispensed on delivery.
type PrescriptionStatus string

const (
	PrescriptionStatusPending   PrescriptionStatus = "PENDING"
	PrescriptionStatusReviewed  PrescriptionStatus = "REVIEWED"
	PrescriptionStatusDispensed PrescriptionStatus = "DISPENSED"
	PrescriptionStatusCancelled PrescriptionStatus = "CANCELLED"
	PrescriptionStatusExpired   PrescriptionStatus = "EXPIRED"
)

func (s PrescriptionStatus) String() string {
	return string(s)
}

// Prescription is the read-only input to the dispensing workflow.
type Prescription struct {
	ID                 string
	PrescriptionNumber string
	PatientID          string
	PrescriberID       string
	Status             PrescriptionStatus
	IssuedAt           time.Time
	ExpiresAt          *time.Time
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Items []*PrescriptionItem
}

// IsExpired reports whether the prescription validity has lapsed.
func (p *Prescription) IsExpired(now time.Time) bool {
	if p.Status == PrescriptionStatusExpired {
		return true
	}
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// MedicineIDs returns the medicines named on the prescription, in line order.
func (p *Prescription) MedicineIDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.MedicineID)
	}
	return ids
}

// PrescriptionItem is one prescribed line.
type PrescriptionItem struct {
	ID             string
	PrescriptionID string
	LineNo         int
	MedicineID     string
	Quantity       int64
	Unit           string
	Dosage         string
}
