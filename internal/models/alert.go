package models

import "time"

// AlertKind classifies stock alerts.
type AlertKind string

const (
	AlertKindLowStock   AlertKind = "LOW_STOCK"
	AlertKindNearExpiry AlertKind = "NEAR_EXPIRY"
	AlertKindExpired    AlertKind = "EXPIRED"
)

func (k AlertKind) String() string {
	return string(k)
}

// StockAlert is raised by status transitions and the periodic sweep.
type StockAlert struct {
	ID             string
	MedicineID     string
	BatchNumber    string
	Kind           AlertKind
	Message        string
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}
