// Package dispensing implements the per-prescription dispense workflow on top
// of the inventory store.
//
// Every record mutation holds the record's mutex, then runs inside one
// inventory atomic block, so record rows, batch rows and ledger rows commit
// together. The record mutex is always taken before any batch mutex.
package dispensing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Service runs the dispense workflow.
type Service struct {
	store         *inventory.Store
	reservations  *inventory.ReservationManager
	records       *repository.DispenseRepository
	prescriptions *repository.PrescriptionRepository
	medicines     *repository.MedicineRepository
	interactions  InteractionChecker
	allergies     AllergyChecker
	cfg           config.DispensingConfig
	locks         *inventory.KeyedLocker
	clock         util.Clock
	idGenerator   *util.IDGenerator
	metrics       *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithInteractionChecker replaces the default interaction checker.
func WithInteractionChecker(c InteractionChecker) Option {
	return func(s *Service) { s.interactions = c }
}

// WithAllergyChecker replaces the default allergy checker.
func WithAllergyChecker(c AllergyChecker) Option {
	return func(s *Service) { s.allergies = c }
}

// NewService creates a dispensing service sharing the store's locker, clock
// and metrics.
func NewService(db *database.DB, store *inventory.Store, cfg config.DispensingConfig, opts ...Option) *Service {
	s := &Service{
		store:         store,
		reservations:  inventory.NewReservationManager(store),
		records:       repository.NewDispenseRepository(db.DB),
		prescriptions: repository.NewPrescriptionRepository(db.DB),
		medicines:     repository.NewMedicineRepository(db.DB),
		interactions:  NoInteractions{},
		allergies:     NoAllergies{},
		cfg:           cfg,
		locks:         store.Locker(),
		clock:         store.Clock(),
		idGenerator:   util.NewIDGenerator(),
		metrics:       store.Metrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lockRecord(id string) func() {
	return s.locks.Lock("record:" + id)
}

func (s *Service) lockPrescription(id string) func() {
	return s.locks.Lock("prescription:" + id)
}

type recordFn func(m *inventory.Mutator, rec *models.DispenseRecord) error

// apply reloads the record inside the block's transaction, runs fn and
// writes the record back under its version check.
func (s *Service) apply(ctx context.Context, m *inventory.Mutator, id string, fn recordFn) (*models.DispenseRecord, models.DispenseStatus, error) {
	rec, err := s.records.GetRecord(ctx, m.Tx(), id)
	if err != nil {
		return nil, "", err
	}
	prev := rec.Status
	if err := fn(m, rec); err != nil {
		return nil, prev, err
	}
	rec.UpdatedAt = m.Now()
	if err := s.records.UpdateRecord(ctx, m.Tx(), rec); err != nil {
		return nil, prev, err
	}
	return rec, prev, nil
}

// run applies fn to a record in its own atomic block over keys. The caller
// holds the record mutex.
func (s *Service) run(ctx context.Context, id, op string, keys []models.BatchKey, fn recordFn) (*models.DispenseRecord, error) {
	var (
		rec  *models.DispenseRecord
		prev models.DispenseStatus
	)
	err := s.store.Atomic(ctx, keys, func(m *inventory.Mutator) error {
		var err error
		rec, prev, err = s.apply(ctx, m, id, fn)
		return err
	})
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	s.observe(op, prev, rec)
	return rec, nil
}

// observe logs and counts a committed record change.
func (s *Service) observe(op string, prev models.DispenseStatus, rec *models.DispenseRecord) {
	if rec.Status != prev {
		s.metrics.DispenseTransition(string(rec.Status))
		slog.Info("dispense record transitioned",
			"record_id", rec.ID, "dispense_number", rec.DispenseNumber,
			"operation", op, "from", prev, "to", rec.Status)
		return
	}
	slog.Debug("dispense record updated", "record_id", rec.ID, "operation", op)
}

func (s *Service) fail(op, id string, err error) error {
	if errors.Is(err, models.ErrInvalidStateTransition) {
		slog.Warn("dispense operation rejected", "record_id", id, "operation", op, "error", err)
	}
	return err
}

// allocationKeys returns the batches holding the items' unrestored stock.
func allocationKeys(items ...*models.DispenseItem) []models.BatchKey {
	var keys []models.BatchKey
	for _, it := range items {
		for _, a := range it.ActiveAllocations() {
			keys = append(keys, a.BatchKey())
		}
	}
	return keys
}

// ============================================================================
// Reads
// ============================================================================

// Get returns a record with its items and allocations.
func (s *Service) Get(ctx context.Context, id string) (*models.DispenseRecord, error) {
	return s.records.GetRecord(ctx, nil, id)
}

// GetByNumber returns a record by its dispense number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*models.DispenseRecord, error) {
	return s.records.GetByNumber(ctx, nil, number)
}

// ActiveRecord returns the open record of a prescription, or nil.
func (s *Service) ActiveRecord(ctx context.Context, prescriptionID string) (*models.DispenseRecord, error) {
	return s.records.GetActiveByPrescription(ctx, nil, prescriptionID)
}

// List returns record headers for the dispense queue.
func (s *Service) List(ctx context.Context, filter models.DispenseFilter, page models.Pagination) (*models.DispenseList, error) {
	return s.records.List(ctx, filter, page)
}

// GetPrescription returns a prescription with its items.
func (s *Service) GetPrescription(ctx context.Context, id string) (*models.Prescription, error) {
	return s.prescriptions.Get(ctx, nil, id)
}

// GetPrescriptionByNumber returns a prescription by its number.
func (s *Service) GetPrescriptionByNumber(ctx context.Context, number string) (*models.Prescription, error) {
	return s.prescriptions.GetByNumber(ctx, number)
}

// ReadyPrescriptions lists reviewed prescriptions waiting to be dispensed.
func (s *Service) ReadyPrescriptions(ctx context.Context, page models.Pagination) ([]*models.Prescription, int, error) {
	return s.prescriptions.ListByStatus(ctx, models.PrescriptionStatusReviewed, page)
}
