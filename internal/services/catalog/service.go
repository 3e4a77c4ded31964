// Package catalog provides the medicine catalog used by inventory and
// dispensing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Service provides catalog operations.
type Service struct {
	medicines   *repository.MedicineRepository
	idGenerator *util.IDGenerator
	clock       util.Clock
}

// NewService creates a new catalog service.
func NewService(db *database.DB, clock util.Clock) *Service {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Service{
		medicines:   repository.NewMedicineRepository(db.DB),
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
	}
}

// CreateMedicineInput contains data for creating a catalog entry.
type CreateMedicineInput struct {
	Code                 string
	Name                 string
	GenericName          string
	Category             string
	Unit                 string
	MinStock             int64
	MaxStock             int64
	SafetyStock          int64
	RetailPrice          decimal.Decimal
	PrescriptionRequired bool
	Controlled           bool
}

// UpdateMedicineInput changes editable attributes. Nil fields are left as is.
type UpdateMedicineInput struct {
	Name                 *string
	GenericName          *string
	Category             *string
	Unit                 *string
	MinStock             *int64
	MaxStock             *int64
	SafetyStock          *int64
	RetailPrice          *decimal.Decimal
	PrescriptionRequired *bool
	Controlled           *bool
}

// CreateMedicine adds a medicine to the catalog.
func (s *Service) CreateMedicine(ctx context.Context, input CreateMedicineInput) (*models.Medicine, error) {
	now := s.clock.Now()
	m := &models.Medicine{
		ID:                   s.idGenerator.NewID(),
		Code:                 strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:                 strings.TrimSpace(input.Name),
		GenericName:          input.GenericName,
		Category:             strings.ToUpper(input.Category),
		Unit:                 input.Unit,
		MinStock:             input.MinStock,
		MaxStock:             input.MaxStock,
		SafetyStock:          input.SafetyStock,
		RetailPrice:          input.RetailPrice,
		PrescriptionRequired: input.PrescriptionRequired,
		Controlled:           input.Controlled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if m.Unit == "" {
		m.Unit = "unit"
	}
	if err := validate(m); err != nil {
		return nil, err
	}

	if err := s.medicines.Create(ctx, nil, m); err != nil {
		return nil, fmt.Errorf("creating medicine: %w", err)
	}
	return m, nil
}

// UpdateMedicine applies input to an existing medicine.
func (s *Service) UpdateMedicine(ctx context.Context, id string, input UpdateMedicineInput) (*models.Medicine, error) {
	m, err := s.medicines.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		m.Name = *input.Name
	}
	if input.GenericName != nil {
		m.GenericName = *input.GenericName
	}
	if input.Category != nil {
		m.Category = strings.ToUpper(*input.Category)
	}
	if input.Unit != nil {
		m.Unit = *input.Unit
	}
	if input.MinStock != nil {
		m.MinStock = *input.MinStock
	}
	if input.MaxStock != nil {
		m.MaxStock = *input.MaxStock
	}
	if input.SafetyStock != nil {
		m.SafetyStock = *input.SafetyStock
	}
	if input.RetailPrice != nil {
		m.RetailPrice = *input.RetailPrice
	}
	if input.PrescriptionRequired != nil {
		m.PrescriptionRequired = *input.PrescriptionRequired
	}
	if input.Controlled != nil {
		m.Controlled = *input.Controlled
	}
	m.UpdatedAt = s.clock.Now()

	if err := validate(m); err != nil {
		return nil, err
	}
	if err := s.medicines.Update(ctx, nil, m); err != nil {
		return nil, fmt.Errorf("updating medicine: %w", err)
	}
	return m, nil
}

// GetMedicine retrieves a medicine by ID.
func (s *Service) GetMedicine(ctx context.Context, id string) (*models.Medicine, error) {
	return s.medicines.GetByID(ctx, nil, id)
}

// GetMedicineByCode retrieves a medicine by its catalog code.
func (s *Service) GetMedicineByCode(ctx context.Context, code string) (*models.Medicine, error) {
	return s.medicines.GetByCode(ctx, strings.ToUpper(code))
}

// ListMedicines retrieves medicines with filtering and pagination.
func (s *Service) ListMedicines(ctx context.Context, filter models.MedicineFilter, page models.Pagination) (*models.MedicineList, error) {
	return s.medicines.List(ctx, filter, page)
}

func validate(m *models.Medicine) error {
	var errs []error
	if m.Code == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.SafetyStock < 0 || m.MinStock < 0 || m.MaxStock < 0 {
		errs = append(errs, errors.New("stock thresholds cannot be negative"))
	}
	if m.MaxStock > 0 && m.MinStock > m.MaxStock {
		errs = append(errs, fmt.Errorf("min stock %d exceeds max stock %d", m.MinStock, m.MaxStock))
	}
	if m.RetailPrice.IsNegative() {
		errs = append(errs, errors.New("retail price cannot be negative"))
	}
	return errors.Join(errs...)
}
