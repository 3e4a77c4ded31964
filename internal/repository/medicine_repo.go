package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pharmacore/pharmacore/internal/models"
)

// MedicineRepository handles catalog data access.
type MedicineRepository struct {
	db *sql.DB
}

// NewMedicineRepository creates a new medicine repository.
func NewMedicineRepository(db *sql.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

const medicineColumns = `id, code, name, generic_name, category, unit,
	min_stock, max_stock, safety_stock, retail_price,
	prescription_required, controlled, created_at, updated_at`

// Create inserts a new medicine.
func (r *MedicineRepository) Create(ctx context.Context, tx *sql.Tx, m *models.Medicine) error {
	query := `INSERT INTO medicines (` + medicineColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := pick(r.db, tx).ExecContext(ctx, query,
		m.ID,
		m.Code,
		m.Name,
		m.GenericName,
		m.Category,
		m.Unit,
		m.MinStock,
		m.MaxStock,
		m.SafetyStock,
		m.RetailPrice.String(),
		boolToInt(m.PrescriptionRequired),
		boolToInt(m.Controlled),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting medicine: %w", err)
	}
	return nil
}

// Update writes the editable catalog attributes. ID and code never change.
func (r *MedicineRepository) Update(ctx context.Context, tx *sql.Tx, m *models.Medicine) error {
	query := `
		UPDATE medicines SET
			name = ?, generic_name = ?, category = ?, unit = ?,
			min_stock = ?, max_stock = ?, safety_stock = ?, retail_price = ?,
			prescription_required = ?, controlled = ?, updated_at = ?
		WHERE id = ?`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		m.Name,
		m.GenericName,
		m.Category,
		m.Unit,
		m.MinStock,
		m.MaxStock,
		m.SafetyStock,
		m.RetailPrice.String(),
		boolToInt(m.PrescriptionRequired),
		boolToInt(m.Controlled),
		formatTime(m.UpdatedAt),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating medicine: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "medicine", Key: m.ID}
	}
	return nil
}

// GetByID retrieves a medicine by ID.
func (r *MedicineRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ?`
	m, err := scanMedicine(pick(r.db, tx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "medicine", Key: id}
	}
	return m, err
}

// GetByCode retrieves a medicine by its catalog code.
func (r *MedicineRepository) GetByCode(ctx context.Context, code string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE code = ?`
	m, err := scanMedicine(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "medicine", Key: code}
	}
	return m, err
}

// GetMany retrieves medicines by ID, keyed by ID. Unknown IDs are skipped.
func (r *MedicineRepository) GetMany(ctx context.Context, tx *sql.Tx, ids []string) (map[string]*models.Medicine, error) {
	out := make(map[string]*models.Medicine, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		m, err := r.GetByID(ctx, tx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// List retrieves medicines with filtering and pagination.
func (r *MedicineRepository) List(ctx context.Context, filter models.MedicineFilter, page models.Pagination) (*models.MedicineList, error) {
	var conditions []string
	var args []any

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(code LIKE ? OR name LIKE ? OR generic_name LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM medicines "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting medicines: %w", err)
	}

	query := `SELECT ` + medicineColumns + ` FROM medicines ` + where + ` ORDER BY code LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("querying medicines: %w", err)
	}
	defer rows.Close()

	var medicines []*models.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating medicines: %w", err)
	}

	return &models.MedicineList{
		Medicines:  medicines,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, nil
}

func scanMedicine(row rowScanner) (*models.Medicine, error) {
	var m models.Medicine
	var price, createdStr, updatedStr string
	var rxRequired, controlled int

	err := row.Scan(
		&m.ID,
		&m.Code,
		&m.Name,
		&m.GenericName,
		&m.Category,
		&m.Unit,
		&m.MinStock,
		&m.MaxStock,
		&m.SafetyStock,
		&price,
		&rxRequired,
		&controlled,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning medicine: %w", err)
	}

	if m.RetailPrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	m.PrescriptionRequired = rxRequired == 1
	m.Controlled = controlled == 1
	m.CreatedAt = mustParseTime(createdStr)
	m.UpdatedAt = mustParseTime(updatedStr)

	return &m, nil
}
