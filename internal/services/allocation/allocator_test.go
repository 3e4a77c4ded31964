package allocation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/util"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func batch(t *testing.T, number string, current int64, status models.BatchStatus, expiry, produced *time.Time) *models.BatchInventory {
	t.Helper()
	b, err := models.RestoreBatch(models.BatchSnapshot{
		ID:             "id-" + number,
		MedicineID:     "med-1",
		BatchNumber:    number,
		CurrentStock:   current,
		AvailableStock: current,
		Status:         status,
		ExpiryDate:     expiry,
		ProductionDate: produced,
	})
	require.NoError(t, err)
	return b
}

func TestPlanFromBatches_Order(t *testing.T) {
	batches := []*models.BatchInventory{
		batch(t, "C", 10, models.BatchStatusNormal, nil, nil),
		batch(t, "B", 10, models.BatchStatusNormal, date(2026, 9, 1), date(2025, 9, 1)),
		batch(t, "A", 10, models.BatchStatusNormal, date(2026, 9, 1), date(2025, 10, 1)),
		batch(t, "D", 10, models.BatchStatusWarning, date(2026, 6, 1), nil),
	}

	plan := PlanFromBatches(batches, 25, now)

	require.True(t, plan.Satisfied())
	require.Equal(t, int64(25), plan.Allocated)
	require.Len(t, plan.Allocations, 3)
	require.Equal(t, "D", plan.Allocations[0].Key.BatchNumber)
	require.Equal(t, "B", plan.Allocations[1].Key.BatchNumber)
	require.Equal(t, "A", plan.Allocations[2].Key.BatchNumber)
	require.Equal(t, int64(5), plan.Allocations[2].Quantity)
	require.NoError(t, plan.Err())
}

func TestPlanFromBatches_TieBreaksOnBatchNumber(t *testing.T) {
	batches := []*models.BatchInventory{
		batch(t, "L2", 5, models.BatchStatusNormal, date(2026, 9, 1), nil),
		batch(t, "L1", 5, models.BatchStatusNormal, date(2026, 9, 1), nil),
	}

	plan := PlanFromBatches(batches, 5, now)

	require.Len(t, plan.Allocations, 1)
	require.Equal(t, "L1", plan.Allocations[0].Key.BatchNumber)
}

func TestPlanFromBatches_Exclusions(t *testing.T) {
	batches := []*models.BatchInventory{
		// Stored Normal but past its expiry date.
		batch(t, "OLD", 50, models.BatchStatusNormal, date(2026, 3, 1), nil),
		batch(t, "ICE", 50, models.BatchStatusFrozen, date(2027, 1, 1), nil),
		batch(t, "BRK", 50, models.BatchStatusDamaged, date(2027, 1, 1), nil),
		batch(t, "NIL", 0, models.BatchStatusNormal, date(2027, 1, 1), nil),
		batch(t, "OK", 20, models.BatchStatusNormal, date(2027, 1, 1), nil),
	}

	plan := PlanFromBatches(batches, 30, now)

	require.False(t, plan.Satisfied())
	require.Equal(t, int64(20), plan.Allocated)
	require.Equal(t, int64(10), plan.Shortage)

	reasons := map[string]Reason{}
	for _, ex := range plan.Excluded {
		reasons[ex.Key.BatchNumber] = ex.Reason
	}
	require.Equal(t, map[string]Reason{
		"OLD": ReasonExpired,
		"ICE": ReasonFrozen,
		"BRK": ReasonDamaged,
		"NIL": ReasonEmpty,
	}, reasons)

	var shortage *models.InsufficientStockError
	require.True(t, errors.As(plan.Err(), &shortage))
	require.Equal(t, int64(10), shortage.Shortage())
}

func TestPlan_ErrReportsUnavailable(t *testing.T) {
	batches := []*models.BatchInventory{
		batch(t, "OLD", 50, models.BatchStatusNormal, date(2026, 1, 1), nil),
	}

	plan := PlanFromBatches(batches, 10, now)

	require.ErrorIs(t, plan.Err(), models.ErrBatchUnavailable)
	require.NotErrorIs(t, plan.Err(), models.ErrInsufficientStock)
}

func TestPlanFromBatches_NoBatches(t *testing.T) {
	plan := PlanFromBatches(nil, 10, now)

	require.Equal(t, int64(10), plan.Shortage)
	require.ErrorIs(t, plan.Err(), models.ErrInsufficientStock)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListByMedicine(ctx context.Context, tx *sql.Tx, medicineID string) ([]*models.BatchInventory, error) {
	args := m.Called(ctx, tx, medicineID)
	return args.Get(0).([]*models.BatchInventory), args.Error(1)
}

func TestAllocator_Plan(t *testing.T) {
	src := new(mockSource)
	src.On("ListByMedicine", mock.Anything, (*sql.Tx)(nil), "med-1").
		Return([]*models.BatchInventory{batch(t, "A", 40, models.BatchStatusNormal, date(2027, 1, 1), nil)}, nil)

	a := NewAllocator(src, util.NewFixedClock(now))
	plan, err := a.Plan(context.Background(), "med-1", 30)

	require.NoError(t, err)
	require.Equal(t, "med-1", plan.MedicineID)
	require.Equal(t, []models.BatchKey{{MedicineID: "med-1", BatchNumber: "A"}}, plan.Keys())
	src.AssertExpectations(t)

	_, err = a.Plan(context.Background(), "med-1", 0)
	require.ErrorIs(t, err, models.ErrInvalidQuantity)
}
