package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BatchKey identifies one batch of one medicine. It is the unit of mutual
// exclusion for stock mutations.
type BatchKey struct {
	MedicineID  string
	BatchNumber string
}

func (k BatchKey) String() string {
	return k.MedicineID + "/" + k.BatchNumber
}

// SortedBatchKeys returns the keys deduplicated and in lock-acquisition order.
func SortedBatchKeys(keys []BatchKey) []BatchKey {
	seen := make(map[BatchKey]struct{}, len(keys))
	out := make([]BatchKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MedicineID != out[j].MedicineID {
			return out[i].MedicineID < out[j].MedicineID
		}
		return out[i].BatchNumber < out[j].BatchNumber
	})
	return out
}

// BatchStatus is the lifecycle status of a batch.
type BatchStatus string

const (
	BatchStatusNormal  BatchStatus = "NORMAL"
	BatchStatusWarning BatchStatus = "WARNING"
	BatchStatusExpired BatchStatus = "EXPIRED"
	BatchStatusDamaged BatchStatus = "DAMAGED"
	BatchStatusFrozen  BatchStatus = "FROZEN"
)

func (s BatchStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the declared statuses.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusNormal, BatchStatusWarning, BatchStatusExpired, BatchStatusDamaged, BatchStatusFrozen:
		return true
	}
	return false
}

// Blocked reports whether stock in this status may not be reserved, locked or allocated.
func (s BatchStatus) Blocked() bool {
	switch s {
	case BatchStatusExpired, BatchStatusDamaged, BatchStatusFrozen:
		return true
	}
	return false
}

// ParseBatchStatus converts a stored value into a BatchStatus.
func ParseBatchStatus(v string) (BatchStatus, error) {
	s := BatchStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown batch status %q", v)
	}
	return s, nil
}

// DeriveAvailable is the single definition of available stock.
func DeriveAvailable(current, reserved, locked int64) int64 {
	if a := current - reserved - locked; a > 0 {
		return a
	}
	return 0
}

// StockLevels is a read-only view of the quantity fields of a batch.
type StockLevels struct {
	Current   int64
	Reserved  int64
	Locked    int64
	Available int64
}

// BatchMeta holds the descriptive attributes supplied on first receipt.
type BatchMeta struct {
	PurchasePrice  decimal.Decimal
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	Location       string
}

// BatchInventory is the mutable stock state of one batch. Quantities are only
// changed through its mutators, each of which re-derives available stock.
type BatchInventory struct {
	ID             string
	MedicineID     string
	BatchNumber    string
	PurchasePrice  decimal.Decimal
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	Location       string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	status    BatchStatus
	current   int64
	reserved  int64
	locked    int64
	available int64
}

// NewBatch creates an empty Normal batch.
func NewBatch(id string, key BatchKey, meta BatchMeta) *BatchInventory {
	return &BatchInventory{
		ID:             id,
		MedicineID:     key.MedicineID,
		BatchNumber:    key.BatchNumber,
		PurchasePrice:  meta.PurchasePrice,
		ProductionDate: meta.ProductionDate,
		ExpiryDate:     meta.ExpiryDate,
		Location:       meta.Location,
		status:         BatchStatusNormal,
	}
}

// BatchSnapshot is the flat persisted form of a batch.
type BatchSnapshot struct {
	ID             string
	MedicineID     string
	BatchNumber    string
	CurrentStock   int64
	ReservedStock  int64
	LockedStock    int64
	AvailableStock int64
	PurchasePrice  decimal.Decimal
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	Status         BatchStatus
	Location       string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RestoreBatch rebuilds a batch from its persisted form, rejecting rows whose
// quantities break the partition invariant.
func RestoreBatch(s BatchSnapshot) (*BatchInventory, error) {
	if s.CurrentStock < 0 || s.ReservedStock < 0 || s.LockedStock < 0 {
		return nil, fmt.Errorf("batch %s/%s has negative quantities", s.MedicineID, s.BatchNumber)
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("batch %s/%s has unknown status %q", s.MedicineID, s.BatchNumber, s.Status)
	}
	b := &BatchInventory{
		ID:             s.ID,
		MedicineID:     s.MedicineID,
		BatchNumber:    s.BatchNumber,
		PurchasePrice:  s.PurchasePrice,
		ProductionDate: s.ProductionDate,
		ExpiryDate:     s.ExpiryDate,
		Location:       s.Location,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		status:         s.Status,
		current:        s.CurrentStock,
		reserved:       s.ReservedStock,
		locked:         s.LockedStock,
	}
	b.derive()
	if s.AvailableStock != b.available {
		return nil, fmt.Errorf("batch %s/%s stored available %d does not match derived %d",
			s.MedicineID, s.BatchNumber, s.AvailableStock, b.available)
	}
	return b, nil
}

// Snapshot returns the persisted form.
func (b *BatchInventory) Snapshot() BatchSnapshot {
	return BatchSnapshot{
		ID:             b.ID,
		MedicineID:     b.MedicineID,
		BatchNumber:    b.BatchNumber,
		CurrentStock:   b.current,
		ReservedStock:  b.reserved,
		LockedStock:    b.locked,
		AvailableStock: b.available,
		PurchasePrice:  b.PurchasePrice,
		ProductionDate: b.ProductionDate,
		ExpiryDate:     b.ExpiryDate,
		Status:         b.status,
		Location:       b.Location,
		Version:        b.Version,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func (b *BatchInventory) derive() {
	b.available = DeriveAvailable(b.current, b.reserved, b.locked)
}

// Key returns the batch key.
func (b *BatchInventory) Key() BatchKey {
	return BatchKey{MedicineID: b.MedicineID, BatchNumber: b.BatchNumber}
}

func (b *BatchInventory) Status() BatchStatus { return b.status }
func (b *BatchInventory) Current() int64      { return b.current }
func (b *BatchInventory) Reserved() int64     { return b.reserved }
func (b *BatchInventory) Locked() int64       { return b.locked }
func (b *BatchInventory) Available() int64    { return b.available }

// Levels returns all quantity fields at once.
func (b *BatchInventory) Levels() StockLevels {
	return StockLevels{
		Current:   b.current,
		Reserved:  b.reserved,
		Locked:    b.locked,
		Available: b.available,
	}
}

// IsExpired reports whether the expiry date has passed.
func (b *BatchInventory) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// DaysUntilExpiry returns whole days until expiry; negative once expired.
// ok is false for batches without an expiry date.
func (b *BatchInventory) DaysUntilExpiry(now time.Time) (days int, ok bool) {
	if b.ExpiryDate == nil {
		return 0, false
	}
	d := b.ExpiryDate.Sub(now)
	if d < 0 {
		return int(d.Hours()/24) - 1, true
	}
	return int(d.Hours() / 24), true
}

// EffectiveStatus applies lazy expiry on top of the stored status.
func (b *BatchInventory) EffectiveStatus(now time.Time) BatchStatus {
	if b.status != BatchStatusExpired && b.IsExpired(now) && b.status != BatchStatusDamaged {
		return BatchStatusExpired
	}
	return b.status
}

// ExpireIfDue applies lazy expiry to the in-memory status and reports
// whether it changed. Reads use it so callers never see a stale Normal.
func (b *BatchInventory) ExpireIfDue(now time.Time) bool {
	if st := b.EffectiveStatus(now); st != b.status {
		b.status = st
		return true
	}
	return false
}

// Allocatable reports whether the batch can contribute stock at now.
func (b *BatchInventory) Allocatable(now time.Time) bool {
	return !b.EffectiveStatus(now).Blocked() && b.available > 0
}

func (b *BatchInventory) checkUsable(now time.Time) error {
	if st := b.EffectiveStatus(now); st.Blocked() {
		return &BatchUnavailableError{MedicineID: b.MedicineID, BatchNumber: b.BatchNumber, Status: st}
	}
	return nil
}

// Receive adds qty units to current stock.
func (b *BatchInventory) Receive(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	b.current += qty
	b.derive()
	return nil
}

// Consume removes qty units from current stock. Up to fromReserved and
// fromLocked units are drawn from the held quantities; the remainder must fit
// in available stock. Removing more than current stock is an integrity
// violation and leaves the batch unchanged.
func (b *BatchInventory) Consume(qty, fromReserved, fromLocked int64) error {
	if qty <= 0 || fromReserved < 0 || fromLocked < 0 {
		return ErrInvalidQuantity
	}
	r := min(fromReserved, b.reserved, qty)
	l := min(fromLocked, b.locked, qty-r)
	free := qty - r - l
	if free > b.available {
		return &InsufficientStockError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Requested:   qty,
			Available:   b.available + r + l,
		}
	}
	if qty > b.current {
		return &LedgerIntegrityError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Expected:    b.current,
			Got:         qty,
			Detail:      "reduction exceeds current stock",
		}
	}
	b.reserved -= r
	b.locked -= l
	b.current -= qty
	b.derive()
	return nil
}

// Reserve holds qty available units. It never partially reserves.
func (b *BatchInventory) Reserve(qty int64, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := b.checkUsable(now); err != nil {
		return err
	}
	if b.available < qty {
		return &InsufficientStockError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Requested:   qty,
			Available:   b.available,
		}
	}
	b.reserved += qty
	b.derive()
	return nil
}

// ReleaseReserved returns up to qty reserved units to available stock and
// reports how many were released.
func (b *BatchInventory) ReleaseReserved(qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	n := min(qty, b.reserved)
	b.reserved -= n
	b.derive()
	return n, nil
}

// Lock holds qty available units outside normal allocation.
func (b *BatchInventory) Lock(qty int64, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := b.checkUsable(now); err != nil {
		return err
	}
	if b.available < qty {
		return &InsufficientStockError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Requested:   qty,
			Available:   b.available,
		}
	}
	b.locked += qty
	b.derive()
	return nil
}

// Unlock releases up to qty locked units and reports how many were released.
func (b *BatchInventory) Unlock(qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	n := min(qty, b.locked)
	b.locked -= n
	b.derive()
	return n, nil
}

// Recount sets current stock to a physically counted quantity and returns
// the signed adjustment.
func (b *BatchInventory) Recount(counted int64) (int64, error) {
	if counted < 0 {
		return 0, ErrInvalidQuantity
	}
	delta := counted - b.current
	b.current = counted
	b.derive()
	return delta, nil
}

// SetOperatorStatus applies an operator decision: freeze, mark damaged, or
// clear back to Normal. Expired batches stay expired.
func (b *BatchInventory) SetOperatorStatus(s BatchStatus) error {
	switch s {
	case BatchStatusFrozen, BatchStatusDamaged, BatchStatusNormal:
	default:
		return fmt.Errorf("status %s cannot be set by an operator", s)
	}
	if b.status == BatchStatusExpired {
		return &InvalidTransitionError{Entity: "batch", ID: b.Key().String(), From: string(b.status), Operation: "set status " + string(s)}
	}
	b.status = s
	return nil
}

// RefreshStatus re-evaluates the automatic statuses. Expired wins over
// everything but Damaged; Warning and Normal follow current stock against the
// safety threshold. Operator-set statuses are left alone. It reports whether
// the status changed.
func (b *BatchInventory) RefreshStatus(now time.Time, safetyStock int64) bool {
	prev := b.status
	switch {
	case b.status == BatchStatusExpired || b.status == BatchStatusDamaged:
	case b.IsExpired(now):
		b.status = BatchStatusExpired
	case b.status == BatchStatusFrozen:
	case b.current <= safetyStock:
		b.status = BatchStatusWarning
	default:
		b.status = BatchStatusNormal
	}
	return prev != b.status
}

// BatchFilter filters batch listings.
type BatchFilter struct {
	MedicineID     string
	Status         *BatchStatus
	ExpiringBefore *time.Time
	OnlyInStock    bool
}

// BatchList is a page of batches.
type BatchList struct {
	Batches    []*BatchInventory
	Total      int
	Page       int
	TotalPages int
}

// StockLevel aggregates all batches of one medicine.
type StockLevel struct {
	MedicineID       string
	Current          int64
	Reserved         int64
	Locked           int64
	Available        int64 // allocatable stock only: excludes blocked and expired batches
	Batches          int
	BlockedBatches   int
	SafetyStock      int64
	BelowSafetyStock bool
}
