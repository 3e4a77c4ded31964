// Package stock provides the console views for batch inventory.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/tui/components"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Store is the part of the inventory store the view drives.
type Store interface {
	ListBatches(ctx context.Context, filter models.BatchFilter, page models.Pagination) (*models.BatchList, error)
	AddStock(ctx context.Context, in inventory.AddStockInput) (*models.StockTransaction, error)
	SetStatus(ctx context.Context, key models.BatchKey, status models.BatchStatus, operator, reason string) error
}

// Ledger reads a batch's movement history.
type Ledger interface {
	History(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (*models.TransactionList, error)
}

// Catalog resolves medicines for display and data entry.
type Catalog interface {
	ListMedicines(ctx context.Context, filter models.MedicineFilter, page models.Pagination) (*models.MedicineList, error)
	GetMedicineByCode(ctx context.Context, code string) (*models.Medicine, error)
}

const historyDepth = 12

// View lists batches and shows a batch's ledger history.
type View struct {
	store   Store
	ledger  Ledger
	catalog Catalog
	styles  components.Styles

	table     *components.Table
	batches   []*models.BatchInventory
	medicines map[string]*models.Medicine
	history   []*models.StockTransaction
	page      models.Pagination
	filter    models.BatchFilter
	now       time.Time
	err       error
}

// NewView creates the stock view.
func NewView(store Store, ledger Ledger, catalog Catalog, styles components.Styles) *View {
	table := components.NewTable([]components.Column{
		{Title: "Medicine", Width: 12},
		{Title: "Batch", Width: 12},
		{Title: "Current", Width: 8, Align: lipgloss.Right},
		{Title: "Rsvd", Width: 6, Align: lipgloss.Right},
		{Title: "Lock", Width: 6, Align: lipgloss.Right},
		{Title: "Avail", Width: 7, Align: lipgloss.Right},
		{Title: "Status", Width: 8},
		{Title: "Expires", Width: 10},
	}, styles)
	table.SetVisibleRows(15)
	table.Focus(true)

	return &View{
		store:     store,
		ledger:    ledger,
		catalog:   catalog,
		styles:    styles,
		table:     table,
		medicines: map[string]*models.Medicine{},
		page:      models.Pagination{Page: 1, PageSize: 15},
	}
}

// SetNow sets the time used for expiry display.
func (v *View) SetNow(t time.Time) {
	v.now = t
}

// Load fetches the current page of batches.
func (v *View) Load(ctx context.Context) error {
	v.err = nil
	if len(v.medicines) == 0 {
		list, err := v.catalog.ListMedicines(ctx, models.MedicineFilter{}, models.Pagination{Page: 1, PageSize: 100})
		if err != nil {
			v.err = err
			return err
		}
		for _, m := range list.Medicines {
			v.medicines[m.ID] = m
		}
	}

	list, err := v.store.ListBatches(ctx, v.filter, v.page)
	if err != nil {
		v.err = err
		return err
	}
	v.SetBatches(list)
	return nil
}

// SetBatches replaces the listed batches.
func (v *View) SetBatches(list *models.BatchList) {
	v.batches = list.Batches
	rows := make([][]string, len(v.batches))
	for i, b := range v.batches {
		rows[i] = []string{
			v.medicineCode(b.MedicineID),
			b.BatchNumber,
			strconv.FormatInt(b.Current(), 10),
			strconv.FormatInt(b.Reserved(), 10),
			strconv.FormatInt(b.Locked(), 10),
			strconv.FormatInt(b.Available(), 10),
			string(b.Status()),
			v.expiry(b),
		}
	}
	v.table.SetRows(rows)
	for i, b := range v.batches {
		switch {
		case b.Status().Blocked():
			v.table.Mark(i, components.MarkError)
		case b.Status() == models.BatchStatusWarning:
			v.table.Mark(i, components.MarkWarning)
		case b.Current() == 0:
			v.table.Mark(i, components.MarkMuted)
		}
	}
	v.table.SetPagination(list.Page, list.TotalPages, list.Total)
}

func (v *View) medicineCode(id string) string {
	if m, ok := v.medicines[id]; ok {
		return m.Code
	}
	return id
}

func (v *View) expiry(b *models.BatchInventory) string {
	days, ok := b.DaysUntilExpiry(v.now)
	switch {
	case !ok:
		return "-"
	case days < 0:
		return "EXPIRED"
	case days == 0:
		return "TODAY"
	case days < 90:
		return fmt.Sprintf("%dd", days)
	default:
		return util.FormatDate(*b.ExpiryDate)
	}
}

// ToggleFrozenFilter switches between all batches and frozen ones.
func (v *View) ToggleFrozenFilter() {
	if v.filter.Status == nil {
		s := models.BatchStatusFrozen
		v.filter.Status = &s
	} else {
		v.filter.Status = nil
	}
	v.page.Page = 1
}

// NextPage moves to the next page.
func (v *View) NextPage() {
	v.page.Page++
}

// PrevPage moves to the previous page.
func (v *View) PrevPage() {
	if v.page.Page > 1 {
		v.page.Page--
	}
}

func (v *View) MoveUp()   { v.table.MoveUp() }
func (v *View) MoveDown() { v.table.MoveDown() }

// Selected returns the selected batch, or nil.
func (v *View) Selected() *models.BatchInventory {
	i := v.table.Selected()
	if i >= 0 && i < len(v.batches) {
		return v.batches[i]
	}
	return nil
}

// LoadHistory fetches the latest ledger rows of the selected batch.
func (v *View) LoadHistory(ctx context.Context) error {
	b := v.Selected()
	if b == nil {
		v.history = nil
		return nil
	}
	list, err := v.ledger.History(ctx,
		models.TransactionFilter{MedicineID: b.MedicineID, BatchNumber: b.BatchNumber},
		models.Pagination{Page: 1, PageSize: historyDepth})
	if err != nil {
		return err
	}
	v.history = list.Transactions
	return nil
}

// ToggleFreeze freezes a usable batch or returns a frozen one to service.
func (v *View) ToggleFreeze(ctx context.Context, operator string) (string, error) {
	b := v.Selected()
	if b == nil {
		return "", errors.New("no batch selected")
	}
	to, reason := models.BatchStatusFrozen, "frozen at console"
	if b.Status() == models.BatchStatusFrozen {
		to, reason = models.BatchStatusNormal, "released at console"
	}
	if err := v.store.SetStatus(ctx, b.Key(), to, operator, reason); err != nil {
		return "", err
	}
	return fmt.Sprintf("Batch %s %s", b.Key(), strings.ToLower(string(to))), nil
}

// NewReceiveForm builds the goods-in form, prefilled from the selected batch.
func (v *View) NewReceiveForm() *components.Form {
	positive := func(s string) error {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return errors.New("must be a positive whole number")
		}
		return nil
	}
	date := func(s string) error {
		_, err := util.ParseDate(s)
		return err
	}
	price := func(s string) error {
		d, err := decimal.NewFromString(s)
		if err != nil || d.IsNegative() {
			return errors.New("must be a non-negative amount")
		}
		return nil
	}

	form := components.NewForm("RECEIVE STOCK", v.styles)
	medicine := components.NewInput("Medicine", v.styles).SetRequired(true).SetPlaceholder("AMOX-500")
	batch := components.NewInput("Batch", v.styles).SetRequired(true)
	if b := v.Selected(); b != nil {
		medicine.SetValue(v.medicineCode(b.MedicineID))
		batch.SetValue(b.BatchNumber)
	}
	form.AddField(medicine)
	form.AddField(batch)
	form.AddField(components.NewInput("Quantity", v.styles).SetRequired(true).SetValidator(positive))
	form.AddField(components.NewInput("Expiry", v.styles).SetPlaceholder("YYYY-MM-DD").SetValidator(date))
	form.AddField(components.NewInput("Unit price", v.styles).SetPlaceholder("0.00").SetValidator(price))
	form.AddField(components.NewInput("Location", v.styles))
	return form
}

// Receive posts a submitted receive form.
func (v *View) Receive(ctx context.Context, form *components.Form, operator string) (*models.StockTransaction, error) {
	values := form.Values()
	med, err := v.catalog.GetMedicineByCode(ctx, strings.ToUpper(values["Medicine"]))
	if err != nil {
		return nil, err
	}
	qty, err := strconv.ParseInt(values["Quantity"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}

	meta := models.BatchMeta{Location: values["Location"]}
	if s := values["Expiry"]; s != "" {
		exp, err := util.ParseDate(s)
		if err != nil {
			return nil, err
		}
		meta.ExpiryDate = &exp
	}
	if s := values["Unit price"]; s != "" {
		if meta.PurchasePrice, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("unit price: %w", err)
		}
	}

	v.medicines[med.ID] = med
	return v.store.AddStock(ctx, inventory.AddStockInput{
		Key:      models.BatchKey{MedicineID: med.ID, BatchNumber: values["Batch"]},
		Quantity: qty,
		Meta:     meta,
		Entry:    inventory.Entry{Operator: operator, Reason: "received at console", UnitPrice: meta.PurchasePrice},
	})
}

// Render draws the batch list.
func (v *View) Render(width int) string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("=== BATCH INVENTORY ==="))
	b.WriteString("\n\n")

	if v.filter.Status != nil {
		b.WriteString(v.styles.Label.Render("Showing: ") + v.styles.Value.Render(string(*v.filter.Status)+" batches"))
		b.WriteString("\n\n")
	}
	if v.err != nil {
		b.WriteString(v.styles.Error.Render("Error: " + models.UserMessage(v.err)))
		b.WriteString("\n\n")
	}

	if v.table.Empty() {
		b.WriteString(v.styles.Label.Render("No batches found."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.Render())
	}

	b.WriteString("\n")
	if width < 80 {
		b.WriteString(v.styles.Help.Render("Enter:Hist  n:Recv  f:Frz  /:Flt"))
	} else {
		b.WriteString(v.styles.Help.Render("Up/Down:Select  Enter:History  n:Receive  f:Freeze/Unfreeze  /:Frozen only  PgUp/Dn:Page"))
	}
	return b.String()
}

// RenderDetail draws the selected batch and its recent ledger rows.
func (v *View) RenderDetail() string {
	batch := v.Selected()
	if batch == nil {
		return v.styles.Label.Render("No batch selected")
	}
	label := v.styles.Label.Width(16)
	line := func(k, val string) string {
		return label.Render(k+":") + " " + v.styles.Value.Render(val) + "\n"
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render("=== BATCH " + batch.Key().String() + " ==="))
	b.WriteString("\n\n")

	if med, ok := v.medicines[batch.MedicineID]; ok {
		b.WriteString(line("Medicine", med.Code+"  "+med.Name))
	}
	b.WriteString(line("Status", string(batch.Status())))
	b.WriteString(line("Current", strconv.FormatInt(batch.Current(), 10)))
	b.WriteString(line("Reserved", strconv.FormatInt(batch.Reserved(), 10)))
	b.WriteString(line("Locked", strconv.FormatInt(batch.Locked(), 10)))
	b.WriteString(line("Available", strconv.FormatInt(batch.Available(), 10)))
	b.WriteString(line("Expires", util.FormatOptionalDate(batch.ExpiryDate)+" ("+v.expiry(batch)+")"))
	if batch.Location != "" {
		b.WriteString(line("Location", batch.Location))
	}
	b.WriteString(line("Purchase price", batch.PurchasePrice.StringFixed(2)))
	b.WriteString("\n")

	b.WriteString(v.styles.Section.Render("LEDGER"))
	b.WriteString("\n")
	if len(v.history) == 0 {
		b.WriteString(v.styles.Muted.Render("  no movements"))
		b.WriteString("\n")
	}
	for _, tx := range v.history {
		row := fmt.Sprintf("  #%-4d %-16s %-15s %+6d  %5d -> %-5d %s",
			tx.Sequence, tx.OccurredAt.Format("2006-01-02 15:04"), tx.Type, tx.Quantity, tx.StockBefore, tx.StockAfter, tx.Status)
		style := v.styles.Value
		if tx.Status == models.TransactionStatusPendingReview {
			style = v.styles.Warning
		}
		b.WriteString(style.Render(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("Esc:Back  n:Receive  f:Freeze/Unfreeze"))
	return b.String()
}
