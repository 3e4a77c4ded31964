package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/catalog"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/tui/components"
	"github.com/pharmacore/pharmacore/internal/tui/views/dispense"
	"github.com/pharmacore/pharmacore/internal/tui/views/stock"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// MaxContentWidth is the maximum width for content display
const MaxContentWidth = 120

// chrome is the number of lines used by the header, alert bar and footer.
const chrome = 6

// Module represents a view module in the application.
type Module string

const (
	ModuleDashboard Module = "dashboard"
	ModuleStock     Module = "stock"
	ModuleDispense  Module = "dispense"
	ModuleAlerts    Module = "alerts"
	ModuleHelp      Module = "help"
)

// Services are the backends the console drives. They are shared with the
// scheduler so batch locks are common to both.
type Services struct {
	Store      *inventory.Store
	Ledger     *inventory.Ledger
	Catalog    *catalog.Service
	Dispensing *dispensing.Service
}

// App is the main Bubble Tea application model.
type App struct {
	config   *config.Config
	services Services
	clock    util.Clock
	operator string

	stockView *stock.View
	queue     *dispense.Queue
	form      *components.Form

	dashboard  *components.Table
	levels     []*models.StockLevel
	medicines  map[string]*models.Medicine
	alertTable *components.Table
	alerts     []*models.StockAlert

	theme       *Theme
	keys        KeyMap
	width       int
	height      int
	ready       bool
	quitting    bool
	showConfirm bool
	ticks       int

	currentModule  Module
	previousModule Module
	showDetail     bool

	notices []Notice
}

// Notice is a message shown in the alert bar.
type Notice struct {
	Level   NoticeLevel
	Message string
	Time    time.Time
}

// NoticeLevel indicates the severity of a notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeCritical
)

type (
	tickMsg time.Time

	// loadedMsg reports a background reload of a module.
	loadedMsg struct {
		module Module
		err    error
	}

	// actionMsg reports the outcome of an operator action.
	actionMsg struct {
		module  Module
		message string
		err     error
	}

	dashboardMsg struct {
		levels    []*models.StockLevel
		medicines map[string]*models.Medicine
		err       error
	}

	alertsMsg struct {
		alerts []*models.StockAlert
		err    error
	}
)

// New creates the console. operator is recorded on every ledger row and
// workflow step the console performs.
func New(cfg *config.Config, svc Services, clock util.Clock, operator string) *App {
	theme := NewTheme(cfg.Display.ColorScheme)
	styles := theme.ViewStyles()

	stockView := stock.NewView(svc.Store, svc.Ledger, svc.Catalog, styles)
	stockView.SetNow(clock.Now())

	alertTable := components.NewTable([]components.Column{
		{Title: "Raised", Width: 16},
		{Title: "Kind", Width: 12},
		{Title: "Batch", Width: 20},
		{Title: "Message", Width: 50},
	}, styles)
	alertTable.Focus(true)

	return &App{
		config:        cfg,
		services:      svc,
		clock:         clock,
		operator:      operator,
		stockView:     stockView,
		queue:         dispense.NewQueue(svc.Dispensing, styles),
		dashboard:     components.NewTable(nil, styles),
		medicines:     map[string]*models.Medicine{},
		alertTable:    alertTable,
		theme:         theme,
		keys:          DefaultKeyMap(),
		currentModule: ModuleDashboard,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(tickCmd(), a.loadDashboard(), a.loadAlerts())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()
		return a, nil

	case tickMsg:
		a.stockView.SetNow(a.clock.Now())
		a.ticks++
		cmds := []tea.Cmd{tickCmd()}
		if every := a.config.Display.RefreshSeconds; every > 0 && a.ticks%every == 0 {
			cmds = append(cmds, a.loadAlerts())
			if a.currentModule == ModuleDashboard {
				cmds = append(cmds, a.loadDashboard())
			}
		}
		return a, tea.Batch(cmds...)

	case loadedMsg:
		if msg.err != nil {
			a.Notify(NoticeWarning, fmt.Sprintf("Failed to load %s: %s", msg.module, models.UserMessage(msg.err)))
		}
		return a, nil

	case actionMsg:
		if msg.err != nil {
			a.Notify(NoticeWarning, models.UserMessage(msg.err))
			if a.form != nil {
				a.form.SetError(models.UserMessage(msg.err))
			}
			return a, nil
		}
		a.form = nil
		a.Notify(NoticeInfo, msg.message)
		return a, tea.Batch(a.reload(msg.module), a.loadAlerts())

	case dashboardMsg:
		if msg.err != nil {
			a.Notify(NoticeWarning, "Failed to load stock levels: "+models.UserMessage(msg.err))
			return a, nil
		}
		a.levels = msg.levels
		a.medicines = msg.medicines
		a.fillDashboard()
		a.setAlerts(a.alerts)
		return a, nil

	case alertsMsg:
		if msg.err != nil {
			a.Notify(NoticeWarning, "Failed to load alerts: "+models.UserMessage(msg.err))
			return a, nil
		}
		a.setAlerts(msg.alerts)
		return a, nil
	}

	return a, nil
}

func (a *App) resize() {
	rows := max(ContentHeight(a.height, chrome)-8, 3)
	a.dashboard.SetVisibleRows(rows)
	a.alertTable.SetVisibleRows(rows)
	a.fillDashboard()
}

// handleKeyPress processes key press events.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			a.quitting = true
			return a, tea.Quit
		case "n", "N", "esc":
			a.showConfirm = false
		}
		return a, nil
	}

	// Forms take every key.
	if a.form != nil {
		return a.handleFormKeys(msg)
	}

	if a.keys.IsQuit(msg) {
		a.showConfirm = true
		return a, nil
	}

	if module := a.keys.ModuleFor(msg); module != "" {
		return a, a.switchTo(module)
	}

	if a.keys.Refresh.Matches(msg) {
		return a, a.reload(a.currentModule)
	}

	if a.keys.Back.Matches(msg) {
		switch {
		case a.showDetail:
			a.showDetail = false
			a.queue.CloseDetail()
		case a.currentModule == ModuleHelp && a.previousModule != "":
			a.currentModule = a.previousModule
			a.previousModule = ""
		}
		return a, nil
	}

	switch a.currentModule {
	case ModuleStock:
		return a.handleStockKeys(msg)
	case ModuleDispense:
		return a.handleDispenseKeys(msg)
	case ModuleAlerts:
		return a.handleAlertKeys(msg)
	case ModuleDashboard:
		switch {
		case a.keys.Up.Matches(msg):
			a.dashboard.MoveUp()
		case a.keys.Down.Matches(msg):
			a.dashboard.MoveDown()
		}
	}
	return a, nil
}

func (a *App) switchTo(module Module) tea.Cmd {
	if module == ModuleHelp {
		if a.currentModule != ModuleHelp {
			a.previousModule = a.currentModule
		}
		a.currentModule = ModuleHelp
		return nil
	}
	a.currentModule = module
	a.showDetail = false
	a.queue.CloseDetail()
	return a.reload(module)
}

func (a *App) reload(module Module) tea.Cmd {
	switch module {
	case ModuleDashboard:
		return a.loadDashboard()
	case ModuleStock:
		return a.loadModule(ModuleStock, func(ctx context.Context) error {
			if err := a.stockView.Load(ctx); err != nil {
				return err
			}
			if a.showDetail {
				return a.stockView.LoadHistory(ctx)
			}
			return nil
		})
	case ModuleDispense:
		return a.loadModule(ModuleDispense, func(ctx context.Context) error {
			if err := a.queue.Load(ctx); err != nil {
				return err
			}
			if a.showDetail {
				return a.queue.OpenDetail(ctx)
			}
			return nil
		})
	case ModuleAlerts:
		return a.loadAlerts()
	}
	return nil
}

func (a *App) loadModule(module Module, load func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{module: module, err: load(context.Background())}
	}
}

func (a *App) act(module Module, fn func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		message, err := fn(context.Background())
		return actionMsg{module: module, message: message, err: err}
	}
}

func (a *App) withOperator(fn func(context.Context, string) (string, error)) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return fn(ctx, a.operator)
	}
}

// handleStockKeys handles key presses in the stock module.
func (a *App) handleStockKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "n":
		a.form = a.stockView.NewReceiveForm()
		return a, nil
	case "f":
		return a, a.act(ModuleStock, a.withOperator(a.stockView.ToggleFreeze))
	}

	if a.showDetail {
		return a, nil
	}

	switch {
	case a.keys.Up.Matches(msg):
		a.stockView.MoveUp()
	case a.keys.Down.Matches(msg):
		a.stockView.MoveDown()
	case a.keys.Select.Matches(msg):
		if a.stockView.Selected() != nil {
			a.showDetail = true
			return a, a.loadModule(ModuleStock, a.stockView.LoadHistory)
		}
	case a.keys.PageUp.Matches(msg):
		a.stockView.PrevPage()
		return a, a.reload(ModuleStock)
	case a.keys.PageDown.Matches(msg):
		a.stockView.NextPage()
		return a, a.reload(ModuleStock)
	case msg.String() == "/":
		a.stockView.ToggleFrozenFilter()
		return a, a.reload(ModuleStock)
	}
	return a, nil
}

// handleFormKeys handles key presses while the receive form is open.
func (a *App) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.form.IsSubmitted() {
		return a, nil
	}
	a.form.HandleKey(msg.String())

	if a.form.IsCancelled() {
		a.form = nil
		return a, nil
	}
	if a.form.IsSubmitted() {
		form := a.form
		return a, a.act(ModuleStock, func(ctx context.Context) (string, error) {
			tx, err := a.stockView.Receive(ctx, form, a.operator)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Received %d into %s (%s)", tx.Quantity, tx.BatchKey(), tx.TransactionNumber), nil
		})
	}
	return a, nil
}

// handleDispenseKeys handles key presses in the dispensing module.
func (a *App) handleDispenseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s":
		return a, a.act(ModuleDispense, a.withOperator(a.queue.Start))
	case "a":
		return a, a.act(ModuleDispense, a.withOperator(a.queue.AutoDispense))
	case "c":
		return a, a.act(ModuleDispense, a.queue.Complete)
	case "r":
		return a, a.act(ModuleDispense, a.withOperator(a.queue.Approve))
	case "d":
		return a, a.act(ModuleDispense, a.withOperator(a.queue.Deliver))
	case "x":
		return a, a.act(ModuleDispense, a.withOperator(a.queue.Cancel))
	}

	if a.showDetail {
		return a, nil
	}

	switch {
	case a.keys.Up.Matches(msg):
		a.queue.MoveUp()
	case a.keys.Down.Matches(msg):
		a.queue.MoveDown()
	case a.keys.Select.Matches(msg):
		a.showDetail = true
		return a, a.loadModule(ModuleDispense, a.queue.OpenDetail)
	}
	return a, nil
}

// handleAlertKeys handles key presses in the alerts module.
func (a *App) handleAlertKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case a.keys.Up.Matches(msg):
		a.alertTable.MoveUp()
	case a.keys.Down.Matches(msg):
		a.alertTable.MoveDown()
	case msg.String() == "a":
		i := a.alertTable.Selected()
		if i < 0 || i >= len(a.alerts) {
			return a, nil
		}
		alert := a.alerts[i]
		return a, a.act(ModuleAlerts, func(ctx context.Context) (string, error) {
			if err := a.services.Store.AcknowledgeAlert(ctx, alert.ID); err != nil {
				return "", err
			}
			return "Acknowledged " + string(alert.Kind) + " for " + alert.BatchNumber, nil
		})
	}
	return a, nil
}

func (a *App) loadDashboard() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		list, err := a.services.Catalog.ListMedicines(ctx, models.MedicineFilter{}, models.Pagination{Page: 1, PageSize: 100})
		if err != nil {
			return dashboardMsg{err: err}
		}
		levels := make([]*models.StockLevel, 0, len(list.Medicines))
		medicines := make(map[string]*models.Medicine, len(list.Medicines))
		for _, med := range list.Medicines {
			level, err := a.services.Store.GetCurrentStockLevel(ctx, med.ID)
			if err != nil {
				return dashboardMsg{err: err}
			}
			levels = append(levels, level)
			medicines[med.ID] = med
		}
		return dashboardMsg{levels: levels, medicines: medicines}
	}
}

func (a *App) loadAlerts() tea.Cmd {
	return func() tea.Msg {
		alerts, err := a.services.Store.ListAlerts(context.Background())
		return alertsMsg{alerts: alerts, err: err}
	}
}

// fillDashboard sizes the stock level table to the terminal and fills it.
func (a *App) fillDashboard() {
	titles := []string{"Medicine", "Current", "Reserved", "Locked", "Available", "Safety", "Batches", "Blocked"}
	specs := []ColumnSpec{
		{Weight: 1, MinWidth: 10, Priority: 9},
		{Fixed: 8, Priority: 5},
		{Fixed: 8, Priority: 4},
		{Fixed: 6, Priority: 2},
		{Fixed: 9, Priority: 8},
		{Fixed: 6, Priority: 3},
		{Fixed: 7, Priority: 1},
		{Fixed: 7, Priority: 6},
	}
	widths := CalculateColumnWidths(specs, ContentWidth(a.width, 40, MaxContentWidth), 3)

	var columns []components.Column
	var keep []int
	for i, w := range widths {
		if w == 0 {
			continue
		}
		align := lipgloss.Right
		if i == 0 {
			align = lipgloss.Left
		}
		columns = append(columns, components.Column{Title: titles[i], Width: w, Align: align})
		keep = append(keep, i)
	}

	visible := a.dashboard
	a.dashboard = components.NewTable(columns, a.theme.ViewStyles())
	a.dashboard.SetVisibleRows(max(ContentHeight(a.height, chrome)-8, 3))
	a.dashboard.Focus(true)

	rows := make([][]string, len(a.levels))
	for r, l := range a.levels {
		full := []string{
			l.MedicineID,
			strconv.FormatInt(l.Current, 10),
			strconv.FormatInt(l.Reserved, 10),
			strconv.FormatInt(l.Locked, 10),
			strconv.FormatInt(l.Available, 10),
			strconv.FormatInt(l.SafetyStock, 10),
			strconv.Itoa(l.Batches),
			strconv.Itoa(l.BlockedBatches),
		}
		full[0] = a.medicineCode(l.MedicineID)
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = full[i]
		}
		rows[r] = row
	}
	a.dashboard.SetRows(rows)
	for r, l := range a.levels {
		switch {
		case l.Available == 0:
			a.dashboard.Mark(r, components.MarkError)
		case l.BelowSafetyStock:
			a.dashboard.Mark(r, components.MarkWarning)
		}
	}
	for range visible.Selected() {
		a.dashboard.MoveDown()
	}
}

func (a *App) medicineCode(id string) string {
	if med, ok := a.medicines[id]; ok {
		return med.Code
	}
	return id
}

func (a *App) setAlerts(alerts []*models.StockAlert) {
	a.alerts = alerts
	rows := make([][]string, len(alerts))
	for i, al := range alerts {
		batch := a.medicineCode(al.MedicineID) + "/" + al.BatchNumber
		rows[i] = []string{util.FormatDateTime(al.CreatedAt), string(al.Kind), batch, al.Message}
	}
	a.alertTable.SetRows(rows)
	for i, al := range alerts {
		if al.Kind == models.AlertKindExpired {
			a.alertTable.Mark(i, components.MarkError)
		}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initializing..."
	}
	if a.quitting {
		return a.theme.Title.Render("Pharmacy console closed.")
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderAlertBar())
	b.WriteString("\n")

	height := ContentHeight(a.height, chrome)
	if a.showConfirm {
		b.WriteString(a.renderConfirmDialog(height))
	} else {
		b.WriteString(a.renderContent(height))
	}

	b.WriteString("\n")
	b.WriteString(a.renderFooter())
	return b.String()
}

func (a *App) renderHeader() string {
	title := fmt.Sprintf("PHARMACORE v%s", Version)
	info := fmt.Sprintf("%s [%s] | ALERTS: %d | %s", a.config.Pharmacy.Name, a.config.Pharmacy.Code, len(a.alerts), a.operator)

	spacing := max(a.width-lipgloss.Width(title)-lipgloss.Width(info)-4, 1)
	header := a.theme.Header.Render(title) + strings.Repeat(" ", spacing) + a.theme.Header.Render(info)
	return header + "\n" + a.theme.DrawDoubleLine(a.width)
}

func (a *App) renderAlertBar() string {
	now := a.clock.Now().Format(a.config.Display.DateFormat + " " + a.config.Display.TimeFormat)

	var text string
	if len(a.notices) > 0 {
		n := a.notices[0]
		switch n.Level {
		case NoticeCritical:
			text = a.theme.AlertCrit.Render("CRITICAL: " + n.Message)
		case NoticeWarning:
			text = a.theme.AlertWarn.Render("WARNING: " + n.Message)
		default:
			text = a.theme.Alert.Render("INFO: " + n.Message)
		}
	} else {
		text = a.theme.Muted.Render("Ready")
	}
	return a.theme.Value.Render(now) + a.theme.StatusDivider.Render() + text
}

func (a *App) renderContent(height int) string {
	width := ContentWidth(a.width, 40, MaxContentWidth)
	outer := lipgloss.NewStyle().Width(a.width).Height(height).Align(lipgloss.Center, lipgloss.Top)
	return outer.Render(lipgloss.NewStyle().Width(width).Render(a.moduleContent(width)))
}

func (a *App) moduleContent(width int) string {
	switch a.currentModule {
	case ModuleStock:
		if a.form != nil {
			return a.form.Render()
		}
		if a.showDetail {
			return a.stockView.RenderDetail()
		}
		return a.stockView.Render(width)
	case ModuleDispense:
		if a.showDetail && a.queue.InDetail() {
			return a.queue.RenderDetail()
		}
		return a.queue.Render(width)
	case ModuleAlerts:
		return a.renderAlerts()
	case ModuleHelp:
		return a.renderHelp()
	default:
		return a.renderDashboard(width)
	}
}

func (a *App) renderDashboard(width int) string {
	var b strings.Builder
	b.WriteString(a.theme.Title.Render("═══ STOCK OVERVIEW ═══"))
	b.WriteString("\n\n")

	if len(a.levels) == 0 {
		b.WriteString(a.theme.Muted.Render("No medicines in the catalog."))
		return b.String()
	}

	var short, empty int
	for _, l := range a.levels {
		switch {
		case l.Available == 0:
			empty++
		case l.BelowSafetyStock:
			short++
		}
	}
	summary := fmt.Sprintf("Medicines: %d\nBelow safety stock: %d\nOut of stock: %d\nOpen alerts: %d",
		len(a.levels), short, empty, len(a.alerts))

	var gauges strings.Builder
	for i, l := range a.levels {
		if i == 5 {
			break
		}
		var ceiling int64
		if med, ok := a.medicines[l.MedicineID]; ok {
			ceiling = med.MaxStock
		}
		gauges.WriteString(fmt.Sprintf("%-12s %s\n", Truncate(a.medicineCode(l.MedicineID), 12), a.theme.StockGauge(l, ceiling, 22)))
	}

	half := max(width/2-2, 20)
	b.WriteString(SideBySide(a.theme.Panel("SUMMARY", summary, half), a.theme.Panel("AVAILABLE", strings.TrimRight(gauges.String(), "\n"), half), width, 2))
	b.WriteString("\n\n")
	b.WriteString(a.dashboard.Render())
	return b.String()
}

func (a *App) renderAlerts() string {
	var b strings.Builder
	b.WriteString(a.theme.Title.Render("═══ STOCK ALERTS ═══"))
	b.WriteString("\n\n")
	if a.alertTable.Empty() {
		b.WriteString(a.theme.Muted.Render("No open alerts."))
	} else {
		b.WriteString(a.alertTable.Render())
	}
	b.WriteString("\n")
	b.WriteString(a.theme.Label.Render("Up/Down:Select  a:Acknowledge  Ctrl+R:Refresh"))
	return b.String()
}

func (a *App) renderHelp() string {
	var b strings.Builder

	b.WriteString(a.theme.Title.Render("═══ HELP ═══"))
	b.WriteString("\n\n")

	section := func(title string, items [][2]string) {
		b.WriteString(a.theme.Subtitle.Render(title))
		b.WriteString("\n\n")
		for _, item := range items {
			b.WriteString(a.theme.Primary.Render(fmt.Sprintf("    %-8s  %s", item[0], item[1])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	section("NAVIGATION", [][2]string{
		{"F1", "Help"},
		{"F2", "Dashboard"},
		{"F3", "Batch inventory"},
		{"F4", "Dispensing queue"},
		{"F5", "Stock alerts"},
		{"F10", "Quit"},
	})
	section("STOCK", [][2]string{
		{"Enter", "Batch ledger"},
		{"n", "Receive stock"},
		{"f", "Freeze or unfreeze batch"},
		{"/", "Show frozen batches"},
	})
	section("DISPENSING", [][2]string{
		{"s", "Start"},
		{"a", "Dispense all lines"},
		{"c", "Complete"},
		{"r", "Approve review"},
		{"d", "Deliver"},
		{"x", "Cancel and restore stock"},
	})

	b.WriteString(a.theme.Muted.Render("Press Esc to return"))
	return b.String()
}

func (a *App) renderConfirmDialog(height int) string {
	dialog := a.theme.Box.Render(
		a.theme.Title.Render("CONFIRM EXIT") + "\n\n" +
			a.theme.Base.Render("Close the pharmacy console?") + "\n\n" +
			a.theme.Label.Render("[Y]es  [N]o"),
	)
	return lipgloss.NewStyle().Width(a.width).Height(height).Align(lipgloss.Center, lipgloss.Center).Render(dialog)
}

func (a *App) renderFooter() string {
	return a.theme.DrawHorizontalLine(a.width) + "\n" + a.theme.Footer.Render(a.keys.StatusBarHelp())
}

// Notify shows a message in the alert bar.
func (a *App) Notify(level NoticeLevel, message string) {
	a.notices = append([]Notice{{Level: level, Message: message, Time: a.clock.Now()}}, a.notices...)
	if len(a.notices) > 10 {
		a.notices = a.notices[:10]
	}
}

// Run starts the console and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, svc Services, clock util.Clock, operator string) error {
	p := tea.NewProgram(New(cfg, svc, clock, operator), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
