package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/drill"
	"github.com/vanderheijden86/bimnav/pkg/export"
	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/tabs"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

const (
	columnWidth        = 30
	minDetailWidth     = 36
	detailSplitWidth   = 100
	regionColumns      = "columns"
	columnRegionPrefix = "col-"
)

// forestLoadedMsg carries a freshly built forest. Reload is set when it
// replaces one that was already shown.
type forestLoadedMsg struct {
	Forest *hierarchy.Forest
	Rows   []model.Row
	Err    error
	Reload bool
}

// detailLoadedMsg carries the detail and aggregate records of the node the
// ticket was issued for.
type detailLoadedMsg struct {
	Ticket       drill.Ticket
	Detail       model.Record
	DetailErr    error
	Aggregate    model.Record
	AggregateErr error
}

func loadForestCmd(ctx *tabs.Context, reload bool) tea.Cmd {
	src := ctx.Source
	h := ctx.Config.Hierarchy
	opts := hierarchy.Options{MaxDepth: h.MaxDepth, Delimiter: h.PathDelimiter}
	return func() tea.Msg {
		if src == nil {
			return forestLoadedMsg{Err: fmt.Errorf("no data source: %w", datasource.ErrUnavailable), Reload: reload}
		}
		forest, rows, err := datasource.LoadForest(context.Background(), src, h.Scope, opts)
		return forestLoadedMsg{Forest: forest, Rows: rows, Err: err, Reload: reload}
	}
}

// fetchDetailCmd looks up detail and aggregate for the ticket's node in
// parallel. Sources that cannot aggregate fall back to the local forest.
func fetchDetailCmd(src datasource.Source, forest *hierarchy.Forest, t drill.Ticket) tea.Cmd {
	return func() tea.Msg {
		msg := detailLoadedMsg{Ticket: t}
		if src == nil {
			err := fmt.Errorf("no data source: %w", datasource.ErrUnavailable)
			msg.DetailErr, msg.AggregateErr = err, err
			return msg
		}
		ctx := context.Background()
		var g errgroup.Group
		g.Go(func() error {
			msg.Detail, msg.DetailErr = src.LookupDetail(ctx, t.NodeID)
			return nil
		})
		g.Go(func() error {
			msg.Aggregate, msg.AggregateErr = src.LookupAggregate(ctx, t.NodeID)
			return nil
		})
		_ = g.Wait()
		if errors.Is(msg.AggregateErr, datasource.ErrUnsupported) {
			if s, ok := forest.Summarize(t.NodeID); ok {
				msg.Aggregate, msg.AggregateErr = s.Record(), nil
			}
		}
		return msg
	}
}

// buildingsView is the Miller-column browser over the spatial hierarchy with
// a breadcrumb and a detail pane for the deepest selected node.
type buildingsView struct {
	theme   Theme
	machine *drill.Machine
	rows    []model.Row
	err     error
	loaded  bool
	pending drill.Selection // path restored before the forest arrived
	reveal  string          // node to select once the forest arrives
	missing string          // reveal target absent from the last forest

	focus   int
	colTop  map[int]int
	colLeft int

	detail        viewport.Model
	detailFor     string
	detailTicket  drill.Ticket
	detailLoading bool
	detailRec     model.Record
	detailErr     error
	aggregateRec  model.Record
	aggregateErr  error
	md            *glamour.TermRenderer
	mdWidth       int
	width, height int
	renders       int
}

func newBuildingsView(theme Theme) *buildingsView {
	v := &buildingsView{
		theme:   theme,
		machine: drill.New(nil),
		colTop:  make(map[int]int),
		detail:  viewport.New(40, 20),
	}
	v.machine.OnChange(v.selectionChanged)
	return v
}

// selectionChanged is the drill machine's render callback.
func (v *buildingsView) selectionChanged() {
	v.renders++
	depth := v.machine.Depth()
	if v.focus > depth {
		v.focus = depth
	}
	if v.focus >= len(v.machine.Columns()) {
		v.focus = max(0, len(v.machine.Columns())-1)
	}
	v.scrollIntoView()
}

func (v *buildingsView) setSize(width, height int) {
	v.width, v.height = width, height
	v.detail.Width = v.detailWidth()
	v.detail.Height = max(1, height-1)
	v.scrollIntoView()
	v.refreshDetail()
}

func (v *buildingsView) detailWidth() int {
	if v.width < detailSplitWidth {
		return 0
	}
	return max(minDetailWidth, v.width*2/5)
}

func (v *buildingsView) visibleColumns() int {
	return max(1, (v.width-v.detailWidth())/columnWidth)
}

// columnRows is the number of item lines a column can show.
func (v *buildingsView) columnRows() int {
	return max(1, v.height-3) // breadcrumb + borders
}

func (v *buildingsView) reset() {
	v.loaded = false
	v.err = nil
	v.rows = nil
	v.clearDetail()
}

func (v *buildingsView) clearDetail() {
	v.detailFor = ""
	v.detailLoading = false
	v.detailRec, v.aggregateRec = nil, nil
	v.detailErr, v.aggregateErr = nil, nil
	v.refreshDetail()
}

// apply installs a loaded forest. The current selection is reconciled
// against it; a path restored before the first load is applied now.
func (v *buildingsView) apply(msg forestLoadedMsg) (datasource.RowDiff, int) {
	var diff datasource.RowDiff
	if msg.Err != nil {
		if msg.Reload && v.err == nil && v.machine.Forest() != nil {
			return diff, 0 // keep showing the last good forest
		}
		v.err = msg.Err
		v.loaded = true
		return diff, 0
	}
	if msg.Reload {
		diff = datasource.DiffRows(v.rows, msg.Rows)
	}
	v.err = nil
	v.rows = msg.Rows
	v.loaded = true
	dropped := v.machine.SetForest(msg.Forest)
	if v.pending != nil {
		dropped = v.machine.Restore(v.pending)
		v.pending = nil
		v.focus = max(0, v.machine.Depth()-1)
	}
	if id := v.reveal; id != "" {
		v.reveal = ""
		if v.machine.Reveal(id) {
			v.focus = max(0, v.machine.Depth()-1)
		} else {
			v.missing = id
		}
	}
	if dropped > 0 {
		debug.Log("buildings: %d selected levels no longer exist", dropped)
	}
	return diff, dropped
}

// detailCmd returns a fetch for the selected node when the pane does not
// already show it.
func (v *buildingsView) detailCmd(src datasource.Source) tea.Cmd {
	n, ok := v.machine.Selected()
	if !ok {
		if v.detailFor != "" {
			v.clearDetail()
		}
		return nil
	}
	if n.ID == v.detailFor && (!v.detailLoading || v.machine.Current(v.detailTicket)) {
		return nil
	}
	v.detailFor = n.ID
	v.detailTicket = v.machine.Ticket()
	v.detailLoading = true
	v.detailRec, v.aggregateRec = nil, nil
	v.detailErr, v.aggregateErr = nil, nil
	v.refreshDetail()
	return fetchDetailCmd(src, v.machine.Forest(), v.detailTicket)
}

// applyDetail shows a detail response unless the selection moved on since it
// was requested. It reports whether the response was used.
func (v *buildingsView) applyDetail(msg detailLoadedMsg) bool {
	if !v.machine.Current(msg.Ticket) {
		debug.Log("buildings: dropping detail for %s (generation %d, now %d)",
			msg.Ticket.NodeID, msg.Ticket.Generation, v.machine.Generation())
		return false
	}
	v.detailLoading = false
	v.detailRec, v.detailErr = msg.Detail, msg.DetailErr
	v.aggregateRec, v.aggregateErr = msg.Aggregate, msg.AggregateErr
	v.refreshDetail()
	return true
}

func (v *buildingsView) update(msg tea.KeyMsg, src datasource.Source) (tea.Cmd, string) {
	cols := v.machine.Columns()
	if v.focus >= len(cols) {
		v.focus = len(cols) - 1
	}
	col := cols[v.focus]

	switch msg.String() {
	case "up", "k":
		v.move(col, -1)
	case "down", "j":
		v.move(col, 1)
	case "home":
		v.move(col, -len(col.Items))
	case "end":
		v.move(col, len(col.Items))
	case "right", "l", "enter":
		if col.Selected == "" {
			v.move(col, 0)
		} else if v.focus+1 < len(cols) {
			v.focus++
			next := cols[v.focus]
			if next.Selected == "" && len(next.Items) > 0 {
				v.machine.Select(v.focus, next.Items[0].ID)
			}
			v.scrollIntoView()
		}
	case "left", "h", "backspace":
		if v.focus > 0 {
			v.focus--
			v.machine.JumpTo(v.focus)
		}
	case "esc", "g":
		v.focus = 0
		v.machine.Reset()
	case "pgdown", "ctrl+d":
		v.detail.HalfViewDown()
		return nil, ""
	case "pgup", "ctrl+u":
		v.detail.HalfViewUp()
		return nil, ""
	case "y":
		return nil, v.copySelected()
	}
	return v.detailCmd(src), ""
}

// move shifts the selection within col by delta, clamped to its items.
func (v *buildingsView) move(col drill.Column, delta int) {
	if len(col.Items) == 0 {
		return
	}
	idx := col.SelectedIndex()
	if idx < 0 {
		idx = 0
	} else {
		idx += delta
	}
	idx = max(0, min(idx, len(col.Items)-1))
	if col.Items[idx].ID == col.Selected {
		return
	}
	v.machine.Select(col.Level, col.Items[idx].ID)
}

func (v *buildingsView) copySelected() string {
	n, ok := v.machine.Selected()
	if !ok {
		return "Nothing selected"
	}
	id := n.ID
	if n.GlobalID != "" {
		id = n.GlobalID
	}
	if err := clipboard.WriteAll(id); err != nil {
		return fmt.Sprintf("Clipboard error: %v", err)
	}
	return fmt.Sprintf("Copied %s", id)
}

// scrollIntoView keeps the focused column and every selected item visible.
func (v *buildingsView) scrollIntoView() {
	vis := v.visibleColumns()
	if v.focus < v.colLeft {
		v.colLeft = v.focus
	}
	if v.focus >= v.colLeft+vis {
		v.colLeft = v.focus - vis + 1
	}
	rows := v.columnRows()
	for _, col := range v.machine.Columns() {
		idx := col.SelectedIndex()
		if idx < 0 {
			continue
		}
		top := v.colTop[col.Level]
		if idx < top {
			top = idx
		}
		if idx >= top+rows {
			top = idx - rows + 1
		}
		v.colTop[col.Level] = top
	}
}

func (v *buildingsView) mdRenderer(width int) *glamour.TermRenderer {
	if v.md != nil && v.mdWidth == width {
		return v.md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		debug.Log("buildings: markdown renderer: %v", err)
		return nil
	}
	v.md, v.mdWidth = r, width
	return r
}

func (v *buildingsView) refreshDetail() {
	top := v.detail.YOffset
	v.detail.SetContent(v.renderDetail())
	v.detail.SetYOffset(top)
}

func (v *buildingsView) renderDetail() string {
	t := v.theme
	n, ok := v.machine.Selected()
	switch {
	case !ok:
		return t.MutedText.Render("Select a node to see its details")
	case v.detailLoading:
		return t.MutedText.Render("Loading " + n.DisplayName() + "…")
	}

	var notes []string
	if v.detailErr != nil {
		notes = append(notes, placeholder("Details", v.detailErr))
	}
	if v.aggregateErr != nil {
		notes = append(notes, placeholder("Subtree statistics", v.aggregateErr))
	}
	src := export.NodeMarkdown(n, v.detailRec, v.aggregateRec)
	out := src
	if r := v.mdRenderer(max(20, v.detail.Width-2)); r != nil {
		if rendered, err := r.Render(src); err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}
	for _, note := range notes {
		out += "\n" + t.ErrorText.Render(note)
	}
	return out
}

func (v *buildingsView) renderBreadcrumb() string {
	t := v.theme
	crumbs := v.machine.Breadcrumb()
	parts := make([]string, 0, len(crumbs))
	for i, c := range crumbs {
		style := t.Crumb
		if i == len(crumbs)-1 {
			style = t.CrumbLast
		}
		parts = append(parts, style.Render(c.Name))
	}
	sep := t.MutedText.Render(" › ")
	return truncate(strings.Join(parts, sep), max(10, v.width))
}

func (v *buildingsView) renderColumn(col drill.Column, focused bool) string {
	t := v.theme
	inner := columnWidth - 2
	rows := v.columnRows()
	top := v.colTop[col.Level]

	lines := make([]string, 0, rows)
	if len(col.Items) == 0 {
		lines = append(lines, t.MutedText.Render(fit("(empty)", inner)))
	}
	for i := top; i < len(col.Items) && len(lines) < rows; i++ {
		n := col.Items[i]
		badge := RenderTypeBadge(t, n.Type, n.Level)
		suffix := ""
		if n.ChildCount > 0 {
			suffix = " " + strconv.Itoa(n.ChildCount) + "›"
		}
		nameW := inner - lipgloss.Width(badge) - 1 - lipgloss.Width(suffix)
		label := fit(n.DisplayName(), nameW) + suffix
		if n.ID == col.Selected {
			label = t.Selected.Render(label)
		}
		lines = append(lines, badge+" "+label)
	}
	for len(lines) < rows {
		lines = append(lines, strings.Repeat(" ", inner))
	}

	style := t.Column
	if focused {
		style = t.ColumnFocus
	}
	return style.Width(inner).Render(strings.Join(lines, "\n"))
}

func (v *buildingsView) View() string {
	t := v.theme
	if !v.loaded {
		return t.MutedText.Render("Loading hierarchy…")
	}
	if v.err != nil {
		return t.ErrorText.Render(placeholder("Hierarchy", v.err))
	}
	if v.machine.Forest().Empty() {
		return t.MutedText.Render("The hierarchy is empty")
	}

	cols := v.machine.Columns()
	vis := v.visibleColumns()
	end := min(len(cols), v.colLeft+vis)
	rendered := make([]string, 0, vis)
	for i := v.colLeft; i < end; i++ {
		rendered = append(rendered, v.renderColumn(cols[i], i == v.focus))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if w := v.detailWidth(); w > 0 {
		pane := t.Column.Width(w - 2).Height(max(1, v.height-3)).Render(v.detail.View())
		gap := max(0, v.width-lipgloss.Width(body)-lipgloss.Width(pane))
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, strings.Repeat(" ", gap), pane)
	}
	return v.renderBreadcrumb() + "\n" + body
}

// CaptureExtra saves the drill path.
func (v *buildingsView) CaptureExtra() viewstate.Extra {
	return viewstate.Extra{Path: v.machine.Selection()}
}

// RestoreExtra reapplies a saved drill path. Ids that no longer resolve are
// dropped from the first stale one on.
func (v *buildingsView) RestoreExtra(e viewstate.Extra) {
	if !v.loaded {
		v.pending = drill.Selection(e.Path).Clone()
		return
	}
	v.machine.Restore(e.Path)
	v.focus = max(0, v.machine.Depth()-1)
	v.scrollIntoView()
}

// The buildings tab has no inputs. The page offset is the detail pane; each
// column scrolls on its own and the column strip scrolls sideways.

func (v *buildingsView) FieldIDs() []string { return nil }
func (v *buildingsView) Field(string) (viewstate.FieldValue, bool) {
	return viewstate.FieldValue{}, false
}
func (v *buildingsView) SetField(string, viewstate.FieldValue) bool { return false }
func (v *buildingsView) PageOffset() int                            { return v.detail.YOffset }
func (v *buildingsView) SetPageOffset(o int)                        { v.detail.SetYOffset(o) }

func (v *buildingsView) RegionIDs() []string {
	ids := []string{regionColumns}
	for _, col := range v.machine.Columns() {
		ids = append(ids, columnRegionPrefix+strconv.Itoa(col.Level))
	}
	return ids
}

func (v *buildingsView) RegionOffset(id string) (viewstate.Offset, bool) {
	if id == regionColumns {
		return viewstate.Offset{Left: v.colLeft}, true
	}
	level, ok := v.columnLevel(id)
	if !ok {
		return viewstate.Offset{}, false
	}
	return viewstate.Offset{Top: v.colTop[level]}, true
}

func (v *buildingsView) SetRegionOffset(id string, o viewstate.Offset) bool {
	if id == regionColumns {
		v.colLeft = max(0, min(o.Left, len(v.machine.Columns())-1))
		return true
	}
	level, ok := v.columnLevel(id)
	if !ok {
		return false
	}
	v.colTop[level] = max(0, o.Top)
	return true
}

// columnLevel parses a column region id and checks the column is shown.
func (v *buildingsView) columnLevel(id string) (int, bool) {
	s, ok := strings.CutPrefix(id, columnRegionPrefix)
	if !ok {
		return 0, false
	}
	level, err := strconv.Atoi(s)
	if err != nil || level < 0 || level >= len(v.machine.Columns()) {
		return 0, false
	}
	return level, true
}
