package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/export"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/tabs"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

const (
	fieldCategory = "category"
	fieldSearch   = "search"
	regionDetail  = "detail"
)

// elementsLoadedMsg carries one page of elements. Seq identifies the request
// so pages that arrive after a newer request are ignored.
type elementsLoadedMsg struct {
	Seq      int
	Elements []model.Element
	Err      error
}

// elementDetailMsg carries the property sets of one element.
type elementDetailMsg struct {
	URI    string
	Detail model.Record
	Err    error
}

func loadElementsCmd(src datasource.Source, seq int, q datasource.ElementQuery) tea.Cmd {
	return func() tea.Msg {
		if src == nil {
			return elementsLoadedMsg{Seq: seq, Err: fmt.Errorf("no data source: %w", datasource.ErrUnavailable)}
		}
		elems, err := src.Elements(context.Background(), q)
		return elementsLoadedMsg{Seq: seq, Elements: elems, Err: err}
	}
}

func loadElementDetailCmd(src datasource.Source, uri string) tea.Cmd {
	return func() tea.Msg {
		if src == nil {
			return elementDetailMsg{URI: uri, Err: fmt.Errorf("no data source: %w", datasource.ErrUnavailable)}
		}
		rec, err := src.LookupDetail(context.Background(), uri)
		return elementDetailMsg{URI: uri, Detail: rec, Err: err}
	}
}

// elementsView is the paginated element browser with a category filter and
// a name search over the current page.
type elementsView struct {
	theme    Theme
	category textinput.Model
	search   textinput.Model
	focused  string // field with keyboard focus, "" for the table

	cursor   viewstate.Cursor
	seq      int
	loading  bool
	stale    bool // cursor or category changed by a restore
	err      error
	elements []model.Element
	row      int
	table    viewport.Model

	open      *model.Element
	detail    viewport.Model
	detailRec model.Record
	detailErr error
	md        *glamour.TermRenderer

	width, height int
}

func newElementsView(theme Theme, pageSize int) *elementsView {
	if pageSize <= 0 {
		pageSize = datasource.DefaultPageSize
	}
	cat := textinput.New()
	cat.Prompt = "Category: "
	cat.Placeholder = "all"
	cat.CharLimit = 64
	search := textinput.New()
	search.Prompt = "Search: "
	search.Placeholder = "name contains…"
	search.CharLimit = 128
	return &elementsView{
		theme:    theme,
		category: cat,
		search:   search,
		cursor:   viewstate.Cursor{PageSize: pageSize},
		table:    viewport.New(80, 20),
		detail:   viewport.New(40, 10),
	}
}

func (v *elementsView) setSize(width, height int) {
	v.width, v.height = width, height
	v.category.Width = max(10, width/3)
	v.search.Width = max(10, width/3)
	body := max(3, height-3)
	if v.open != nil {
		v.detail.Width = width
		v.detail.Height = body / 2
		body -= v.detail.Height
	}
	v.table.Width = width
	v.table.Height = body
	v.refresh()
}

func (v *elementsView) reset(pageSize int) {
	if pageSize > 0 {
		v.cursor.PageSize = pageSize
	}
	v.cursor.Page = 0
	v.elements = nil
	v.err = nil
	v.row = 0
	v.stale = false
	v.closeDetail()
}

// capturing reports whether a text input has focus and should receive keys.
func (v *elementsView) capturing() bool {
	return v.focused != ""
}

func (v *elementsView) query() datasource.ElementQuery {
	return datasource.ElementQuery{
		Category: strings.TrimSpace(v.category.Value()),
		Limit:    v.cursor.PageSize,
		Offset:   v.cursor.Offset(),
	}
}

// loadCmd requests the page under the cursor.
func (v *elementsView) loadCmd(src datasource.Source) tea.Cmd {
	v.seq++
	v.loading = true
	v.err = nil
	v.refresh()
	return loadElementsCmd(src, v.seq, v.query())
}

func (v *elementsView) apply(msg elementsLoadedMsg) bool {
	if msg.Seq != v.seq {
		debug.Log("elements: dropping page for request %d, now %d", msg.Seq, v.seq)
		return false
	}
	v.loading = false
	v.elements, v.err = msg.Elements, msg.Err
	v.row = max(0, min(v.row, len(v.visible())-1))
	v.refresh()
	return true
}

func (v *elementsView) applyDetail(msg elementDetailMsg) bool {
	if v.open == nil || v.open.URI != msg.URI {
		return false
	}
	v.detailRec, v.detailErr = msg.Detail, msg.Err
	v.refreshDetail()
	return true
}

// visible returns the page's elements matching the search text.
func (v *elementsView) visible() []model.Element {
	needle := strings.ToLower(strings.TrimSpace(v.search.Value()))
	if needle == "" {
		return v.elements
	}
	out := make([]model.Element, 0, len(v.elements))
	for _, e := range v.elements {
		if strings.Contains(strings.ToLower(e.DisplayName()), needle) ||
			strings.Contains(strings.ToLower(e.OriginalType), needle) {
			out = append(out, e)
		}
	}
	return out
}

// hasNext guesses from a full page that more elements follow.
func (v *elementsView) hasNext() bool {
	return len(v.elements) >= v.cursor.PageSize
}

func (v *elementsView) focus(id string) tea.Cmd {
	v.category.Blur()
	v.search.Blur()
	v.focused = id
	switch id {
	case fieldCategory:
		return v.category.Focus()
	case fieldSearch:
		return v.search.Focus()
	}
	return nil
}

func (v *elementsView) update(msg tea.KeyMsg, ctx *tabs.Context) tea.Cmd {
	if v.capturing() {
		return v.updateInput(msg, ctx.Source)
	}
	src := ctx.Source
	switch msg.String() {
	case "/":
		return v.focus(fieldSearch)
	case "f":
		return v.focus(fieldCategory)
	case "c":
		return v.cycleCategory(ctx)
	case "up", "k":
		v.moveRow(-1)
	case "down", "j":
		v.moveRow(1)
	case "right", "l", "n":
		if v.hasNext() && !v.loading {
			v.cursor.Page++
			v.row = 0
			return v.loadCmd(src)
		}
	case "left", "h", "p":
		if v.cursor.Page > 0 && !v.loading {
			v.cursor.Page--
			v.row = 0
			return v.loadCmd(src)
		}
	case "enter":
		return v.openDetail(src)
	case "esc":
		if v.open != nil {
			v.closeDetail()
			v.setSize(v.width, v.height)
		}
	case "pgdown", "ctrl+d":
		v.detail.HalfViewDown()
	case "pgup", "ctrl+u":
		v.detail.HalfViewUp()
	}
	return nil
}

func (v *elementsView) updateInput(msg tea.KeyMsg, src datasource.Source) tea.Cmd {
	switch msg.String() {
	case "esc":
		v.focus("")
		return nil
	case "enter":
		field := v.focused
		v.focus("")
		if field == fieldCategory {
			v.cursor.Page = 0
			v.row = 0
			return v.loadCmd(src)
		}
		return nil
	}
	var cmd tea.Cmd
	if v.focused == fieldCategory {
		v.category, cmd = v.category.Update(msg)
	} else {
		v.search, cmd = v.search.Update(msg)
		v.row = 0
		v.refresh()
	}
	return cmd
}

// cycleCategory steps the category filter through the cached category list.
// An unloaded cache is warmed in the background and the key does nothing.
func (v *elementsView) cycleCategory(ctx *tabs.Context) tea.Cmd {
	if !ctx.Categories.Loaded() {
		categories := ctx.Categories
		return func() tea.Msg {
			if _, err := categories.Get(context.Background()); err != nil {
				debug.Log("elements: categories: %v", err)
			}
			return nil
		}
	}
	cats, err := ctx.Categories.Get(context.Background())
	if err != nil || len(cats) == 0 {
		return nil
	}
	current := strings.TrimSpace(v.category.Value())
	next := cats[0].Category
	for i, c := range cats {
		if c.Category == current {
			if i+1 < len(cats) {
				next = cats[i+1].Category
			} else {
				next = ""
			}
			break
		}
	}
	v.category.SetValue(next)
	v.cursor.Page = 0
	v.row = 0
	return v.loadCmd(ctx.Source)
}

func (v *elementsView) moveRow(delta int) {
	n := len(v.visible())
	if n == 0 {
		return
	}
	v.row = max(0, min(v.row+delta, n-1))
	if v.row < v.table.YOffset {
		v.table.SetYOffset(v.row)
	}
	if v.row >= v.table.YOffset+v.table.Height {
		v.table.SetYOffset(v.row - v.table.Height + 1)
	}
	v.refresh()
}

func (v *elementsView) openDetail(src datasource.Source) tea.Cmd {
	elems := v.visible()
	if v.row >= len(elems) {
		return nil
	}
	e := elems[v.row]
	v.open = &e
	v.detailRec, v.detailErr = nil, nil
	v.setSize(v.width, v.height)
	v.refreshDetail()
	return loadElementDetailCmd(src, e.URI)
}

func (v *elementsView) closeDetail() {
	v.open = nil
	v.detailRec, v.detailErr = nil, nil
	v.detail.SetContent("")
}

func (v *elementsView) refresh() {
	top := v.table.YOffset
	v.table.SetContent(v.renderTable())
	v.table.SetYOffset(top)
}

func (v *elementsView) renderTable() string {
	t := v.theme
	switch {
	case v.loading && len(v.elements) == 0:
		return t.MutedText.Render("Loading elements…")
	case v.err != nil:
		return t.ErrorText.Render(placeholder("Elements", v.err))
	}
	elems := v.visible()
	if len(elems) == 0 {
		return t.MutedText.Render("No elements")
	}

	typeW := 24
	catW := 20
	nameW := max(10, v.width-typeW-catW-4)
	var sb strings.Builder
	sb.WriteString(t.Header.Render(fit("Name", nameW)+" "+fit("Category", catW)+" "+fit("Type", typeW)) + "\n")
	for i, e := range elems {
		line := fit(e.DisplayName(), nameW) + " " + fit(e.Category, catW) + " " + fit(e.OriginalType, typeW)
		if i == v.row {
			line = t.Selected.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *elementsView) refreshDetail() {
	if v.open == nil {
		return
	}
	top := v.detail.YOffset
	src := export.ElementMarkdown(*v.open, v.detailRec)
	out := src
	if v.md == nil {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(20, v.width-4))); err == nil {
			v.md = r
		}
	}
	if v.md != nil {
		if rendered, err := v.md.Render(src); err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}
	if v.detailErr != nil {
		out += "\n" + v.theme.ErrorText.Render(placeholder("Properties", v.detailErr))
	}
	v.detail.SetContent(out)
	v.detail.SetYOffset(top)
}

func (v *elementsView) View() string {
	t := v.theme
	page := fmt.Sprintf("page %d", v.cursor.Page+1)
	if v.loading {
		page += " …"
	}
	header := v.category.View() + "  " + v.search.View() + "  " + t.MutedText.Render(page)
	out := header + "\n" + RenderDivider(v.width) + "\n" + v.table.View()
	if v.open != nil {
		out += "\n" + RenderDivider(v.width) + "\n" + v.detail.View()
	}
	return out
}

// CaptureExtra saves the pagination cursor.
func (v *elementsView) CaptureExtra() viewstate.Extra {
	c := v.cursor
	return viewstate.Extra{Cursor: &c}
}

// RestoreExtra reapplies a saved cursor. The page is refetched by
// afterRestore.
func (v *elementsView) RestoreExtra(e viewstate.Extra) {
	if e.Cursor == nil {
		return
	}
	if *e.Cursor != v.cursor {
		v.cursor = *e.Cursor
		v.stale = true
	}
}

// afterRestore refetches when the restored cursor or filter no longer
// matches what is shown.
func (v *elementsView) afterRestore(src datasource.Source) tea.Cmd {
	if !v.stale {
		return nil
	}
	v.stale = false
	return v.loadCmd(src)
}

func (v *elementsView) FieldIDs() []string {
	return []string{fieldCategory, fieldSearch}
}

func (v *elementsView) Field(id string) (viewstate.FieldValue, bool) {
	switch id {
	case fieldCategory:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.category.Value()}, true
	case fieldSearch:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.search.Value()}, true
	}
	return viewstate.FieldValue{}, false
}

func (v *elementsView) SetField(id string, f viewstate.FieldValue) bool {
	switch id {
	case fieldCategory:
		if v.category.Value() != f.Value {
			v.category.SetValue(f.Value)
			v.stale = true
		}
	case fieldSearch:
		v.search.SetValue(f.Value)
		v.refresh()
	default:
		return false
	}
	return true
}

func (v *elementsView) PageOffset() int     { return v.table.YOffset }
func (v *elementsView) SetPageOffset(o int) { v.table.SetYOffset(o) }

func (v *elementsView) RegionIDs() []string {
	if v.open == nil {
		return nil
	}
	return []string{regionDetail}
}

func (v *elementsView) RegionOffset(id string) (viewstate.Offset, bool) {
	if id != regionDetail || v.open == nil {
		return viewstate.Offset{}, false
	}
	return viewstate.Offset{Top: v.detail.YOffset}, true
}

func (v *elementsView) SetRegionOffset(id string, o viewstate.Offset) bool {
	if id != regionDetail || v.open == nil {
		return false
	}
	v.detail.SetYOffset(o.Top)
	return true
}
