package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

const (
	fieldQuery     = "query"
	fieldTemplate  = "template"
	regionResults  = "results"
	maxQueryColumn = 40
)

const sparqlPrefix = `PREFIX bim: <http://example.org/bim-ontology/schema#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
`

// queryTemplate is a canned query in both dialects. HTTP stores take SPARQL,
// SQLite exports take SQL.
type queryTemplate struct {
	Name   string
	SPARQL string
	SQL    string
}

var queryTemplates = []queryTemplate{
	{
		Name: "Category Statistics",
		SPARQL: sparqlPrefix + `
SELECT ?cat (COUNT(?e) AS ?num)
WHERE {
    ?e rdf:type bim:PhysicalElement .
    ?e bim:hasCategory ?cat .
}
GROUP BY ?cat
ORDER BY DESC(?num)`,
		SQL: `SELECT category AS cat, COUNT(*) AS num
FROM elements
GROUP BY category
ORDER BY num DESC`,
	},
	{
		Name: "Building Hierarchy",
		SPARQL: sparqlPrefix + `
SELECT ?parent_name ?child_name
WHERE {
    ?parent bim:aggregates ?child .
    ?parent bim:hasName ?parent_name .
    ?child bim:hasName ?child_name .
}`,
		SQL: `SELECT p.name AS parent_name, c.name AS child_name
FROM nodes c JOIN nodes p ON c.parent_id = p.id
ORDER BY p.path, c.name`,
	},
	{
		Name: "Elements by Storey",
		SPARQL: sparqlPrefix + `
SELECT ?storey_name (COUNT(?elem) AS ?num)
WHERE {
    ?storey a bim:BuildingStorey .
    ?storey bim:hasName ?storey_name .
    ?storey bim:containsElement ?elem .
}
GROUP BY ?storey_name`,
		SQL: `SELECT name AS storey_name, element_count AS num
FROM nodes
WHERE type = 'BuildingStorey'
ORDER BY name`,
	},
	{
		Name: "Pipe Elements",
		SPARQL: sparqlPrefix + `
SELECT ?name ?type
WHERE {
    ?e bim:hasCategory "Pipe" .
    ?e bim:hasName ?name .
    OPTIONAL { ?e bim:hasObjectType ?type }
}
LIMIT 20`,
		SQL: `SELECT name, original_type AS type
FROM elements
WHERE category = 'Pipe'
LIMIT 20`,
	},
	{
		Name: "All Properties of Element",
		SPARQL: sparqlPrefix + `
SELECT ?prop ?value
WHERE {
    ?e bim:hasName "YOUR_ELEMENT_NAME" .
    ?e ?prop ?value .
}
LIMIT 50`,
		SQL: `SELECT p.pset, p.name AS prop, p.value
FROM properties p JOIN elements e ON e.global_id = p.global_id
WHERE e.name = 'YOUR_ELEMENT_NAME'
LIMIT 50`,
	},
	{
		Name: "Structural Elements",
		SPARQL: sparqlPrefix + `
SELECT ?name ?cat
WHERE {
    ?e rdf:type bim:StructuralElement .
    ?e bim:hasName ?name .
    ?e bim:hasCategory ?cat .
}
LIMIT 30`,
		SQL: `SELECT name, category AS cat
FROM elements
WHERE category IN ('Wall', 'Slab', 'Beam', 'Column', 'Footing')
LIMIT 30`,
	},
}

// templateText returns the template body in the dialect src understands.
func templateText(t queryTemplate, src datasource.Source) string {
	if src != nil && src.Kind() == datasource.KindSQLite {
		return t.SQL
	}
	return t.SPARQL
}

func findTemplate(name string) (int, bool) {
	for i, t := range queryTemplates {
		if t.Name == name {
			return i, true
		}
	}
	return -1, false
}

// queryResultMsg carries the outcome of one run. Seq identifies the run.
type queryResultMsg struct {
	Seq     int
	Result  model.QueryResult
	Err     error
	Elapsed time.Duration
}

func runQueryCmd(src datasource.Source, seq int, text string) tea.Cmd {
	return func() tea.Msg {
		if src == nil {
			return queryResultMsg{Seq: seq, Err: fmt.Errorf("no data source: %w", datasource.ErrUnavailable)}
		}
		start := time.Now()
		res, err := src.Query(context.Background(), text)
		return queryResultMsg{Seq: seq, Result: res, Err: err, Elapsed: time.Since(start)}
	}
}

// queryView is the ad-hoc query editor with canned templates and a result
// table.
type queryView struct {
	theme    Theme
	editor   textarea.Model
	template int // index into queryTemplates, -1 for none
	editing  bool

	seq     int
	running bool
	ran     bool
	result  model.QueryResult
	err     error
	elapsed time.Duration
	results viewport.Model

	width, height int
}

func newQueryView(theme Theme) *queryView {
	ed := textarea.New()
	ed.Placeholder = "Write a query, or press [ and ] to pick a template"
	ed.ShowLineNumbers = false
	ed.CharLimit = 0
	ed.SetHeight(8)
	ed.Blur()
	return &queryView{
		theme:    theme,
		editor:   ed,
		template: -1,
		results:  viewport.New(80, 10),
	}
}

func (v *queryView) setSize(width, height int) {
	v.width, v.height = width, height
	v.editor.SetWidth(max(20, width))
	edH := min(10, max(3, height/3))
	v.editor.SetHeight(edH)
	v.results.Width = width
	v.results.Height = max(1, height-edH-3)
	v.refresh()
}

func (v *queryView) reset() {
	v.seq++
	v.running = false
	v.ran = false
	v.result = model.QueryResult{}
	v.err = nil
	v.refresh()
}

func (v *queryView) capturing() bool {
	return v.editing
}

// useTemplate loads template i into the editor.
func (v *queryView) useTemplate(i int, src datasource.Source) {
	n := len(queryTemplates)
	i = ((i % n) + n) % n
	v.template = i
	v.editor.SetValue(templateText(queryTemplates[i], src))
}

// run executes the editor contents. Blank queries do nothing.
func (v *queryView) run(src datasource.Source) tea.Cmd {
	text := strings.TrimSpace(v.editor.Value())
	if text == "" {
		return nil
	}
	v.seq++
	v.running = true
	v.refresh()
	debug.Log("query: run %d (%d bytes)", v.seq, len(text))
	return runQueryCmd(src, v.seq, text)
}

func (v *queryView) apply(msg queryResultMsg) bool {
	if msg.Seq != v.seq {
		return false
	}
	v.running = false
	v.ran = true
	v.result, v.err, v.elapsed = msg.Result, msg.Err, msg.Elapsed
	v.results.SetYOffset(0)
	v.refresh()
	return true
}

func (v *queryView) update(msg tea.KeyMsg, src datasource.Source) tea.Cmd {
	if msg.String() == "ctrl+r" {
		return v.run(src)
	}
	if v.editing {
		if msg.String() == "esc" {
			v.editing = false
			v.editor.Blur()
			return nil
		}
		var cmd tea.Cmd
		v.editor, cmd = v.editor.Update(msg)
		return cmd
	}
	switch msg.String() {
	case "i", "enter":
		v.editing = true
		return v.editor.Focus()
	case "]":
		v.useTemplate(v.template+1, src)
	case "[":
		if v.template < 0 {
			v.useTemplate(len(queryTemplates)-1, src)
		} else {
			v.useTemplate(v.template-1, src)
		}
	case "up", "k":
		v.results.LineUp(1)
	case "down", "j":
		v.results.LineDown(1)
	case "pgup", "ctrl+u":
		v.results.HalfViewUp()
	case "pgdown", "ctrl+d":
		v.results.HalfViewDown()
	}
	return nil
}

func (v *queryView) refresh() {
	top := v.results.YOffset
	v.results.SetContent(v.renderResults())
	v.results.SetYOffset(top)
}

// shortValue trims IRIs down to their local name.
func shortValue(s string) string {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return s
	}
	if i := strings.LastIndexAny(s, "#/"); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}

func (v *queryView) renderResults() string {
	t := v.theme
	switch {
	case v.running:
		return t.MutedText.Render("Executing…")
	case !v.ran:
		return t.MutedText.Render("ctrl+r runs the query")
	case errors.Is(v.err, datasource.ErrUnsupported):
		return t.ErrorText.Render(placeholder("Query", v.err))
	case v.err != nil:
		return t.ErrorText.Render(placeholder("Query failed", v.err))
	}
	res := v.result
	info := t.MutedText.Render(fmt.Sprintf("%d rows (%s)", len(res.Rows), v.elapsed.Round(time.Millisecond)))
	if len(res.Rows) == 0 {
		return t.MutedText.Render("No results.") + "\n" + info
	}

	cols := res.Columns
	if len(cols) == 0 {
		for k := range res.Rows[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
		for _, r := range res.Rows {
			widths[i] = max(widths[i], lipgloss.Width(shortValue(r[c])))
		}
		widths[i] = min(widths[i], maxQueryColumn)
	}

	var sb strings.Builder
	head := make([]string, len(cols))
	for i, c := range cols {
		head[i] = fit(c, widths[i])
	}
	sb.WriteString(t.Header.Render(strings.Join(head, "  ")) + "\n")
	for _, r := range res.Rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = fit(shortValue(r[c]), widths[i])
		}
		sb.WriteString(strings.Join(cells, "  ") + "\n")
	}
	sb.WriteString(info)
	return sb.String()
}

func (v *queryView) View() string {
	t := v.theme
	name := "custom"
	if v.template >= 0 {
		name = queryTemplates[v.template].Name
	}
	head := t.MutedText.Render("Template: ") + t.Crumb.Render(name)
	return head + "\n" + v.editor.View() + "\n" + RenderDivider(v.width) + "\n" + v.results.View()
}

func (v *queryView) FieldIDs() []string {
	return []string{fieldTemplate, fieldQuery}
}

func (v *queryView) Field(id string) (viewstate.FieldValue, bool) {
	switch id {
	case fieldQuery:
		return viewstate.FieldValue{Kind: viewstate.FieldTextArea, Value: v.editor.Value()}, true
	case fieldTemplate:
		name := ""
		if v.template >= 0 {
			name = queryTemplates[v.template].Name
		}
		return viewstate.FieldValue{Kind: viewstate.FieldSelect, Value: name}, true
	}
	return viewstate.FieldValue{}, false
}

// SetField restores a field. Restoring the template only records the
// selection; the editor keeps the restored query text.
func (v *queryView) SetField(id string, f viewstate.FieldValue) bool {
	switch id {
	case fieldQuery:
		v.editor.SetValue(f.Value)
	case fieldTemplate:
		i, ok := findTemplate(f.Value)
		if !ok {
			i = -1
		}
		v.template = i
	default:
		return false
	}
	return true
}

func (v *queryView) PageOffset() int     { return 0 }
func (v *queryView) SetPageOffset(o int) {}

func (v *queryView) RegionIDs() []string {
	return []string{regionResults}
}

func (v *queryView) RegionOffset(id string) (viewstate.Offset, bool) {
	if id != regionResults {
		return viewstate.Offset{}, false
	}
	return viewstate.Offset{Top: v.results.YOffset}, true
}

func (v *queryView) SetRegionOffset(id string, o viewstate.Offset) bool {
	if id != regionResults {
		return false
	}
	v.results.SetYOffset(o.Top)
	return true
}
