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
	"github.com/vanderheijden86/bimnav/pkg/export"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

const (
	fieldGlobalID  = "global_id"
	fieldPropKey   = "key"
	fieldPropValue = "value"
)

// plantDataMsg carries the plant property set summary.
type plantDataMsg struct {
	Seq  int
	Data model.PlantData
	Err  error
}

// propertyResultMsg carries a key search or a global id lookup. Seq
// identifies the request.
type propertyResultMsg struct {
	Seq    int
	Search *model.PropertySearch
	GID    string
	Record model.Record
	Err    error
}

func loadPlantDataCmd(src datasource.Source, seq int) tea.Cmd {
	return func() tea.Msg {
		idx, err := datasource.AsPropertyIndex(src)
		if err != nil {
			return plantDataMsg{Seq: seq, Err: err}
		}
		pd, err := idx.PlantData(context.Background())
		return plantDataMsg{Seq: seq, Data: pd, Err: err}
	}
}

func searchPropertiesCmd(src datasource.Source, seq int, q datasource.PropertyQuery) tea.Cmd {
	return func() tea.Msg {
		idx, err := datasource.AsPropertyIndex(src)
		if err != nil {
			return propertyResultMsg{Seq: seq, Err: err}
		}
		res, err := idx.SearchProperties(context.Background(), q)
		return propertyResultMsg{Seq: seq, Search: &res, Err: err}
	}
}

func lookupPropertiesCmd(src datasource.Source, seq int, gid string) tea.Cmd {
	return func() tea.Msg {
		if src == nil {
			return propertyResultMsg{Seq: seq, GID: gid, Err: fmt.Errorf("no data source: %w", datasource.ErrUnavailable)}
		}
		rec, err := src.LookupDetail(context.Background(), gid)
		return propertyResultMsg{Seq: seq, GID: gid, Record: rec, Err: err}
	}
}

// propertiesView looks up property sets by global id, searches property
// values by key and summarizes plant design property sets.
type propertiesView struct {
	theme   Theme
	gid     textinput.Model
	key     textinput.Model
	value   textinput.Model
	focused string

	plantSeq int
	plant    model.PlantData
	plantErr error
	plantOK  bool

	seq     int
	running bool
	last    propertyResultMsg
	ran     bool
	results viewport.Model
	md      *glamour.TermRenderer

	width, height int
}

func newPropertiesView(theme Theme) *propertiesView {
	gid := textinput.New()
	gid.Prompt = "GlobalId: "
	gid.Placeholder = "e.g. 2O2Fr$t4X7Zf8NOew3FLOH"
	gid.CharLimit = 64
	key := textinput.New()
	key.Prompt = "Key: "
	key.Placeholder = "e.g. IsExternal"
	key.CharLimit = 128
	value := textinput.New()
	value.Prompt = "Value: "
	value.Placeholder = "any"
	value.CharLimit = 128
	return &propertiesView{
		theme:   theme,
		gid:     gid,
		key:     key,
		value:   value,
		results: viewport.New(80, 10),
	}
}

func (v *propertiesView) setSize(width, height int) {
	v.width, v.height = width, height
	v.gid.Width = max(10, width/3)
	v.key.Width = max(10, width/4)
	v.value.Width = max(10, width/4)
	v.results.Width = width
	v.results.Height = max(1, height-3)
	v.refresh()
}

func (v *propertiesView) reset() {
	v.plantSeq++
	v.seq++
	v.plant, v.plantErr, v.plantOK = model.PlantData{}, nil, false
	v.running, v.ran = false, false
	v.last = propertyResultMsg{}
	v.results.SetYOffset(0)
	v.refresh()
}

func (v *propertiesView) capturing() bool {
	return v.focused != ""
}

func (v *propertiesView) loadPlantCmd(src datasource.Source) tea.Cmd {
	v.plantSeq++
	return loadPlantDataCmd(src, v.plantSeq)
}

func (v *propertiesView) applyPlant(msg plantDataMsg) bool {
	if msg.Seq != v.plantSeq {
		return false
	}
	v.plant, v.plantErr, v.plantOK = msg.Data, msg.Err, true
	v.refresh()
	return true
}

func (v *propertiesView) apply(msg propertyResultMsg) bool {
	if msg.Seq != v.seq {
		return false
	}
	v.running = false
	v.ran = true
	v.last = msg
	v.results.SetYOffset(0)
	v.refresh()
	return true
}

func (v *propertiesView) search(src datasource.Source) tea.Cmd {
	q := datasource.PropertyQuery{Key: v.key.Value(), Value: v.value.Value()}
	if strings.TrimSpace(q.Key) == "" {
		return nil
	}
	v.seq++
	v.running = true
	v.refresh()
	return searchPropertiesCmd(src, v.seq, q)
}

func (v *propertiesView) lookup(src datasource.Source) tea.Cmd {
	gid := strings.TrimSpace(v.gid.Value())
	if gid == "" {
		return nil
	}
	v.seq++
	v.running = true
	v.refresh()
	return lookupPropertiesCmd(src, v.seq, gid)
}

func (v *propertiesView) focus(id string) tea.Cmd {
	v.gid.Blur()
	v.key.Blur()
	v.value.Blur()
	v.focused = id
	switch id {
	case fieldGlobalID:
		return v.gid.Focus()
	case fieldPropKey:
		return v.key.Focus()
	case fieldPropValue:
		return v.value.Focus()
	}
	return nil
}

// input returns the focused text input.
func (v *propertiesView) input() *textinput.Model {
	switch v.focused {
	case fieldGlobalID:
		return &v.gid
	case fieldPropValue:
		return &v.value
	}
	return &v.key
}

func (v *propertiesView) update(msg tea.KeyMsg, src datasource.Source) tea.Cmd {
	if v.capturing() {
		switch msg.String() {
		case "esc":
			v.focus("")
			return nil
		case "tab":
			if v.focused == fieldPropKey {
				return v.focus(fieldPropValue)
			}
			if v.focused == fieldPropValue {
				return v.focus(fieldPropKey)
			}
			return nil
		case "enter":
			field := v.focused
			v.focus("")
			if field == fieldGlobalID {
				return v.lookup(src)
			}
			return v.search(src)
		}
		in := v.input()
		var cmd tea.Cmd
		*in, cmd = in.Update(msg)
		return cmd
	}
	switch msg.String() {
	case "g":
		return v.focus(fieldGlobalID)
	case "/":
		return v.focus(fieldPropKey)
	case "v":
		return v.focus(fieldPropValue)
	case "p":
		return v.loadPlantCmd(src)
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

func (v *propertiesView) refresh() {
	top := v.results.YOffset
	v.results.SetContent(v.renderPlant() + "\n\n" + v.renderResult())
	v.results.SetYOffset(top)
}

func (v *propertiesView) renderPlant() string {
	t := v.theme
	head := t.Header.Render("Plant property sets")
	switch {
	case !v.plantOK:
		return head + "\n" + t.MutedText.Render("Loading…")
	case v.plantErr != nil:
		return head + "\n" + t.ErrorText.Render(placeholder("Plant data", v.plantErr))
	}
	pd := v.plant
	var sb strings.Builder
	sb.WriteString(head + "\n")
	sb.WriteString(fmt.Sprintf("%s plant of %s property sets\n", count(pd.PlantPropertySets), count(pd.TotalPropertySets)))
	if len(pd.Details) == 0 {
		sb.WriteString(t.MutedText.Render("No plant design property sets"))
		return sb.String()
	}
	nameW := max(10, min(40, v.width-12))
	for _, d := range pd.Details {
		sb.WriteString(fit(d.Name, nameW) + " " + count(d.Count) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *propertiesView) renderResult() string {
	t := v.theme
	switch {
	case v.running:
		return t.MutedText.Render("Searching…")
	case !v.ran:
		return t.MutedText.Render("g looks up a GlobalId, / searches by property key")
	case v.last.Err != nil && v.last.GID != "":
		return t.ErrorText.Render(placeholder("Properties of "+v.last.GID, v.last.Err))
	case v.last.Err != nil:
		return t.ErrorText.Render(placeholder("Property search", v.last.Err))
	case v.last.Search != nil:
		return v.renderSearch(*v.last.Search)
	}
	return v.renderRecord(v.last.GID, v.last.Record)
}

func (v *propertiesView) renderSearch(res model.PropertySearch) string {
	t := v.theme
	info := t.MutedText.Render(fmt.Sprintf("%d results for %q", res.Count, res.Key))
	if len(res.Results) == 0 {
		return t.MutedText.Render("No results.") + "\n" + info
	}
	valW := 24
	psetW := 28
	elemW := max(10, v.width-valW-psetW-2)
	var sb strings.Builder
	sb.WriteString(t.Header.Render(fit("Element", elemW)+" "+fit("Property set", psetW)+" "+fit("Value", valW)) + "\n")
	for _, h := range res.Results {
		sb.WriteString(fit(h.Element, elemW) + " " + fit(h.PSet, psetW) + " " + fit(shortValue(h.Value), valW) + "\n")
	}
	sb.WriteString(info)
	return sb.String()
}

func (v *propertiesView) renderRecord(gid string, rec model.Record) string {
	e := model.Element{
		URI:          rec.String("id"),
		Name:         rec.String("name"),
		Category:     rec.String("category"),
		OriginalType: rec.String("original_type"),
		GlobalID:     gid,
	}
	src := export.ElementMarkdown(e, rec)
	if v.md == nil {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(20, v.width-4))); err == nil {
			v.md = r
		}
	}
	if v.md != nil {
		if out, err := v.md.Render(src); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return src
}

func (v *propertiesView) View() string {
	header := v.gid.View() + "  " + v.key.View() + "  " + v.value.View()
	return header + "\n" + RenderDivider(v.width) + "\n" + v.results.View()
}

func (v *propertiesView) FieldIDs() []string {
	return []string{fieldGlobalID, fieldPropKey, fieldPropValue}
}

func (v *propertiesView) Field(id string) (viewstate.FieldValue, bool) {
	switch id {
	case fieldGlobalID:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.gid.Value()}, true
	case fieldPropKey:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.key.Value()}, true
	case fieldPropValue:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.value.Value()}, true
	}
	return viewstate.FieldValue{}, false
}

func (v *propertiesView) SetField(id string, f viewstate.FieldValue) bool {
	switch id {
	case fieldGlobalID:
		v.gid.SetValue(f.Value)
	case fieldPropKey:
		v.key.SetValue(f.Value)
	case fieldPropValue:
		v.value.SetValue(f.Value)
	default:
		return false
	}
	return true
}

func (v *propertiesView) PageOffset() int     { return 0 }
func (v *propertiesView) SetPageOffset(o int) {}

func (v *propertiesView) RegionIDs() []string {
	return []string{regionResults}
}

func (v *propertiesView) RegionOffset(id string) (viewstate.Offset, bool) {
	if id != regionResults {
		return viewstate.Offset{}, false
	}
	return viewstate.Offset{Top: v.results.YOffset}, true
}

func (v *propertiesView) SetRegionOffset(id string, o viewstate.Offset) bool {
	if id != regionResults {
		return false
	}
	v.results.SetYOffset(o.Top)
	return true
}
