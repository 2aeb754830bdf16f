package ui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

const (
	fieldRules        = "rules"
	fieldSchemaPath   = "schema_path"
	regionCatalog     = "catalog"
	defaultSchemaPath = "bim_schema.json"
	schemaFileMode    = 0o644
)

// ontologyLoadedMsg carries the classes, links and rules of the store.
type ontologyLoadedMsg struct {
	Seq   int
	Types []model.ObjectType
	Links []model.LinkType
	Rules model.ClassificationRules
	Err   error
}

// ontologyActionMsg reports a save, export, import or apply.
type ontologyActionMsg struct {
	Seq    int
	Action string
	Note   string
	Err    error
}

func loadOntologyCmd(src datasource.Source, seq int) tea.Cmd {
	return func() tea.Msg {
		ed, err := datasource.AsOntologyEditor(src)
		if err != nil {
			return ontologyLoadedMsg{Seq: seq, Err: err}
		}
		ctx := context.Background()
		msg := ontologyLoadedMsg{Seq: seq}
		if msg.Types, err = ed.ObjectTypes(ctx); err != nil {
			msg.Err = err
			return msg
		}
		if msg.Links, err = ed.LinkTypes(ctx); err != nil {
			msg.Err = err
			return msg
		}
		msg.Rules, msg.Err = ed.ClassificationRules(ctx)
		return msg
	}
}

// ontologyActionCmd runs fn against src's ontology editor.
func ontologyActionCmd(src datasource.Source, seq int, action string, fn func(context.Context, datasource.OntologyEditor) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ed, err := datasource.AsOntologyEditor(src)
		if err != nil {
			return ontologyActionMsg{Seq: seq, Action: action, Err: err}
		}
		note, err := fn(context.Background(), ed)
		return ontologyActionMsg{Seq: seq, Action: action, Note: note, Err: err}
	}
}

// parseRules reads classification rules from editor text.
func parseRules(text string) (model.ClassificationRules, error) {
	rules := model.ClassificationRules{}
	if err := json.Unmarshal([]byte(text), &rules); err != nil {
		return nil, fmt.Errorf("rules are not valid JSON: %w", err)
	}
	for class, keywords := range rules {
		if strings.TrimSpace(class) == "" {
			return nil, fmt.Errorf("rule with empty class name")
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("class %s has no keywords", class)
		}
	}
	return rules, nil
}

func formatRules(rules model.ClassificationRules) string {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ontologyView lists the store's classes and links and edits its
// classification rules.
type ontologyView struct {
	theme   Theme
	rules   textarea.Model
	path    textinput.Model
	focused string

	seq     int
	loading bool
	loaded  ontologyLoadedMsg
	ok      bool
	actSeq  int
	busy    string // action in flight
	note    string
	noteErr bool
	catalog viewport.Model

	width, height int
}

func newOntologyView(theme Theme) *ontologyView {
	ed := textarea.New()
	ed.Placeholder = `{"StructuralElement": ["IfcWall", "IfcSlab"]}`
	ed.ShowLineNumbers = false
	ed.CharLimit = 0
	ed.Blur()
	path := textinput.New()
	path.Prompt = "Schema file: "
	path.Placeholder = defaultSchemaPath
	path.CharLimit = 256
	return &ontologyView{
		theme:   theme,
		rules:   ed,
		path:    path,
		catalog: viewport.New(80, 10),
	}
}

func (v *ontologyView) setSize(width, height int) {
	v.width, v.height = width, height
	v.path.Width = max(10, width/2)
	v.rules.SetWidth(max(20, width))
	edH := min(12, max(3, height/3))
	v.rules.SetHeight(edH)
	v.catalog.Width = width
	v.catalog.Height = max(1, height-edH-5)
	v.refresh()
}

func (v *ontologyView) reset() {
	v.seq++
	v.actSeq++
	v.rules.SetValue("")
	v.loading, v.ok = false, false
	v.loaded = ontologyLoadedMsg{}
	v.busy, v.note, v.noteErr = "", "", false
	v.catalog.SetYOffset(0)
	v.refresh()
}

func (v *ontologyView) capturing() bool {
	return v.focused != ""
}

func (v *ontologyView) schemaPath() string {
	if p := strings.TrimSpace(v.path.Value()); p != "" {
		return p
	}
	return defaultSchemaPath
}

func (v *ontologyView) loadCmd(src datasource.Source) tea.Cmd {
	v.seq++
	v.loading = true
	v.refresh()
	return loadOntologyCmd(src, v.seq)
}

func (v *ontologyView) apply(msg ontologyLoadedMsg) bool {
	if msg.Seq != v.seq {
		return false
	}
	v.loading = false
	v.loaded, v.ok = msg, true
	// Keep edits restored from a previous visit.
	if msg.Err == nil && strings.TrimSpace(v.rules.Value()) == "" {
		v.rules.SetValue(formatRules(msg.Rules))
	}
	v.refresh()
	return true
}

// applyAction records an action result. A successful change reloads the
// catalog.
func (v *ontologyView) applyAction(msg ontologyActionMsg, src datasource.Source) tea.Cmd {
	if msg.Seq != v.actSeq {
		return nil
	}
	v.busy = ""
	if msg.Err != nil {
		v.setNote(placeholder(strings.ToUpper(msg.Action[:1])+msg.Action[1:], msg.Err), true)
		return nil
	}
	v.setNote(msg.Note, false)
	if msg.Action == "export" {
		return nil
	}
	return v.loadCmd(src)
}

func (v *ontologyView) setNote(s string, isErr bool) {
	v.note, v.noteErr = s, isErr
	v.refresh()
}

// start begins an action unless one is already running.
func (v *ontologyView) start(src datasource.Source, action string, fn func(context.Context, datasource.OntologyEditor) (string, error)) tea.Cmd {
	if v.busy != "" {
		return nil
	}
	v.actSeq++
	v.busy = action
	v.setNote("", false)
	debug.Log("ontology: %s", action)
	return ontologyActionCmd(src, v.actSeq, action, fn)
}

func (v *ontologyView) save(src datasource.Source) tea.Cmd {
	rules, err := parseRules(v.rules.Value())
	if err != nil {
		v.setNote(err.Error(), true)
		return nil
	}
	return v.start(src, "save", func(ctx context.Context, ed datasource.OntologyEditor) (string, error) {
		if err := ed.SaveClassificationRules(ctx, rules); err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved rules for %d classes", len(rules)), nil
	})
}

func (v *ontologyView) exportSchema(src datasource.Source) tea.Cmd {
	path := v.schemaPath()
	return v.start(src, "export", func(ctx context.Context, ed datasource.OntologyEditor) (string, error) {
		schema, err := ed.ExportSchema(ctx)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(schema), schemaFileMode); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return "Schema written to " + path, nil
	})
}

func (v *ontologyView) importSchema(src datasource.Source) tea.Cmd {
	path := v.schemaPath()
	return v.start(src, "import", func(ctx context.Context, ed datasource.OntologyEditor) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return "", fmt.Errorf("%s is not valid JSON", path)
		}
		if err := ed.ImportSchema(ctx, string(data)); err != nil {
			return "", err
		}
		return "Schema imported from " + path, nil
	})
}

func (v *ontologyView) applySchema(src datasource.Source) tea.Cmd {
	return v.start(src, "apply", func(ctx context.Context, ed datasource.OntologyEditor) (string, error) {
		res, err := ed.ApplySchema(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Schema applied: %s triples added, %s total", count(res.TriplesAdded), count(res.TotalTriples)), nil
	})
}

func (v *ontologyView) focus(id string) tea.Cmd {
	v.rules.Blur()
	v.path.Blur()
	v.focused = id
	switch id {
	case fieldRules:
		return v.rules.Focus()
	case fieldSchemaPath:
		return v.path.Focus()
	}
	return nil
}

func (v *ontologyView) update(msg tea.KeyMsg, src datasource.Source) tea.Cmd {
	if msg.String() == "ctrl+s" {
		v.focus("")
		return v.save(src)
	}
	switch v.focused {
	case fieldRules:
		if msg.String() == "esc" {
			v.focus("")
			return nil
		}
		var cmd tea.Cmd
		v.rules, cmd = v.rules.Update(msg)
		return cmd
	case fieldSchemaPath:
		switch msg.String() {
		case "esc", "enter":
			v.focus("")
			return nil
		}
		var cmd tea.Cmd
		v.path, cmd = v.path.Update(msg)
		return cmd
	}
	switch msg.String() {
	case "e", "i":
		return v.focus(fieldRules)
	case "o":
		return v.focus(fieldSchemaPath)
	case "x":
		return v.exportSchema(src)
	case "m":
		return v.importSchema(src)
	case "a":
		return v.applySchema(src)
	case "r":
		return v.loadCmd(src)
	case "up", "k":
		v.catalog.LineUp(1)
	case "down", "j":
		v.catalog.LineDown(1)
	case "pgup", "ctrl+u":
		v.catalog.HalfViewUp()
	case "pgdown", "ctrl+d":
		v.catalog.HalfViewDown()
	}
	return nil
}

func (v *ontologyView) refresh() {
	top := v.catalog.YOffset
	v.catalog.SetContent(v.renderCatalog())
	v.catalog.SetYOffset(top)
}

func (v *ontologyView) renderCatalog() string {
	t := v.theme
	switch {
	case v.loading && !v.ok:
		return t.MutedText.Render("Loading ontology…")
	case !v.ok:
		return ""
	case v.loaded.Err != nil:
		return t.ErrorText.Render(placeholder("Ontology", v.loaded.Err))
	}
	var sb strings.Builder
	sb.WriteString(t.Header.Render(fmt.Sprintf("Object types (%d)", len(v.loaded.Types))) + "\n")
	for _, ot := range v.loaded.Types {
		line := fit(ot.Name, 28)
		if ot.ParentClass != "" {
			line += " " + t.MutedText.Render("⊂ "+ot.ParentClass)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + t.Header.Render(fmt.Sprintf("Link types (%d)", len(v.loaded.Links))) + "\n")
	for _, lt := range v.loaded.Links {
		line := fit(lt.Name, 20) + " " + lt.Domain + " → " + lt.RangeClass
		if lt.InverseName != "" {
			line += t.MutedText.Render(" (inverse " + lt.InverseName + ")")
		}
		sb.WriteString(line + "\n")
	}
	if classes := v.loaded.Rules.Classes(); len(classes) > 0 {
		sb.WriteString("\n" + t.MutedText.Render("Rules classify into "+strings.Join(classes, ", ")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *ontologyView) View() string {
	t := v.theme
	status := ""
	switch {
	case v.busy != "":
		status = t.MutedText.Render(v.busy + "…")
	case v.noteErr:
		status = t.ErrorText.Render(v.note)
	case v.note != "":
		status = t.MutedText.Render(v.note)
	}
	head := t.MutedText.Render("Classification rules") + "  " + status
	return head + "\n" + v.rules.View() + "\n" + v.path.View() + "\n" + RenderDivider(v.width) + "\n" + v.catalog.View()
}

func (v *ontologyView) FieldIDs() []string {
	return []string{fieldRules, fieldSchemaPath}
}

func (v *ontologyView) Field(id string) (viewstate.FieldValue, bool) {
	switch id {
	case fieldRules:
		return viewstate.FieldValue{Kind: viewstate.FieldTextArea, Value: v.rules.Value()}, true
	case fieldSchemaPath:
		return viewstate.FieldValue{Kind: viewstate.FieldText, Value: v.path.Value()}, true
	}
	return viewstate.FieldValue{}, false
}

func (v *ontologyView) SetField(id string, f viewstate.FieldValue) bool {
	switch id {
	case fieldRules:
		v.rules.SetValue(f.Value)
	case fieldSchemaPath:
		v.path.SetValue(f.Value)
	default:
		return false
	}
	return true
}

func (v *ontologyView) PageOffset() int     { return 0 }
func (v *ontologyView) SetPageOffset(o int) {}

func (v *ontologyView) RegionIDs() []string {
	return []string{regionCatalog}
}

func (v *ontologyView) RegionOffset(id string) (viewstate.Offset, bool) {
	if id != regionCatalog {
		return viewstate.Offset{}, false
	}
	return viewstate.Offset{Top: v.catalog.YOffset}, true
}

func (v *ontologyView) SetRegionOffset(id string, o viewstate.Offset) bool {
	if id != regionCatalog {
		return false
	}
	v.catalog.SetYOffset(o.Top)
	return true
}
