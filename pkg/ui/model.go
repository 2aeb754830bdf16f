package ui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/config"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/nav"
	"github.com/vanderheijden86/bimnav/pkg/tabs"
	"github.com/vanderheijden86/bimnav/pkg/watcher"
)

// Tab names, in display order.
const (
	TabOverview   = "overview"
	TabBuildings  = "buildings"
	TabElements   = "elements"
	TabQuery      = "query"
	TabReasoning  = "reasoning"
	TabProperties = "properties"
	TabOntology   = "ontology"
)

const (
	defaultWidth  = 120
	defaultHeight = 40
)

// FileChangedMsg is sent when the watched source file changes on disk.
type FileChangedMsg struct{}

// sourceSwitchedMsg carries a source opened in the background.
type sourceSwitchedMsg struct {
	Name   string
	Source datasource.Source
	Err    error
}

// WatchFileCmd returns a command that waits for file changes and sends
// FileChangedMsg. It returns nil once the watcher is stopped.
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	done := w.Done()
	return func() tea.Msg {
		select {
		case <-w.Changed():
			return FileChangedMsg{}
		case <-done:
			return nil
		}
	}
}

// StartWatcher watches the file behind src when it is local and watching is
// enabled. It returns nil for remote sources.
func StartWatcher(cfg config.Config, src datasource.Source) (*watcher.Watcher, error) {
	if src == nil || src.Kind() == datasource.KindHTTP || !cfg.Watch.IsEnabled() {
		return nil, nil
	}
	opts := watcher.ForPath(src.Location())
	if cfg.Watch.Debounce > 0 {
		opts = append(opts, watcher.WithDebounceDuration(cfg.Watch.Debounce))
	}
	w, err := watcher.NewWatcher(src.Location(), opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

func openSourceCmd(cfg config.Config, name, location string) tea.Cmd {
	return func() tea.Msg {
		src, err := datasource.Open(cfg.ResolveSource(location), datasource.Options{
			Timeout:   cfg.HTTP.Timeout,
			Delimiter: cfg.Hierarchy.PathDelimiter,
		})
		return sourceSwitchedMsg{Name: name, Source: src, Err: err}
	}
}

// Options configures NewModel.
type Options struct {
	Config     config.Config
	Source     datasource.Source
	Watcher    *watcher.Watcher
	InitialTab string
	// Reveal selects the path down to this node id in the buildings tab,
	// which becomes the initial tab unless InitialTab is set.
	Reveal string
}

// Model is the root bubbletea model: a tab bar over the content views whose
// view state is kept by a nav.Controller.
type Model struct {
	theme Theme
	cfg   config.Config
	ctx   *tabs.Context
	nav   *nav.Controller

	overview   *overviewView
	buildings  *buildingsView
	elements   *elementsView
	query      *queryView
	reasoning  *reasoningView
	properties *propertiesView
	ontology   *ontologyView

	watcher *watcher.Watcher
	initCmd tea.Cmd

	width, height int
	showHelp      bool
	statusMsg     string
	statusIsError bool
}

// NewModel builds the dashboard and shows the initial tab.
func NewModel(opts Options) Model {
	cfg := opts.Config
	theme := DefaultTheme(lipgloss.DefaultRenderer())
	ctx := tabs.NewContext(opts.Source, cfg)

	m := Model{
		theme:      theme,
		cfg:        cfg,
		ctx:        ctx,
		overview:   newOverviewView(theme),
		buildings:  newBuildingsView(theme),
		elements:   newElementsView(theme, cfg.UI.PageSize),
		query:      newQueryView(theme),
		reasoning:  newReasoningView(theme),
		properties: newPropertiesView(theme),
		ontology:   newOntologyView(theme),
		watcher:    opts.Watcher,
		width:      defaultWidth,
		height:     defaultHeight,
	}
	if opts.Source != nil {
		m.overview.reset(opts.Source.Location())
	}
	m.buildings.reveal = opts.Reveal

	registry := tabs.NewRegistry()
	for _, t := range m.tabList() {
		if err := registry.Register(t); err != nil {
			debug.Log("ui: %v", err)
		}
	}
	m.nav = nav.NewController(ctx, registry)
	m.resize()

	initial := opts.InitialTab
	if initial == "" && opts.Reveal != "" {
		initial = TabBuildings
	}
	if initial == "" {
		initial = cfg.UI.DefaultTab
	}
	if _, err := registry.Lookup(initial); err != nil {
		initial = TabOverview
	}
	cmd, err := m.nav.SwitchTab(initial)
	if err != nil {
		m.setError(err)
	}
	m.initCmd = cmd
	return m
}

func (m Model) tabList() []tabs.Tab {
	ov, bv, ev, qv := m.overview, m.buildings, m.elements, m.query
	rv, pv, onv := m.reasoning, m.properties, m.ontology
	return []tabs.Tab{
		{
			Name:  TabOverview,
			Title: "Overview",
			View:  ov,
			Init:  loadOverviewCmd,
		},
		{
			Name:         TabBuildings,
			Title:        "Buildings",
			View:         bv,
			Init:         func(ctx *tabs.Context) tea.Cmd { return loadForestCmd(ctx, false) },
			CaptureExtra: bv.CaptureExtra,
			RestoreExtra: bv.RestoreExtra,
		},
		{
			Name:         TabElements,
			Title:        "Elements",
			View:         ev,
			Init:         func(ctx *tabs.Context) tea.Cmd { return ev.loadCmd(ctx.Source) },
			CaptureExtra: ev.CaptureExtra,
			RestoreExtra: ev.RestoreExtra,
		},
		{
			Name:  TabQuery,
			Title: "Query",
			View:  qv,
			Init: func(ctx *tabs.Context) tea.Cmd {
				qv.useTemplate(0, ctx.Source)
				return nil
			},
		},
		{
			Name:  TabReasoning,
			Title: "Reasoning",
			View:  rv,
		},
		{
			Name:  TabProperties,
			Title: "Properties",
			View:  pv,
			Init:  func(ctx *tabs.Context) tea.Cmd { return pv.loadPlantCmd(ctx.Source) },
		},
		{
			Name:  TabOntology,
			Title: "Ontology",
			View:  onv,
			Init:  func(ctx *tabs.Context) tea.Cmd { return onv.loadCmd(ctx.Source) },
		},
	}
}

// ActiveTab returns the shown tab.
func (m Model) ActiveTab() string {
	return m.nav.Active()
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.initCmd}
	if m.watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// Stop releases the watcher and closes the data source.
func (m Model) Stop() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.ctx.Source != nil {
		_ = m.ctx.Source.Close()
	}
}

func (m *Model) setStatus(s string) {
	m.statusMsg = s
	m.statusIsError = false
}

func (m *Model) setError(err error) {
	m.statusMsg = err.Error()
	m.statusIsError = true
}

func (m *Model) bodyHeight() int {
	return max(1, m.height-2)
}

func (m *Model) resize() {
	h := m.bodyHeight()
	m.overview.setSize(m.width, h)
	m.buildings.setSize(m.width, h)
	m.elements.setSize(m.width, h)
	m.query.setSize(m.width, h)
	m.reasoning.setSize(m.width, h)
	m.properties.setSize(m.width, h)
	m.ontology.setSize(m.width, h)
}

// capturing reports whether the active view has a focused input.
func (m Model) capturing() bool {
	switch m.nav.Active() {
	case TabElements:
		return m.elements.capturing()
	case TabQuery:
		return m.query.capturing()
	case TabProperties:
		return m.properties.capturing()
	case TabOntology:
		return m.ontology.capturing()
	}
	return false
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case nav.RestoreScrollMsg:
		m.nav.ApplyScroll(msg)
		return m, nil

	case overviewLoadedMsg:
		m.overview.apply(msg)
		return m, nil

	case forestLoadedMsg:
		diff, dropped := m.buildings.apply(msg)
		var notes []string
		if msg.Reload && msg.Err == nil {
			notes = append(notes, "Reloaded: "+diff.Summary())
		}
		if dropped > 0 {
			notes = append(notes, fmt.Sprintf("%d selected levels no longer exist", dropped))
		}
		if id := m.buildings.missing; id != "" {
			m.buildings.missing = ""
			notes = append(notes, "Node "+id+" not found")
		}
		if msg.Err != nil && msg.Reload {
			m.setError(fmt.Errorf("reload failed: %w", msg.Err))
		} else if len(notes) > 0 {
			m.setStatus(strings.Join(notes, "; "))
		}
		return m, m.buildings.detailCmd(m.ctx.Source)

	case detailLoadedMsg:
		m.buildings.applyDetail(msg)
		return m, nil

	case elementsLoadedMsg:
		m.elements.apply(msg)
		return m, nil

	case elementDetailMsg:
		m.elements.applyDetail(msg)
		return m, nil

	case queryResultMsg:
		m.query.apply(msg)
		return m, nil

	case reasoningMsg:
		if m.reasoning.apply(msg) && msg.Err == nil {
			m.setStatus(fmt.Sprintf("Reasoning inferred %s triples", count(msg.Result.TotalInferred)))
		}
		return m, nil

	case plantDataMsg:
		m.properties.applyPlant(msg)
		return m, nil

	case propertyResultMsg:
		m.properties.apply(msg)
		return m, nil

	case ontologyLoadedMsg:
		m.ontology.apply(msg)
		return m, nil

	case ontologyActionMsg:
		return m, m.ontology.applyAction(msg, m.ctx.Source)

	case FileChangedMsg:
		debug.Log("ui: source file changed")
		cmds = append(cmds, m.reload(true))
		if m.watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.watcher))
		}
		return m, tea.Batch(cmds...)

	case sourceSwitchedMsg:
		return m.switchSource(msg)
	}

	// Cursor blinks and the like go to the focused input.
	if m.capturing() {
		var cmd tea.Cmd
		switch m.nav.Active() {
		case TabElements:
			if m.elements.focused == fieldCategory {
				m.elements.category, cmd = m.elements.category.Update(msg)
			} else {
				m.elements.search, cmd = m.elements.search.Update(msg)
			}
		case TabQuery:
			m.query.editor, cmd = m.query.editor.Update(msg)
		case TabProperties:
			in := m.properties.input()
			*in, cmd = in.Update(msg)
		case TabOntology:
			if m.ontology.focused == fieldRules {
				m.ontology.rules, cmd = m.ontology.rules.Update(msg)
			} else {
				m.ontology.path, cmd = m.ontology.path.Update(msg)
			}
		}
		return m, cmd
	}
	return m, nil
}

// reload refetches the data of every tab that has been visited. report asks
// for a summary of hierarchy changes in the status line.
func (m *Model) reload(report bool) tea.Cmd {
	m.ctx.Categories.Invalidate()
	reg := m.nav.Registry()
	var cmds []tea.Cmd
	if reg.Initialized(TabOverview) {
		cmds = append(cmds, loadOverviewCmd(m.ctx))
	}
	if reg.Initialized(TabBuildings) {
		cmds = append(cmds, loadForestCmd(m.ctx, report))
	}
	if reg.Initialized(TabElements) {
		cmds = append(cmds, m.elements.loadCmd(m.ctx.Source))
	}
	if reg.Initialized(TabProperties) {
		cmds = append(cmds, m.properties.loadPlantCmd(m.ctx.Source))
	}
	if reg.Initialized(TabOntology) {
		cmds = append(cmds, m.ontology.loadCmd(m.ctx.Source))
	}
	return tea.Batch(cmds...)
}

func (m Model) switchSource(msg sourceSwitchedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setError(fmt.Errorf("cannot open %s: %w", msg.Name, msg.Err))
		return m, nil
	}
	if m.watcher != nil {
		m.watcher.Stop()
		m.watcher = nil
	}
	if old := m.ctx.Source; old != nil {
		_ = old.Close()
	}
	m.ctx.SetSource(msg.Source)

	m.overview.reset(msg.Source.Location())
	m.buildings.reset()
	m.elements.reset(m.cfg.UI.PageSize)
	m.query.reset()
	m.reasoning.reset()
	m.properties.reset()
	m.ontology.reset()

	cmds := []tea.Cmd{m.reload(false)}
	if w, err := StartWatcher(m.cfg, msg.Source); err != nil {
		debug.Log("ui: watcher for %s: %v", msg.Source.Location(), err)
	} else if w != nil {
		m.watcher = w
		cmds = append(cmds, WatchFileCmd(w))
	}
	m.setStatus("Switched to " + msg.Name)
	return m, tea.Batch(cmds...)
}

func (m Model) switchTab(name string) (tea.Model, tea.Cmd) {
	if name == m.nav.Active() {
		return m, nil
	}
	revisit := m.nav.Registry().Initialized(name)
	cmd, err := m.nav.SwitchTab(name)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	cmds := []tea.Cmd{cmd}
	if revisit {
		switch name {
		case TabBuildings:
			cmds = append(cmds, m.buildings.detailCmd(m.ctx.Source))
		case TabElements:
			cmds = append(cmds, m.elements.afterRestore(m.ctx.Source))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.capturing() {
		return m.forwardKey(msg)
	}
	m.statusMsg = ""

	switch key {
	case "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "tab":
		return m.switchTab(m.nav.Cycle(1))
	case "shift+tab":
		return m.switchTab(m.nav.Cycle(-1))
	case "f1", "f2", "f3", "f4", "f5", "f6", "f7":
		names := m.nav.Registry().Names()
		i := int(key[1] - '1')
		if i < len(names) {
			return m.switchTab(names[i])
		}
		return m, nil
	case "R":
		m.setStatus("Refreshing…")
		return m, m.reload(true)
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		n, _ := strconv.Atoi(key)
		fav := m.cfg.FavoriteSource(n)
		if fav == nil {
			m.setStatus(fmt.Sprintf("No source on key %d", n))
			return m, nil
		}
		m.setStatus("Opening " + fav.Name + "…")
		return m, openSourceCmd(m.cfg, fav.Name, fav.Location)
	}
	return m.forwardKey(msg)
}

// forwardKey hands a key to the active view.
func (m Model) forwardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	src := m.ctx.Source
	switch m.nav.Active() {
	case TabOverview:
		return m, m.overview.update(msg)
	case TabBuildings:
		cmd, status := m.buildings.update(msg, src)
		if status != "" {
			m.setStatus(status)
		}
		return m, cmd
	case TabElements:
		return m, m.elements.update(msg, m.ctx)
	case TabQuery:
		return m, m.query.update(msg, src)
	case TabReasoning:
		return m, m.reasoning.update(msg, src)
	case TabProperties:
		return m, m.properties.update(msg, src)
	case TabOntology:
		return m, m.ontology.update(msg, src)
	}
	return m, nil
}

func (m Model) renderTabBar() string {
	t := m.theme
	title := t.Renderer.NewStyle().Foreground(t.Primary).Bold(true).Render("bimnav")
	parts := []string{title}
	reg := m.nav.Registry()
	for i, name := range reg.Names() {
		tab, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		label := fmt.Sprintf("F%d %s", i+1, tab.Title)
		if m.nav.Visible(name) {
			parts = append(parts, t.TabActive.Render(label))
		} else {
			parts = append(parts, t.TabInactive.Render(label))
		}
	}
	bar := strings.Join(parts, " ")
	if src := m.ctx.Source; src != nil {
		loc := t.MutedText.Render(truncate(src.Location(), max(10, m.width-lipgloss.Width(bar)-2)))
		gap := max(1, m.width-lipgloss.Width(bar)-lipgloss.Width(loc))
		bar += strings.Repeat(" ", gap) + loc
	}
	return bar
}

func (m Model) renderFooter() string {
	t := m.theme
	if m.statusMsg != "" {
		if m.statusIsError {
			return t.ErrorText.Render(truncate(m.statusMsg, m.width))
		}
		return t.MutedText.Render(truncate(m.statusMsg, m.width))
	}
	var hints []string
	switch m.nav.Active() {
	case TabBuildings:
		hints = []string{"←→", "drill", "↑↓", "select", "g", "top", "y", "copy id"}
	case TabElements:
		hints = []string{"↑↓", "select", "n/p", "page", "f", "category", "c", "next category", "/", "search", "enter", "details"}
	case TabQuery:
		hints = []string{"i", "edit", "[ ]", "template", "ctrl+r", "run", "esc", "stop editing"}
	case TabReasoning:
		hints = []string{"r", "run inference", "↑↓", "scroll"}
	case TabProperties:
		hints = []string{"g", "GlobalId", "/", "key", "v", "value", "enter", "search", "p", "plant data"}
	case TabOntology:
		hints = []string{"e", "edit rules", "ctrl+s", "save", "o", "schema file", "x", "export", "m", "import", "a", "apply"}
	default:
		hints = []string{"↑↓", "scroll"}
	}
	hints = append(hints, "tab", "next tab", "R", "refresh", "?", "help", "q", "quit")
	return RenderKeyHint(hints...)
}

func (m Model) renderHelp() string {
	t := m.theme
	heading := t.Renderer.NewStyle().Foreground(t.Primary).Bold(true)
	lines := []string{
		heading.Render("Keys"),
		"",
		RenderKeyHint("tab", "next tab", "shift+tab", "previous tab", "F1-F7", "jump to tab"),
		RenderKeyHint("1-9", "switch to favorite source", "R", "refresh", "q", "quit"),
		"",
		heading.Render("Buildings"),
		RenderKeyHint("→ / enter", "drill in", "← / backspace", "back up", "g / esc", "clear selection"),
		RenderKeyHint("pgup/pgdn", "scroll details", "y", "copy global id"),
		"",
		heading.Render("Elements"),
		RenderKeyHint("n / p", "next and previous page", "f", "edit category", "c", "cycle category"),
		RenderKeyHint("/", "search this page", "enter", "show properties", "esc", "close"),
		"",
		heading.Render("Query"),
		RenderKeyHint("i", "edit", "[ / ]", "previous and next template", "ctrl+r", "run"),
		"",
		heading.Render("Reasoning"),
		RenderKeyHint("r", "run inference and count inferred classes"),
		"",
		heading.Render("Properties"),
		RenderKeyHint("g", "look up a GlobalId", "/ and v", "search by key and value", "p", "reload plant data"),
		"",
		heading.Render("Ontology"),
		RenderKeyHint("e", "edit rules", "ctrl+s", "save rules", "o", "set schema file"),
		RenderKeyHint("x", "export schema", "m", "import schema", "a", "apply schema", "r", "reload"),
		"",
		t.MutedText.Render("Press any key to close"),
	}
	return t.ColumnFocus.Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func (m Model) View() string {
	defer metrics.Timer(metrics.Render)()

	body := ""
	switch m.nav.Active() {
	case TabOverview:
		body = m.overview.View()
	case TabBuildings:
		body = m.buildings.View()
	case TabElements:
		body = m.elements.View()
	case TabQuery:
		body = m.query.View()
	case TabReasoning:
		body = m.reasoning.View()
	case TabProperties:
		body = m.properties.View()
	case TabOntology:
		body = m.ontology.View()
	}
	h := m.bodyHeight()
	if m.showHelp {
		body = lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center, m.renderHelp())
	}
	body = lipgloss.NewStyle().Height(h).MaxHeight(h).MaxWidth(m.width).Render(body)
	return m.renderTabBar() + "\n" + body + "\n" + m.renderFooter()
}
