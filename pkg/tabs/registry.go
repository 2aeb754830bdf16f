// Package tabs maps tab names to their initializer and state hooks and
// tracks whether each tab has been initialized.
package tabs

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/config"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/refcache"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

var (
	ErrUnknownTab   = errors.New("unknown tab")
	ErrDuplicateTab = errors.New("tab already registered")
)

// Lifecycle is the initialization state of a tab. It only moves forward.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Initializing
	Initialized
)

func (l Lifecycle) String() string {
	switch l {
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return "uninitialized"
	}
}

// Context is the session-wide state shared with tab initializers: the data
// source, the reference caches and the configuration.
type Context struct {
	Source     datasource.Source
	Config     config.Config
	Categories *refcache.List[model.CategoryStat]
}

// NewContext builds a context over src with a fresh category cache.
func NewContext(src datasource.Source, cfg config.Config) *Context {
	c := &Context{Source: src, Config: cfg}
	c.Categories = refcache.New("categories", func(ctx context.Context) ([]model.CategoryStat, error) {
		if c.Source == nil {
			return nil, fmt.Errorf("no data source: %w", datasource.ErrUnavailable)
		}
		return c.Source.Categories(ctx)
	})
	return c
}

// SetSource swaps the data source and invalidates the reference caches.
func (c *Context) SetSource(src datasource.Source) {
	c.Source = src
	c.Categories.Invalidate()
}

// Tab is the registration contract for one view.
type Tab struct {
	Name  string
	Title string
	// View is the tab's content region. Nil means nothing to capture.
	View viewstate.Container
	// Init runs once, on the first visit, and returns the command that loads
	// the tab's data.
	Init func(ctx *Context) tea.Cmd
	// CaptureExtra contributes the pagination cursor and drill path.
	CaptureExtra func() viewstate.Extra
	// RestoreExtra reapplies what CaptureExtra returned.
	RestoreExtra func(viewstate.Extra)
}

// Registry holds tabs in registration order.
type Registry struct {
	tabs  map[string]*Tab
	order []string
	state map[string]Lifecycle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tabs:  make(map[string]*Tab),
		state: make(map[string]Lifecycle),
	}
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t Tab) error {
	if t.Name == "" {
		return fmt.Errorf("tab has no name")
	}
	if _, ok := r.tabs[t.Name]; ok {
		return fmt.Errorf("%s: %w", t.Name, ErrDuplicateTab)
	}
	if t.Title == "" {
		t.Title = t.Name
	}
	tab := t
	r.tabs[t.Name] = &tab
	r.order = append(r.order, t.Name)
	r.state[t.Name] = Uninitialized
	return nil
}

// Lookup returns the tab named name.
func (r *Registry) Lookup(name string) (*Tab, error) {
	t, ok := r.tabs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownTab)
	}
	return t, nil
}

// Names returns tab names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tabs.
func (r *Registry) Len() int {
	return len(r.order)
}

// State returns the lifecycle state of name.
func (r *Registry) State(name string) Lifecycle {
	return r.state[name]
}

// Initialized reports whether name has been initialized.
func (r *Registry) Initialized(name string) bool {
	return r.state[name] == Initialized
}

// Ensure runs the initializer of name if it has never run. It reports
// whether the initializer ran on this call.
func (r *Registry) Ensure(name string, ctx *Context) (tea.Cmd, bool, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, false, err
	}
	if r.state[name] != Uninitialized {
		return nil, false, nil
	}
	r.state[name] = Initializing
	debug.Log("tabs: initializing %s", name)
	var cmd tea.Cmd
	if t.Init != nil {
		cmd = t.Init(ctx)
	}
	r.state[name] = Initialized
	return cmd, true, nil
}
