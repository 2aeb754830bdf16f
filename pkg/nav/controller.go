// Package nav switches between dashboard tabs. It saves the outgoing tab's
// view state, runs a tab's initializer on its first visit and restores the
// saved state on later visits.
package nav

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/tabs"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

// Context is the session state handed to tab initializers.
type Context = tabs.Context

// RestoreScrollMsg asks the UI to reapply a tab's scroll offsets once the tab
// has been drawn. Switch identifies the tab switch that issued it.
type RestoreScrollMsg struct {
	Tab    string
	Switch uint64
}

// Controller owns the active tab and the per-tab view state.
// Like the rest of the UI state it is only touched from Update.
type Controller struct {
	ctx      *Context
	registry *tabs.Registry
	store    *viewstate.Store
	active   string
	switches uint64
}

// NewController returns a controller with no active tab.
func NewController(ctx *Context, registry *tabs.Registry) *Controller {
	return &Controller{
		ctx:      ctx,
		registry: registry,
		store:    viewstate.NewStore(),
	}
}

// Context returns the shared session state.
func (c *Controller) Context() *Context { return c.ctx }

// Registry returns the tab registry.
func (c *Controller) Registry() *tabs.Registry { return c.registry }

// Store returns the per-tab view state.
func (c *Controller) Store() *viewstate.Store { return c.store }

// Active returns the name of the shown tab, or "" before the first switch.
func (c *Controller) Active() string { return c.active }

// Visible reports whether name is the shown tab.
func (c *Controller) Visible(name string) bool { return name != "" && name == c.active }

// SwitchTab makes name the active tab. Switching to the active tab does
// nothing. The returned command, if any, either loads a first-visit tab or
// delivers a RestoreScrollMsg for a revisited one.
func (c *Controller) SwitchTab(name string) (tea.Cmd, error) {
	if name == c.active {
		return nil, nil
	}
	next, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	defer metrics.Timer(metrics.TabSwitch)()

	if c.active != "" {
		c.Save()
	}
	debug.Log("nav: %s -> %s", c.active, name)
	c.active = name
	c.switches++

	cmd, ran, err := c.registry.Ensure(name, c.ctx)
	if err != nil {
		return nil, err
	}
	if ran {
		c.store.MarkInitialized(name)
		return cmd, nil
	}

	if skipped := c.store.RestoreForm(name, next.View); skipped > 0 {
		debug.Log("nav: %s: skipped %d stale fields", name, skipped)
	}
	if next.RestoreExtra != nil {
		if st, ok := c.store.Lookup(name); ok {
			next.RestoreExtra(st.Extra())
		}
	}
	msg := RestoreScrollMsg{Tab: name, Switch: c.switches}
	return func() tea.Msg { return msg }, nil
}

// Save captures the active tab's view state now.
func (c *Controller) Save() {
	if c.active == "" {
		return
	}
	tab, err := c.registry.Lookup(c.active)
	if err != nil {
		return
	}
	var extra viewstate.Extra
	if tab.CaptureExtra != nil {
		extra = tab.CaptureExtra()
	}
	c.store.Save(c.active, tab.View, extra)
}

// ApplyScroll restores scroll offsets for msg if its tab is still the one
// being shown. It reports whether anything was applied.
func (c *Controller) ApplyScroll(msg RestoreScrollMsg) bool {
	if msg.Tab != c.active || msg.Switch != c.switches {
		debug.Log("nav: dropping scroll restore for %s (switch %d, now %d)", msg.Tab, msg.Switch, c.switches)
		return false
	}
	tab, err := c.registry.Lookup(msg.Tab)
	if err != nil {
		return false
	}
	if skipped := c.store.RestoreScroll(msg.Tab, tab.View); skipped > 0 {
		debug.Log("nav: %s: skipped %d stale scroll regions", msg.Tab, skipped)
	}
	return true
}

// Cycle returns the tab delta positions away from the active one, wrapping
// around. It returns "" when no tabs are registered.
func (c *Controller) Cycle(delta int) string {
	names := c.registry.Names()
	if len(names) == 0 {
		return ""
	}
	idx := 0
	for i, n := range names {
		if n == c.active {
			idx = i
			break
		}
	}
	idx = ((idx+delta)%len(names) + len(names)) % len(names)
	return names[idx]
}
