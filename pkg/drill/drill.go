// Package drill implements Miller-column navigation over a hierarchy forest.
//
// A Machine holds one selection path from a root toward a leaf. Column 0
// always lists the roots; column i lists the children of the node selected in
// column i-1. Everything the UI draws (columns, breadcrumb) is derived from
// the selection and the forest on demand, so the Machine never fetches data.
package drill

import (
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// RootLabel is the first breadcrumb entry.
const RootLabel = "Root"

// Selection is an ordered path of node ids, one per column.
type Selection []string

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	if s == nil {
		return nil
	}
	out := make(Selection, len(s))
	copy(out, s)
	return out
}

// Column is one Miller column.
type Column struct {
	Level    int
	ParentID string // empty for the root column
	Items    []*model.Node
	Selected string // id selected in this column, empty if none
}

// SelectedIndex returns the position of the selected item, or -1.
func (c Column) SelectedIndex() int {
	for i, n := range c.Items {
		if n.ID == c.Selected {
			return i
		}
	}
	return -1
}

// Crumb is one breadcrumb entry. The root crumb has Level -1 and no ID.
type Crumb struct {
	Level int
	ID    string
	Name  string
}

// Ticket stamps an asynchronous request issued for a selection.
type Ticket struct {
	Generation uint64
	NodeID     string
}

// Machine is the drill-down selection state machine. It is not safe for
// concurrent use; all calls happen on the UI update loop.
type Machine struct {
	forest     *hierarchy.Forest
	selection  Selection
	generation uint64
	onChange   func()
}

// New returns a machine over forest with an empty selection.
func New(forest *hierarchy.Forest) *Machine {
	return &Machine{forest: forest}
}

// OnChange registers the render callback fired whenever the visible columns
// or the breadcrumb may have changed.
func (m *Machine) OnChange(fn func()) {
	m.onChange = fn
}

func (m *Machine) changed() {
	m.generation++
	if m.onChange != nil {
		m.onChange()
	}
}

// Forest returns the forest the machine navigates.
func (m *Machine) Forest() *hierarchy.Forest {
	return m.forest
}

// Selection returns a copy of the current selection.
func (m *Machine) Selection() Selection {
	return m.selection.Clone()
}

// Depth returns the number of selected levels.
func (m *Machine) Depth() int {
	return len(m.selection)
}

// Selected returns the deepest selected node.
func (m *Machine) Selected() (*model.Node, bool) {
	if len(m.selection) == 0 {
		return nil, false
	}
	return m.forest.Node(m.selection[len(m.selection)-1])
}

// Select truncates the selection to level entries and appends id. It reports
// whether id is a child of the node selected at level-1 (a root for level 0).
// When it is not, the selection is left truncated at level and the column at
// level shows nothing selected.
func (m *Machine) Select(level int, id string) bool {
	if level < 0 || level > len(m.selection) {
		debug.Log("drill: select level %d out of range (depth %d)", level, len(m.selection))
		return false
	}
	parent := ""
	if level > 0 {
		parent = m.selection[level-1]
	}
	m.selection = m.selection[:level]
	ok := m.forest.IsChildOf(id, parent)
	if ok {
		m.selection = append(m.selection, id)
	} else {
		debug.Log("drill: %q is not a child of %q", id, parent)
	}
	m.changed()
	return ok
}

// JumpTo truncates the selection to level+1 entries. Level -1 returns to the
// root column. Levels at or beyond the current depth leave the path intact.
func (m *Machine) JumpTo(level int) {
	if level < -1 {
		level = -1
	}
	if level+1 < len(m.selection) {
		m.selection = m.selection[:level+1]
	}
	m.changed()
}

// Reset clears the selection.
func (m *Machine) Reset() {
	m.selection = m.selection[:0]
	m.changed()
}

// SetForest swaps in a rebuilt forest and drops every selected id from the
// first one that no longer resolves as a child of its predecessor. It returns
// how many entries were dropped.
func (m *Machine) SetForest(forest *hierarchy.Forest) int {
	m.forest = forest
	dropped := m.reconcile()
	m.changed()
	return dropped
}

// Restore replaces the selection with path, keeping only its resolvable
// prefix. It returns how many entries were dropped.
func (m *Machine) Restore(path Selection) int {
	m.selection = path.Clone()
	dropped := m.reconcile()
	m.changed()
	return dropped
}

// Reveal selects the full path from a root down to id.
func (m *Machine) Reveal(id string) bool {
	path := m.forest.PathTo(id)
	if path == nil {
		return false
	}
	m.selection = path
	m.changed()
	return true
}

func (m *Machine) reconcile() int {
	parent := ""
	for i, id := range m.selection {
		if !m.forest.IsChildOf(id, parent) {
			dropped := len(m.selection) - i
			debug.Log("drill: dropping %d stale selection entries from %q", dropped, id)
			m.selection = m.selection[:i]
			return dropped
		}
		parent = id
	}
	return 0
}

// Columns derives the visible Miller columns. The root column is always
// present; a further column follows every selected node that has children.
func (m *Machine) Columns() []Column {
	cols := []Column{{Level: 0, Items: m.forest.Children("")}}
	if len(m.selection) > 0 {
		cols[0].Selected = m.selection[0]
	}
	for i, id := range m.selection {
		children := m.forest.Children(id)
		if len(children) == 0 {
			break
		}
		col := Column{Level: i + 1, ParentID: id, Items: children}
		if i+1 < len(m.selection) {
			col.Selected = m.selection[i+1]
		}
		cols = append(cols, col)
	}
	return cols
}

// Breadcrumb returns RootLabel followed by the display name of every
// selected node.
func (m *Machine) Breadcrumb() []Crumb {
	crumbs := make([]Crumb, 0, len(m.selection)+1)
	crumbs = append(crumbs, Crumb{Level: -1, Name: RootLabel})
	for i, id := range m.selection {
		name := id
		if n, ok := m.forest.Node(id); ok {
			name = n.DisplayName()
		}
		crumbs = append(crumbs, Crumb{Level: i, ID: id, Name: name})
	}
	return crumbs
}

// Generation returns the current generation. It increases on every
// selection change.
func (m *Machine) Generation() uint64 {
	return m.generation
}

// Ticket stamps a request for the currently selected node.
func (m *Machine) Ticket() Ticket {
	t := Ticket{Generation: m.generation}
	if n, ok := m.Selected(); ok {
		t.NodeID = n.ID
	}
	return t
}

// Current reports whether a response issued under t still matches the
// selection. Responses for superseded selections should be discarded.
func (m *Machine) Current(t Ticket) bool {
	return t.Generation == m.generation
}
