// Package viewstate captures and restores the ephemeral UI state of a tab:
// form field values, scroll offsets, pagination cursor and drill-down path.
//
// State lives in memory for the session only. A tab's content region exposes
// itself through the Form and Scroller interfaces; ids the content no longer
// knows are skipped on restore.
package viewstate

import (
	"sort"

	"github.com/vanderheijden86/bimnav/pkg/debug"
)

// FieldKind distinguishes what part of a field carries its state.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldTextArea
	FieldSelect
	FieldCheckbox
)

// FieldValue is the captured state of one identifiable input.
type FieldValue struct {
	Kind    FieldKind `json:"kind"`
	Value   string    `json:"value,omitempty"`
	Checked bool      `json:"checked,omitempty"`
}

// Offset is the scroll position of a region.
type Offset struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// Form is the set of identifiable inputs of a content region.
type Form interface {
	FieldIDs() []string
	Field(id string) (FieldValue, bool)
	// SetField applies v and reports whether id is known.
	SetField(id string, v FieldValue) bool
}

// Scroller exposes the page scroll offset and every independently
// scrollable region of a content region, keyed by a stable region id.
type Scroller interface {
	PageOffset() int
	SetPageOffset(offset int)
	RegionIDs() []string
	RegionOffset(id string) (Offset, bool)
	// SetRegionOffset applies o and reports whether id is known.
	SetRegionOffset(id string, o Offset) bool
}

// Container is a content region whose state can be captured.
type Container interface {
	Form
	Scroller
}

// Cursor is a pagination position.
type Cursor struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset returns the index of the first item on the page.
func (c Cursor) Offset() int {
	return c.Page * c.PageSize
}

// Extra is the tab-specific state contributed by a capture hook.
type Extra struct {
	Cursor *Cursor  `json:"cursor,omitempty"`
	Path   []string `json:"path,omitempty"`
}

// TabState is everything remembered about one tab.
type TabState struct {
	Initialized bool                  `json:"initialized"`
	PageOffset  int                   `json:"page_offset"`
	Regions     map[string]Offset     `json:"regions,omitempty"`
	Fields      map[string]FieldValue `json:"fields,omitempty"`
	Cursor      *Cursor               `json:"cursor,omitempty"`
	Path        []string              `json:"path,omitempty"`
	Saves       int                   `json:"saves"`
}

// Extra returns the captured hook state.
func (s *TabState) Extra() Extra {
	e := Extra{}
	if s.Cursor != nil {
		c := *s.Cursor
		e.Cursor = &c
	}
	if s.Path != nil {
		e.Path = append([]string(nil), s.Path...)
	}
	return e
}

// Store holds a TabState per tab name. Not safe for concurrent use.
type Store struct {
	tabs map[string]*TabState
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tabs: make(map[string]*TabState)}
}

// Get returns the state for name, creating it on first reference.
func (s *Store) Get(name string) *TabState {
	st, ok := s.tabs[name]
	if !ok {
		st = &TabState{}
		s.tabs[name] = st
	}
	return st
}

// Lookup returns the state for name without creating it.
func (s *Store) Lookup(name string) (*TabState, bool) {
	st, ok := s.tabs[name]
	return st, ok
}

// Names returns the tabs that have state, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.tabs))
	for n := range s.tabs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarkInitialized sets the initialized flag. The flag never goes back.
func (s *Store) MarkInitialized(name string) {
	s.Get(name).Initialized = true
}

// Save captures c and extra into the state for name.
func (s *Store) Save(name string, c Container, extra Extra) {
	st := s.Get(name)
	if c != nil {
		st.Fields = CaptureFormState(c)
		st.PageOffset, st.Regions = CaptureScroll(c)
	}
	st.Cursor = extra.Cursor
	st.Path = extra.Path
	st.Saves++
	debug.Log("viewstate: saved %s (%d fields, %d regions, page=%d)",
		name, len(st.Fields), len(st.Regions), st.PageOffset)
}

// RestoreForm reapplies saved field values for name. It returns the number
// of saved fields that no longer exist.
func (s *Store) RestoreForm(name string, c Container) int {
	st, ok := s.tabs[name]
	if !ok || c == nil {
		return 0
	}
	return RestoreFormState(c, st.Fields)
}

// RestoreScroll reapplies saved scroll offsets for name. It returns the
// number of saved regions that no longer exist.
func (s *Store) RestoreScroll(name string, c Container) int {
	st, ok := s.tabs[name]
	if !ok || c == nil {
		return 0
	}
	return RestoreScrollState(c, st.PageOffset, st.Regions)
}

// CaptureFormState reads every identifiable field of f.
func CaptureFormState(f Form) map[string]FieldValue {
	ids := f.FieldIDs()
	values := make(map[string]FieldValue, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if v, ok := f.Field(id); ok {
			values[id] = v
		}
	}
	return values
}

// RestoreFormState writes values back into f, skipping unknown ids.
func RestoreFormState(f Form, values map[string]FieldValue) (skipped int) {
	for _, id := range sortedKeys(values) {
		if !f.SetField(id, values[id]) {
			debug.Log("viewstate: field %q no longer exists", id)
			skipped++
		}
	}
	return skipped
}

// CaptureScroll reads the page offset and every region offset of sc.
func CaptureScroll(sc Scroller) (int, map[string]Offset) {
	ids := sc.RegionIDs()
	regions := make(map[string]Offset, len(ids))
	for _, id := range ids {
		if o, ok := sc.RegionOffset(id); ok {
			regions[id] = o
		}
	}
	return sc.PageOffset(), regions
}

// RestoreScrollState writes offsets back into sc, skipping unknown regions.
func RestoreScrollState(sc Scroller, page int, regions map[string]Offset) (skipped int) {
	sc.SetPageOffset(page)
	for _, id := range sortedKeys(regions) {
		if !sc.SetRegionOffset(id, regions[id]) {
			debug.Log("viewstate: scroll region %q no longer exists", id)
			skipped++
		}
	}
	return skipped
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
