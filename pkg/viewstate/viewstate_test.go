package viewstate

import (
	"reflect"
	"testing"
)

// fakeContainer is an in-memory form with scroll regions.
type fakeContainer struct {
	fields  map[string]FieldValue
	order   []string
	page    int
	regions map[string]Offset
}

func newFake() *fakeContainer {
	return &fakeContainer{
		fields: map[string]FieldValue{
			"category": {Kind: FieldSelect, Value: "IfcWall"},
			"search":   {Kind: FieldText, Value: "core"},
			"exact":    {Kind: FieldCheckbox, Checked: true},
			"query":    {Kind: FieldTextArea, Value: "SELECT ?s WHERE { ?s ?p ?o }"},
		},
		order:   []string{"category", "search", "exact", "query", ""},
		page:    7,
		regions: map[string]Offset{"table": {Top: 12, Left: 3}, "detail": {Top: 4}},
	}
}

func (f *fakeContainer) FieldIDs() []string { return f.order }

func (f *fakeContainer) Field(id string) (FieldValue, bool) {
	v, ok := f.fields[id]
	return v, ok
}

func (f *fakeContainer) SetField(id string, v FieldValue) bool {
	if _, ok := f.fields[id]; !ok {
		return false
	}
	f.fields[id] = v
	return true
}

func (f *fakeContainer) PageOffset() int     { return f.page }
func (f *fakeContainer) SetPageOffset(o int) { f.page = o }

func (f *fakeContainer) RegionIDs() []string {
	ids := make([]string, 0, len(f.regions))
	for id := range f.regions {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeContainer) RegionOffset(id string) (Offset, bool) {
	o, ok := f.regions[id]
	return o, ok
}

func (f *fakeContainer) SetRegionOffset(id string, o Offset) bool {
	if _, ok := f.regions[id]; !ok {
		return false
	}
	f.regions[id] = o
	return true
}

func TestCaptureThenRestoreIsIdentity(t *testing.T) {
	c := newFake()
	before := map[string]FieldValue{}
	for k, v := range c.fields {
		before[k] = v
	}

	values := CaptureFormState(c)
	if len(values) != 4 {
		t.Errorf("expected 4 captured fields (empty id skipped), got %d", len(values))
	}
	if skipped := RestoreFormState(c, values); skipped != 0 {
		t.Errorf("expected no skipped fields, got %d", skipped)
	}
	if !reflect.DeepEqual(c.fields, before) {
		t.Errorf("expected fields unchanged, got %v", c.fields)
	}
}

func TestRestoreSkipsUnknownIDs(t *testing.T) {
	c := newFake()
	values := map[string]FieldValue{
		"search":  {Kind: FieldText, Value: "slab"},
		"removed": {Kind: FieldText, Value: "x"},
	}
	if skipped := RestoreFormState(c, values); skipped != 1 {
		t.Errorf("expected 1 skipped field, got %d", skipped)
	}
	if c.fields["search"].Value != "slab" {
		t.Errorf("expected search restored, got %q", c.fields["search"].Value)
	}

	skipped := RestoreScrollState(c, 2, map[string]Offset{"gone": {Top: 1}, "table": {Top: 9}})
	if skipped != 1 {
		t.Errorf("expected 1 skipped region, got %d", skipped)
	}
	if c.page != 2 || c.regions["table"].Top != 9 {
		t.Errorf("unexpected scroll state page=%d table=%+v", c.page, c.regions["table"])
	}
}

func TestStoreSaveAndRestore(t *testing.T) {
	s := NewStore()
	c := newFake()
	s.Save("elements", c, Extra{Cursor: &Cursor{Page: 3, PageSize: 50}, Path: []string{"a", "b"}})

	c.fields["search"] = FieldValue{Kind: FieldText, Value: "changed"}
	c.page = 0
	c.regions["table"] = Offset{}

	if n := s.RestoreForm("elements", c); n != 0 {
		t.Errorf("expected 0 skipped, got %d", n)
	}
	if n := s.RestoreScroll("elements", c); n != 0 {
		t.Errorf("expected 0 skipped, got %d", n)
	}
	if c.fields["search"].Value != "core" {
		t.Errorf("expected search %q, got %q", "core", c.fields["search"].Value)
	}
	if c.page != 7 || c.regions["table"] != (Offset{Top: 12, Left: 3}) {
		t.Errorf("unexpected scroll after restore: page=%d table=%+v", c.page, c.regions["table"])
	}

	st, ok := s.Lookup("elements")
	if !ok {
		t.Fatal("expected state for elements")
	}
	extra := st.Extra()
	if extra.Cursor == nil || extra.Cursor.Offset() != 150 {
		t.Errorf("expected cursor offset 150, got %+v", extra.Cursor)
	}
	extra.Path[0] = "mutated"
	if st.Path[0] != "a" {
		t.Error("expected Extra to return a copy of the path")
	}
}

func TestStoreLazyAndMonotonic(t *testing.T) {
	s := NewStore()
	if _, ok := s.Lookup("query"); ok {
		t.Error("expected no state before first reference")
	}
	st := s.Get("query")
	if st.Initialized {
		t.Error("expected new state to be uninitialized")
	}
	s.MarkInitialized("query")
	s.Save("query", nil, Extra{})
	if !s.Get("query").Initialized {
		t.Error("expected initialized flag to survive a save")
	}
	if !reflect.DeepEqual(s.Names(), []string{"query"}) {
		t.Errorf("unexpected names %v", s.Names())
	}
	if n := s.RestoreForm("missing", newFake()); n != 0 {
		t.Errorf("expected restore of unknown tab to be a no-op, got %d", n)
	}
}
