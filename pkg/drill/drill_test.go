package drill

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// sampleForest: site -> {b1 -> {l1, l2}, b2}
func sampleForest() *hierarchy.Forest {
	return hierarchy.Build([]model.Row{
		{ID: "site", Name: "Site"},
		{ID: "b1", Name: "Building 1", ParentID: "site"},
		{ID: "b2", Name: "Building 2", ParentID: "site"},
		{ID: "l1", Name: "Level 1", ParentID: "b1"},
		{ID: "l2", Name: "Level 2", ParentID: "b1"},
	}, hierarchy.Options{})
}

func columnIDs(cols []Column) [][]string {
	out := make([][]string, len(cols))
	for i, c := range cols {
		for _, n := range c.Items {
			out[i] = append(out[i], n.ID)
		}
	}
	return out
}

func TestEmptySelectionShowsRoots(t *testing.T) {
	m := New(sampleForest())
	cols := m.Columns()
	if len(cols) != 1 {
		t.Fatalf("expected only the root column, got %d", len(cols))
	}
	if got := columnIDs(cols)[0]; !reflect.DeepEqual(got, []string{"site"}) {
		t.Errorf("expected [site], got %v", got)
	}
	if cols[0].SelectedIndex() != -1 {
		t.Error("expected nothing selected")
	}
}

func TestEmptyForest(t *testing.T) {
	m := New(hierarchy.Build(nil, hierarchy.Options{}))
	cols := m.Columns()
	if len(cols) != 1 || len(cols[0].Items) != 0 {
		t.Errorf("expected one empty column, got %+v", cols)
	}
	if m.Select(0, "anything") {
		t.Error("expected select on empty forest to fail")
	}
}

func TestSelectDrillsDown(t *testing.T) {
	m := New(sampleForest())
	if !m.Select(0, "site") || !m.Select(1, "b1") {
		t.Fatal("expected valid selections")
	}
	got := columnIDs(m.Columns())
	want := [][]string{{"site"}, {"b1", "b2"}, {"l1", "l2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	m.Select(2, "l2")
	cols := m.Columns()
	if len(cols) != 3 {
		t.Errorf("expected leaf selection to add no column, got %d", len(cols))
	}
	if cols[2].Selected != "l2" || cols[2].SelectedIndex() != 1 {
		t.Errorf("expected l2 selected in column 2, got %q", cols[2].Selected)
	}
	if n, _ := m.Selected(); n.ID != "l2" {
		t.Errorf("expected l2 as deepest selection, got %s", n.ID)
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")
	first := columnIDs(m.Columns())
	m.Select(1, "b1")
	second := columnIDs(m.Columns())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical columns, got %v then %v", first, second)
	}
	if !reflect.DeepEqual(m.Selection(), Selection{"site", "b1"}) {
		t.Errorf("unexpected selection %v", m.Selection())
	}
}

func TestSelectTruncatesDeeperLevels(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")
	m.Select(2, "l1")

	m.Select(1, "b2")
	if !reflect.DeepEqual(m.Selection(), Selection{"site", "b2"}) {
		t.Errorf("expected levels >= 2 discarded, got %v", m.Selection())
	}
	if len(m.Columns()) != 2 {
		t.Errorf("expected b2 (a leaf) to end the columns, got %d", len(m.Columns()))
	}
}

func TestSelectNotFound(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")

	if m.Select(1, "l1") {
		t.Error("expected l1 to be rejected at level 1")
	}
	if !reflect.DeepEqual(m.Selection(), Selection{"site"}) {
		t.Errorf("expected selection truncated to level 1, got %v", m.Selection())
	}
	if m.Select(5, "b1") {
		t.Error("expected out-of-range level to be rejected")
	}
	if m.Select(-1, "site") {
		t.Error("expected negative level to be rejected")
	}
}

func TestJumpToAndReset(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")
	m.Select(2, "l1")

	m.JumpTo(0)
	if !reflect.DeepEqual(m.Selection(), Selection{"site"}) {
		t.Errorf("expected [site], got %v", m.Selection())
	}
	m.JumpTo(4)
	if m.Depth() != 1 {
		t.Errorf("expected jump beyond depth to keep selection, got %v", m.Selection())
	}
	m.JumpTo(-1)
	if m.Depth() != 0 {
		t.Errorf("expected jump to root to clear selection, got %v", m.Selection())
	}

	m.Select(0, "site")
	m.Reset()
	if m.Depth() != 0 || len(m.Columns()) != 1 {
		t.Error("expected reset to restore root view")
	}
}

func TestBreadcrumb(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")
	crumbs := m.Breadcrumb()
	names := make([]string, len(crumbs))
	for i, c := range crumbs {
		names[i] = c.Name
	}
	if !reflect.DeepEqual(names, []string{RootLabel, "Site", "Building 1"}) {
		t.Errorf("unexpected breadcrumb %v", names)
	}
	if crumbs[0].Level != -1 || crumbs[2].Level != 1 {
		t.Errorf("unexpected crumb levels: %+v", crumbs)
	}

	m.JumpTo(crumbs[1].Level)
	if !reflect.DeepEqual(m.Selection(), Selection{"site"}) {
		t.Errorf("expected breadcrumb jump to keep [site], got %v", m.Selection())
	}
}

func TestSetForestDropsStaleSuffix(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")
	m.Select(1, "b1")
	m.Select(2, "l1")

	rebuilt := hierarchy.Build([]model.Row{
		{ID: "site", Name: "Site"},
		{ID: "b1", Name: "Building 1", ParentID: "site"},
	}, hierarchy.Options{})
	if dropped := m.SetForest(rebuilt); dropped != 1 {
		t.Errorf("expected 1 stale entry dropped, got %d", dropped)
	}
	if !reflect.DeepEqual(m.Selection(), Selection{"site", "b1"}) {
		t.Errorf("expected resolvable prefix kept, got %v", m.Selection())
	}

	moved := hierarchy.Build([]model.Row{
		{ID: "site", Name: "Site"},
		{ID: "b1", Name: "Building 1"},
	}, hierarchy.Options{})
	m.SetForest(moved)
	if !reflect.DeepEqual(m.Selection(), Selection{"site"}) {
		t.Errorf("expected b1 dropped once it is no longer under site, got %v", m.Selection())
	}
}

func TestRestoreAndReveal(t *testing.T) {
	m := New(sampleForest())
	if dropped := m.Restore(Selection{"site", "b1", "gone"}); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if !reflect.DeepEqual(m.Selection(), Selection{"site", "b1"}) {
		t.Errorf("unexpected restored selection %v", m.Selection())
	}
	if !m.Reveal("l2") {
		t.Fatal("expected reveal of known id")
	}
	if !reflect.DeepEqual(m.Selection(), Selection{"site", "b1", "l2"}) {
		t.Errorf("unexpected revealed selection %v", m.Selection())
	}
	if m.Reveal("nope") {
		t.Error("expected reveal of unknown id to fail")
	}
}

func TestOnChangeFires(t *testing.T) {
	m := New(sampleForest())
	calls := 0
	m.OnChange(func() { calls++ })
	m.Select(0, "site")
	m.JumpTo(-1)
	m.Reset()
	if calls != 3 {
		t.Errorf("expected 3 render callbacks, got %d", calls)
	}
}

type detailResponse struct {
	ticket Ticket
	name   string
}

func TestGatedDetailRace(t *testing.T) {
	m := New(sampleForest())
	m.Select(0, "site")

	m.Select(1, "b1")
	a := detailResponse{ticket: m.Ticket(), name: "Building 1"}
	m.Select(1, "b2")
	b := detailResponse{ticket: m.Ticket(), name: "Building 2"}

	displayed := ""
	for _, resp := range []detailResponse{b, a} {
		if m.Current(resp.ticket) {
			displayed = resp.name
		}
	}
	if displayed != "Building 2" {
		t.Errorf("expected latest selection B to be displayed, got %q", displayed)
	}
	if a.ticket.NodeID != "b1" || b.ticket.NodeID != "b2" {
		t.Errorf("unexpected ticket node ids: %+v %+v", a.ticket, b.ticket)
	}
}

func TestPropertySelectionStaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		rows := make([]model.Row, n)
		for i := range rows {
			p := rapid.IntRange(-1, i-1).Draw(t, fmt.Sprintf("p%d", i))
			rows[i] = model.Row{ID: fmt.Sprintf("n%d", i), Name: fmt.Sprintf("n%d", i)}
			if p >= 0 {
				rows[i].ParentID = fmt.Sprintf("n%d", p)
			}
		}
		forest := hierarchy.Build(rows, hierarchy.Options{})
		m := New(forest)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			switch rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("op%d", s)) {
			case 0:
				level := rapid.IntRange(0, m.Depth()).Draw(t, fmt.Sprintf("level%d", s))
				id := fmt.Sprintf("n%d", rapid.IntRange(0, n-1).Draw(t, fmt.Sprintf("id%d", s)))
				m.Select(level, id)
			case 1:
				m.JumpTo(rapid.IntRange(-1, m.Depth()).Draw(t, fmt.Sprintf("jump%d", s)))
			case 2:
				m.Reset()
			}

			parent := ""
			for i, id := range m.Selection() {
				if !forest.IsChildOf(id, parent) {
					t.Fatalf("selection[%d]=%s is not a child of %q", i, id, parent)
				}
				parent = id
			}
			if len(m.Breadcrumb()) != m.Depth()+1 {
				t.Fatalf("breadcrumb length %d for depth %d", len(m.Breadcrumb()), m.Depth())
			}
		}
	})
}
