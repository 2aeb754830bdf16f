package datasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		loc  string
		want Kind
		err  bool
	}{
		{"http://localhost:8000", KindHTTP, false},
		{"HTTPS://bim.example.com/api", KindHTTP, false},
		{"plant.db", KindSQLite, false},
		{"/data/plant.SQLITE3", KindSQLite, false},
		{"export.jsonl", KindJSONL, false},
		{"export.ndjson", KindJSONL, false},
		{"export.csv", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		got, err := DetectKind(tt.loc)
		if (err != nil) != tt.err {
			t.Errorf("DetectKind(%q): expected err=%v, got %v", tt.loc, tt.err, err)
		}
		if got != tt.want {
			t.Errorf("DetectKind(%q): expected %q, got %q", tt.loc, tt.want, got)
		}
	}
}

func TestDescribeAndOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bimnav.jsonl"), []byte(testExport), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Describe(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindJSONL || !d.Local() || d.Size == 0 {
		t.Errorf("unexpected descriptor %+v", d)
	}
	if !strings.Contains(d.String(), "jsonl") {
		t.Errorf("expected kind in description, got %q", d.String())
	}

	src, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	if src.Kind() != KindJSONL {
		t.Errorf("expected jsonl source, got %s", src.Kind())
	}

	if _, err := Open(filepath.Join(dir, "missing.db"), Options{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for missing file, got %v", err)
	}
}

func TestLoadForest(t *testing.T) {
	src, err := OpenJSONL(writeExport(t, testExport), Options{})
	if err != nil {
		t.Fatal(err)
	}
	forest, rows, err := LoadForest(context.Background(), src, "", hierarchy.Options{MaxDepth: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected all 3 rows returned, got %d", len(rows))
	}
	if forest.Len() != 2 || forest.Report.TooDeep != 1 {
		t.Errorf("expected depth bound to drop level 1, got len=%d report=%+v", forest.Len(), forest.Report)
	}
}

func TestScopeRows(t *testing.T) {
	rows := []model.Row{
		{ID: "a", Name: "A", Path: "a"},
		{ID: "a/b", Name: "B", Path: "a/b"},
		{ID: "a/b/c", Name: "C", Path: "a/b/c"},
		{ID: "x", Name: "X", Path: "x"},
	}
	got := ScopeRows(rows, "a/b", "")
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	if !reflect.DeepEqual(ids, []string{"a/b", "a/b/c"}) {
		t.Errorf("unexpected scoped ids %v", ids)
	}
	if len(ScopeRows(rows, "", "")) != 4 {
		t.Error("expected empty scope to keep everything")
	}
	if ScopeRows(rows, "zzz", "") != nil {
		t.Error("expected unknown scope to keep nothing")
	}
}

func TestDiffRows(t *testing.T) {
	old := []model.Row{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B", ParentID: "a"},
		{ID: "c", Name: "C", ParentID: "a"},
	}
	updated := []model.Row{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B2", ParentID: "a"},
		{ID: "d", Name: "D", ParentID: "b"},
	}
	d := DiffRows(old, updated)
	if !d.HasChanges() {
		t.Fatal("expected changes")
	}
	if !reflect.DeepEqual(d.Added, []string{"d"}) || !reflect.DeepEqual(d.Removed, []string{"c"}) {
		t.Errorf("unexpected added/removed %v %v", d.Added, d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Field != "name" || d.Changed[0].New != "B2" {
		t.Errorf("unexpected changes %+v", d.Changed)
	}
	if got := d.Summary(); got != "1 added, 1 removed, 1 changed (3 -> 3 nodes)" {
		t.Errorf("unexpected summary %q", got)
	}

	same := DiffRows(old, old)
	if same.HasChanges() || same.Summary() != "no changes (3 nodes)" {
		t.Errorf("expected no changes, got %q", same.Summary())
	}
}
