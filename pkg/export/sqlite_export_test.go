package export

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/bimnav/internal/datasource"
)

func TestSQLiteExport_RoundTrip(t *testing.T) {
	fx := openFixture(t)
	ctx := context.Background()
	out := filepath.Join(fx.dir, "snapshot", "plant.db")

	sum, err := NewSQLiteExporter(fx.src).Export(ctx, out)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if sum.Nodes != 4 || sum.Elements != 3 {
		t.Errorf("expected 4 nodes and 3 elements, got %+v", sum)
	}
	if sum.Properties != 2 {
		t.Errorf("expected 2 properties, got %d", sum.Properties)
	}

	db, err := datasource.OpenSQLite(out, datasource.Options{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	rows, err := db.ListRows(ctx, "", 0)
	if err != nil || len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d err=%v", len(rows), err)
	}
	rec, err := db.LookupDetail(ctx, "bld")
	if err != nil {
		t.Fatalf("LookupDetail: %v", err)
	}
	pset, ok := rec["Pset_BuildingCommon"].(map[string]any)
	if !ok {
		t.Fatalf("expected property set, got %v", rec)
	}
	if pset["YearOfConstruction"] != "1998" {
		t.Errorf("expected YearOfConstruction 1998, got %v", pset["YearOfConstruction"])
	}

	st, err := db.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalElements != 3 || st.Buildings != 1 || st.Storeys != 2 || st.TotalTriples != 77 {
		t.Errorf("unexpected statistics %+v", st)
	}
}

func TestSQLiteExport_Meta(t *testing.T) {
	fx := openFixture(t)
	out := filepath.Join(fx.dir, "plant.db")
	if _, err := NewSQLiteExporter(fx.src).Export(context.Background(), out); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	db, err := sql.Open("sqlite", out)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	meta := map[string]string{}
	rs, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()
	for rs.Next() {
		var k, v string
		if err := rs.Scan(&k, &v); err != nil {
			t.Fatal(err)
		}
		meta[k] = v
	}
	if meta["source_kind"] != "jsonl" {
		t.Errorf("expected source_kind jsonl, got %q", meta["source_kind"])
	}
	if meta["node_count"] != "4" || meta["element_count"] != "3" {
		t.Errorf("unexpected counts in meta: %v", meta)
	}
	if meta["schema_version"] != "1" {
		t.Errorf("expected schema_version 1, got %q", meta["schema_version"])
	}
	if meta["generated_at"] == "" {
		t.Error("expected generated_at")
	}
}

func TestSQLiteExport_ReplacesExistingFile(t *testing.T) {
	fx := openFixture(t)
	ctx := context.Background()
	out := filepath.Join(fx.dir, "plant.db")
	exp := NewSQLiteExporter(fx.src)
	for i := 0; i < 2; i++ {
		sum, err := exp.Export(ctx, out)
		if err != nil {
			t.Fatalf("export %d: %v", i, err)
		}
		if sum.Nodes != 4 {
			t.Errorf("export %d: expected 4 nodes, got %d", i, sum.Nodes)
		}
	}
}

func TestSQLiteExport_MaxElementsAndNoProperties(t *testing.T) {
	fx := openFixture(t)
	exp := NewSQLiteExporter(fx.src)
	exp.Config.PageSize = 2
	exp.Config.MaxElements = 2
	exp.Config.WithProperties = false

	sum, err := exp.Export(context.Background(), filepath.Join(fx.dir, "small.db"))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if sum.Elements != 2 {
		t.Errorf("expected 2 elements, got %d", sum.Elements)
	}
	if sum.Properties != 0 {
		t.Errorf("expected no properties, got %d", sum.Properties)
	}
}

func TestSQLiteExport_SourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := datasource.NewHTTPSource(srv.URL, datasource.Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewSQLiteExporter(src).Export(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, datasource.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSQLiteExport_NoSource(t *testing.T) {
	if _, err := (&SQLiteExporter{}).Export(context.Background(), "x.db"); err == nil {
		t.Error("expected error without a source")
	}
}
