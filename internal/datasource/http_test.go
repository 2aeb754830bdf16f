package datasource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"healthy","triples":4200}`)
	})
	mux.HandleFunc("/api/statistics", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_triples":4200,"total_elements":3,"total_categories":2,"buildings":1,"storeys":2,
			"categories":[{"category":"Wall","count":2},{"category":"Slab","count":1}]}`)
	})
	mux.HandleFunc("/api/statistics/categories", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"category":"Wall","count":2},{"category":"Slab","count":1}]`)
	})
	mux.HandleFunc("/api/hierarchy", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"parent":"urn:site","parentName":"Site","parentType":"http://x/schema#Site",
			 "child":"urn:bld","childName":"Hall","childType":"http://x/schema#Building"},
			{"parent":"urn:prj","parentName":"Plant","parentType":"http://x/schema#Project",
			 "child":"urn:site","childName":"Site","childType":"http://x/schema#Site"},
			{"parent":"urn:bld","parentName":"Hall","parentType":"http://x/schema#Building",
			 "child":"urn:l1","childName":"Level 1","childType":"http://x/schema#BuildingStorey"}
		]`)
	})
	mux.HandleFunc("/api/elements", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "50" || q.Get("offset") != "100" || q.Get("category") != "Wall" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		io.WriteString(w, `[{"uri":"urn:e1","name":"Wall A","category":"Wall","original_type":"IfcWall"}]`)
	})
	mux.HandleFunc("/api/properties/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"global_id":"g1","property_sets":[{"name":"Pset_WallCommon","properties":{"IsExternal":"true"}}]}`)
	})
	mux.HandleFunc("/api/sparql", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"query"`) {
			http.Error(w, "no query", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"status":"success","results":[{"cat":"Wall","num":2},{"cat":"Slab","num":1}],"count":2}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSourceEndpoints(t *testing.T) {
	srv := newTestAPI(t)
	src, err := NewHTTPSource(srv.URL+"/", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	h, err := src.Health(ctx)
	if err != nil || !h.Healthy() || h.Triples != 4200 {
		t.Errorf("unexpected health %+v err=%v", h, err)
	}

	st, err := src.Statistics(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.TotalElements != 3 || len(st.Categories) != 2 {
		t.Errorf("unexpected statistics %+v", st)
	}

	cats, err := src.Categories(ctx)
	if err != nil || len(cats) != 2 || cats[0].Category != "Wall" {
		t.Errorf("unexpected categories %+v err=%v", cats, err)
	}

	elems, err := src.Elements(ctx, ElementQuery{Category: "Wall", Offset: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elems) != 1 || elems[0].Name != "Wall A" {
		t.Errorf("unexpected elements %+v", elems)
	}

	res, err := src.Query(ctx, "SELECT ?cat WHERE {}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0]["num"] != "2" {
		t.Errorf("unexpected query result %+v", res)
	}
	if strings.Join(res.Columns, ",") != "cat,num" {
		t.Errorf("expected sorted columns cat,num, got %v", res.Columns)
	}
}

func TestHTTPSourceFlattensEdgeHierarchy(t *testing.T) {
	srv := newTestAPI(t)
	src, _ := NewHTTPSource(srv.URL, Options{})
	rows, err := src.ListRows(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byID := map[string]string{}
	types := map[string]string{}
	for _, r := range rows {
		byID[r.ID] = r.ParentID
		types[r.ID] = string(r.Type)
	}
	if len(byID) != 4 || len(rows) != 4 {
		t.Fatalf("expected 4 merged rows, got %d rows: %+v", len(rows), rows)
	}
	if byID["urn:prj"] != "" || byID["urn:site"] != "urn:prj" || byID["urn:bld"] != "urn:site" || byID["urn:l1"] != "urn:bld" {
		t.Errorf("unexpected parent links %v", byID)
	}
	if types["urn:l1"] != "BuildingStorey" {
		t.Errorf("expected namespace stripped from type, got %q", types["urn:l1"])
	}

	scoped, err := src.ListRows(context.Background(), "urn:bld", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scoped) != 2 {
		t.Errorf("expected scope to keep urn:bld and urn:l1, got %+v", scoped)
	}

	agg, err := src.LookupAggregate(context.Background(), "urn:site")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg["nodes"] != 3 {
		t.Errorf("expected 3 nodes under site, got %v", agg["nodes"])
	}
}

func TestFlattenNestedHierarchy(t *testing.T) {
	raw := []map[string]any{{
		"uri": "p", "name": "Plant", "node_type": "Project",
		"children": []any{
			map[string]any{"uri": "b", "name": "Hall", "node_type": "Building", "element_count": float64(12),
				"children": []any{map[string]any{"uri": "l", "name": "L1", "node_type": "BuildingStorey"}}},
		},
	}}
	rows := flattenHierarchy(raw)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].ParentID != "p" || rows[2].ParentID != "b" || rows[1].ElementCount != 12 {
		t.Errorf("unexpected flattened rows %+v", rows)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	srv := newTestAPI(t)
	src, _ := NewHTTPSource(srv.URL, Options{})
	ctx := context.Background()

	if _, err := src.LookupDetail(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := src.Elements(ctx, ElementQuery{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for HTTP 400, got %v", err)
	}

	rec, err := src.LookupDetail(ctx, "urn:bld")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rec["Pset_WallCommon"]; !ok {
		t.Errorf("expected property set in detail, got %v", rec)
	}

	srv.Close()
	if _, err := src.Health(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after server closed, got %v", err)
	}

	if _, err := NewHTTPSource("::not a url", Options{}); err == nil {
		t.Error("expected invalid endpoint error")
	}
}

func TestHTTPSourceNamelessRowIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"A","name":"Area1"},{"id":"B","parent":"A"}]`)
	}))
	defer srv.Close()
	src, _ := NewHTTPSource(srv.URL, Options{})

	forest, rows, err := LoadForest(context.Background(), src, "", hierarchy.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "" {
		t.Fatalf("expected the nameless row to reach the builder with an empty name, got %+v", rows)
	}
	if _, ok := forest.Node("B"); ok {
		t.Error("expected nameless row B to be skipped")
	}
	if forest.Report.Malformed != 1 {
		t.Errorf("expected 1 malformed row, got %d", forest.Report.Malformed)
	}
	if forest.Len() != 1 {
		t.Errorf("expected 1 node, got %d", forest.Len())
	}
}

func TestMergeEdgeRowsTakesLaterName(t *testing.T) {
	rows := flattenHierarchy([]map[string]any{
		{"parent": "p", "child": "c", "childName": "Old"},
		{"parent": "c", "parentName": "Unnamed", "child": "d", "childName": "Door"},
		{"parent": "q", "parentName": "Quay", "child": "p", "childName": "Plant"},
	})
	names := map[string]string{}
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	if names["c"] != "Unnamed" {
		t.Errorf("expected the later name Unnamed to replace Old, got %q", names["c"])
	}
	if names["p"] != "Plant" {
		t.Errorf("expected later name to fill the nameless parent row, got %q", names["p"])
	}
	if names["d"] != "Door" || names["q"] != "Quay" {
		t.Errorf("unexpected names %v", names)
	}
}
