package datasource

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOntologyAPI(t *testing.T) (*HTTPSource, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/properties/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "IsExternal" || q.Get("limit") != "50" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"key":"IsExternal","count":1,"results":[{"elem_name":"Wall A","pset_name":"Pset_WallCommon","val":true}]}`)
	})
	mux.HandleFunc("/api/properties/plant-data", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_property_sets":12,"plant_property_sets":3,
			"plant_pset_details":[{"pset_name":"SP3DPipe","prop_count":40}]}`)
	})
	mux.HandleFunc("/api/reasoning", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		io.WriteString(w, `{"custom_rules_triples":10,"rdfs_triples":5,"total_inferred":15,
			"total_triples":115,"elapsed":0.25,"rules_applied":["walls","slabs"]}`)
	})
	mux.HandleFunc("/api/ontology/types", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"name":"Pump","parent_class":"MEPElement","label":"Pump"}]`)
	})
	mux.HandleFunc("/api/ontology/links", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"name":"feeds","domain":"Pump","range_class":"Pipe","inverse_name":"fedBy"}]`)
	})
	mux.HandleFunc("/api/ontology/rules", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" rules")
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"rules":{"Pump":["pump"]}`) {
				http.Error(w, "bad body "+string(body), http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"updated":true}`)
			return
		}
		io.WriteString(w, `{"Wall":["IfcWall","wall"],"Pump":["pump"]}`)
	})
	mux.HandleFunc("/api/ontology/export", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"schema":"{\"types\":[]}"}`)
	})
	mux.HandleFunc("/api/ontology/import", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" import")
		io.WriteString(w, `{"imported":true}`)
	})
	mux.HandleFunc("/api/ontology/apply", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"triples_added":7,"total_triples":122}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return src, &calls
}

func TestHTTPSourcePropertySearch(t *testing.T) {
	src, _ := newOntologyAPI(t)
	ctx := context.Background()

	res, err := src.SearchProperties(ctx, PropertyQuery{Key: " IsExternal "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 1 || len(res.Results) != 1 {
		t.Fatalf("expected one hit, got %+v", res)
	}
	if hit := res.Results[0]; hit.Element != "Wall A" || hit.PSet != "Pset_WallCommon" || hit.Value != "true" {
		t.Errorf("unexpected hit %+v", hit)
	}

	if _, err := src.SearchProperties(ctx, PropertyQuery{Key: "  "}); err == nil {
		t.Error("expected error for empty key")
	}

	pd, err := src.PlantData(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pd.TotalPropertySets != 12 || pd.PlantPropertySets != 3 || len(pd.Details) != 1 || pd.Details[0].Count != 40 {
		t.Errorf("unexpected plant data %+v", pd)
	}
}

func TestHTTPSourceReasoning(t *testing.T) {
	src, _ := newOntologyAPI(t)
	res, err := src.RunReasoning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalInferred != 15 || res.Before() != 100 || len(res.RulesApplied) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHTTPSourceOntologyEditor(t *testing.T) {
	src, calls := newOntologyAPI(t)
	ctx := context.Background()

	types, err := src.ObjectTypes(ctx)
	if err != nil || len(types) != 1 || types[0].ParentClass != "MEPElement" {
		t.Errorf("unexpected types %+v err=%v", types, err)
	}
	links, err := src.LinkTypes(ctx)
	if err != nil || len(links) != 1 || links[0].RangeClass != "Pipe" {
		t.Errorf("unexpected links %+v err=%v", links, err)
	}

	rules, err := src.ClassificationRules(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rules.Classes(); len(got) != 2 || got[0] != "Pump" {
		t.Errorf("expected sorted classes, got %v", got)
	}
	if err := src.SaveClassificationRules(ctx, map[string][]string{"Pump": {"pump"}}); err != nil {
		t.Errorf("unexpected save error: %v", err)
	}

	schema, err := src.ExportSchema(ctx)
	if err != nil || schema != `{"types":[]}` {
		t.Errorf("unexpected schema %q err=%v", schema, err)
	}
	if err := src.ImportSchema(ctx, " "); err == nil {
		t.Error("expected error importing an empty schema")
	}
	if err := src.ImportSchema(ctx, schema); err != nil {
		t.Errorf("unexpected import error: %v", err)
	}

	applied, err := src.ApplySchema(ctx)
	if err != nil || applied.TriplesAdded != 7 {
		t.Errorf("unexpected apply result %+v err=%v", applied, err)
	}

	want := []string{"GET rules", "PUT rules", "POST import"}
	if strings.Join(*calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected calls %v, got %v", want, *calls)
	}
}

func TestFileSourcesLackReasoning(t *testing.T) {
	src, err := OpenJSONL(writeExport(t, testExport), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := AsReasoner(src); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := AsOntologyEditor(src); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := InferredTypes(context.Background(), src); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := AsPropertyIndex(nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without a source, got %v", err)
	}
}

func TestSQLiteSourcePropertySearch(t *testing.T) {
	path := createTestDB(t)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = db.Exec(`INSERT INTO properties (global_id, pset, name, value) VALUES
		('gw2', 'Pset_WallCommon', 'IsExternal', 'false'),
		('gw1', 'SP3DWallData', 'Weight', '12'),
		('gw1', 'SP3DWallData', 'Material', 'Steel')`)
	db.Close()
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	src, err := OpenSQLite(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	ctx := context.Background()

	res, err := src.SearchProperties(ctx, PropertyQuery{Key: "IsExternal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 2 || res.Results[0].Element != "Wall A" || res.Results[1].Value != "false" {
		t.Errorf("unexpected search %+v", res)
	}

	res, _ = src.SearchProperties(ctx, PropertyQuery{Key: "IsExternal", Value: "false"})
	if res.Count != 1 || res.Results[0].Element != "Wall B" {
		t.Errorf("expected value filter to keep Wall B, got %+v", res)
	}

	res, _ = src.SearchProperties(ctx, PropertyQuery{Key: "YearOfConstruction"})
	if res.Count != 1 || res.Results[0].Element != "Hall" {
		t.Errorf("expected node name for a building property, got %+v", res)
	}

	pd, err := src.PlantData(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pd.TotalPropertySets != 4 || pd.PlantPropertySets != 1 {
		t.Errorf("unexpected plant data %+v", pd)
	}
	if len(pd.Details) != 1 || pd.Details[0].Name != "SP3DWallData" || pd.Details[0].Count != 2 {
		t.Errorf("unexpected plant details %+v", pd.Details)
	}
}

func TestJSONLSourcePropertySearch(t *testing.T) {
	export := testExport +
		`{"kind":"property","global_id":"gw1","pset":"Pset_WallCommon","name":"IsExternal","value":true}
{"kind":"property","global_id":"gw1","pset":"SmartPlant_Data","name":"Tag","value":"W-01"}
{"kind":"property","global_id":"gx","pset":"SmartPlant_Data","name":"Tag","value":"X-09"}
`
	src, err := OpenJSONL(writeExport(t, export), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	res, err := src.SearchProperties(ctx, PropertyQuery{Key: "Tag"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 2 || res.Results[0].Element != "Wall A" || res.Results[1].Element != "gx" {
		t.Errorf("expected element name then bare global id, got %+v", res)
	}

	res, _ = src.SearchProperties(ctx, PropertyQuery{Key: "IsExternal", Value: "true"})
	if res.Count != 1 || res.Results[0].PSet != "Pset_WallCommon" {
		t.Errorf("unexpected value search %+v", res)
	}

	res, _ = src.SearchProperties(ctx, PropertyQuery{Key: "Tag", Limit: 1})
	if res.Count != 1 {
		t.Errorf("expected limit to cap results, got %+v", res)
	}

	pd, _ := src.PlantData(ctx)
	if pd.TotalPropertySets != 4 || pd.PlantPropertySets != 2 || pd.Details[0].Count != 2 {
		t.Errorf("unexpected plant data %+v", pd)
	}
}
