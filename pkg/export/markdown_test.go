package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

func TestGenerateMarkdown(t *testing.T) {
	fx := openFixture(t)
	md := GenerateMarkdown(ReportInput{
		Title:  "Plant report",
		Source: fx.src.Location(),
		Health: model.Health{Status: "healthy", Triples: 77},
		Statistics: model.Statistics{
			TotalTriples:  77,
			TotalElements: 3,
			Categories: []model.CategoryStat{
				{Category: "Wall", Count: 2},
				{Category: "Slab", Count: 1},
			},
		},
		Forest: fx.forest,
	})

	for _, want := range []string{
		"# Plant report",
		"| Triples | 77 |",
		"| Hierarchy nodes | 4 |",
		"| Wall | 2 | ██░░ 67% |",
		"## Hierarchy",
		"- **Plant**",
		"    - **Level 1**",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected report to contain %q\n%s", want, md)
		}
	}
}

func TestGenerateMarkdown_OutlineDepth(t *testing.T) {
	fx := openFixture(t)
	md := GenerateMarkdown(ReportInput{Forest: fx.forest, OutlineDepth: 2})
	if !strings.Contains(md, "**Hall**") {
		t.Error("expected level 2 in outline")
	}
	if strings.Contains(md, "**Level 1**") {
		t.Error("expected level 3 to be cut from outline")
	}
	if !strings.Contains(md, "# BIM Report") {
		t.Error("expected default title")
	}
}

func TestGenerateMarkdown_ReportsDroppedRows(t *testing.T) {
	rows := []model.Row{
		{ID: "a", Name: "A"},
		{ID: "a", Name: "A again"},
		{ID: "", Name: "no id"},
	}
	md := GenerateMarkdown(ReportInput{Forest: hierarchy.Build(rows, hierarchy.Options{})})
	if !strings.Contains(md, "1 malformed") || !strings.Contains(md, "1 duplicate ids") {
		t.Errorf("expected build report note, got\n%s", md)
	}
}

func TestSaveMarkdownToFile(t *testing.T) {
	fx := openFixture(t)
	out := filepath.Join(fx.dir, "reports", "plant.md")
	if err := SaveMarkdownToFile(ReportInput{Forest: fx.forest}, out); err != nil {
		t.Fatalf("SaveMarkdownToFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "## Hierarchy") {
		t.Errorf("unexpected file content:\n%s", data)
	}
}

func TestNodeMarkdown(t *testing.T) {
	n := &model.Node{ID: "bld", Name: "Hall", Type: model.TypeBuilding, GlobalID: "gb", Level: 1, ChildCount: 2, DescendantCount: 2}
	detail := model.Record{
		"id":                  "bld",
		"Pset_BuildingCommon": map[string]any{"YearOfConstruction": "1998", "Note": "a|b"},
	}
	aggregate := model.Record{
		"nodes":       3,
		"mean_fanout": 0.6667,
		"by_type":     map[string]any{"BuildingStorey": 2, "Building": 1},
	}
	md := NodeMarkdown(n, detail, aggregate)
	for _, want := range []string{
		"## Hall",
		"| GlobalId | `gb` |",
		"### Subtree",
		"| nodes | 3 |",
		"| mean_fanout | 0.67 |",
		"### Pset_BuildingCommon",
		"| YearOfConstruction | 1998 |",
		`| Note | a\|b |`,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected node markdown to contain %q\n%s", want, md)
		}
	}

	if got := NodeMarkdown(nil, nil, nil); !strings.Contains(got, "Nothing selected") {
		t.Errorf("expected placeholder, got %q", got)
	}
	if got := NodeMarkdown(n, model.Record{"id": "bld"}, nil); !strings.Contains(got, "No property sets") {
		t.Errorf("expected no-psets note, got %q", got)
	}
}

func TestElementMarkdown(t *testing.T) {
	e := model.Element{URI: "urn:w1", Name: "Wall A", Category: "Wall", OriginalType: "IfcWallStandardCase", GlobalID: "gw1"}
	md := ElementMarkdown(e, model.Record{"Pset_WallCommon": map[string]any{"IsExternal": true}})
	for _, want := range []string{"## Wall A", "| IFC type | IfcWallStandardCase |", "### Pset_WallCommon", "| IsExternal | true |"} {
		if !strings.Contains(md, want) {
			t.Errorf("expected element markdown to contain %q\n%s", want, md)
		}
	}
	if strings.Count(md, "## Wall A") != 1 {
		t.Errorf("expected a single header, got\n%s", md)
	}
}

func TestBarChart(t *testing.T) {
	tests := map[float64]string{-1: "░░░░", 0.3: "█░░░", 0.5: "██░░", 1: "████", 2: "████"}
	for v, want := range tests {
		if got := barChart(v); got != want {
			t.Errorf("barChart(%v): expected %q, got %q", v, want, got)
		}
	}
}
