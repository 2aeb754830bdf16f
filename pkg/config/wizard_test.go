package config

import (
	"path/filepath"
	"testing"
)

func TestValidateLocation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind, loc string
		ok        bool
	}{
		{KindAPI, "http://localhost:8000", true},
		{KindAPI, "plant.db", false},
		{KindSQLite, "plant.db", true},
		{KindSQLite, "plant.jsonl", false},
		{KindJSONL, "plant.ndjson", true},
		{KindJSONL, dir, true},
		{KindAPI, dir, false},
		{KindJSONL, "  ", false},
	}
	for _, tt := range tests {
		err := ValidateLocation(tt.kind)(tt.loc)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateLocation(%s)(%q): expected ok=%v, got err=%v", tt.kind, tt.loc, tt.ok, err)
		}
	}
}

func TestValidateNonNegative(t *testing.T) {
	for _, s := range []string{"", "0", "12", " 3 "} {
		if err := ValidateNonNegative(s); err != nil {
			t.Errorf("expected %q to be valid, got %v", s, err)
		}
	}
	for _, s := range []string{"-1", "x", "1.5"} {
		if err := ValidateNonNegative(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestWizardAnswersApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources = []NamedSource{{Name: "remote", Location: "https://bim.example.com"}}
	cfg.SetFavorite(1, "remote")

	a := WizardAnswers{
		Kind:       KindSQLite,
		Location:   "/data/plant.db",
		Name:       "plant",
		MaxDepth:   "4",
		PageSize:   "100",
		DefaultTab: "buildings",
		Favorite:   true,
	}
	got, err := a.Apply(cfg)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got.Source != "/data/plant.db" {
		t.Errorf("expected source /data/plant.db, got %q", got.Source)
	}
	if got.Hierarchy.MaxDepth != 4 || got.UI.PageSize != 100 {
		t.Errorf("expected depth 4 and page size 100, got %d and %d", got.Hierarchy.MaxDepth, got.UI.PageSize)
	}
	if got.UI.DefaultTab != "buildings" {
		t.Errorf("expected default tab buildings, got %q", got.UI.DefaultTab)
	}
	if s := got.FindSource("plant"); s == nil || s.Location != "/data/plant.db" {
		t.Errorf("expected named source plant, got %+v", s)
	}
	if got.Favorites[1] != "remote" || got.Favorites[2] != "plant" {
		t.Errorf("expected plant on the first free slot, got %v", got.Favorites)
	}

	// Re-applying keeps a single entry and the same slot.
	a.Location = "/data/plant-v2.db"
	again, err := a.Apply(got)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if len(again.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(again.Sources))
	}
	if again.FindSource("plant").Location != "/data/plant-v2.db" {
		t.Errorf("expected updated location, got %q", again.FindSource("plant").Location)
	}
	if again.Favorites[2] != "plant" || len(again.Favorites) != 2 {
		t.Errorf("expected favorites unchanged, got %v", again.Favorites)
	}
}

func TestWizardAnswersApplyRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	_, err := WizardAnswers{Kind: KindSQLite, Location: "https://x", MaxDepth: "1"}.Apply(cfg)
	if err == nil {
		t.Error("expected mismatched kind to be rejected")
	}
	_, err = WizardAnswers{Kind: KindJSONL, Location: "a.jsonl", MaxDepth: "-2"}.Apply(cfg)
	if err == nil {
		t.Error("expected negative depth to be rejected")
	}
}

func TestAnswersFromPrefills(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = filepath.Join("exports", "plant.jsonl")
	cfg.Hierarchy.MaxDepth = 3
	a := answersFrom(cfg)
	if a.Kind != KindJSONL {
		t.Errorf("expected jsonl kind, got %q", a.Kind)
	}
	if a.MaxDepth != "3" || a.PageSize != "50" || a.DefaultTab != "overview" {
		t.Errorf("unexpected prefill: %+v", a)
	}
}
