package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.UI.DefaultTab != "overview" {
		t.Errorf("expected default tab 'overview', got %q", cfg.UI.DefaultTab)
	}
	if cfg.UI.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.UI.PageSize)
	}
	if cfg.Hierarchy.MaxDepth != 0 {
		t.Errorf("expected unbounded max depth, got %d", cfg.Hierarchy.MaxDepth)
	}
	if cfg.HTTP.Timeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %s", cfg.HTTP.Timeout)
	}
	if !cfg.Watch.IsEnabled() {
		t.Error("expected watch enabled by default")
	}
	if cfg.Favorites == nil {
		t.Error("expected favorites map to be initialized")
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.UI.DefaultTab != "overview" {
		t.Errorf("expected default config, got tab %q", cfg.UI.DefaultTab)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
source: ~/bim/plant.db

sources:
  - name: plant
    location: ~/bim/plant.db
  - name: remote
    location: https://bim.example.com

favorites:
  1: plant
  2: remote

hierarchy:
  max_depth: 3
  path_delimiter: "|"
  scope: urn:site

ui:
  default_tab: buildings
  page_size: 25

http:
  timeout: 5s

watch:
  enabled: false
  debounce: 1s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	home, _ := os.UserHomeDir()
	expectedPath := filepath.Join(home, "bim/plant.db")
	if cfg.Source != expectedPath {
		t.Errorf("expected expanded source %q, got %q", expectedPath, cfg.Source)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Location != expectedPath {
		t.Errorf("expected expanded location %q, got %q", expectedPath, cfg.Sources[0].Location)
	}
	if cfg.Sources[1].Location != "https://bim.example.com" {
		t.Errorf("expected URL preserved, got %q", cfg.Sources[1].Location)
	}
	if cfg.Favorites[2] != "remote" {
		t.Errorf("expected favorite 2 = 'remote', got %q", cfg.Favorites[2])
	}
	if cfg.Hierarchy.MaxDepth != 3 || cfg.Hierarchy.PathDelimiter != "|" || cfg.Hierarchy.Scope != "urn:site" {
		t.Errorf("unexpected hierarchy config %+v", cfg.Hierarchy)
	}
	if cfg.UI.DefaultTab != "buildings" || cfg.UI.PageSize != 25 {
		t.Errorf("unexpected ui config %+v", cfg.UI)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.HTTP.Timeout)
	}
	if cfg.Watch.IsEnabled() || cfg.Watch.Debounce != time.Second {
		t.Errorf("unexpected watch config %+v", cfg.Watch)
	}
}

func TestLoadFrom_RepairsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
hierarchy:
  max_depth: -4
  path_delimiter: ""
ui:
  page_size: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hierarchy.MaxDepth != 0 || cfg.Hierarchy.PathDelimiter != "/" || cfg.UI.PageSize != 50 {
		t.Errorf("expected defaults restored, got %+v %+v", cfg.Hierarchy, cfg.UI)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Source = "/data/plant.jsonl"
	cfg.Sources = []NamedSource{{Name: "plant", Location: "/data/plant.jsonl"}}
	cfg.SetFavorite(3, "plant")
	cfg.HTTP.Timeout = 42 * time.Second

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load after save failed: %v", err)
	}
	if loaded.Source != "/data/plant.jsonl" {
		t.Errorf("expected source preserved, got %q", loaded.Source)
	}
	if loaded.FavoriteSource(3) == nil {
		t.Error("expected favorite 3 to resolve")
	}
	if loaded.HTTP.Timeout != 42*time.Second {
		t.Errorf("expected 42s timeout, got %s", loaded.HTTP.Timeout)
	}
}

func TestFindSource(t *testing.T) {
	cfg := Config{
		Sources: []NamedSource{
			{Name: "alpha", Location: "/a.db"},
			{Name: "Beta", Location: "http://b"},
		},
	}

	if s := cfg.FindSource("alpha"); s == nil || s.Location != "/a.db" {
		t.Error("expected to find 'alpha'")
	}
	// Case-insensitive
	if s := cfg.FindSource("BETA"); s == nil || s.Name != "Beta" {
		t.Error("expected to find 'Beta' case-insensitively")
	}
	if cfg.FindSource("nonexistent") != nil {
		t.Error("expected nil for nonexistent source")
	}

	if got := cfg.ResolveSource("beta"); got != "http://b" {
		t.Errorf("expected name resolved to location, got %q", got)
	}
	if got := cfg.ResolveSource("/other.jsonl"); got != "/other.jsonl" {
		t.Errorf("expected location passed through, got %q", got)
	}
}

func TestFavoriteSource(t *testing.T) {
	cfg := Config{
		Sources:   []NamedSource{{Name: "plant", Location: "/p.db"}},
		Favorites: map[int]string{1: "plant", 2: "ghost"},
	}

	if s := cfg.FavoriteSource(1); s == nil || s.Name != "plant" {
		t.Error("expected favorite 1 to return plant")
	}
	if cfg.FavoriteSource(2) != nil {
		t.Error("expected nil for favorite naming an unknown source")
	}
	if cfg.FavoriteSource(5) != nil {
		t.Error("expected nil for unset favorite")
	}
}

func TestSetFavorite(t *testing.T) {
	cfg := Config{}

	cfg.SetFavorite(1, "plant")
	if cfg.Favorites[1] != "plant" {
		t.Error("expected favorite 1 set to 'plant'")
	}

	// Clear favorite
	cfg.SetFavorite(1, "")
	if _, ok := cfg.Favorites[1]; ok {
		t.Error("expected favorite 1 to be cleared")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(SourceEnvVar, "  /env/plant.db ")
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Source != "/env/plant.db" {
		t.Errorf("expected env override, got %q", cfg.Source)
	}
}

func TestLoad_UsesXDGAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(SourceEnvVar, "")

	if Exists() {
		t.Error("expected no config file yet")
	}
	cfg := DefaultConfig()
	cfg.Source = "/from/file.db"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists() {
		t.Error("expected config file after save")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Source != "/from/file.db" {
		t.Errorf("expected source from file, got %q", loaded.Source)
	}

	t.Setenv(SourceEnvVar, "http://override")
	loaded, _ = Load()
	if loaded.Source != "http://override" {
		t.Errorf("expected env to win over file, got %q", loaded.Source)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~/", filepath.Join(home, "")},
		{"/absolute", "/absolute"},
		{"relative", "relative"},
		{"http://host", "http://host"},
	}

	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.expected {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestConfigDir_XDGOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got := ConfigDir()
	expected := filepath.Join(dir, "bimnav")
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestStateDir_XDGOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	got := StateDir()
	expected := filepath.Join(dir, "bimnav")
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
