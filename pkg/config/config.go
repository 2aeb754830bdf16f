// Package config handles loading and saving bimnav configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/bimnav/config.yaml
//   - State:   ~/.local/state/bimnav/ (exports)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceEnvVar overrides the configured data source.
const SourceEnvVar = "BIMNAV_SOURCE"

// NamedSource is a data source the user can switch to by name or number key.
type NamedSource struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"` // API URL or file path
}

// HierarchyConfig controls how the spatial hierarchy is built.
type HierarchyConfig struct {
	MaxDepth      int    `yaml:"max_depth,omitempty"`      // 0 = unbounded
	PathDelimiter string `yaml:"path_delimiter,omitempty"` // default "/"
	Scope         string `yaml:"scope,omitempty"`          // subtree root id, empty = all
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	DefaultTab string `yaml:"default_tab,omitempty"` // one of Tabs
	PageSize   int    `yaml:"page_size,omitempty"`
}

// HTTPConfig configures the REST client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// WatchConfig controls live reload of file sources.
type WatchConfig struct {
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// IsEnabled returns whether watching is on (default true).
func (w WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Config is the top-level configuration for bimnav.
type Config struct {
	Source    string          `yaml:"source,omitempty"`
	Sources   []NamedSource   `yaml:"sources,omitempty"`
	Favorites map[int]string  `yaml:"favorites,omitempty"` // Number key (1-9) -> source name
	Hierarchy HierarchyConfig `yaml:"hierarchy,omitempty"`
	UI        UIConfig        `yaml:"ui,omitempty"`
	HTTP      HTTPConfig      `yaml:"http,omitempty"`
	Watch     WatchConfig     `yaml:"watch,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Source:    "http://localhost:8000",
		Favorites: make(map[int]string),
		Hierarchy: HierarchyConfig{
			PathDelimiter: "/",
		},
		UI: UIConfig{
			DefaultTab: "overview",
			PageSize:   50,
		},
		HTTP: HTTPConfig{
			Timeout: 15 * time.Second,
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// ConfigDir returns the XDG config directory for bimnav.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "bimnav")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bimnav")
}

// StateDir returns the XDG state directory for bimnav.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "bimnav")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "bimnav")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Exists reports whether a config file is present.
func Exists() bool {
	path := ConfigPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Load reads the config file from the XDG config directory and applies
// environment overrides. Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}
	cfg, err := LoadFrom(path)
	cfg.ApplyEnv()
	return cfg, err
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Favorites == nil {
		cfg.Favorites = make(map[int]string)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize expands ~ in file locations and repairs out-of-range values.
func (c *Config) normalize() {
	c.Source = expandHome(c.Source)
	for i := range c.Sources {
		c.Sources[i].Location = expandHome(c.Sources[i].Location)
	}
	def := DefaultConfig()
	if c.UI.PageSize <= 0 {
		c.UI.PageSize = def.UI.PageSize
	}
	if c.Hierarchy.PathDelimiter == "" {
		c.Hierarchy.PathDelimiter = def.Hierarchy.PathDelimiter
	}
	if c.Hierarchy.MaxDepth < 0 {
		c.Hierarchy.MaxDepth = 0
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = def.Watch.Debounce
	}
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(SourceEnvVar)); v != "" {
		c.Source = expandHome(v)
	}
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// FindSource returns the named source with the given name, or nil.
func (c Config) FindSource(name string) *NamedSource {
	for i := range c.Sources {
		if strings.EqualFold(c.Sources[i].Name, name) {
			return &c.Sources[i]
		}
	}
	return nil
}

// FavoriteSource returns the source assigned to number key n (1-9), or nil.
func (c Config) FavoriteSource(n int) *NamedSource {
	name, ok := c.Favorites[n]
	if !ok {
		return nil
	}
	return c.FindSource(name)
}

// SetFavorite assigns a source name to a number key (1-9).
func (c *Config) SetFavorite(n int, sourceName string) {
	if c.Favorites == nil {
		c.Favorites = make(map[int]string)
	}
	if sourceName == "" {
		delete(c.Favorites, n)
	} else {
		c.Favorites[n] = sourceName
	}
}

// ResolveSource maps a source name to its location. Anything that is not a
// configured name is returned unchanged.
func (c Config) ResolveSource(nameOrLocation string) string {
	if s := c.FindSource(nameOrLocation); s != nil {
		return s.Location
	}
	return expandHome(nameOrLocation)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
