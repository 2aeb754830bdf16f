// Package hooks runs user commands around a bimnav export.
//
// Hooks come from two files, both optional: hooks.yaml in the user config
// directory and .bimnav/hooks.yaml in the working directory. User hooks run
// first. Pre-export hooks run before the export file is written and can
// cancel it; post-export hooks run after.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HookPhase is when a hook runs.
type HookPhase string

const (
	PreExport  HookPhase = "pre-export"
	PostExport HookPhase = "post-export"
)

// On-error policies.
const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

const (
	// DefaultTimeout is the default hook execution timeout
	DefaultTimeout = 30 * time.Second

	// ConfigDirName is the per-project directory holding hooks.yaml.
	ConfigDirName = ".bimnav"

	fileName = "hooks.yaml"
)

// Hook is one configured command.
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"` // run with sh -c
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"` // fail or continue
}

// UnmarshalYAML accepts timeouts as Go durations ("5s") or bare seconds.
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout"`
		Env     map[string]string `yaml:"env"`
		OnError string            `yaml:"on_error"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	timeout, err := parseTimeout(raw.Timeout)
	if err != nil {
		return err
	}
	*h = Hook{Name: raw.Name, Command: raw.Command, Timeout: timeout, Env: raw.Env, OnError: raw.OnError}
	return nil
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: use a duration like 30s", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Config holds all hook configurations
type Config struct {
	Hooks HooksByPhase `yaml:"hooks" json:"hooks"`
}

// HooksByPhase organizes hooks by their execution phase
type HooksByPhase struct {
	PreExport  []Hook `yaml:"pre-export,omitempty" json:"pre-export,omitempty"`
	PostExport []Hook `yaml:"post-export,omitempty" json:"post-export,omitempty"`
}

// ExportContext is handed to every hook as BIMNAV_* environment variables.
type ExportContext struct {
	ExportPath   string    // BIMNAV_EXPORT_PATH
	ExportFormat string    // BIMNAV_EXPORT_FORMAT: svg, png, md, sqlite or json
	Source       string    // BIMNAV_SOURCE: location of the exported store
	NodeCount    int       // BIMNAV_NODE_COUNT: hierarchy nodes in the export
	ElementCount int       // BIMNAV_ELEMENT_COUNT: elements reported by the store
	Timestamp    time.Time // BIMNAV_TIMESTAMP (RFC3339)
}

// ToEnv converts export context to environment variables
func (c ExportContext) ToEnv() []string {
	return []string{
		"BIMNAV_EXPORT_PATH=" + c.ExportPath,
		"BIMNAV_EXPORT_FORMAT=" + c.ExportFormat,
		"BIMNAV_SOURCE=" + c.Source,
		"BIMNAV_NODE_COUNT=" + strconv.Itoa(c.NodeCount),
		"BIMNAV_ELEMENT_COUNT=" + strconv.Itoa(c.ElementCount),
		"BIMNAV_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// Loader reads and merges the hook files.
type Loader struct {
	projectDir string
	userDir    string
	config     *Config
	warnings   []string
}

// LoaderOption configures the loader
type LoaderOption func(*Loader)

// WithProjectDir sets the directory holding .bimnav/ (default: current
// directory).
func WithProjectDir(dir string) LoaderOption {
	return func(l *Loader) { l.projectDir = dir }
}

// WithUserDir sets the directory holding the user-level hooks.yaml. Empty
// disables user hooks.
func WithUserDir(dir string) LoaderOption {
	return func(l *Loader) { l.userDir = dir }
}

// NewLoader creates a new hook loader with options
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.projectDir == "" {
		l.projectDir, _ = os.Getwd()
	}
	return l
}

// Load reads both hook files. Missing files mean no hooks.
func (l *Loader) Load() error {
	merged := &Config{}
	l.warnings = nil
	paths := []string{filepath.Join(l.projectDir, ConfigDirName, fileName)}
	if l.userDir != "" {
		paths = append([]string{filepath.Join(l.userDir, fileName)}, paths...)
	}
	for _, path := range paths {
		cfg, err := readConfig(path)
		if err != nil {
			return err
		}
		merged.Hooks.PreExport = append(merged.Hooks.PreExport, cfg.Hooks.PreExport...)
		merged.Hooks.PostExport = append(merged.Hooks.PostExport, cfg.Hooks.PostExport...)
	}
	merged.Hooks.PreExport = l.normalize(merged.Hooks.PreExport, PreExport)
	merged.Hooks.PostExport = l.normalize(merged.Hooks.PostExport, PostExport)
	l.config = merged
	return nil
}

func readConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading hooks config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// normalize drops hooks without a command and fills in defaults. Pre-export
// hooks fail the export by default, post-export hooks continue.
func (l *Loader) normalize(hooks []Hook, phase HookPhase) []Hook {
	policy := OnErrorContinue
	if phase == PreExport {
		policy = OnErrorFail
	}
	var out []Hook
	for i, h := range hooks {
		if strings.TrimSpace(h.Command) == "" {
			l.warnings = append(l.warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if h.Name == "" {
			h.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		if h.Timeout <= 0 {
			h.Timeout = DefaultTimeout
		}
		switch h.OnError {
		case OnErrorFail, OnErrorContinue:
		case "":
			h.OnError = policy
		default:
			l.warnings = append(l.warnings, fmt.Sprintf("%s hook %q: unknown on_error %q, using %q", phase, h.Name, h.OnError, policy))
			h.OnError = policy
		}
		out = append(out, h)
	}
	return out
}

// Config returns the loaded configuration (or empty if not loaded)
func (l *Loader) Config() *Config {
	if l.config == nil {
		return &Config{}
	}
	return l.config
}

// HasHooks returns true if any hooks are configured
func (l *Loader) HasHooks() bool {
	return len(l.GetHooks(PreExport))+len(l.GetHooks(PostExport)) > 0
}

// GetHooks returns hooks for a specific phase
func (l *Loader) GetHooks(phase HookPhase) []Hook {
	if l.config == nil {
		return nil
	}
	switch phase {
	case PreExport:
		return l.config.Hooks.PreExport
	case PostExport:
		return l.config.Hooks.PostExport
	}
	return nil
}

// Warnings returns any warnings from loading
func (l *Loader) Warnings() []string {
	return l.warnings
}
