package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// maxSummaryOutput caps the stderr excerpt shown per failed hook.
const maxSummaryOutput = 100

// HookResult records one hook run.
type HookResult struct {
	Hook     Hook
	Phase    HookPhase
	Success  bool
	Error    error
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs the hooks of one export.
type Executor struct {
	config  *Config
	context ExportContext
	results []HookResult
}

// NewExecutor creates an executor for config. A nil config runs nothing.
func NewExecutor(config *Config, ctx ExportContext) *Executor {
	if config == nil {
		config = &Config{}
	}
	return &Executor{config: config, context: ctx}
}

// RunHooks loads the hooks for projectDir. It returns a nil executor when
// noHooks is set or nothing is configured.
func RunHooks(projectDir string, ctx ExportContext, noHooks bool, opts ...LoaderOption) (*Executor, error) {
	if noHooks {
		return nil, nil
	}
	loader := NewLoader(append([]LoaderOption{WithProjectDir(projectDir)}, opts...)...)
	if err := loader.Load(); err != nil {
		return nil, err
	}
	if !loader.HasHooks() {
		return nil, nil
	}
	return NewExecutor(loader.Config(), ctx), nil
}

// RunPreExport runs pre-export hooks in order and stops at the first
// failure unless that hook continues on error.
func (e *Executor) RunPreExport() error {
	for _, hook := range e.config.Hooks.PreExport {
		res := e.run(hook, PreExport)
		if !res.Success && hook.OnError != OnErrorContinue {
			return fmt.Errorf("pre-export hook %q failed: %w", hook.Name, res.Error)
		}
	}
	return nil
}

// RunPostExport runs every post-export hook. It reports the first
// failure whose on_error is "fail" after all hooks ran.
func (e *Executor) RunPostExport() error {
	var firstErr error
	for _, hook := range e.config.Hooks.PostExport {
		res := e.run(hook, PostExport)
		if !res.Success && hook.OnError == OnErrorFail && firstErr == nil {
			firstErr = fmt.Errorf("post-export hook %q failed: %w", hook.Name, res.Error)
		}
	}
	return firstErr
}

// Results returns every hook run so far.
func (e *Executor) Results() []HookResult {
	return e.results
}

// Summary describes the runs in a few lines, or "" when nothing ran.
func (e *Executor) Summary() string {
	if len(e.results) == 0 {
		return ""
	}
	var ok, failed int
	var lines []string
	for _, r := range e.results {
		if r.Success {
			ok++
			continue
		}
		failed++
		line := fmt.Sprintf("  ✗ %s (%s): %v", r.Hook.Name, r.Phase, r.Error)
		if r.Stderr != "" {
			line += ": " + truncate(firstLine(r.Stderr), maxSummaryOutput)
		}
		lines = append(lines, line)
	}
	head := fmt.Sprintf("Hooks: %d succeeded, %d failed", ok, failed)
	return strings.Join(append([]string{head}, lines...), "\n")
}

func (e *Executor) run(hook Hook, phase HookPhase) HookResult {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := shellCommand(ctx, hook.Command)
	cmd.Env = e.environ(hook)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := HookResult{
		Hook:     hook,
		Phase:    phase,
		Success:  err == nil,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		res.Error = err
	}
	e.results = append(e.results, res)
	return res
}

// environ is the process environment plus the export context plus the
// hook's own variables, which may reference the others as ${NAME}.
func (e *Executor) environ(hook Hook) []string {
	env := append(os.Environ(), e.context.ToEnv()...)
	lookup := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			lookup[k] = v
		}
	}
	for k, v := range hook.Env {
		env = append(env, k+"="+os.Expand(v, func(name string) string { return lookup[name] }))
	}
	return env
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
