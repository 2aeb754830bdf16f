package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/config"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/export"
	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/hooks"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/ui"
	"github.com/vanderheijden86/bimnav/pkg/version"
	"github.com/vanderheijden86/bimnav/pkg/workspace"
)

func main() {
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	sourceFlag := flag.String("source", "", "Data source: API URL, .db/.jsonl file, directory, or configured source name")
	maxDepth := flag.Int("max-depth", -1, "Limit the hierarchy to this many levels (0 = unbounded)")
	scope := flag.String("scope", "", "Only show the subtree rooted at this node id")
	tabFlag := flag.String("tab", "", "Start on this tab ("+strings.Join(config.Tabs, ", ")+")")
	nodeFlag := flag.String("node", "", "Start in the buildings tab with this node id selected")
	setup := flag.Bool("setup", false, "Run the interactive setup and save the config")
	dumpTree := flag.Bool("dump-tree", false, "Print the hierarchy as JSON and exit")
	exportPath := flag.String("export", "", "Export to a .svg, .png, .md, .db or .json file and exit")
	noHooks := flag.Bool("no-hooks", false, "Skip export hooks")
	checkSources := flag.Bool("sources", false, "Check every configured source and exit")
	showMetrics := flag.Bool("metrics", false, "Print timing metrics on exit")
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: bimnav [options]")
		fmt.Println("\nA terminal dashboard for BIM data stores.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("bimnav %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		// Non-fatal: continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if *setup {
		updated, err := config.NewWizard(cfg).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Setup cancelled: %v\n", err)
			os.Exit(1)
		}
		if err := config.Save(updated); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %s\n", config.ConfigPath())
		os.Exit(0)
	}

	if *sourceFlag != "" {
		cfg.Source = cfg.ResolveSource(*sourceFlag)
	}
	if *maxDepth >= 0 {
		cfg.Hierarchy.MaxDepth = *maxDepth
	}
	if *scope != "" {
		cfg.Hierarchy.Scope = *scope
	}
	if *tabFlag != "" {
		cfg.UI.DefaultTab = *tabFlag
	}
	if *showMetrics {
		defer metrics.WriteReport(os.Stderr)
	}

	batch := *dumpTree || *exportPath != "" || !term.IsTerminal(int(os.Stdout.Fd()))
	opts := sourceOptions(cfg, batch)

	if *checkSources {
		os.Exit(runSourceCheck(os.Stdout, cfg, opts))
	}

	src, err := datasource.Open(cfg.Source, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if !config.Exists() {
			fmt.Fprintln(os.Stderr, "Run 'bimnav --setup' to configure a data source.")
		}
		os.Exit(1)
	}

	if batch {
		code := runBatch(src, cfg, *dumpTree, *exportPath, *noHooks)
		src.Close()
		if *showMetrics {
			metrics.WriteReport(os.Stderr)
		}
		os.Exit(code)
	}

	if logFile, err := debug.OpenFile(config.StateDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	} else {
		defer logFile.Close()
	}

	w, err := ui.StartWatcher(cfg, src)
	if err != nil {
		debug.Log("live reload disabled: %v", err)
	}
	final, err := runTUIProgram(ui.NewModel(ui.Options{Config: cfg, Source: src, Watcher: w, Reveal: *nodeFlag}))
	final.Stop()
	if err != nil {
		fmt.Printf("Error running bimnav: %v\n", err)
		os.Exit(1)
	}
}

// sourceOptions builds the open options. Parse warnings go to stderr in
// batch mode and to the debug log under the TUI.
func sourceOptions(cfg config.Config, batch bool) datasource.Options {
	warn := func(msg string) { debug.Log("warning: %s", msg) }
	if batch {
		warn = func(msg string) { fmt.Fprintf(os.Stderr, "Warning: %s\n", msg) }
	}
	return datasource.Options{
		Timeout:   cfg.HTTP.Timeout,
		Delimiter: cfg.Hierarchy.PathDelimiter,
		Warn:      warn,
	}
}

// runBatch handles the non-interactive modes. Without --dump-tree or
// --export it prints a markdown report, which is also what a redirected
// stdout gets.
func runBatch(src datasource.Source, cfg config.Config, dump bool, exportPath string, noHooks bool) int {
	ctx := context.Background()
	forest, _, err := datasource.LoadForest(ctx, src, cfg.Hierarchy.Scope, hierarchy.Options{
		MaxDepth:  cfg.Hierarchy.MaxDepth,
		Delimiter: cfg.Hierarchy.PathDelimiter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading hierarchy: %v\n", err)
		return 1
	}
	if dump {
		if err := export.WriteForestJSON(os.Stdout, forest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	overview := workspace.LoadOverview(ctx, src, nil)
	if exportPath != "" {
		bundle := export.Bundle{Title: "bimnav export", Source: src, Forest: forest, Overview: overview}
		return runExport(ctx, exportPath, bundle, noHooks)
	}

	fmt.Print(export.GenerateMarkdown(export.ReportInput{
		Title:      "bimnav report",
		Source:     src.Location(),
		Health:     overview.Health,
		Statistics: overview.Statistics,
		Forest:     forest,
	}))
	return 0
}

// runExport writes the bundle between the pre-export and post-export
// hooks. A failing post-export hook only changes the exit code when its
// on_error is "fail".
func runExport(ctx context.Context, path string, b export.Bundle, noHooks bool) int {
	format, err := export.FormatFor(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cwd, _ := os.Getwd()
	executor, err := hooks.RunHooks(cwd, hooks.ExportContext{
		ExportPath:   path,
		ExportFormat: string(format),
		Source:       b.Source.Location(),
		NodeCount:    b.Forest.Len(),
		ElementCount: b.Overview.Statistics.TotalElements,
		Timestamp:    time.Now(),
	}, noHooks, hooks.WithUserDir(config.ConfigDir()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading hooks: %v\n", err)
		return 1
	}
	if executor != nil {
		defer func() {
			if s := executor.Summary(); s != "" {
				fmt.Fprintln(os.Stderr, s)
			}
		}()
		if err := executor.RunPreExport(); err != nil {
			fmt.Fprintf(os.Stderr, "Export cancelled: %v\n", err)
			return 1
		}
	}

	stop := metrics.Timer(metrics.Export)
	err = export.Write(ctx, path, b)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		return 1
	}
	fmt.Printf("Exported to %s\n", path)

	if executor != nil {
		if err := executor.RunPostExport(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// runSourceCheck checks every configured source and prints one line each. The
// exit code is 1 when any source failed.
func runSourceCheck(out io.Writer, cfg config.Config, opts datasource.Options) int {
	if len(cfg.Sources) == 0 {
		fmt.Fprintln(out, "No sources configured. Run 'bimnav --setup' to add one.")
		return 0
	}
	opts.Warn = nil
	checker := workspace.NewChecker(opts)
	checker.SetLogger(log.New(os.Stderr, "", 0))
	results := checker.Check(context.Background(), cfg.Sources)
	for _, r := range results {
		fav := ""
		for n, name := range cfg.Favorites {
			if name == r.Name {
				fav = "[" + strconv.Itoa(n) + "] "
			}
		}
		if r.Error != nil {
			fmt.Fprintf(out, "✗ %s%s  %s  %v\n", fav, r.Name, r.Location, r.Error)
			continue
		}
		fmt.Fprintf(out, "✓ %s%s  %s  %s %s (%s)\n", fav, r.Name, r.Location, r.Kind, r.Health.Status,
			r.Latency.Round(time.Millisecond))
	}
	sum := workspace.Summarize(results)
	fmt.Fprintf(out, "%d/%d healthy\n", sum.Healthy, sum.Total)
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

// runTUIProgram runs the dashboard and returns the final model.
func runTUIProgram(m ui.Model) (ui.Model, error) {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set BIMNAV_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("BIMNAV_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()
			}()
		}
	}

	final, err := p.Run()
	if fm, ok := final.(ui.Model); ok {
		m = fm
	}
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return m, nil
	}
	return m, err
}
