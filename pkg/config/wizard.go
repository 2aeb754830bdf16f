package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/bimnav/internal/datasource"
)

// Source kinds offered by the setup wizard.
const (
	KindAPI    = "api"
	KindSQLite = "sqlite"
	KindJSONL  = "jsonl"
)

// Tabs lists the tab names a default tab may be set to.
var Tabs = []string{"overview", "buildings", "elements", "query", "reasoning", "properties", "ontology"}

// WizardAnswers holds the raw form values of the setup wizard.
type WizardAnswers struct {
	Kind       string
	Location   string
	Name       string
	MaxDepth   string
	DefaultTab string
	PageSize   string
	Favorite   bool
}

// answersFrom pre-fills the form from cfg.
func answersFrom(cfg Config) WizardAnswers {
	a := WizardAnswers{
		Kind:       KindAPI,
		Location:   cfg.Source,
		MaxDepth:   strconv.Itoa(cfg.Hierarchy.MaxDepth),
		DefaultTab: cfg.UI.DefaultTab,
		PageSize:   strconv.Itoa(cfg.UI.PageSize),
		Favorite:   true,
	}
	if k, err := datasource.DetectKind(cfg.Source); err == nil {
		switch k {
		case datasource.KindSQLite:
			a.Kind = KindSQLite
		case datasource.KindJSONL:
			a.Kind = KindJSONL
		}
	}
	return a
}

// ValidateLocation returns the validator for a location of the given kind.
func ValidateLocation(kind string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("location is required")
		}
		if info, err := os.Stat(expandHome(s)); err == nil && info.IsDir() && kind != KindAPI {
			return nil
		}
		got, err := datasource.DetectKind(s)
		if err != nil {
			return err
		}
		want := map[string]datasource.Kind{
			KindAPI:    datasource.KindHTTP,
			KindSQLite: datasource.KindSQLite,
			KindJSONL:  datasource.KindJSONL,
		}[kind]
		if want != "" && got != want {
			return fmt.Errorf("%s does not look like a %s source", s, kind)
		}
		return nil
	}
}

// ValidateNonNegative accepts empty input or a whole number >= 0.
func ValidateNonNegative(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number, 0 or more")
	}
	return nil
}

// Apply writes the answers into cfg.
func (a WizardAnswers) Apply(cfg Config) (Config, error) {
	if err := ValidateLocation(a.Kind)(a.Location); err != nil {
		return cfg, err
	}
	for _, v := range []string{a.MaxDepth, a.PageSize} {
		if err := ValidateNonNegative(v); err != nil {
			return cfg, err
		}
	}

	cfg.Source = expandHome(strings.TrimSpace(a.Location))
	if v := strings.TrimSpace(a.MaxDepth); v != "" {
		cfg.Hierarchy.MaxDepth, _ = strconv.Atoi(v)
	}
	if v := strings.TrimSpace(a.PageSize); v != "" {
		cfg.UI.PageSize, _ = strconv.Atoi(v)
	}
	if a.DefaultTab != "" {
		cfg.UI.DefaultTab = a.DefaultTab
	}

	if name := strings.TrimSpace(a.Name); name != "" {
		if s := cfg.FindSource(name); s != nil {
			s.Location = cfg.Source
		} else {
			cfg.Sources = append(cfg.Sources, NamedSource{Name: name, Location: cfg.Source})
		}
		if a.Favorite {
			cfg.SetFavorite(nextFavoriteSlot(cfg, name), name)
		}
	}
	cfg.normalize()
	return cfg, nil
}

// nextFavoriteSlot returns the slot already holding name, else the first
// free one, else 1.
func nextFavoriteSlot(cfg Config, name string) int {
	for n := 1; n <= 9; n++ {
		if strings.EqualFold(cfg.Favorites[n], name) {
			return n
		}
	}
	for n := 1; n <= 9; n++ {
		if _, taken := cfg.Favorites[n]; !taken {
			return n
		}
	}
	return 1
}

// Wizard is the interactive first-run setup.
type Wizard struct {
	answers WizardAnswers
	base    Config
	out     io.Writer
}

// NewWizard creates a setup wizard pre-filled from cfg.
func NewWizard(cfg Config) *Wizard {
	return &Wizard{answers: answersFrom(cfg), base: cfg, out: os.Stdout}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newForm creates a form, falling back to accessible mode without a TTY.
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !isTerminal() {
		form = form.WithAccessible(true)
	}
	return form
}

// Run asks the questions and returns the resulting configuration. It does
// not save it.
func (w *Wizard) Run() (Config, error) {
	fmt.Fprintln(w.out, "")
	fmt.Fprintln(w.out, "bimnav setup")
	fmt.Fprintln(w.out, "────────────")
	fmt.Fprintln(w.out, "")

	a := &w.answers
	tabOpts := make([]huh.Option[string], 0, len(Tabs))
	for _, t := range Tabs {
		tabOpts = append(tabOpts, huh.NewOption(t, t))
	}

	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where does the model data come from?").
				Options(
					huh.NewOption("REST API (http/https URL)", KindAPI),
					huh.NewOption("SQLite export (.db)", KindSQLite),
					huh.NewOption("JSONL export (.jsonl)", KindJSONL),
				).
				Value(&a.Kind),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Location").
				Description("API base URL or path to the export file").
				Value(&a.Location).
				Validate(func(s string) error { return ValidateLocation(a.Kind)(s) }),
			huh.NewInput().
				Title("Name (optional)").
				Description("Saves the source under this name").
				Value(&a.Name),
			huh.NewConfirm().
				Title("Bind it to a number key?").
				Value(&a.Favorite),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Maximum hierarchy depth").
				Description("0 shows every level").
				Value(&a.MaxDepth).
				Validate(ValidateNonNegative),
			huh.NewInput().
				Title("Elements per page").
				Value(&a.PageSize).
				Validate(ValidateNonNegative),
			huh.NewSelect[string]().
				Title("Start on tab").
				Options(tabOpts...).
				Value(&a.DefaultTab),
		),
	)
	if err := form.Run(); err != nil {
		return w.base, err
	}
	return a.Apply(w.base)
}
