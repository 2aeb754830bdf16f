package tabs

import (
	"context"
	"errors"
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/config"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

type loadedMsg struct{ tab string }

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"overview", "buildings", "elements"} {
		if err := r.Register(Tab{Name: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := r.Register(Tab{Name: "buildings"}); !errors.Is(err, ErrDuplicateTab) {
		t.Errorf("expected ErrDuplicateTab, got %v", err)
	}
	if err := r.Register(Tab{}); err == nil {
		t.Error("expected error for unnamed tab")
	}
	if !reflect.DeepEqual(r.Names(), []string{"overview", "buildings", "elements"}) {
		t.Errorf("unexpected order %v", r.Names())
	}
	tab, err := r.Lookup("elements")
	if err != nil || tab.Title != "elements" {
		t.Errorf("expected title to default to name, got %+v err=%v", tab, err)
	}
	if _, err := r.Lookup("query"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("expected ErrUnknownTab, got %v", err)
	}
}

func TestEnsureRunsInitializerOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	var seen Lifecycle
	r.Register(Tab{
		Name: "buildings",
		Init: func(ctx *Context) tea.Cmd {
			calls++
			seen = r.State("buildings")
			return func() tea.Msg { return loadedMsg{tab: "buildings"} }
		},
	})

	if r.State("buildings") != Uninitialized {
		t.Errorf("expected uninitialized, got %s", r.State("buildings"))
	}
	cmd, ran, err := r.Ensure("buildings", nil)
	if err != nil || !ran || cmd == nil {
		t.Fatalf("expected initializer to run, got ran=%v cmd=%v err=%v", ran, cmd != nil, err)
	}
	if msg, ok := cmd().(loadedMsg); !ok || msg.tab != "buildings" {
		t.Errorf("unexpected init message %v", msg)
	}
	if seen != Initializing {
		t.Errorf("expected initializing during Init, got %s", seen)
	}

	cmd, ran, _ = r.Ensure("buildings", nil)
	if ran || cmd != nil {
		t.Error("expected second Ensure to be a no-op")
	}
	if calls != 1 {
		t.Errorf("expected 1 initializer call, got %d", calls)
	}
	if !r.Initialized("buildings") {
		t.Error("expected initialized")
	}

	if _, _, err := r.Ensure("missing", nil); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("expected ErrUnknownTab, got %v", err)
	}
}

type stubSource struct {
	datasource.Source
	calls int
}

func (s *stubSource) Categories(ctx context.Context) ([]model.CategoryStat, error) {
	s.calls++
	return []model.CategoryStat{{Category: "Wall", Count: s.calls}}, nil
}

func TestContextSetSourceInvalidatesCaches(t *testing.T) {
	first := &stubSource{}
	c := NewContext(first, config.DefaultConfig())
	ctx := context.Background()

	c.Categories.Get(ctx)
	c.Categories.Get(ctx)
	if first.calls != 1 {
		t.Errorf("expected categories fetched once, got %d", first.calls)
	}

	second := &stubSource{}
	c.SetSource(second)
	if _, err := c.Categories.Get(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.calls != 1 {
		t.Errorf("expected new source to be queried after switch, got %d", second.calls)
	}

	empty := NewContext(nil, config.DefaultConfig())
	if _, err := empty.Categories.Get(ctx); !errors.Is(err, datasource.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without a source, got %v", err)
	}
}
