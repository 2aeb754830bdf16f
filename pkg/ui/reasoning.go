package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/model"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
)

// reasoningMsg carries one inference run and the class counts read after
// it. Seq identifies the run.
type reasoningMsg struct {
	Seq      int
	Result   model.ReasoningResult
	Err      error
	Types    model.QueryResult
	TypesErr error
}

func runReasoningCmd(src datasource.Source, seq int) tea.Cmd {
	return func() tea.Msg {
		r, err := datasource.AsReasoner(src)
		if err != nil {
			return reasoningMsg{Seq: seq, Err: err}
		}
		ctx := context.Background()
		res, err := r.RunReasoning(ctx)
		if err != nil {
			return reasoningMsg{Seq: seq, Err: err}
		}
		types, terr := datasource.InferredTypes(ctx, src)
		return reasoningMsg{Seq: seq, Result: res, Types: types, TypesErr: terr}
	}
}

// reasoningView runs inference on the store and reports what it added.
type reasoningView struct {
	theme   Theme
	seq     int
	running bool
	ran     bool
	last    reasoningMsg
	results viewport.Model

	width, height int
}

func newReasoningView(theme Theme) *reasoningView {
	return &reasoningView{theme: theme, results: viewport.New(80, 10)}
}

func (v *reasoningView) setSize(width, height int) {
	v.width, v.height = width, height
	v.results.Width = width
	v.results.Height = max(1, height)
	v.refresh()
}

func (v *reasoningView) reset() {
	v.seq++
	v.running, v.ran = false, false
	v.last = reasoningMsg{}
	v.results.SetYOffset(0)
	v.refresh()
}

func (v *reasoningView) run(src datasource.Source) tea.Cmd {
	if v.running {
		return nil
	}
	v.seq++
	v.running = true
	v.refresh()
	debug.Log("reasoning: run %d", v.seq)
	return runReasoningCmd(src, v.seq)
}

func (v *reasoningView) apply(msg reasoningMsg) bool {
	if msg.Seq != v.seq {
		return false
	}
	v.running = false
	v.ran = true
	v.last = msg
	v.results.SetYOffset(0)
	v.refresh()
	return true
}

func (v *reasoningView) update(msg tea.KeyMsg, src datasource.Source) tea.Cmd {
	switch msg.String() {
	case "r", "enter":
		return v.run(src)
	case "up", "k":
		v.results.LineUp(1)
	case "down", "j":
		v.results.LineDown(1)
	case "pgup", "ctrl+u":
		v.results.HalfViewUp()
	case "pgdown", "ctrl+d":
		v.results.HalfViewDown()
	}
	return nil
}

func (v *reasoningView) refresh() {
	top := v.results.YOffset
	v.results.SetContent(v.render())
	v.results.SetYOffset(top)
}

func (v *reasoningView) render() string {
	t := v.theme
	switch {
	case v.running:
		return t.MutedText.Render("Reasoning…")
	case !v.ran:
		return t.MutedText.Render("r runs inference over the store")
	case v.last.Err != nil:
		return t.ErrorText.Render(placeholder("Reasoning", v.last.Err))
	}
	res := v.last.Result
	elapsed := time.Duration(res.Elapsed * float64(time.Second)).Round(time.Millisecond)

	var sb strings.Builder
	sb.WriteString(t.Header.Render("Inference") + "\n")
	sb.WriteString(fmt.Sprintf("Triples before  %s\n", count(res.Before())))
	sb.WriteString(fmt.Sprintf("Custom rules    %s\n", count(res.CustomRuleTriples)))
	sb.WriteString(fmt.Sprintf("RDFS            %s\n", count(res.RDFSTriples)))
	sb.WriteString(fmt.Sprintf("Inferred        %s\n", count(res.TotalInferred)))
	sb.WriteString(fmt.Sprintf("Triples after   %s\n", count(res.TotalTriples)))
	sb.WriteString(t.MutedText.Render("took "+elapsed.String()) + "\n")

	if len(res.RulesApplied) > 0 {
		sb.WriteString("\n" + t.Header.Render("Rules applied") + "\n")
		for _, r := range res.RulesApplied {
			sb.WriteString("  " + r + "\n")
		}
	}

	sb.WriteString("\n" + t.Header.Render("Inferred classes") + "\n")
	switch {
	case v.last.TypesErr != nil:
		sb.WriteString(t.ErrorText.Render(placeholder("Inferred classes", v.last.TypesErr)))
	case len(v.last.Types.Rows) == 0:
		sb.WriteString(t.MutedText.Render("None"))
	default:
		for _, r := range v.last.Types.Rows {
			sb.WriteString(fit(shortValue(r["type"]), 24) + " " + r["num"] + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *reasoningView) View() string {
	return v.results.View()
}

func (v *reasoningView) FieldIDs() []string { return nil }
func (v *reasoningView) Field(string) (viewstate.FieldValue, bool) {
	return viewstate.FieldValue{}, false
}
func (v *reasoningView) SetField(string, viewstate.FieldValue) bool { return false }
func (v *reasoningView) PageOffset() int                            { return v.results.YOffset }
func (v *reasoningView) SetPageOffset(o int)                        { v.results.SetYOffset(o) }
func (v *reasoningView) RegionIDs() []string                        { return nil }
func (v *reasoningView) RegionOffset(string) (viewstate.Offset, bool) {
	return viewstate.Offset{}, false
}
func (v *reasoningView) SetRegionOffset(string, viewstate.Offset) bool { return false }
