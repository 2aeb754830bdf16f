package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/pkg/tabs"
	"github.com/vanderheijden86/bimnav/pkg/viewstate"
	"github.com/vanderheijden86/bimnav/pkg/workspace"
)

// overviewLoadedMsg carries the store-wide summary.
type overviewLoadedMsg struct {
	Overview workspace.Overview
}

func loadOverviewCmd(ctx *tabs.Context) tea.Cmd {
	src := ctx.Source
	categories := ctx.Categories
	return func() tea.Msg {
		return overviewLoadedMsg{Overview: workspace.LoadOverview(context.Background(), src, categories.Get)}
	}
}

// overviewView shows backend health, store totals and the category chart.
type overviewView struct {
	theme    Theme
	location string
	overview workspace.Overview
	loaded   bool
	page     viewport.Model
	width    int
}

func newOverviewView(theme Theme) *overviewView {
	return &overviewView{theme: theme, page: viewport.New(80, 20)}
}

func (v *overviewView) setSize(width, height int) {
	v.width = width
	v.page.Width = width
	v.page.Height = height
	v.refresh()
}

func (v *overviewView) reset(location string) {
	v.location = location
	v.loaded = false
	v.overview = workspace.Overview{}
	v.refresh()
}

func (v *overviewView) apply(msg overviewLoadedMsg) {
	v.overview = msg.Overview
	v.loaded = true
	v.refresh()
}

func (v *overviewView) update(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	v.page, cmd = v.page.Update(msg)
	return cmd
}

func (v *overviewView) refresh() {
	top := v.page.YOffset
	v.page.SetContent(v.render())
	v.page.SetYOffset(top)
}

func (v *overviewView) render() string {
	t := v.theme
	var sb strings.Builder
	label := t.Renderer.NewStyle().Foreground(t.Subtext)
	value := t.Renderer.NewStyle().Foreground(ColorText).Bold(true)
	heading := t.Renderer.NewStyle().Foreground(t.Primary).Bold(true)

	o := v.overview
	fmt.Fprintf(&sb, "%s %s  %s\n\n", label.Render("Source"), value.Render(v.location), RenderHealthBadge(o.Health, o.HealthErr))
	if !v.loaded {
		sb.WriteString(t.MutedText.Render("Loading overview…"))
		return sb.String()
	}
	if o.Failed() {
		sb.WriteString(t.ErrorText.Render(placeholder("Overview", o.Err())))
		return sb.String()
	}

	sb.WriteString(heading.Render("Statistics") + "\n")
	if o.StatisticsErr != nil {
		sb.WriteString(t.ErrorText.Render(placeholder("Statistics", o.StatisticsErr)) + "\n\n")
	} else {
		st := o.Statistics
		cells := []string{
			label.Render("Triples ") + value.Render(count(st.TotalTriples)),
			label.Render("Elements ") + value.Render(count(st.TotalElements)),
			label.Render("Categories ") + value.Render(count(st.TotalCategories)),
			label.Render("Buildings ") + value.Render(count(st.Buildings)),
			label.Render("Storeys ") + value.Render(count(st.Storeys)),
		}
		sb.WriteString(strings.Join(cells, "   ") + "\n\n")
	}

	sb.WriteString(heading.Render("Elements by category") + "\n")
	if o.CategoriesErr != nil {
		sb.WriteString(t.ErrorText.Render(placeholder("Categories", o.CategoriesErr)) + "\n")
		return sb.String()
	}
	if len(o.Categories) == 0 {
		sb.WriteString(t.MutedText.Render("No categories") + "\n")
		return sb.String()
	}

	nameW := 8
	for _, c := range o.Categories {
		nameW = max(nameW, lipgloss.Width(c.Category))
	}
	nameW = min(nameW, 28)
	maxCount := o.Categories[0].Count
	for _, c := range o.Categories {
		maxCount = max(maxCount, c.Count)
	}
	barW := max(10, min(40, v.width-nameW-20))
	for _, c := range o.Categories {
		frac := 0.0
		if maxCount > 0 {
			frac = float64(c.Count) / float64(maxCount)
		}
		fmt.Fprintf(&sb, "%s %s %s\n", fit(c.Category, nameW), RenderMiniBar(frac, barW, t), value.Render(count(c.Count)))
	}
	if o.Elapsed > 0 {
		fmt.Fprintf(&sb, "\n%s\n", t.MutedText.Render(fmt.Sprintf("loaded in %s", o.Elapsed.Round(1e6))))
	}
	return sb.String()
}

func (v *overviewView) View() string {
	return v.page.View()
}

// The overview has no inputs and one scrolling page.

func (v *overviewView) FieldIDs() []string { return nil }
func (v *overviewView) Field(string) (viewstate.FieldValue, bool) {
	return viewstate.FieldValue{}, false
}
func (v *overviewView) SetField(string, viewstate.FieldValue) bool { return false }
func (v *overviewView) PageOffset() int                            { return v.page.YOffset }
func (v *overviewView) SetPageOffset(o int)                        { v.page.SetYOffset(o) }
func (v *overviewView) RegionIDs() []string                        { return nil }
func (v *overviewView) RegionOffset(string) (viewstate.Offset, bool) {
	return viewstate.Offset{}, false
}
func (v *overviewView) SetRegionOffset(string, viewstate.Offset) bool { return false }
