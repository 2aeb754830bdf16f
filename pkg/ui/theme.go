package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeBg returns the given hex color for TrueColor terminals and
// lipgloss.NoColor{} otherwise, so 16/256-color terminals keep their own
// background.
func ThemeBg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.TrueColor {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}

// ThemeFg returns the given hex color for ANSI256+ terminals and ANSI white
// for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Node types
	Project  lipgloss.AdaptiveColor
	Site     lipgloss.AdaptiveColor
	Building lipgloss.AdaptiveColor
	Storey   lipgloss.AdaptiveColor
	Space    lipgloss.AdaptiveColor

	Base        lipgloss.Style
	Selected    lipgloss.Style
	Header      lipgloss.Style
	TabActive   lipgloss.Style
	TabInactive lipgloss.Style
	Column      lipgloss.Style
	ColumnFocus lipgloss.Style
	MutedText   lipgloss.Style
	ErrorText   lipgloss.Style
	Crumb       lipgloss.Style
	CrumbLast   lipgloss.Style
}

// DefaultTheme returns the Dracula-inspired adaptive theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},

		Project:  lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}, // Purple
		Site:     lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}, // Green
		Building: lipgloss.AdaptiveColor{Light: "#2684FF", Dark: "#4C9AFF"}, // Blue
		Storey:   lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}, // Orange
		Space:    lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}, // Red
	}

	t.Base = r.NewStyle().Foreground(ColorText)

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Foreground(ColorText).
		Bold(true)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.TabActive = r.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Background(t.Primary).
		Bold(true).
		Padding(0, 1)
	t.TabInactive = r.NewStyle().
		Foreground(t.Subtext).
		Padding(0, 1)

	t.Column = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border)
	t.ColumnFocus = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary)

	t.MutedText = r.NewStyle().Foreground(ColorMuted)
	t.ErrorText = r.NewStyle().Foreground(ColorDanger)
	t.Crumb = r.NewStyle().Foreground(t.Subtext)
	t.CrumbLast = r.NewStyle().Foreground(t.Primary).Bold(true)

	return t
}

// depthPalette colors node types without a fixed color by their level.
var depthPalette = []lipgloss.AdaptiveColor{
	{Light: "#006080", Dark: "#8BE9FD"},
	{Light: "#808000", Dark: "#F1FA8C"},
	{Light: "#008080", Dark: "#00CED1"},
	{Light: "#0066CC", Dark: "#6699FF"},
}

// TypeColor returns the color of a node type, falling back to a color picked
// by level for unknown types.
func (t Theme) TypeColor(nt model.NodeType, level int) lipgloss.AdaptiveColor {
	switch nt {
	case model.TypeProject:
		return t.Project
	case model.TypeSite:
		return t.Site
	case model.TypeBuilding:
		return t.Building
	case model.TypeStorey:
		return t.Storey
	case model.TypeSpace:
		return t.Space
	}
	if level < 0 {
		level = 0
	}
	return depthPalette[level%len(depthPalette)]
}
