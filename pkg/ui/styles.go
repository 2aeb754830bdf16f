package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// ══════════════════════════════════════════════════════════════════════════════
// DESIGN TOKENS
// ══════════════════════════════════════════════════════════════════════════════

const (
	SpaceXS = 1
	SpaceSM = 2
	SpaceMD = 3
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorBg          = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	ColorBadgeText = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// RenderTypeBadge renders the short type label (PRJ, BLD, STY...) on the
// type's color. Badges are padded to the same width.
func RenderTypeBadge(t Theme, nt model.NodeType, level int) string {
	return t.Renderer.NewStyle().
		Background(t.TypeColor(nt, level)).
		Foreground(ColorBadgeText).
		Bold(true).
		Width(5).
		Align(lipgloss.Center).
		Render(nt.Badge())
}

// RenderHealthBadge renders the backend status.
func RenderHealthBadge(h model.Health, err error) string {
	switch {
	case err != nil:
		return lipgloss.NewStyle().Foreground(ColorDanger).Bold(true).Render("● unavailable")
	case h.Healthy():
		return lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true).Render("● " + h.Status)
	case h.Status == "":
		return lipgloss.NewStyle().Foreground(ColorMuted).Render("● unknown")
	default:
		return lipgloss.NewStyle().Foreground(ColorWarning).Bold(true).Render("● " + h.Status)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BARS AND DIVIDERS
// ══════════════════════════════════════════════════════════════════════════════

// RenderMiniBar renders a horizontal bar for a value between 0 and 1.
func RenderMiniBar(value float64, width int, t Theme) string {
	if width <= 0 {
		return ""
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * float64(width))
	if value > 0 && filled == 0 {
		filled = 1
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return t.Renderer.NewStyle().Foreground(t.Primary).Render(bar)
}

// RenderDivider renders a horizontal divider line
func RenderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(ColorBgHighlight).
		Render(strings.Repeat("─", width))
}

// RenderKeyHint renders "key action" pairs for the footer.
func RenderKeyHint(pairs ...string) string {
	keyStyle := lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s %s", keyStyle.Render(pairs[i]), descStyle.Render(pairs[i+1])))
	}
	return strings.Join(parts, "  ")
}
