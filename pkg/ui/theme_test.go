package ui

import (
	"testing"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

func TestDefaultTheme(t *testing.T) {
	renderer := lipgloss.NewRenderer(nil)
	theme := DefaultTheme(renderer)

	if theme.Renderer != renderer {
		t.Error("DefaultTheme renderer mismatch")
	}
	for name, c := range map[string]lipgloss.AdaptiveColor{
		"Primary":  theme.Primary,
		"Building": theme.Building,
		"Storey":   theme.Storey,
	} {
		if c.Light == "" && c.Dark == "" {
			t.Errorf("DefaultTheme %s color is empty", name)
		}
	}
}

func TestTypeColor(t *testing.T) {
	theme := DefaultTheme(lipgloss.NewRenderer(nil))

	tests := []struct {
		typ   model.NodeType
		level int
		want  lipgloss.AdaptiveColor
	}{
		{model.TypeProject, 0, theme.Project},
		{model.TypeSite, 1, theme.Site},
		{model.TypeBuilding, 2, theme.Building},
		{model.TypeStorey, 3, theme.Storey},
		{model.TypeSpace, 4, theme.Space},
		{"Zone", 0, depthPalette[0]},
		{"Zone", 5, depthPalette[5%len(depthPalette)]},
		{"", -3, depthPalette[0]},
	}
	for _, tt := range tests {
		if got := theme.TypeColor(tt.typ, tt.level); got != tt.want {
			t.Errorf("TypeColor(%q, %d): expected %v, got %v", tt.typ, tt.level, tt.want, got)
		}
	}
}

func TestThemeColorsFollowProfile(t *testing.T) {
	saved := TermProfile
	defer func() { TermProfile = saved }()

	tests := []struct {
		profile   colorprofile.Profile
		bgIsHex   bool
		fgIsWhite bool
	}{
		{colorprofile.TrueColor, true, false},
		{colorprofile.ANSI256, false, false},
		{colorprofile.ANSI, false, true},
		{colorprofile.NoTTY, false, true},
	}
	for _, tt := range tests {
		TermProfile = tt.profile

		_, noBg := ThemeBg("#282A36").(lipgloss.NoColor)
		if noBg == tt.bgIsHex {
			t.Errorf("profile %v: expected hex background=%v", tt.profile, tt.bgIsHex)
		}

		fg := ThemeFg("#FF6B6B")
		ansi, isANSI := fg.(lipgloss.ANSIColor)
		if tt.fgIsWhite && (!isANSI || ansi != 7) {
			t.Errorf("profile %v: expected ANSI white foreground, got %v", tt.profile, fg)
		}
		if !tt.fgIsWhite && isANSI {
			t.Errorf("profile %v: expected hex foreground, got ANSI %d", tt.profile, ansi)
		}
	}
}
