package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// SnapshotOptions controls snapshot export.
type SnapshotOptions struct {
	Path       string // Output path; format inferred from extension when Format empty
	Format     string // "svg" or "png" (case-insensitive)
	Title      string
	Source     string // Data source location shown in the header
	Forest     *hierarchy.Forest
	Categories []model.CategoryStat
	// MaxBars caps the category chart (default 12).
	MaxBars int
	// Levels is how many hierarchy levels are drawn (default 3).
	Levels int
	// MaxPerLevel caps the cards per level (default 10).
	MaxPerLevel int
}

// SaveSnapshot renders the category chart and a summary of the top levels of
// the forest as a static SVG or PNG.
func SaveSnapshot(opts SnapshotOptions) error {
	if opts.Forest.Empty() && len(opts.Categories) == 0 {
		return fmt.Errorf("nothing to export: no hierarchy and no categories")
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".png":
			format = "png"
		default:
			format = "svg"
			if opts.Path != "" && filepath.Ext(opts.Path) == "" {
				opts.Path += ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	layout := buildLayout(opts)
	if format == "png" {
		return renderPNG(opts.Path, layout)
	}
	file, err := os.Create(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()
	return renderSVGToWriter(file, layout)
}

// --- layout computation ----------------------------------------------------

type layoutCard struct {
	ID       string
	ParentID string
	Name     string
	Type     model.NodeType
	Level    int
	Info     string
	X, Y     float64
}

type layoutBar struct {
	Label string
	Count int
	Width float64
	Y     float64
}

type layoutResult struct {
	Cards   []layoutCard
	Bars    []layoutBar
	Width   int
	Height  int
	Header  float64
	ChartX  float64
	ForestX float64
	Summary summaryInfo
}

type summaryInfo struct {
	Title      string
	Source     string
	Nodes      int
	Roots      int
	Height     int
	Elements   int
	Categories int
	Hidden     int
}

const (
	padding      = 36.0
	headerHeight = 120.0
	barRowH      = 22.0
	barMaxW      = 300.0
	barLabelW    = 150.0
	cardW        = 180.0
	cardH        = 58.0
	cardColGap   = 60.0
	cardRowGap   = 16.0
)

func buildLayout(opts SnapshotOptions) layoutResult {
	maxBars := opts.MaxBars
	if maxBars <= 0 {
		maxBars = 12
	}
	levels := opts.Levels
	if levels <= 0 {
		levels = 3
	}
	perLevel := opts.MaxPerLevel
	if perLevel <= 0 {
		perLevel = 10
	}

	top := padding + headerHeight

	// Category bars, largest first as delivered by the source.
	cats := opts.Categories
	if len(cats) > maxBars {
		cats = cats[:maxBars]
	}
	maxCount := 0
	for _, c := range cats {
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}
	bars := make([]layoutBar, 0, len(cats))
	for i, c := range cats {
		w := 0.0
		if maxCount > 0 {
			w = barMaxW * float64(c.Count) / float64(maxCount)
		}
		bars = append(bars, layoutBar{
			Label: truncate(c.Category, 20),
			Count: c.Count,
			Width: w,
			Y:     top + 24 + float64(i)*barRowH,
		})
	}

	chartX := padding
	forestX := padding
	if len(bars) > 0 {
		forestX = padding + barLabelW + barMaxW + 80
	}

	// Forest cards, one column per level, in sibling order.
	var cards []layoutCard
	hidden := 0
	frontier := opts.Forest.Children("")
	maxRows := 0
	for lvl := 0; lvl < levels && len(frontier) > 0; lvl++ {
		if len(frontier) > perLevel {
			hidden += len(frontier) - perLevel
			frontier = frontier[:perLevel]
		}
		if len(frontier) > maxRows {
			maxRows = len(frontier)
		}
		var next []*model.Node
		for i, n := range frontier {
			cards = append(cards, layoutCard{
				ID:       n.ID,
				ParentID: n.ParentID,
				Name:     truncate(n.Name, 24),
				Type:     n.Type,
				Level:    lvl,
				Info:     cardInfo(n),
				X:        forestX + float64(lvl)*(cardW+cardColGap),
				Y:        top + 24 + float64(i)*(cardH+cardRowGap),
			})
			next = append(next, opts.Forest.Children(n.ID)...)
		}
		frontier = next
	}

	width := int(forestX + float64(levels)*(cardW+cardColGap) + padding)
	if width < 640 {
		width = 640
	}
	chartH := 24 + float64(len(bars))*barRowH
	forestH := 24 + float64(maxRows)*(cardH+cardRowGap)
	height := int(top + max(chartH, forestH) + padding)
	if height < 400 {
		height = 400
	}

	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = "BIM Snapshot"
	}
	sum, _ := opts.Forest.Summarize("")
	return layoutResult{
		Cards:   cards,
		Bars:    bars,
		Width:   width,
		Height:  height,
		Header:  headerHeight,
		ChartX:  chartX,
		ForestX: forestX,
		Summary: summaryInfo{
			Title:      title,
			Source:     opts.Source,
			Nodes:      opts.Forest.Len(),
			Roots:      len(opts.Forest.Children("")),
			Height:     sum.Height,
			Elements:   sum.Elements,
			Categories: len(opts.Categories),
			Hidden:     hidden,
		},
	}
}

func cardInfo(n *model.Node) string {
	info := fmt.Sprintf("%s  %d children", n.Type.Badge(), n.ChildCount)
	if n.ElementCount > 0 {
		info += fmt.Sprintf("  %d el", n.ElementCount)
	}
	return info
}

func (l layoutResult) summaryLines() []string {
	s := l.Summary
	lines := []string{
		fmt.Sprintf("nodes: %d  roots: %d  depth: %d", s.Nodes, s.Roots, s.Height),
		fmt.Sprintf("elements: %d  categories: %d", s.Elements, s.Categories),
	}
	if s.Source != "" {
		lines = append([]string{"source: " + truncate(s.Source, 80)}, lines...)
	}
	if s.Hidden > 0 {
		lines = append(lines, fmt.Sprintf("%d nodes not shown", s.Hidden))
	}
	return lines
}

// --- rendering -------------------------------------------------------------

var (
	colorProject  = color.RGBA{0xe1, 0xbe, 0xe7, 0xff}
	colorSite     = color.RGBA{0xc8, 0xe6, 0xc9, 0xff}
	colorBuilding = color.RGBA{0xbb, 0xde, 0xfb, 0xff}
	colorStorey   = color.RGBA{0xff, 0xf3, 0xe0, 0xff}
	colorSpace    = color.RGBA{0xff, 0xcd, 0xd2, 0xff}
	colorOther    = color.RGBA{0xcf, 0xd8, 0xdc, 0xff}
	colorBar      = color.RGBA{0x6b, 0x80, 0xbf, 0xff}
	colorStroke   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorEdge     = color.RGBA{0x90, 0x9c, 0xc2, 0xff}
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
)

func typeColor(t model.NodeType) color.RGBA {
	switch t {
	case model.TypeProject:
		return colorProject
	case model.TypeSite:
		return colorSite
	case model.TypeBuilding:
		return colorBuilding
	case model.TypeStorey:
		return colorStorey
	case model.TypeSpace:
		return colorSpace
	default:
		return colorOther
	}
}

func cardIndex(cards []layoutCard) map[string]layoutCard {
	idx := make(map[string]layoutCard, len(cards))
	for _, c := range cards {
		idx[c.ID] = c
	}
	return idx
}

func renderPNG(path string, layout layoutResult) error {
	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(layout.Width)-32, layout.Header-24, 10)
	dc.Fill()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetColor(colorText)
	dc.DrawStringAnchored(layout.Summary.Title, 32, 40, 0, 0.5)
	dc.SetColor(colorSubtle)
	for i, line := range layout.summaryLines() {
		dc.DrawStringAnchored(line, 32, 60+float64(i)*18, 0, 0.5)
	}

	top := padding + layout.Header
	if len(layout.Bars) > 0 {
		dc.SetColor(colorText)
		dc.DrawStringAnchored("Elements by category", layout.ChartX, top, 0, 0.5)
		for _, b := range layout.Bars {
			dc.SetColor(colorSubtle)
			dc.DrawStringAnchored(b.Label, layout.ChartX, b.Y+barRowH/2-3, 0, 0.5)
			dc.SetColor(colorBar)
			dc.DrawRectangle(layout.ChartX+barLabelW, b.Y, b.Width, barRowH-6)
			dc.Fill()
			dc.SetColor(colorText)
			dc.DrawStringAnchored(fmt.Sprint(b.Count), layout.ChartX+barLabelW+b.Width+6, b.Y+barRowH/2-3, 0, 0.5)
		}
	}

	if len(layout.Cards) > 0 {
		dc.SetColor(colorText)
		dc.DrawStringAnchored("Hierarchy", layout.ForestX, top, 0, 0.5)
	}
	idx := cardIndex(layout.Cards)
	dc.SetColor(colorEdge)
	dc.SetLineWidth(1.5)
	for _, c := range layout.Cards {
		p, ok := idx[c.ParentID]
		if !ok {
			continue
		}
		dc.DrawLine(p.X+cardW, p.Y+cardH/2, c.X, c.Y+cardH/2)
		dc.Stroke()
	}
	for _, c := range layout.Cards {
		dc.SetColor(typeColor(c.Type))
		dc.DrawRoundedRectangle(c.X, c.Y, cardW, cardH, 8)
		dc.Fill()
		dc.SetColor(colorStroke)
		dc.SetLineWidth(1.2)
		dc.DrawRoundedRectangle(c.X, c.Y, cardW, cardH, 8)
		dc.Stroke()
		dc.SetColor(colorText)
		dc.DrawStringAnchored(c.Name, c.X+10, c.Y+18, 0, 0.5)
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(c.Info, c.X+10, c.Y+40, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func renderSVGToWriter(w io.Writer, layout layoutResult) error {
	mono := "font-family:monospace"
	canvas := svg.New(w)
	canvas.Start(layout.Width, layout.Height)
	canvas.Rect(0, 0, layout.Width, layout.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, layout.Width-32, int(layout.Header-24), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))

	canvas.Text(32, 44, layout.Summary.Title, fmt.Sprintf("fill:%s;font-size:16px;%s;font-weight:bold", css(colorText), mono))
	for i, line := range layout.summaryLines() {
		canvas.Text(32, 64+i*18, line, fmt.Sprintf("fill:%s;font-size:13px;%s", css(colorSubtle), mono))
	}

	top := int(padding + layout.Header)
	if len(layout.Bars) > 0 {
		x := int(layout.ChartX)
		canvas.Text(x, top, "Elements by category", fmt.Sprintf("fill:%s;font-size:13px;%s;font-weight:bold", css(colorText), mono))
		for _, b := range layout.Bars {
			y := int(b.Y)
			canvas.Text(x, y+12, b.Label, fmt.Sprintf("fill:%s;font-size:12px;%s", css(colorSubtle), mono))
			canvas.Rect(x+int(barLabelW), y, int(b.Width), int(barRowH-6), fmt.Sprintf("fill:%s", css(colorBar)))
			canvas.Text(x+int(barLabelW+b.Width)+6, y+12, fmt.Sprint(b.Count), fmt.Sprintf("fill:%s;font-size:12px;%s", css(colorText), mono))
		}
	}

	if len(layout.Cards) > 0 {
		canvas.Text(int(layout.ForestX), top, "Hierarchy", fmt.Sprintf("fill:%s;font-size:13px;%s;font-weight:bold", css(colorText), mono))
	}
	idx := cardIndex(layout.Cards)
	for _, c := range layout.Cards {
		p, ok := idx[c.ParentID]
		if !ok {
			continue
		}
		canvas.Line(int(p.X+cardW), int(p.Y+cardH/2), int(c.X), int(c.Y+cardH/2),
			fmt.Sprintf("stroke:%s;stroke-width:1.5", css(colorEdge)))
	}
	for _, c := range layout.Cards {
		x, y := int(c.X), int(c.Y)
		canvas.Roundrect(x, y, int(cardW), int(cardH), 8, 8,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1.2", css(typeColor(c.Type)), css(colorStroke)))
		canvas.Text(x+10, y+22, c.Name, fmt.Sprintf("fill:%s;font-size:13px;%s;font-weight:bold", css(colorText), mono))
		canvas.Text(x+10, y+44, c.Info, fmt.Sprintf("fill:%s;font-size:11px;%s", css(colorSubtle), mono))
	}

	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
