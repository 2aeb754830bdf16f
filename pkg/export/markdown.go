package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// ReportInput is everything a markdown report is built from.
type ReportInput struct {
	Title      string
	Source     string
	Health     model.Health
	Statistics model.Statistics
	Forest     *hierarchy.Forest
	// OutlineDepth limits the hierarchy outline (default 4 levels).
	OutlineDepth int
}

// GenerateMarkdown creates a markdown report: store totals, the category
// table and an outline of the hierarchy.
func GenerateMarkdown(in ReportInput) string {
	var sb strings.Builder

	title := in.Title
	if strings.TrimSpace(title) == "" {
		title = "BIM Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "*Generated: %s*\n\n", time.Now().Format(time.RFC1123))
	if in.Source != "" {
		fmt.Fprintf(&sb, "Source: `%s`\n\n", in.Source)
	}

	st := in.Statistics
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Count |\n|--------|-------|\n")
	if in.Health.Status != "" {
		fmt.Fprintf(&sb, "| Status | %s |\n", in.Health.Status)
	}
	fmt.Fprintf(&sb, "| Triples | %d |\n", st.TotalTriples)
	fmt.Fprintf(&sb, "| Elements | %d |\n", st.TotalElements)
	fmt.Fprintf(&sb, "| Categories | %d |\n", st.TotalCategories)
	fmt.Fprintf(&sb, "| Buildings | %d |\n", st.Buildings)
	fmt.Fprintf(&sb, "| Storeys | %d |\n", st.Storeys)
	fmt.Fprintf(&sb, "| Hierarchy nodes | %d |\n\n", in.Forest.Len())

	if len(st.Categories) > 0 {
		sb.WriteString("## Categories\n\n")
		sb.WriteString("| Category | Elements | Share |\n|----------|----------|-------|\n")
		for _, c := range st.Categories {
			share := 0.0
			if st.TotalElements > 0 {
				share = float64(c.Count) / float64(st.TotalElements)
			}
			fmt.Fprintf(&sb, "| %s | %d | %s %.0f%% |\n", escapeCell(c.Category), c.Count, barChart(share), share*100)
		}
		sb.WriteString("\n")
	}

	if !in.Forest.Empty() {
		depth := in.OutlineDepth
		if depth <= 0 {
			depth = 4
		}
		sb.WriteString("## Hierarchy\n\n")
		in.Forest.Walk(func(n *model.Node) bool {
			indent := strings.Repeat("  ", n.Level)
			fmt.Fprintf(&sb, "%s- **%s** `%s`", indent, n.Name, n.Type.Badge())
			if n.DescendantCount > 0 {
				fmt.Fprintf(&sb, " (%d below)", n.DescendantCount)
			}
			if n.ElementCount > 0 {
				fmt.Fprintf(&sb, ", %d elements", n.ElementCount)
			}
			sb.WriteString("\n")
			return n.Level+1 < depth
		})
		sb.WriteString("\n")
		if r := in.Forest.Report; r.Malformed+r.TooDeep+r.Duplicates+r.CyclesCut > 0 {
			fmt.Fprintf(&sb, "> %d malformed, %d beyond max depth, %d duplicate ids, %d cycles cut\n\n",
				r.Malformed, r.TooDeep, r.Duplicates, r.CyclesCut)
		}
	}

	return sb.String()
}

// SaveMarkdownToFile writes the report to filename.
func SaveMarkdownToFile(in ReportInput, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(filename, []byte(GenerateMarkdown(in)), 0o644)
}

// NodeMarkdown renders the detail pane of a hierarchy node: its identity,
// the property sets in detail and the subtree statistics in aggregate.
// Either record may be nil.
func NodeMarkdown(n *model.Node, detail, aggregate model.Record) string {
	var sb strings.Builder
	if n == nil {
		return "_Nothing selected_\n"
	}
	fmt.Fprintf(&sb, "## %s\n\n", n.Name)
	fmt.Fprintf(&sb, "`%s` %s\n\n", n.Type.Badge(), n.Type)

	sb.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&sb, "| ID | `%s` |\n", escapeCell(n.ID))
	if n.GlobalID != "" {
		fmt.Fprintf(&sb, "| GlobalId | `%s` |\n", escapeCell(n.GlobalID))
	}
	fmt.Fprintf(&sb, "| Level | %d |\n", n.Level)
	fmt.Fprintf(&sb, "| Children | %d |\n", n.ChildCount)
	fmt.Fprintf(&sb, "| Descendants | %d |\n", n.DescendantCount)
	if n.ElementCount > 0 {
		fmt.Fprintf(&sb, "| Elements | %d |\n", n.ElementCount)
	}
	sb.WriteString("\n")

	if aggregate != nil {
		sb.WriteString("### Subtree\n\n")
		sb.WriteString("| Metric | Value |\n|--------|-------|\n")
		for _, key := range []string{"nodes", "leaves", "height", "elements", "max_fanout"} {
			if v := aggregate.String(key); v != "" {
				fmt.Fprintf(&sb, "| %s | %s |\n", key, v)
			}
		}
		if v, ok := aggregate["mean_fanout"].(float64); ok {
			fmt.Fprintf(&sb, "| mean_fanout | %.2f |\n", v)
		}
		if byType, ok := aggregate["by_type"].(map[string]any); ok && len(byType) > 0 {
			keys := make([]string, 0, len(byType))
			for k := range byType {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s %v", model.NodeType(k).Badge(), byType[k]))
			}
			fmt.Fprintf(&sb, "| by type | %s |\n", strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}

	psets := 0
	for _, key := range detail.Keys() {
		props, ok := detail[key].(map[string]any)
		if !ok || len(props) == 0 {
			continue
		}
		psets++
		fmt.Fprintf(&sb, "### %s\n\n", key)
		sb.WriteString("| Property | Value |\n|----------|-------|\n")
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := "-"
			if props[name] != nil {
				v = truncateString(fmt.Sprint(props[name]), 60)
			}
			fmt.Fprintf(&sb, "| %s | %s |\n", escapeCell(name), escapeCell(v))
		}
		sb.WriteString("\n")
	}
	if detail != nil && psets == 0 {
		sb.WriteString("_No property sets_\n")
	}
	return sb.String()
}

// ElementMarkdown renders the detail of one element.
func ElementMarkdown(e model.Element, detail model.Record) string {
	n := &model.Node{ID: e.URI, Name: e.DisplayName(), Type: model.NodeType(e.Category), GlobalID: e.GlobalID}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", n.Name)
	sb.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&sb, "| URI | `%s` |\n", escapeCell(e.URI))
	if e.Category != "" {
		fmt.Fprintf(&sb, "| Category | %s |\n", escapeCell(e.Category))
	}
	if e.OriginalType != "" {
		fmt.Fprintf(&sb, "| IFC type | %s |\n", escapeCell(e.OriginalType))
	}
	if e.GlobalID != "" {
		fmt.Fprintf(&sb, "| GlobalId | `%s` |\n", escapeCell(e.GlobalID))
	}
	sb.WriteString("\n")
	body := NodeMarkdown(n, detail, nil)
	// Drop the node header block; keep the property sets.
	if i := strings.Index(body, "### "); i >= 0 {
		sb.WriteString(body[i:])
	} else if detail != nil {
		sb.WriteString("_No property sets_\n")
	}
	return sb.String()
}

// barChart creates a mini bar for a 0-1 value
func barChart(value float64) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * 4)
	switch filled {
	case 0:
		return "░░░░"
	case 1:
		return "█░░░"
	case 2:
		return "██░░"
	case 3:
		return "███░"
	default:
		return "████"
	}
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
