package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/workspace"
)

// Format is an export output kind.
type Format string

const (
	FormatSVG      Format = "svg"
	FormatPNG      Format = "png"
	FormatMarkdown Format = "md"
	FormatSQLite   Format = "sqlite"
	FormatJSON     Format = "json"
)

// FormatFor picks the format from the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		return FormatSVG, nil
	case ".png":
		return FormatPNG, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("cannot export to %q: use .svg, .png, .md, .db or .json", path)
}

// Bundle is the loaded state an export is rendered from.
type Bundle struct {
	Title    string
	Source   datasource.Source
	Forest   *hierarchy.Forest
	Overview workspace.Overview
}

func (b Bundle) location() string {
	if b.Source == nil {
		return ""
	}
	return b.Source.Location()
}

// Write renders b to path in the format its extension names.
func Write(ctx context.Context, path string, b Bundle) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatSVG, FormatPNG:
		return SaveSnapshot(SnapshotOptions{
			Path:       path,
			Format:     string(format),
			Title:      b.Title,
			Source:     b.location(),
			Forest:     b.Forest,
			Categories: b.Overview.Categories,
		})
	case FormatMarkdown:
		return SaveMarkdownToFile(ReportInput{
			Title:      b.Title,
			Source:     b.location(),
			Health:     b.Overview.Health,
			Statistics: b.Overview.Statistics,
			Forest:     b.Forest,
		}, path)
	case FormatSQLite:
		if b.Source == nil {
			return fmt.Errorf("sqlite export needs a data source")
		}
		if abs, err := filepath.Abs(path); err == nil {
			if src, err := filepath.Abs(b.Source.Location()); err == nil && src == abs {
				return fmt.Errorf("refusing to overwrite the source database %s", path)
			}
		}
		_, err := NewSQLiteExporter(b.Source).Export(ctx, path)
		return err
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create parent dir: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return WriteForestJSON(f, b.Forest)
	}
}

type forestDump struct {
	Report hierarchy.Report      `json:"report"`
	Nodes  int                   `json:"nodes"`
	Roots  []*hierarchy.TreeNode `json:"roots"`
}

// WriteForestJSON writes the forest as indented nested JSON.
func WriteForestJSON(w io.Writer, f *hierarchy.Forest) error {
	dump := forestDump{Nodes: f.Len(), Roots: f.Nested()}
	if f != nil {
		dump.Report = f.Report
	}
	if dump.Roots == nil {
		dump.Roots = []*hierarchy.TreeNode{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
