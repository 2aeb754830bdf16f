// Package loader reads BIM exports in JSONL form: one JSON object per line,
// each tagged with a kind (node, element, property or meta).
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// PreferredNames defines the lookup order when the source is a directory.
var PreferredNames = []string{"bimnav.db", "bimnav.jsonl", "model.db", "model.jsonl"}

// exportExts are the file extensions FindExport considers.
var exportExts = []string{".db", ".sqlite", ".sqlite3", ".jsonl", ".ndjson"}

// FindExport locates the export file in dir. Preferred names win, then the
// first non-empty candidate in name order. Backup and temp files are skipped.
func FindExport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.Contains(name, ".backup") || strings.HasSuffix(name, "~") ||
			strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range exportExts {
			if ext == want {
				candidates = append(candidates, name)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no BIM export found in %s", dir)
	}
	sort.Strings(candidates)

	for _, preferred := range PreferredNames {
		for _, name := range candidates {
			if name == preferred {
				path := filepath.Join(dir, name)
				if info, err := os.Stat(path); err == nil && info.Size() > 0 {
					return path, nil
				}
			}
		}
	}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path, nil
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

// DefaultMaxBufferSize is the default maximum line size (10MB).
const DefaultMaxBufferSize = 1024 * 1024 * 10

// ParseOptions configures Parse.
type ParseOptions struct {
	// WarningHandler is called with warning messages (e.g., malformed JSON).
	// If nil, warnings are printed to os.Stderr.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize.
	BufferSize int
}

// Line kinds.
const (
	KindNode     = "node"
	KindElement  = "element"
	KindProperty = "property"
	KindMeta     = "meta"
)

// Dataset is everything read from one export.
type Dataset struct {
	Rows     []model.Row
	Elements []model.Element
	// Properties maps global id -> property set -> property name -> value.
	Properties map[string]map[string]map[string]any
	Meta       map[string]string
	Skipped    int
}

func newDataset() *Dataset {
	return &Dataset{
		Properties: make(map[string]map[string]map[string]any),
		Meta:       make(map[string]string),
	}
}

// line is the union of every field any kind of line can carry.
type line struct {
	Kind string `json:"kind"`

	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Path            string `json:"path"`
	Parent          string `json:"parent"`
	ChildCount      int    `json:"child_count"`
	DescendantCount int    `json:"descendant_count"`
	ElementCount    int    `json:"element_count"`
	GlobalID        string `json:"global_id"`

	URI          string `json:"uri"`
	Category     string `json:"category"`
	OriginalType string `json:"original_type"`

	PSet  string `json:"pset"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// kind infers a missing kind: rows with a uri are elements, everything
// else is a node.
func (l *line) kind() string {
	if l.Kind != "" {
		return strings.ToLower(l.Kind)
	}
	if l.URI != "" {
		return KindElement
	}
	return KindNode
}

// LoadFile reads an export from path.
func LoadFile(path string, opts ParseOptions) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()
	return Parse(file, opts)
}

// Parse reads JSONL content. Malformed lines and invalid nodes are skipped
// with a warning; only read errors abort.
func Parse(r io.Reader, opts ParseOptions) (*Dataset, error) {
	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)

	warn := opts.WarningHandler
	if warn == nil {
		warn = func(msg string) {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
		}
	}

	ds := newDataset()
	lineNum := 0
	for {
		lineNum++
		// ReadLine sets isPrefix when the line did not fit the buffer.
		raw, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading export at line %d: %w", lineNum, err)
		}

		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			ds.Skipped++
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return nil, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		raw = bytes.TrimSpace(raw)
		if lineNum == 1 {
			raw = stripBOM(raw)
		}
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			warn(fmt.Sprintf("skipping malformed JSON on line %d: %v", lineNum, err))
			ds.Skipped++
			continue
		}
		if err := ds.add(&l); err != nil {
			warn(fmt.Sprintf("skipping line %d: %v", lineNum, err))
			ds.Skipped++
		}
	}
	return ds, nil
}

func (ds *Dataset) add(l *line) error {
	switch l.kind() {
	case KindNode:
		row := model.Row{
			ID:              l.ID,
			Name:            l.Name,
			Type:            model.NodeType(l.Type),
			Path:            l.Path,
			ParentID:        l.Parent,
			ChildCount:      l.ChildCount,
			DescendantCount: l.DescendantCount,
			ElementCount:    l.ElementCount,
			GlobalID:        l.GlobalID,
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("invalid node: %w", err)
		}
		ds.Rows = append(ds.Rows, row)
	case KindElement:
		if l.URI == "" {
			return fmt.Errorf("element has no uri")
		}
		ds.Elements = append(ds.Elements, model.Element{
			URI:          l.URI,
			Name:         l.Name,
			Category:     l.Category,
			OriginalType: firstNonEmpty(l.OriginalType, l.Type),
			GlobalID:     l.GlobalID,
		})
	case KindProperty:
		if l.GlobalID == "" || l.Name == "" {
			return fmt.Errorf("property needs global_id and name")
		}
		pset := firstNonEmpty(l.PSet, "Default")
		if ds.Properties[l.GlobalID] == nil {
			ds.Properties[l.GlobalID] = make(map[string]map[string]any)
		}
		if ds.Properties[l.GlobalID][pset] == nil {
			ds.Properties[l.GlobalID][pset] = make(map[string]any)
		}
		ds.Properties[l.GlobalID][pset][l.Name] = l.Value
	case KindMeta:
		if l.Key == "" {
			return fmt.Errorf("meta line has no key")
		}
		ds.Meta[l.Key] = fmt.Sprint(l.Value)
	default:
		return fmt.Errorf("unknown kind %q", l.Kind)
	}
	return nil
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
