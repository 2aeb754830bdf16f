// Package datasource provides the backends bimnav reads BIM data from: the
// REST/query API of a semantic BIM store, or a local SQLite or JSONL export
// of the same data. Open detects the backend from the source string.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/bimnav/pkg/loader"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// Error kinds callers branch on.
var (
	// ErrUnavailable wraps transport and storage failures.
	ErrUnavailable = errors.New("data source unavailable")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned for operations a backend cannot serve.
	ErrUnsupported = errors.New("not supported by this data source")
)

// Kind identifies the backend type.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindSQLite Kind = "sqlite"
	KindJSONL  Kind = "jsonl"
)

// DefaultPageSize is the element page size when a query leaves Limit unset.
const DefaultPageSize = 50

// ElementQuery selects one page of elements.
type ElementQuery struct {
	Category string
	Limit    int
	Offset   int
}

func (q ElementQuery) normalized() ElementQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Source is a read-only view of a BIM data store.
type Source interface {
	Kind() Kind
	Location() string

	// ListRows returns the flat hierarchy rows. scope restricts the result to
	// the subtree rooted at that node id (empty means everything); maxDepth
	// is passed through as a hint, the tree builder enforces it.
	ListRows(ctx context.Context, scope string, maxDepth int) ([]model.Row, error)
	// LookupDetail returns the structured detail of one node or element.
	LookupDetail(ctx context.Context, id string) (model.Record, error)
	// LookupAggregate returns subtree summary statistics for a node.
	LookupAggregate(ctx context.Context, id string) (model.Record, error)

	Health(ctx context.Context) (model.Health, error)
	Statistics(ctx context.Context) (model.Statistics, error)
	Categories(ctx context.Context) ([]model.CategoryStat, error)
	Elements(ctx context.Context, q ElementQuery) ([]model.Element, error)
	Query(ctx context.Context, text string) (model.QueryResult, error)

	Close() error
}

// Options configures Open.
type Options struct {
	// Timeout bounds each HTTP request. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
	// Delimiter is the path delimiter used to interpret path rows.
	Delimiter string
	// Warn receives non-fatal parse warnings. Nil discards them.
	Warn func(msg string)
}

func (o Options) warn(format string, args ...any) {
	if o.Warn != nil {
		o.Warn(fmt.Sprintf(format, args...))
	}
}

// Descriptor describes a source without opening it.
type Descriptor struct {
	Kind     Kind      `json:"kind"`
	Location string    `json:"location"`
	ModTime  time.Time `json:"mod_time,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

// Local reports whether the source is a file that can be watched.
func (d Descriptor) Local() bool {
	return d.Kind == KindSQLite || d.Kind == KindJSONL
}

// String returns a human-readable description of the source.
func (d Descriptor) String() string {
	if !d.Local() {
		return fmt.Sprintf("%s (%s)", d.Location, d.Kind)
	}
	return fmt.Sprintf("%s (%s, %d bytes, mod=%s)",
		d.Location, d.Kind, d.Size, d.ModTime.Format(time.RFC3339))
}

// DetectKind classifies a source string: http(s) URLs are REST APIs,
// .db/.sqlite/.sqlite3 files are SQLite and .jsonl/.ndjson files are JSONL.
func DetectKind(loc string) (Kind, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", fmt.Errorf("empty data source")
	}
	lower := strings.ToLower(loc)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return KindHTTP, nil
	}
	switch filepath.Ext(lower) {
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite, nil
	case ".jsonl", ".ndjson":
		return KindJSONL, nil
	}
	return "", fmt.Errorf("cannot infer data source type from %q", loc)
}

// Describe classifies loc and, for files, stats it. A directory resolves to
// the export file it contains.
func Describe(loc string) (Descriptor, error) {
	loc = strings.TrimSpace(loc)
	if info, err := os.Stat(loc); err == nil && info.IsDir() {
		found, err := loader.FindExport(loc)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		loc = found
	}
	kind, err := DetectKind(loc)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Kind: kind, Location: loc}
	if !d.Local() {
		return d, nil
	}
	abs, err := filepath.Abs(d.Location)
	if err == nil {
		d.Location = abs
	}
	info, err := os.Stat(d.Location)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.IsDir() {
		return d, fmt.Errorf("%w: %s is a directory", ErrUnavailable, d.Location)
	}
	d.ModTime = info.ModTime()
	d.Size = info.Size()
	return d, nil
}

// Open detects the backend for loc and opens it.
func Open(loc string, opts Options) (Source, error) {
	d, err := Describe(loc)
	if err != nil {
		return nil, err
	}
	var src Source
	switch d.Kind {
	case KindHTTP:
		src, err = NewHTTPSource(d.Location, opts)
	case KindSQLite:
		src, err = OpenSQLite(d.Location, opts)
	case KindJSONL:
		src, err = OpenJSONL(d.Location, opts)
	default:
		err = fmt.Errorf("unknown source type: %s", d.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source %s: %w", d.Kind, d.Location, err)
	}
	return src, nil
}
