// Package export writes offline copies and reports of a BIM data source:
// SQLite snapshots readable by the sqlite source, markdown reports and
// SVG/PNG snapshots of the hierarchy and category chart.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/bimnav/internal/datasource"
	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// SchemaVersion is written to the meta table of every snapshot.
const SchemaVersion = 1

// SQLiteExportConfig tunes a snapshot export.
type SQLiteExportConfig struct {
	// PageSize is the element page requested per call.
	PageSize int
	// MaxElements stops paging after this many elements. Zero means all.
	MaxElements int
	// WithProperties fetches the property sets of every node and element
	// carrying a global id.
	WithProperties bool
	// Concurrency bounds parallel property lookups.
	Concurrency int
}

// DefaultSQLiteExportConfig returns the default export settings.
func DefaultSQLiteExportConfig() SQLiteExportConfig {
	return SQLiteExportConfig{
		PageSize:       500,
		WithProperties: true,
		Concurrency:    8,
	}
}

// SQLiteSummary counts what an export wrote.
type SQLiteSummary struct {
	Nodes      int           `json:"nodes"`
	Elements   int           `json:"elements"`
	Properties int           `json:"properties"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

// SQLiteExporter copies a data source into a SQLite snapshot.
type SQLiteExporter struct {
	Source datasource.Source
	Config SQLiteExportConfig
}

// NewSQLiteExporter creates an exporter for src with default settings.
func NewSQLiteExporter(src datasource.Source) *SQLiteExporter {
	return &SQLiteExporter{Source: src, Config: DefaultSQLiteExportConfig()}
}

type propertyRow struct {
	gid, pset, name, value string
}

// Export writes the snapshot to path, replacing any existing file.
func (e *SQLiteExporter) Export(ctx context.Context, path string) (SQLiteSummary, error) {
	start := time.Now()
	var sum SQLiteSummary
	if e.Source == nil {
		return sum, fmt.Errorf("no data source")
	}

	rows, err := e.Source.ListRows(ctx, "", 0)
	if err != nil {
		return sum, fmt.Errorf("list hierarchy: %w", err)
	}
	elements, err := e.fetchElements(ctx)
	if err != nil {
		return sum, fmt.Errorf("list elements: %w", err)
	}
	var props []propertyRow
	if e.Config.WithProperties {
		props, sum.Skipped, err = e.fetchProperties(ctx, rows, elements)
		if err != nil {
			return sum, fmt.Errorf("fetch properties: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return sum, fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return sum, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, datasource.Schema); err != nil {
		return sum, fmt.Errorf("create schema: %w", err)
	}
	if err := insertNodes(ctx, db, rows); err != nil {
		return sum, fmt.Errorf("insert nodes: %w", err)
	}
	if err := insertElements(ctx, db, elements); err != nil {
		return sum, fmt.Errorf("insert elements: %w", err)
	}
	if err := insertProperties(ctx, db, props); err != nil {
		return sum, fmt.Errorf("insert properties: %w", err)
	}
	if err := e.insertMeta(ctx, db, len(rows), len(elements)); err != nil {
		return sum, fmt.Errorf("insert meta: %w", err)
	}

	sum.Nodes = len(rows)
	sum.Elements = len(elements)
	sum.Properties = len(props)
	sum.Duration = time.Since(start)
	debug.LogTiming("export sqlite "+path, sum.Duration)
	return sum, nil
}

func (e *SQLiteExporter) fetchElements(ctx context.Context) ([]model.Element, error) {
	pageSize := e.Config.PageSize
	if pageSize <= 0 {
		pageSize = datasource.DefaultPageSize
	}
	var all []model.Element
	for offset := 0; ; offset += pageSize {
		page, err := e.Source.Elements(ctx, datasource.ElementQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if e.Config.MaxElements > 0 && len(all) >= e.Config.MaxElements {
			return all[:e.Config.MaxElements], nil
		}
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// fetchProperties looks up property sets in parallel. Ids the source does
// not know are counted as skipped; any other failure aborts the export.
func (e *SQLiteExporter) fetchProperties(ctx context.Context, rows []model.Row, elements []model.Element) ([]propertyRow, int, error) {
	type target struct{ lookup, gid string }
	seen := make(map[string]bool)
	var targets []target
	for _, r := range rows {
		if r.GlobalID != "" && !seen[r.GlobalID] {
			seen[r.GlobalID] = true
			targets = append(targets, target{lookup: r.ID, gid: r.GlobalID})
		}
	}
	for _, el := range elements {
		if el.GlobalID != "" && !seen[el.GlobalID] {
			seen[el.GlobalID] = true
			targets = append(targets, target{lookup: el.GlobalID, gid: el.GlobalID})
		}
	}

	limit := e.Config.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		mu      sync.Mutex
		out     []propertyRow
		skipped int
	)
	for _, t := range targets {
		g.Go(func() error {
			rec, err := e.Source.LookupDetail(gctx, t.lookup)
			if errors.Is(err, datasource.ErrNotFound) {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			found := propertyRows(t.gid, rec)
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, skipped, err
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.gid != b.gid {
			return a.gid < b.gid
		}
		if a.pset != b.pset {
			return a.pset < b.pset
		}
		return a.name < b.name
	})
	return out, skipped, nil
}

// propertyRows flattens the property-set entries of a detail record. Every
// record key holding a map is a property set.
func propertyRows(gid string, rec model.Record) []propertyRow {
	var out []propertyRow
	for _, key := range rec.Keys() {
		props, ok := rec[key].(map[string]any)
		if !ok {
			continue
		}
		for name, v := range props {
			value := ""
			if v != nil {
				value = fmt.Sprint(v)
			}
			out = append(out, propertyRow{gid: gid, pset: key, name: name, value: value})
		}
	}
	return out
}

func insertNodes(ctx context.Context, db *sql.DB, rows []model.Row) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes (id, name, type, path, parent_id, child_count, descendant_count, element_count, global_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, string(r.Type), r.Path, r.ParentID,
			r.ChildCount, r.DescendantCount, r.ElementCount, r.GlobalID); err != nil {
			return fmt.Errorf("insert node %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func insertElements(ctx context.Context, db *sql.DB, elements []model.Element) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO elements (uri, name, category, original_type, global_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, el := range elements {
		if _, err := stmt.ExecContext(ctx, el.URI, el.Name, el.Category, el.OriginalType, el.GlobalID); err != nil {
			return fmt.Errorf("insert element %s: %w", el.URI, err)
		}
	}
	return tx.Commit()
}

func insertProperties(ctx context.Context, db *sql.DB, props []propertyRow) error {
	if len(props) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO properties (global_id, pset, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range props {
		if _, err := stmt.ExecContext(ctx, p.gid, p.pset, p.name, p.value); err != nil {
			return fmt.Errorf("insert property %s/%s: %w", p.gid, p.name, err)
		}
	}
	return tx.Commit()
}

func (e *SQLiteExporter) insertMeta(ctx context.Context, db *sql.DB, nodes, elements int) error {
	meta := map[string]string{
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"source":         e.Source.Location(),
		"source_kind":    string(e.Source.Kind()),
		"node_count":     strconv.Itoa(nodes),
		"element_count":  strconv.Itoa(elements),
		"schema_version": strconv.Itoa(SchemaVersion),
	}
	if h, err := e.Source.Health(ctx); err == nil && h.Triples > 0 {
		meta["triples"] = strconv.Itoa(h.Triples)
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, meta[k]); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	return nil
}
