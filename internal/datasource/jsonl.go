package datasource

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/loader"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// JSONLSource serves a JSONL export from memory. The file is re-read when its
// size or modification time changes.
type JSONLSource struct {
	path string
	opts Options

	mu      sync.Mutex
	ds      *loader.Dataset
	modTime time.Time
	size    int64
}

// OpenJSONL reads the export at path.
func OpenJSONL(path string, opts Options) (*JSONLSource, error) {
	s := &JSONLSource{path: path, opts: opts}
	if _, err := s.dataset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONLSource) Kind() Kind       { return KindJSONL }
func (s *JSONLSource) Location() string { return s.path }
func (s *JSONLSource) Close() error     { return nil }

// dataset returns the parsed export, reloading it if the file changed.
func (s *JSONLSource) dataset() (*loader.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s.ds != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.ds, nil
	}

	defer metrics.Timer(metrics.SourceLoad)()
	warn := s.opts.Warn
	if warn == nil {
		warn = func(msg string) { debug.Log("datasource: %s", msg) }
	}
	ds, err := loader.LoadFile(s.path, loader.ParseOptions{WarningHandler: warn})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	debug.Log("datasource: loaded %s: %d nodes, %d elements, %d skipped",
		s.path, len(ds.Rows), len(ds.Elements), ds.Skipped)
	s.ds, s.modTime, s.size = ds, info.ModTime(), info.Size()
	return ds, nil
}

// ListRows returns the node lines.
func (s *JSONLSource) ListRows(ctx context.Context, scope string, maxDepth int) ([]model.Row, error) {
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	rows := make([]model.Row, len(ds.Rows))
	copy(rows, ds.Rows)
	return ScopeRows(rows, scope, s.opts.Delimiter), nil
}

// LookupDetail returns the node or element with id and its property sets.
func (s *JSONLSource) LookupDetail(ctx context.Context, id string) (model.Record, error) {
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	rec := model.Record{"id": id}
	gid := ""
	found := false
	for i := len(ds.Rows) - 1; i >= 0; i-- {
		r := ds.Rows[i]
		if r.ID == id {
			rec["name"], rec["type"], rec["element_count"] = r.Name, string(r.Type), r.ElementCount
			gid, found = r.GlobalID, true
			break
		}
	}
	if !found {
		for _, e := range ds.Elements {
			if e.URI == id || (e.GlobalID != "" && e.GlobalID == id) {
				rec["name"], rec["category"], rec["original_type"] = e.Name, e.Category, e.OriginalType
				gid, found = e.GlobalID, true
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if gid != "" {
		rec["global_id"] = gid
		for pset, props := range ds.Properties[gid] {
			m := make(map[string]any, len(props))
			for k, v := range props {
				m[k] = v
			}
			rec[pset] = m
		}
	}
	return rec, nil
}

// LookupAggregate summarizes the subtree of id.
func (s *JSONLSource) LookupAggregate(ctx context.Context, id string) (model.Record, error) {
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	return aggregateRecord(ds.Rows, id, s.opts.Delimiter)
}

// Health reports healthy as long as the file parses.
func (s *JSONLSource) Health(ctx context.Context) (model.Health, error) {
	ds, err := s.dataset()
	if err != nil {
		return model.Health{Status: "unavailable"}, err
	}
	triples, _ := strconv.Atoi(ds.Meta["triples"])
	return model.Health{Status: "healthy", Triples: triples}, nil
}

// Statistics computes totals from the loaded export.
func (s *JSONLSource) Statistics(ctx context.Context) (model.Statistics, error) {
	ds, err := s.dataset()
	if err != nil {
		return model.Statistics{}, err
	}
	st := model.Statistics{
		TotalElements: len(ds.Elements),
		Categories:    categoryStats(ds.Elements),
	}
	st.TotalTriples, _ = strconv.Atoi(ds.Meta["triples"])
	st.TotalCategories = len(st.Categories)
	for _, r := range ds.Rows {
		switch r.Type {
		case model.TypeBuilding:
			st.Buildings++
		case model.TypeStorey:
			st.Storeys++
		}
	}
	return st, nil
}

// Categories returns element counts per category, largest first.
func (s *JSONLSource) Categories(ctx context.Context) ([]model.CategoryStat, error) {
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	return categoryStats(ds.Elements), nil
}

// Elements pages through the elements in category and name order.
func (s *JSONLSource) Elements(ctx context.Context, q ElementQuery) ([]model.Element, error) {
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	q = q.normalized()
	var matched []model.Element
	for _, e := range ds.Elements {
		if q.Category == "" || e.Category == q.Category {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.URI < b.URI
	})
	if q.Offset >= len(matched) {
		return nil, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], nil
}

// Query is not available for JSONL exports.
func (s *JSONLSource) Query(ctx context.Context, text string) (model.QueryResult, error) {
	return model.QueryResult{}, fmt.Errorf("jsonl export: %w", ErrUnsupported)
}

func categoryStats(elems []model.Element) []model.CategoryStat {
	counts := make(map[string]int)
	for _, e := range elems {
		if e.Category != "" {
			counts[e.Category]++
		}
	}
	cats := make([]model.CategoryStat, 0, len(counts))
	for c, n := range counts {
		cats = append(cats, model.CategoryStat{Category: c, Count: n})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Count != cats[j].Count {
			return cats[i].Count > cats[j].Count
		}
		return cats[i].Category < cats[j].Category
	})
	return cats
}
