package datasource

import (
	"context"
	"fmt"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/hierarchy"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// LoadForest lists the rows of scope from src and builds the forest.
// Rows are fetched without a depth limit so that a later change of
// opts.MaxDepth can rebuild from the same batch.
func LoadForest(ctx context.Context, src Source, scope string, opts hierarchy.Options) (*hierarchy.Forest, []model.Row, error) {
	rows, err := src.ListRows(ctx, scope, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("listing hierarchy from %s: %w", src.Location(), err)
	}
	forest := hierarchy.Build(rows, opts)
	r := forest.Report
	debug.Log("datasource: built forest from %s: rows=%d kept=%d malformed=%d too_deep=%d dup=%d cycles=%d",
		src.Location(), r.Rows, r.Kept, r.Malformed, r.TooDeep, r.Duplicates, r.CyclesCut)
	return forest, rows, nil
}

// ScopeRows keeps the rows of the subtree rooted at scope, scope included.
// An empty scope keeps everything; an unknown scope keeps nothing.
func ScopeRows(rows []model.Row, scope, delimiter string) []model.Row {
	if scope == "" {
		return rows
	}
	forest := hierarchy.Build(rows, hierarchy.Options{Delimiter: delimiter})
	if _, ok := forest.Node(scope); !ok {
		debug.Log("datasource: scope %q not in hierarchy", scope)
		return nil
	}
	keep := make(map[string]bool)
	for id := range forest.NodesByID {
		if id == scope {
			keep[id] = true
			continue
		}
		for _, a := range forest.Ancestors(id) {
			if a == scope {
				keep[id] = true
				break
			}
		}
	}
	out := make([]model.Row, 0, len(keep))
	for _, r := range rows {
		if keep[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// aggregateRecord summarizes the subtree of id over rows.
func aggregateRecord(rows []model.Row, id, delimiter string) (model.Record, error) {
	forest := hierarchy.Build(rows, hierarchy.Options{Delimiter: delimiter})
	sum, ok := forest.Summarize(id)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return sum.Record(), nil
}
