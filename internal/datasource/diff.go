package datasource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// RowDiff describes how a reloaded hierarchy batch differs from the previous one.
type RowDiff struct {
	// Added holds ids present only in the new batch
	Added []string
	// Removed holds ids present only in the old batch
	Removed []string
	// Changed holds rows whose name, type or parent link changed
	Changed []RowChange
	CountA  int
	CountB  int
}

// RowChange is one field that differs between two versions of a row.
type RowChange struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// HasChanges reports whether the batches differ.
func (d RowDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// Summary returns a one-line description for the status bar.
func (d RowDiff) Summary() string {
	if !d.HasChanges() {
		return fmt.Sprintf("no changes (%d nodes)", d.CountB)
	}
	var parts []string
	if n := len(d.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(d.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	if n := len(d.Changed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	return fmt.Sprintf("%s (%d -> %d nodes)", strings.Join(parts, ", "), d.CountA, d.CountB)
}

// DiffRows compares two row batches by id. Later duplicates win, as in the
// tree builder. Result slices are sorted by id.
func DiffRows(oldRows, newRows []model.Row) RowDiff {
	mapA := indexRows(oldRows)
	mapB := indexRows(newRows)
	diff := RowDiff{CountA: len(mapA), CountB: len(mapB)}

	for id := range mapA {
		if _, ok := mapB[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	for id, b := range mapB {
		a, ok := mapA[id]
		if !ok {
			diff.Added = append(diff.Added, id)
			continue
		}
		if a.Name != b.Name {
			diff.Changed = append(diff.Changed, RowChange{ID: id, Field: "name", Old: a.Name, New: b.Name})
		}
		if a.Type != b.Type {
			diff.Changed = append(diff.Changed, RowChange{ID: id, Field: "type", Old: string(a.Type), New: string(b.Type)})
		}
		if a.ParentID != b.ParentID || a.Path != b.Path {
			diff.Changed = append(diff.Changed, RowChange{ID: id, Field: "parent", Old: a.ParentID + a.Path, New: b.ParentID + b.Path})
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Slice(diff.Changed, func(i, j int) bool {
		if diff.Changed[i].ID != diff.Changed[j].ID {
			return diff.Changed[i].ID < diff.Changed[j].ID
		}
		return diff.Changed[i].Field < diff.Changed[j].Field
	})
	return diff
}

func indexRows(rows []model.Row) map[string]model.Row {
	m := make(map[string]model.Row, len(rows))
	for _, r := range rows {
		if r.Validate() != nil {
			continue
		}
		m[r.ID] = r
	}
	return m
}
