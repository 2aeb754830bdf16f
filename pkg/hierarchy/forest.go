// Package hierarchy turns flat, relationally linked rows into a forest.
//
// Rows link to their parent either by a delimited path ("Site/Building/L1")
// or by an explicit parent id. Build is a pure transform: it never mutates its
// input and a Forest is never updated incrementally; a new batch of rows (or a
// new depth bound) means a new Forest.
package hierarchy

import (
	"sort"
	"strings"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// DefaultDelimiter separates path segments when Options.Delimiter is empty.
const DefaultDelimiter = "/"

// Options configures Build.
type Options struct {
	// MaxDepth drops rows deeper than this many levels. Roots are depth 1.
	// Zero or negative means unbounded.
	MaxDepth int
	// Delimiter splits Row.Path into segments.
	Delimiter string
}

// Report counts what Build did with its input.
type Report struct {
	Rows       int `json:"rows"`
	Kept       int `json:"kept"`
	Malformed  int `json:"malformed"`
	TooDeep    int `json:"too_deep"`
	Duplicates int `json:"duplicates"`
	CyclesCut  int `json:"cycles_cut"`
}

// Forest is the result of Build: a node index, parent->children adjacency and
// the ordered root list. ChildrenByParent and Roots hold ids sorted by
// descendant count desc, child count desc, name asc, id asc.
type Forest struct {
	NodesByID        map[string]*model.Node
	ChildrenByParent map[string][]string
	Roots            []string
	Report           Report
	MaxDepth         int
}

type entry struct {
	row      model.Row
	segments []string // nil for parent-reference rows
	parent   string
	depth    int
}

// Build converts rows into a forest.
//
// Rows without id or name are skipped. A duplicate id replaces the earlier
// row. A parent that does not resolve within rows makes the row a root.
// Parent-reference cycles are cut at their smallest id, which becomes a root.
func Build(rows []model.Row, opts Options) *Forest {
	defer metrics.Timer(metrics.TreeBuild)()

	delim := opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}

	f := &Forest{
		NodesByID:        make(map[string]*model.Node, len(rows)),
		ChildrenByParent: make(map[string][]string),
		MaxDepth:         opts.MaxDepth,
	}
	f.Report.Rows = len(rows)
	if len(rows) == 0 {
		return f
	}

	// Step 1: validate and dedupe, keeping first-seen order for determinism.
	entries := make(map[string]*entry, len(rows))
	var ids []string
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			f.Report.Malformed++
			debug.Log("hierarchy: skipping malformed row: %v", err)
			continue
		}
		var segments []string
		if row.Path != "" {
			segments = splitPath(row.Path, delim)
			if len(segments) == 0 {
				f.Report.Malformed++
				debug.Log("hierarchy: skipping row %s with empty path %q", row.ID, row.Path)
				continue
			}
		}
		if _, dup := entries[row.ID]; dup {
			f.Report.Duplicates++
		} else {
			ids = append(ids, row.ID)
		}
		entries[row.ID] = &entry{row: row, segments: segments}
	}

	// Step 2: resolve parents.
	byPath := make(map[string]string)
	for _, id := range ids {
		if e := entries[id]; e.segments != nil {
			byPath[strings.Join(e.segments, delim)] = id
		}
	}
	resolved := make(map[string]bool, len(ids))
	for _, id := range ids {
		e := entries[id]
		if e.segments != nil {
			e.depth = len(e.segments)
			if n := len(e.segments); n > 1 {
				if pid, ok := byPath[strings.Join(e.segments[:n-1], delim)]; ok && pid != id {
					e.parent = pid
				}
			}
			resolved[id] = true
			continue
		}
		if p := e.row.ParentID; p != "" && p != id {
			if _, ok := entries[p]; ok {
				e.parent = p
			}
		}
	}

	// Step 3: depth of parent-reference rows.
	for _, id := range ids {
		f.Report.CyclesCut += resolveDepth(entries, id, resolved)
	}

	// Step 4: apply the depth bound and create nodes.
	for _, id := range ids {
		e := entries[id]
		if opts.MaxDepth > 0 && e.depth > opts.MaxDepth {
			f.Report.TooDeep++
			continue
		}
		f.NodesByID[id] = &model.Node{
			ID:              id,
			Name:            e.row.Name,
			Type:            e.row.Type,
			Level:           e.depth - 1,
			ParentID:        e.parent,
			ChildCount:      e.row.ChildCount,
			DescendantCount: e.row.DescendantCount,
			ElementCount:    e.row.ElementCount,
			GlobalID:        e.row.GlobalID,
		}
	}
	kept := make([]string, 0, len(f.NodesByID))
	for _, id := range ids {
		n, ok := f.NodesByID[id]
		if !ok {
			continue
		}
		kept = append(kept, id)
		if n.ParentID != "" {
			if _, ok := f.NodesByID[n.ParentID]; ok {
				f.ChildrenByParent[n.ParentID] = append(f.ChildrenByParent[n.ParentID], id)
				continue
			}
			n.ParentID = ""
		}
		f.Roots = append(f.Roots, id)
	}

	// Step 5: fill in counts the source did not provide.
	sort.SliceStable(kept, func(i, j int) bool {
		return f.NodesByID[kept[i]].Level > f.NodesByID[kept[j]].Level
	})
	descendants := make(map[string]int, len(kept))
	for _, id := range kept {
		if p := f.NodesByID[id].ParentID; p != "" {
			descendants[p] += descendants[id] + 1
		}
	}
	for id, n := range f.NodesByID {
		if n.ChildCount == 0 {
			n.ChildCount = len(f.ChildrenByParent[id])
		}
		if n.DescendantCount == 0 {
			n.DescendantCount = descendants[id]
		}
	}

	// Step 6: order siblings.
	f.sortIDs(f.Roots)
	for _, children := range f.ChildrenByParent {
		f.sortIDs(children)
	}

	f.Report.Kept = len(f.NodesByID)
	debug.Log("hierarchy: built forest %+v", f.Report)
	return f
}

// resolveDepth computes depth for id and every unresolved ancestor above it.
// It returns the number of cycles it had to cut.
func resolveDepth(entries map[string]*entry, id string, resolved map[string]bool) int {
	cuts := 0
	for !resolved[id] {
		var chain []*entry
		onChain := make(map[string]int)
		cycleAt := -1
		cur := id
		for {
			if resolved[cur] {
				break
			}
			if i, ok := onChain[cur]; ok {
				cycleAt = i
				break
			}
			e := entries[cur]
			onChain[cur] = len(chain)
			chain = append(chain, e)
			if e.parent == "" {
				break
			}
			cur = e.parent
		}

		if cycleAt >= 0 {
			cut := chain[cycleAt]
			for _, e := range chain[cycleAt:] {
				if e.row.ID < cut.row.ID {
					cut = e
				}
			}
			debug.Log("hierarchy: cutting parent cycle at %s (parent was %s)", cut.row.ID, cut.parent)
			cut.parent = ""
			cuts++
			continue
		}

		for i := len(chain) - 1; i >= 0; i-- {
			e := chain[i]
			if e.parent == "" {
				e.depth = 1
			} else {
				e.depth = entries[e.parent].depth + 1
			}
			resolved[e.row.ID] = true
		}
	}
	return cuts
}

func splitPath(path, delim string) []string {
	var segments []string
	for _, s := range strings.Split(path, delim) {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// sortIDs orders sibling ids by descendant count desc, child count desc,
// name asc, then id asc so that ties never reorder between builds.
func (f *Forest) sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := f.NodesByID[ids[i]], f.NodesByID[ids[j]]
		if a.DescendantCount != b.DescendantCount {
			return a.DescendantCount > b.DescendantCount
		}
		if a.ChildCount != b.ChildCount {
			return a.ChildCount > b.ChildCount
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Len returns the number of nodes in the forest.
func (f *Forest) Len() int {
	if f == nil {
		return 0
	}
	return len(f.NodesByID)
}

// Empty reports whether the forest has no roots.
func (f *Forest) Empty() bool {
	return f == nil || len(f.Roots) == 0
}

// Node looks up a node by id.
func (f *Forest) Node(id string) (*model.Node, bool) {
	if f == nil {
		return nil, false
	}
	n, ok := f.NodesByID[id]
	return n, ok
}

// Children returns the ordered children of id. The empty id returns the roots.
// An unknown id has no children.
func (f *Forest) Children(id string) []*model.Node {
	if f == nil {
		return nil
	}
	ids := f.Roots
	if id != "" {
		ids = f.ChildrenByParent[id]
	}
	nodes := make([]*model.Node, 0, len(ids))
	for _, cid := range ids {
		nodes = append(nodes, f.NodesByID[cid])
	}
	return nodes
}

// IsChildOf reports whether id sits directly under parent. The empty parent
// means "is a root".
func (f *Forest) IsChildOf(id, parent string) bool {
	n, ok := f.Node(id)
	if !ok {
		return false
	}
	return n.ParentID == parent
}

// Ancestors returns the ids above id, nearest first. The walk is bounded by
// the number of nodes so a corrupted parent link can never loop forever.
func (f *Forest) Ancestors(id string) []string {
	n, ok := f.Node(id)
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{id: true}
	for steps := 0; n.ParentID != "" && steps < len(f.NodesByID); steps++ {
		if seen[n.ParentID] {
			break
		}
		p, ok := f.NodesByID[n.ParentID]
		if !ok {
			break
		}
		seen[p.ID] = true
		out = append(out, p.ID)
		n = p
	}
	return out
}

// PathTo returns the ids from the root down to and including id.
func (f *Forest) PathTo(id string) []string {
	if _, ok := f.Node(id); !ok {
		return nil
	}
	anc := f.Ancestors(id)
	path := make([]string, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		path = append(path, anc[i])
	}
	return append(path, id)
}

// Walk visits nodes depth-first in sibling order. Returning false from fn
// skips that node's children. Each node is visited at most once.
func (f *Forest) Walk(fn func(n *model.Node) bool) {
	if f == nil {
		return
	}
	visited := make(map[string]bool, len(f.NodesByID))
	stack := make([]string, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		n := f.NodesByID[id]
		if !fn(n) {
			continue
		}
		children := f.ChildrenByParent[id]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// TreeNode is the nested form of a forest used for JSON dumps.
type TreeNode struct {
	*model.Node
	Children []*TreeNode `json:"children,omitempty"`
}

// Nested returns the forest as nested TreeNodes in root order.
func (f *Forest) Nested() []*TreeNode {
	if f == nil {
		return nil
	}
	byID := make(map[string]*TreeNode, len(f.NodesByID))
	var roots []*TreeNode
	f.Walk(func(n *model.Node) bool {
		tn := &TreeNode{Node: n}
		byID[n.ID] = tn
		if parent, ok := byID[n.ParentID]; ok {
			parent.Children = append(parent.Children, tn)
		} else {
			roots = append(roots, tn)
		}
		return true
	})
	return roots
}
