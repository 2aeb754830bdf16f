// Package model holds the data types shared between data sources, the
// hierarchy builder and the UI.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NodeType tags a hierarchy node for display (badge and color) only.
type NodeType string

const (
	TypeProject  NodeType = "Project"
	TypeSite     NodeType = "Site"
	TypeBuilding NodeType = "Building"
	TypeStorey   NodeType = "BuildingStorey"
	TypeSpace    NodeType = "Space"
)

// Badge returns the short label shown next to a node name.
// Unknown types use their first three letters upper-cased.
func (t NodeType) Badge() string {
	switch t {
	case TypeProject:
		return "PRJ"
	case TypeSite:
		return "SITE"
	case TypeBuilding:
		return "BLD"
	case TypeStorey:
		return "STY"
	case TypeSpace:
		return "SPC"
	}
	s := string(t)
	if i := strings.LastIndexAny(s, "#/"); i >= 0 {
		s = s[i+1:]
	}
	r := []rune(s)
	if len(r) > 3 {
		r = r[:3]
	}
	return strings.ToUpper(string(r))
}

// Row is one flat hierarchy record as delivered by a data source.
// A row is linked to its parent either by Path (delimited, parent path is
// every segment but the last) or by ParentID.
type Row struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            NodeType `json:"type,omitempty"`
	Path            string   `json:"path,omitempty"`
	ParentID        string   `json:"parent,omitempty"`
	ChildCount      int      `json:"child_count,omitempty"`
	DescendantCount int      `json:"descendant_count,omitempty"`
	ElementCount    int      `json:"element_count,omitempty"`
	GlobalID        string   `json:"global_id,omitempty"`
}

// Errors returned by Row.Validate.
var (
	ErrMissingID   = errors.New("row has no id")
	ErrMissingName = errors.New("row has no name")
)

// Validate reports whether the row carries the fields the tree needs.
func (r Row) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%s: %w", r.ID, ErrMissingName)
	}
	return nil
}

// Node is a row placed in a forest. ParentID is the resolved parent
// (empty for roots), not necessarily the parent the row asked for.
type Node struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            NodeType `json:"type,omitempty"`
	Level           int      `json:"level"`
	ParentID        string   `json:"parent,omitempty"`
	ChildCount      int      `json:"child_count"`
	DescendantCount int      `json:"descendant_count"`
	ElementCount    int      `json:"element_count,omitempty"`
	GlobalID        string   `json:"global_id,omitempty"`
}

// DisplayName is the name shown in columns and breadcrumbs.
func (n *Node) DisplayName() string {
	if n.Name == "" {
		return "Unnamed"
	}
	return n.Name
}

// IsRoot reports whether the node has no resolved parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// Record is an arbitrary structured detail or summary returned by a source.
type Record map[string]any

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value for key formatted for display, or "" if absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CategoryStat is the element count of one category.
type CategoryStat struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Statistics is the store-wide summary shown on the overview tab.
type Statistics struct {
	TotalTriples    int            `json:"total_triples"`
	TotalElements   int            `json:"total_elements"`
	TotalCategories int            `json:"total_categories"`
	Buildings       int            `json:"buildings"`
	Storeys         int            `json:"storeys"`
	Categories      []CategoryStat `json:"categories"`
}

// Element is one physical element as listed on the elements tab.
type Element struct {
	URI          string `json:"uri"`
	Name         string `json:"name,omitempty"`
	Category     string `json:"category,omitempty"`
	OriginalType string `json:"original_type,omitempty"`
	GlobalID     string `json:"global_id,omitempty"`
}

// DisplayName returns the element name or a placeholder.
func (e Element) DisplayName() string {
	if e.Name == "" {
		return "unnamed"
	}
	return e.Name
}

// Health is the backend liveness report.
type Health struct {
	Status  string `json:"status"`
	Triples int    `json:"triples"`
}

// Healthy reports whether the backend said it is usable.
func (h Health) Healthy() bool {
	return h.Status == "healthy" || h.Status == "ok"
}

// QueryResult holds the bindings of an ad-hoc query.
type QueryResult struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"results"`
}
