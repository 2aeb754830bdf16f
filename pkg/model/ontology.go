package model

import (
	"sort"
	"strings"
)

// PropertyHit is one property value found by a key search.
type PropertyHit struct {
	Element string `json:"elem_name"`
	PSet    string `json:"pset_name"`
	Value   string `json:"val"`
}

// PropertySearch is the result of a property key search.
type PropertySearch struct {
	Key     string        `json:"key"`
	Count   int           `json:"count"`
	Results []PropertyHit `json:"results"`
}

// PSetCount is the number of properties in a property set.
type PSetCount struct {
	Name  string `json:"pset_name"`
	Count int    `json:"prop_count"`
}

// PlantData summarizes the plant design (Smart 3D) property sets.
type PlantData struct {
	TotalPropertySets int         `json:"total_property_sets"`
	PlantPropertySets int         `json:"plant_property_sets"`
	Details           []PSetCount `json:"plant_pset_details"`
}

// IsPlantPSet reports whether a property set name comes from a plant design
// tool.
func IsPlantPSet(name string) bool {
	return strings.HasPrefix(name, "SP3D") ||
		strings.Contains(name, "SmartPlant") ||
		strings.Contains(name, "Smart3D")
}

// ReasoningResult reports one inference run.
type ReasoningResult struct {
	CustomRuleTriples int      `json:"custom_rules_triples"`
	RDFSTriples       int      `json:"rdfs_triples"`
	TotalInferred     int      `json:"total_inferred"`
	TotalTriples      int      `json:"total_triples"`
	Elapsed           float64  `json:"elapsed"` // seconds
	RulesApplied      []string `json:"rules_applied"`
}

// Before is the triple count before inference.
func (r ReasoningResult) Before() int {
	return r.TotalTriples - r.TotalInferred
}

// ObjectType is a class in the store's ontology.
type ObjectType struct {
	Name        string `json:"name"`
	ParentClass string `json:"parent_class,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// LinkType is a relation between two ontology classes.
type LinkType struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	RangeClass  string `json:"range_class,omitempty"`
	InverseName string `json:"inverse_name,omitempty"`
}

// ClassificationRules maps a class to the element categories or name
// keywords that classify an element into it.
type ClassificationRules map[string][]string

// Classes returns the rule classes in sorted order.
func (r ClassificationRules) Classes() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SchemaApplyResult reports a schema application.
type SchemaApplyResult struct {
	TriplesAdded int `json:"triples_added"`
	TotalTriples int `json:"total_triples"`
}
