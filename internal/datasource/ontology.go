package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// DefaultSearchLimit caps a property search when the query leaves Limit unset.
const DefaultSearchLimit = 50

// PropertyQuery selects property values by key and optional value filter.
type PropertyQuery struct {
	Key   string
	Value string
	Limit int
}

func (q PropertyQuery) normalized() (PropertyQuery, error) {
	q.Key = strings.TrimSpace(q.Key)
	q.Value = strings.TrimSpace(q.Value)
	if q.Key == "" {
		return q, fmt.Errorf("property key required")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = DefaultSearchLimit
	}
	return q, nil
}

// PropertyIndex is implemented by sources that can search property values.
type PropertyIndex interface {
	SearchProperties(ctx context.Context, q PropertyQuery) (model.PropertySearch, error)
	PlantData(ctx context.Context) (model.PlantData, error)
}

// Reasoner is implemented by sources that can run inference.
type Reasoner interface {
	RunReasoning(ctx context.Context) (model.ReasoningResult, error)
}

// OntologyEditor is implemented by sources whose ontology can be read and
// changed.
type OntologyEditor interface {
	ObjectTypes(ctx context.Context) ([]model.ObjectType, error)
	LinkTypes(ctx context.Context) ([]model.LinkType, error)
	ClassificationRules(ctx context.Context) (model.ClassificationRules, error)
	SaveClassificationRules(ctx context.Context, rules model.ClassificationRules) error
	ExportSchema(ctx context.Context) (string, error)
	ImportSchema(ctx context.Context, schema string) error
	ApplySchema(ctx context.Context) (model.SchemaApplyResult, error)
}

func unsupported(src Source, what string) error {
	if src == nil {
		return fmt.Errorf("%s: no data source: %w", what, ErrUnavailable)
	}
	return fmt.Errorf("%s on %s source: %w", what, src.Kind(), ErrUnsupported)
}

// AsPropertyIndex returns src's property index or an ErrUnsupported error.
func AsPropertyIndex(src Source) (PropertyIndex, error) {
	if p, ok := src.(PropertyIndex); ok {
		return p, nil
	}
	return nil, unsupported(src, "property search")
}

// AsReasoner returns src's reasoner or an ErrUnsupported error.
func AsReasoner(src Source) (Reasoner, error) {
	if r, ok := src.(Reasoner); ok {
		return r, nil
	}
	return nil, unsupported(src, "reasoning")
}

// AsOntologyEditor returns src's ontology editor or an ErrUnsupported error.
func AsOntologyEditor(src Source) (OntologyEditor, error) {
	if o, ok := src.(OntologyEditor); ok {
		return o, nil
	}
	return nil, unsupported(src, "ontology editing")
}

// psetInstance is one property set attached to one element.
type psetInstance struct {
	name  string
	props int
}

// plantData counts property set instances and sums the properties of the
// plant sets per name, largest first.
func plantData(instances []psetInstance) model.PlantData {
	pd := model.PlantData{TotalPropertySets: len(instances)}
	byName := make(map[string]int)
	for _, in := range instances {
		if model.IsPlantPSet(in.name) {
			pd.PlantPropertySets++
			byName[in.name] += in.props
		}
	}
	for name, n := range byName {
		pd.Details = append(pd.Details, model.PSetCount{Name: name, Count: n})
	}
	sort.Slice(pd.Details, func(i, j int) bool {
		a, b := pd.Details[i], pd.Details[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	return pd
}
