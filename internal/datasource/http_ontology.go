package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// Inferred classes counted after a reasoning run.
const inferredTypesQuery = sparqlPrefix + `
SELECT ?type (COUNT(?e) AS ?num) WHERE {
    VALUES ?type { bim:StructuralElement bim:MEPElement bim:AccessElement }
    ?e rdf:type ?type .
} GROUP BY ?type ORDER BY DESC(?num)`

const sparqlPrefix = `PREFIX bim: <http://example.org/bim-ontology/schema#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
`

// SearchProperties calls GET /api/properties/search.
func (s *HTTPSource) SearchProperties(ctx context.Context, q PropertyQuery) (model.PropertySearch, error) {
	q, err := q.normalized()
	if err != nil {
		return model.PropertySearch{}, err
	}
	v := url.Values{}
	v.Set("key", q.Key)
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Value != "" {
		v.Set("value", q.Value)
	}
	var resp struct {
		Key     string           `json:"key"`
		Count   int              `json:"count"`
		Results []map[string]any `json:"results"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/properties/search?"+v.Encode(), nil, &resp); err != nil {
		return model.PropertySearch{}, err
	}
	out := model.PropertySearch{Key: q.Key, Count: resp.Count}
	for _, r := range resp.Results {
		rec := model.Record(r)
		out.Results = append(out.Results, model.PropertyHit{
			Element: rec.String("elem_name"),
			PSet:    rec.String("pset_name"),
			Value:   rec.String("val"),
		})
	}
	if out.Count == 0 {
		out.Count = len(out.Results)
	}
	return out, nil
}

// PlantData calls GET /api/properties/plant-data.
func (s *HTTPSource) PlantData(ctx context.Context) (model.PlantData, error) {
	var resp struct {
		Total   any              `json:"total_property_sets"`
		Plant   any              `json:"plant_property_sets"`
		Details []map[string]any `json:"plant_pset_details"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/properties/plant-data", nil, &resp); err != nil {
		return model.PlantData{}, err
	}
	pd := model.PlantData{TotalPropertySets: intOf(resp.Total), PlantPropertySets: intOf(resp.Plant)}
	for _, d := range resp.Details {
		pd.Details = append(pd.Details, model.PSetCount{
			Name:  model.Record(d).String("pset_name"),
			Count: intOf(d["prop_count"]),
		})
	}
	return pd, nil
}

// RunReasoning calls POST /api/reasoning.
func (s *HTTPSource) RunReasoning(ctx context.Context) (model.ReasoningResult, error) {
	var res model.ReasoningResult
	err := s.do(ctx, http.MethodPost, "/api/reasoning", struct{}{}, &res)
	return res, err
}

// InferredTypes counts the elements of the classes reasoning infers.
func InferredTypes(ctx context.Context, src Source) (model.QueryResult, error) {
	if src == nil || src.Kind() != KindHTTP {
		return model.QueryResult{}, unsupported(src, "inferred types")
	}
	return src.Query(ctx, inferredTypesQuery)
}

// ObjectTypes calls GET /api/ontology/types.
func (s *HTTPSource) ObjectTypes(ctx context.Context) ([]model.ObjectType, error) {
	var types []model.ObjectType
	if err := s.do(ctx, http.MethodGet, "/api/ontology/types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// LinkTypes calls GET /api/ontology/links.
func (s *HTTPSource) LinkTypes(ctx context.Context) ([]model.LinkType, error) {
	var links []model.LinkType
	if err := s.do(ctx, http.MethodGet, "/api/ontology/links", nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// ClassificationRules calls GET /api/ontology/rules.
func (s *HTTPSource) ClassificationRules(ctx context.Context) (model.ClassificationRules, error) {
	rules := model.ClassificationRules{}
	if err := s.do(ctx, http.MethodGet, "/api/ontology/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// SaveClassificationRules calls PUT /api/ontology/rules.
func (s *HTTPSource) SaveClassificationRules(ctx context.Context, rules model.ClassificationRules) error {
	var resp struct {
		Updated bool `json:"updated"`
	}
	body := struct {
		Rules model.ClassificationRules `json:"rules"`
	}{rules}
	if err := s.do(ctx, http.MethodPut, "/api/ontology/rules", body, &resp); err != nil {
		return err
	}
	if !resp.Updated {
		return fmt.Errorf("rules not saved: server did not confirm the update")
	}
	return nil
}

// ExportSchema calls GET /api/ontology/export and returns the schema JSON.
func (s *HTTPSource) ExportSchema(ctx context.Context) (string, error) {
	var resp struct {
		Schema string `json:"schema"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/ontology/export", nil, &resp); err != nil {
		return "", err
	}
	if resp.Schema == "" {
		return "", fmt.Errorf("export: empty schema")
	}
	return resp.Schema, nil
}

// ImportSchema posts schema JSON to /api/ontology/import.
func (s *HTTPSource) ImportSchema(ctx context.Context, schema string) error {
	if strings.TrimSpace(schema) == "" {
		return fmt.Errorf("import: empty schema")
	}
	var resp struct {
		Imported bool `json:"imported"`
	}
	body := struct {
		Schema string `json:"schema"`
	}{schema}
	if err := s.do(ctx, http.MethodPost, "/api/ontology/import", body, &resp); err != nil {
		return err
	}
	if !resp.Imported {
		return fmt.Errorf("import: server did not confirm the import")
	}
	return nil
}

// ApplySchema calls POST /api/ontology/apply.
func (s *HTTPSource) ApplySchema(ctx context.Context) (model.SchemaApplyResult, error) {
	var res model.SchemaApplyResult
	err := s.do(ctx, http.MethodPost, "/api/ontology/apply", struct{}{}, &res)
	return res, err
}
