package datasource

import (
	"context"
	"database/sql"
	"sort"

	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// SearchProperties finds properties named q.Key in the properties table.
func (s *SQLiteSource) SearchProperties(ctx context.Context, q PropertyQuery) (model.PropertySearch, error) {
	defer metrics.Timer(metrics.SourceQuery)()
	q, err := q.normalized()
	if err != nil {
		return model.PropertySearch{}, err
	}
	query := `
		SELECT COALESCE(NULLIF(e.name, ''), NULLIF(n.name, ''), p.global_id), COALESCE(p.pset, ''), p.value
		FROM properties p
		LEFT JOIN elements e ON e.global_id = p.global_id
		LEFT JOIN nodes n ON n.global_id = p.global_id
		WHERE p.name = ?`
	args := []any{q.Key}
	if q.Value != "" {
		query += ` AND p.value = ?`
		args = append(args, q.Value)
	}
	query += ` ORDER BY p.pset, 1 LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.PropertySearch{}, s.unavailable(err)
	}
	defer rows.Close()
	out := model.PropertySearch{Key: q.Key}
	for rows.Next() {
		var elem, pset string
		var value sql.NullString
		if err := rows.Scan(&elem, &pset, &value); err != nil {
			return model.PropertySearch{}, s.unavailable(err)
		}
		out.Results = append(out.Results, model.PropertyHit{Element: elem, PSet: pset, Value: value.String})
	}
	out.Count = len(out.Results)
	return out, rows.Err()
}

// PlantData summarizes the property sets in the properties table.
func (s *SQLiteSource) PlantData(ctx context.Context) (model.PlantData, error) {
	defer metrics.Timer(metrics.SourceQuery)()
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(pset, ''), COUNT(*) FROM properties GROUP BY global_id, pset`)
	if err != nil {
		return model.PlantData{}, s.unavailable(err)
	}
	defer rows.Close()
	var instances []psetInstance
	for rows.Next() {
		var in psetInstance
		if err := rows.Scan(&in.name, &in.props); err != nil {
			return model.PlantData{}, s.unavailable(err)
		}
		instances = append(instances, in)
	}
	if err := rows.Err(); err != nil {
		return model.PlantData{}, s.unavailable(err)
	}
	return plantData(instances), nil
}

// SearchProperties finds properties named q.Key in the export's property
// lines.
func (s *JSONLSource) SearchProperties(ctx context.Context, q PropertyQuery) (model.PropertySearch, error) {
	q, err := q.normalized()
	if err != nil {
		return model.PropertySearch{}, err
	}
	ds, err := s.dataset()
	if err != nil {
		return model.PropertySearch{}, err
	}

	names := make(map[string]string)
	for _, r := range ds.Rows {
		if r.GlobalID != "" {
			names[r.GlobalID] = r.Name
		}
	}
	for _, e := range ds.Elements {
		if e.GlobalID != "" && e.Name != "" {
			names[e.GlobalID] = e.Name
		}
	}

	out := model.PropertySearch{Key: q.Key}
	for gid, psets := range ds.Properties {
		for pset, props := range psets {
			v, ok := props[q.Key]
			if !ok {
				continue
			}
			val := model.Record{"v": v}.String("v")
			if q.Value != "" && val != q.Value {
				continue
			}
			elem := names[gid]
			if elem == "" {
				elem = gid
			}
			out.Results = append(out.Results, model.PropertyHit{Element: elem, PSet: pset, Value: val})
		}
	}
	sort.Slice(out.Results, func(i, j int) bool {
		a, b := out.Results[i], out.Results[j]
		if a.PSet != b.PSet {
			return a.PSet < b.PSet
		}
		return a.Element < b.Element
	})
	if len(out.Results) > q.Limit {
		out.Results = out.Results[:q.Limit]
	}
	out.Count = len(out.Results)
	return out, nil
}

// PlantData summarizes the export's property sets.
func (s *JSONLSource) PlantData(ctx context.Context) (model.PlantData, error) {
	ds, err := s.dataset()
	if err != nil {
		return model.PlantData{}, err
	}
	var instances []psetInstance
	for _, psets := range ds.Properties {
		for pset, props := range psets {
			instances = append(instances, psetInstance{name: pset, props: len(props)})
		}
	}
	return plantData(instances), nil
}
