package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// Schema is the layout SQLiteSource reads. It is exported so exporters and
// tests can create compatible databases.
const Schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id               TEXT PRIMARY KEY,
	name             TEXT,
	type             TEXT,
	path             TEXT,
	parent_id        TEXT,
	child_count      INTEGER DEFAULT 0,
	descendant_count INTEGER DEFAULT 0,
	element_count    INTEGER DEFAULT 0,
	global_id        TEXT
);
CREATE TABLE IF NOT EXISTS elements (
	uri           TEXT PRIMARY KEY,
	name          TEXT,
	category      TEXT,
	original_type TEXT,
	global_id     TEXT,
	container_id  TEXT
);
CREATE TABLE IF NOT EXISTS properties (
	global_id TEXT,
	pset      TEXT,
	name      TEXT,
	value     TEXT
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

// SQLiteSource reads a SQLite export of a BIM store.
type SQLiteSource struct {
	db   *sql.DB
	path string
	opts Options
}

// OpenSQLite opens the database at path read-only.
func OpenSQLite(path string, opts Options) (*SQLiteSource, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open database: %v", ErrUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA query_only = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			debug.Log("datasource: %s: %v", pragma, err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'nodes'").Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if n == 0 {
		db.Close()
		return nil, fmt.Errorf("%w: %s has no nodes table", ErrUnavailable, path)
	}

	return &SQLiteSource{db: db, path: path, opts: opts}, nil
}

func (s *SQLiteSource) Kind() Kind       { return KindSQLite }
func (s *SQLiteSource) Location() string { return s.path }

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteSource) unavailable(err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, s.path, err)
}

// ListRows reads the nodes table.
func (s *SQLiteSource) ListRows(ctx context.Context, scope string, maxDepth int) ([]model.Row, error) {
	defer metrics.Timer(metrics.SourceQuery)()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, path, parent_id,
		       child_count, descendant_count, element_count, global_id
		FROM nodes
		ORDER BY rowid
	`)
	if err != nil {
		return nil, s.unavailable(err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var r model.Row
		var name, typ, path, parent, gid sql.NullString
		var childCount, descCount, elemCount sql.NullInt64
		if err := rows.Scan(&r.ID, &name, &typ, &path, &parent,
			&childCount, &descCount, &elemCount, &gid); err != nil {
			s.opts.warn("skipping node row: %v", err)
			continue
		}
		r.Name = name.String
		r.Type = model.NodeType(typ.String)
		r.Path = path.String
		r.ParentID = parent.String
		r.ChildCount = int(childCount.Int64)
		r.DescendantCount = int(descCount.Int64)
		r.ElementCount = int(elemCount.Int64)
		r.GlobalID = gid.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", s.unavailable(err))
	}
	return ScopeRows(out, scope, s.opts.Delimiter), nil
}

// LookupDetail returns the node or element with id, with its property sets.
func (s *SQLiteSource) LookupDetail(ctx context.Context, id string) (model.Record, error) {
	rec := model.Record{"id": id}
	var gid string

	var name, typ, g sql.NullString
	var elemCount sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, type, global_id, element_count FROM nodes WHERE id = ?`, id).
		Scan(&name, &typ, &g, &elemCount)
	switch {
	case err == nil:
		rec["name"] = name.String
		rec["type"] = typ.String
		rec["element_count"] = int(elemCount.Int64)
		gid = g.String
	case err == sql.ErrNoRows:
		var cat, orig sql.NullString
		err = s.db.QueryRowContext(ctx,
			`SELECT name, category, original_type, global_id FROM elements WHERE uri = ? OR global_id = ?`, id, id).
			Scan(&name, &cat, &orig, &g)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, s.unavailable(err)
		}
		rec["name"] = name.String
		rec["category"] = cat.String
		rec["original_type"] = orig.String
		gid = g.String
	default:
		return nil, s.unavailable(err)
	}
	if gid != "" {
		rec["global_id"] = gid
		psets, err := s.propertySets(ctx, gid)
		if err != nil {
			return nil, err
		}
		for name, props := range psets {
			rec[name] = props
		}
	}
	return rec, nil
}

func (s *SQLiteSource) propertySets(ctx context.Context, gid string) (map[string]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pset, name, value FROM properties WHERE global_id = ? ORDER BY pset, name`, gid)
	if err != nil {
		return nil, s.unavailable(err)
	}
	defer rows.Close()
	psets := make(map[string]map[string]any)
	for rows.Next() {
		var pset, name string
		var value sql.NullString
		if err := rows.Scan(&pset, &name, &value); err != nil {
			continue
		}
		if psets[pset] == nil {
			psets[pset] = make(map[string]any)
		}
		if value.Valid {
			psets[pset][name] = value.String
		} else {
			psets[pset][name] = nil
		}
	}
	return psets, rows.Err()
}

// LookupAggregate summarizes the subtree of id.
func (s *SQLiteSource) LookupAggregate(ctx context.Context, id string) (model.Record, error) {
	rows, err := s.ListRows(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	return aggregateRecord(rows, id, s.opts.Delimiter)
}

// Health pings the database.
func (s *SQLiteSource) Health(ctx context.Context) (model.Health, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return model.Health{Status: "unavailable"}, s.unavailable(err)
	}
	return model.Health{Status: "healthy", Triples: s.metaInt(ctx, "triples")}, nil
}

// metaInt reads an optional integer from the meta table.
func (s *SQLiteSource) metaInt(ctx context.Context, key string) int {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM meta WHERE key = ?`, key).Scan(&v); err != nil {
		return 0
	}
	return v
}

// Statistics counts elements, categories, buildings and storeys.
func (s *SQLiteSource) Statistics(ctx context.Context) (model.Statistics, error) {
	var st model.Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM elements),
			(SELECT COUNT(DISTINCT category) FROM elements WHERE category IS NOT NULL AND category != ''),
			(SELECT COUNT(*) FROM nodes WHERE type = ?),
			(SELECT COUNT(*) FROM nodes WHERE type = ?)
	`, string(model.TypeBuilding), string(model.TypeStorey)).
		Scan(&st.TotalElements, &st.TotalCategories, &st.Buildings, &st.Storeys)
	if err != nil {
		return st, s.unavailable(err)
	}
	st.TotalTriples = s.metaInt(ctx, "triples")
	st.Categories, err = s.Categories(ctx)
	return st, err
}

// Categories returns element counts per category, largest first.
func (s *SQLiteSource) Categories(ctx context.Context) ([]model.CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS num
		FROM elements
		WHERE category IS NOT NULL AND category != ''
		GROUP BY category
		ORDER BY num DESC, category ASC
	`)
	if err != nil {
		return nil, s.unavailable(err)
	}
	defer rows.Close()
	var cats []model.CategoryStat
	for rows.Next() {
		var c model.CategoryStat
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			continue
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// Elements returns one page of elements ordered by category and name.
func (s *SQLiteSource) Elements(ctx context.Context, q ElementQuery) ([]model.Element, error) {
	defer metrics.Timer(metrics.SourceQuery)()
	q = q.normalized()

	query := `SELECT uri, name, category, original_type, global_id FROM elements`
	args := []any{}
	if q.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, q.Category)
	}
	query += ` ORDER BY category, name, uri LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.unavailable(err)
	}
	defer rows.Close()
	var out []model.Element
	for rows.Next() {
		var e model.Element
		var name, cat, orig, gid sql.NullString
		if err := rows.Scan(&e.URI, &name, &cat, &orig, &gid); err != nil {
			continue
		}
		e.Name, e.Category, e.OriginalType, e.GlobalID = name.String, cat.String, orig.String, gid.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Query runs a read-only SQL statement. Only SELECT and WITH are accepted.
func (s *SQLiteSource) Query(ctx context.Context, text string) (model.QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.QueryResult{}, fmt.Errorf("empty query")
	}
	head := strings.ToUpper(strings.Fields(text)[0])
	if head != "SELECT" && head != "WITH" {
		return model.QueryResult{}, fmt.Errorf("%s statements: %w", head, ErrUnsupported)
	}

	rows, err := s.db.QueryContext(ctx, text)
	if err != nil {
		return model.QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.QueryResult{}, s.unavailable(err)
	}
	res := model.QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return res, fmt.Errorf("query failed: %w", err)
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = formatSQLValue(vals[i])
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

func formatSQLValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
