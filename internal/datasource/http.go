package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
	"github.com/vanderheijden86/bimnav/pkg/model"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 15 * time.Second

// HTTPSource reads from the REST API of a BIM store.
type HTTPSource struct {
	endpoint string
	client   *http.Client
	opts     Options

	mu   sync.Mutex
	rows []model.Row // last full hierarchy, for aggregates and global id lookups
}

// NewHTTPSource returns a client for the API rooted at endpoint.
func NewHTTPSource(endpoint string, opts Options) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid api endpoint %q", endpoint)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSource{
		endpoint: strings.TrimRight(u.String(), "/"),
		client:   client,
		opts:     opts,
	}, nil
}

func (s *HTTPSource) Kind() Kind       { return KindHTTP }
func (s *HTTPSource) Location() string { return s.endpoint }
func (s *HTTPSource) Close() error     { return nil }

// do performs one request and decodes a JSON response into out.
// Transport failures and 5xx wrap ErrUnavailable; 404 wraps ErrNotFound.
func (s *HTTPSource) do(ctx context.Context, method, path string, body any, out any) error {
	defer metrics.Timer(metrics.HTTPRequest)()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := s.endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, u, err)
	}
	defer resp.Body.Close()
	debug.LogTiming("http "+method+" "+path, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d from %s: %s", ErrUnavailable, resp.StatusCode, u, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

// Health calls GET /health.
func (s *HTTPSource) Health(ctx context.Context) (model.Health, error) {
	var h model.Health
	err := s.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Statistics calls GET /api/statistics.
func (s *HTTPSource) Statistics(ctx context.Context) (model.Statistics, error) {
	var st model.Statistics
	err := s.do(ctx, http.MethodGet, "/api/statistics", nil, &st)
	return st, err
}

// Categories calls GET /api/statistics/categories.
func (s *HTTPSource) Categories(ctx context.Context) ([]model.CategoryStat, error) {
	var cats []model.CategoryStat
	if err := s.do(ctx, http.MethodGet, "/api/statistics/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Elements calls GET /api/elements with limit, offset and an optional category.
func (s *HTTPSource) Elements(ctx context.Context, q ElementQuery) ([]model.Element, error) {
	q = q.normalized()
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	var elems []model.Element
	if err := s.do(ctx, http.MethodGet, "/api/elements?"+v.Encode(), nil, &elems); err != nil {
		return nil, err
	}
	return elems, nil
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Status  string           `json:"status"`
	Results []map[string]any `json:"results"`
	Count   int              `json:"count"`
}

// Query posts text to /api/sparql.
func (s *HTTPSource) Query(ctx context.Context, text string) (model.QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return model.QueryResult{}, fmt.Errorf("empty query")
	}
	var resp queryResponse
	if err := s.do(ctx, http.MethodPost, "/api/sparql", queryRequest{Query: text}, &resp); err != nil {
		return model.QueryResult{}, err
	}
	if resp.Status != "" && resp.Status != "success" && resp.Status != "ok" {
		return model.QueryResult{}, fmt.Errorf("query failed: status %q", resp.Status)
	}
	return bindingsToResult(resp.Results), nil
}

func bindingsToResult(bindings []map[string]any) model.QueryResult {
	seen := make(map[string]bool)
	res := model.QueryResult{Rows: make([]map[string]string, 0, len(bindings))}
	for _, b := range bindings {
		row := make(map[string]string, len(b))
		for k := range b {
			if !seen[k] {
				seen[k] = true
				res.Columns = append(res.Columns, k)
			}
			row[k] = model.Record(b).String(k)
		}
		res.Rows = append(res.Rows, row)
	}
	sort.Strings(res.Columns)
	return res
}

// ListRows calls GET /api/hierarchy and flattens whatever shape it returns.
func (s *HTTPSource) ListRows(ctx context.Context, scope string, maxDepth int) ([]model.Row, error) {
	path := "/api/hierarchy"
	if maxDepth > 0 {
		path += "?max_depth=" + strconv.Itoa(maxDepth)
	}
	var body json.RawMessage
	if err := s.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		// A single nested root object.
		var one map[string]any
		if err2 := json.Unmarshal(body, &one); err2 != nil {
			return nil, fmt.Errorf("%w: decode hierarchy: %v", ErrUnavailable, err)
		}
		raw = []map[string]any{one}
	}
	rows := flattenHierarchy(raw)
	debug.Log("datasource: %s returned %d hierarchy rows", s.endpoint, len(rows))

	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
	return ScopeRows(rows, scope, s.opts.Delimiter), nil
}

// cachedRows returns the last hierarchy, fetching it if none is held yet.
func (s *HTTPSource) cachedRows(ctx context.Context) ([]model.Row, error) {
	s.mu.Lock()
	rows := s.rows
	s.mu.Unlock()
	if rows != nil {
		return rows, nil
	}
	return s.ListRows(ctx, "", 0)
}

type propertySet struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

type propertiesResponse struct {
	GlobalID     string        `json:"global_id"`
	PropertySets []propertySet `json:"property_sets"`
}

// LookupDetail calls GET /api/properties/{global id}. Hierarchy ids that are
// URIs are mapped to the node's global id when the hierarchy carried one.
func (s *HTTPSource) LookupDetail(ctx context.Context, id string) (model.Record, error) {
	gid := id
	if rows, err := s.cachedRows(ctx); err == nil {
		for _, r := range rows {
			if r.ID == id && r.GlobalID != "" {
				gid = r.GlobalID
				break
			}
		}
	}
	var resp propertiesResponse
	if err := s.do(ctx, http.MethodGet, "/api/properties/"+url.PathEscape(gid), nil, &resp); err != nil {
		return nil, err
	}
	rec := model.Record{"id": id, "global_id": resp.GlobalID}
	for _, ps := range resp.PropertySets {
		props := make(map[string]any, len(ps.Properties))
		for k, v := range ps.Properties {
			props[k] = v
		}
		rec[ps.Name] = props
	}
	return rec, nil
}

// LookupAggregate summarizes the subtree of id from the cached hierarchy.
func (s *HTTPSource) LookupAggregate(ctx context.Context, id string) (model.Record, error) {
	rows, err := s.cachedRows(ctx)
	if err != nil {
		return nil, err
	}
	return aggregateRecord(rows, id, s.opts.Delimiter)
}

// flattenHierarchy accepts the three shapes the hierarchy endpoint is known
// to return: nested nodes with children, flat rows, and parent/child edge
// rows as produced by the store's hierarchy query.
func flattenHierarchy(raw []map[string]any) []model.Row {
	var rows, edges []model.Row
	for _, item := range raw {
		if _, isEdge := item["child"]; isEdge {
			edges = append(edges, edgeRows(item)...)
			continue
		}
		rows = appendNested(rows, item, "")
	}
	return append(rows, mergeEdgeRows(edges)...)
}

func appendNested(rows []model.Row, item map[string]any, parent string) []model.Row {
	rec := model.Record(item)
	row := model.Row{
		ID:           firstNonEmpty(rec.String("id"), rec.String("uri"), rec.String("global_id")),
		Name:         rec.String("name"),
		Type:         model.NodeType(firstNonEmpty(rec.String("node_type"), rec.String("type"))),
		Path:         rec.String("path"),
		ParentID:     firstNonEmpty(rec.String("parent"), parent),
		GlobalID:     rec.String("global_id"),
		ElementCount: intOf(item["element_count"]),
		ChildCount:   intOf(item["child_count"]),
	}
	row.DescendantCount = intOf(item["descendant_count"])
	rows = append(rows, row)

	children, _ := item["children"].([]any)
	for _, c := range children {
		if cm, ok := c.(map[string]any); ok {
			rows = appendNested(rows, cm, row.ID)
		}
	}
	return rows
}

// edgeRows turns {parent, parentName, parentType, child, childName, childType}
// into a parent row and a child row. Missing names stay empty so the tree
// builder counts the row as malformed. The parent row carries no parent link;
// mergeEdgeRows fills it in when the same node also appears as a child.
func edgeRows(item map[string]any) []model.Row {
	rec := model.Record(item)
	parent := model.Row{
		ID:   rec.String("parent"),
		Name: rec.String("parentName"),
		Type: model.NodeType(localName(rec.String("parentType"))),
	}
	child := model.Row{
		ID:       rec.String("child"),
		Name:     rec.String("childName"),
		Type:     model.NodeType(localName(rec.String("childType"))),
		ParentID: parent.ID,
	}
	return []model.Row{parent, child}
}

// mergeEdgeRows collapses the rows produced by edgeRows to one row per id,
// in first-seen order. Non-empty fields from later rows win.
func mergeEdgeRows(edges []model.Row) []model.Row {
	index := make(map[string]int, len(edges))
	var out []model.Row
	for _, r := range edges {
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		cur := &out[i]
		if r.ParentID != "" {
			cur.ParentID = r.ParentID
		}
		if r.Name != "" {
			cur.Name = r.Name
		}
		if r.Type != "" {
			cur.Type = r.Type
		}
	}
	return out
}

// localName strips a namespace from a type URI.
func localName(uri string) string {
	if i := strings.LastIndexAny(uri, "#/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
