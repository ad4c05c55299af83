// Package sparql is a TripleStore speaking the SPARQL 1.1 protocol, with the
// RDF-star extensions for annotation statements.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/graph"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

const (
	contentResults = "application/sparql-results+json"
	contentForm    = "application/x-www-form-urlencoded"
)

var _ graph.TripleStore = (*Client)(nil)

// Client sends reads to a query endpoint and edits to an update endpoint.
type Client struct {
	http     *resty.Client
	query    string
	update   string
	graphs   []term.IRI
	keep     func(property term.IRI, value term.Term) bool
	user     string
	password string
	log      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUpdateEndpoint sends Modify to url instead of the query endpoint.
func WithUpdateEndpoint(url string) Option {
	return func(c *Client) { c.update = url }
}

// WithGraph scopes reads to the named graphs and writes to the first of them.
func WithGraph(graphs ...string) Option {
	return func(c *Client) {
		for _, g := range graphs {
			c.graphs = append(c.graphs, term.IRI(g))
		}
	}
}

// WithBasicAuth authenticates every request.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) { c.user, c.password = user, password }
}

// WithFilter drops fetched statements for which keep returns false.
// Annotation statements are never filtered.
func WithFilter(keep func(property term.IRI, value term.Term) bool) Option {
	return func(c *Client) { c.keep = keep }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient replaces the underlying resty client.
func WithHTTPClient(hc *resty.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the query endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		query:  endpoint,
		update: endpoint,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	if c.user != "" {
		c.http.SetBasicAuth(c.user, c.password)
	}
	return c
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// Fetch selects the statements of each identity in one request. A property
// value identity yields its annotation statements.
func (c *Client) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	branches := make([]string, 0, len(ids))
	for _, id := range ids {
		t, err := id.Term()
		if err != nil {
			return nil, err
		}
		if q, ok := t.(term.Quad); ok {
			branches = append(branches, annotationBranch(q))
		} else {
			branches = append(branches, subjectBranch(t))
		}
	}
	query := "SELECT *" + c.from() + " WHERE {\n" + strings.Join(branches, "\n  UNION\n") + "\n}"

	rows, err := c.selectRows(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []term.Quad
	for _, row := range rows {
		q, err := fetchedQuad(row)
		if err != nil {
			return nil, err
		}
		if _, annotation := row["metaproperty"]; !annotation && c.keep != nil && !c.keep(q.Predicate, q.Object) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func subjectBranch(s term.Term) string {
	return "  { SELECT ?subject ?property ?value WHERE {\n" +
		"    VALUES ?subject { " + s.String() + " }\n" +
		"    ?subject ?property ?value\n" +
		"  } }"
}

func annotationBranch(q term.Quad) string {
	return "  { SELECT ?subject ?property ?value ?metaproperty ?metavalue WHERE {\n" +
		"    VALUES (?subject ?property ?value) { (" + q.Triple() + ") }\n" +
		"    << ?subject ?property ?value >> ?metaproperty ?metavalue\n" +
		"  } }"
}

func fetchedQuad(row pattern.Row) (term.Quad, error) {
	s, p, o := row["subject"], row["property"], row["value"]
	pred, ok := p.(term.IRI)
	if s == nil || !ok || o == nil {
		return term.Quad{}, fmt.Errorf("sparql: incomplete statement in results")
	}
	q := term.Quad{Subject: s, Predicate: pred, Object: o}
	if mp, ok := row["metaproperty"]; ok {
		metaPred, ok := mp.(term.IRI)
		if !ok || row["metavalue"] == nil {
			return term.Quad{}, fmt.Errorf("sparql: incomplete annotation in results")
		}
		q = term.Quad{Subject: q, Predicate: metaPred, Object: row["metavalue"]}
	}
	return q, nil
}

// Select runs the query's SPARQL rendering, scoped to the configured graphs.
func (c *Client) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	query := q.SPARQL()
	if from := c.from(); from != "" {
		query = strings.Replace(query, "SELECT *", "SELECT *"+from, 1)
	}
	return c.selectRows(ctx, query)
}

func (c *Client) from() string {
	var b strings.Builder
	for _, g := range c.graphs {
		b.WriteString(" FROM ")
		b.WriteString(g.String())
	}
	return b.String()
}

type results struct {
	Results struct {
		Bindings []map[string]json.RawMessage `json:"bindings"`
	} `json:"results"`
}

func (c *Client) selectRows(ctx context.Context, query string) ([]pattern.Row, error) {
	c.log.Debug("sparql select", zap.String("query", query))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", contentResults).
		SetFormData(map[string]string{"query": query}).
		Post(c.query)
	if err != nil {
		return nil, fmt.Errorf("sparql: select: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sparql: select: %s: %s", resp.Status(), resp.String())
	}

	var res results
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return nil, fmt.Errorf("sparql: decode results: %w", err)
	}
	rows := make([]pattern.Row, 0, len(res.Results.Bindings))
	for _, b := range res.Results.Bindings {
		row := make(pattern.Row, len(b))
		for name, raw := range b {
			t, err := term.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("sparql: binding %s: %w", name, err)
			}
			row[name] = t
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// =============================================================================
// Writes
// =============================================================================

// Modify sends every edit as one update request, in submission order.
func (c *Client) Modify(ctx context.Context, edits []change.StoreEdit) error {
	if len(edits) == 0 {
		return nil
	}
	ops := make([]string, len(edits))
	for i, e := range edits {
		op, err := c.render(e)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	update := strings.Join(ops, " ;\n")
	c.log.Debug("sparql update", zap.Int("edits", len(edits)), zap.String("update", update))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentForm).
		SetFormData(map[string]string{"update": update}).
		Post(c.update)
	if err != nil {
		return fmt.Errorf("sparql: update: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sparql: update: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (c *Client) render(e change.StoreEdit) (string, error) {
	q := e.Statement
	if q.Subject == nil || q.Predicate == "" || q.Object == nil {
		return "", fmt.Errorf("sparql: incomplete statement %s", q.Triple())
	}
	var op string
	switch e.Kind {
	case change.EditAdded:
		op = "INSERT DATA"
	case change.EditRemoved:
		op = "DELETE DATA"
	default:
		return "", fmt.Errorf("sparql: unknown edit kind %d", e.Kind)
	}

	triple := "{ " + q.Triple() + " }"
	g := q.Graph
	if g == "" && len(c.graphs) > 0 {
		g = c.graphs[0]
	}
	if g != "" {
		return op + " { GRAPH " + g.String() + " " + triple + " }", nil
	}
	return op + " " + triple, nil
}
