// Package pattern compiles structural match templates into select queries
// and rebuilds structured matches from the rows those queries return.
//
// A template maps property names to constraints:
//
//	nil                 any value, bind it
//	string, number, ... match this literal exactly
//	term.IRI            match this resource exactly
//	Template            the value is itself constrained
//
// The reserved key "@id" fixes the subject, "@type" constrains rdf:type and
// "@context" is ignored.
package pattern

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/term"
)

const (
	KeyID      = "@id"
	KeyType    = "@type"
	KeyContext = "@context"
)

// Template is a structural match template.
type Template map[string]any

// Row binds variable names (without "?") to terms.
type Row map[string]term.Term

// Match mirrors the shape of the template it was built from.
type Match map[string]any

// Compiler turns templates into queries. Each compiler owns its variable
// sequence; it is safe for concurrent use.
type Compiler struct {
	resolver naming.Resolver
	seq      atomic.Int64
}

// NewCompiler creates a compiler resolving property names through r. A nil
// resolver leaves names untouched.
func NewCompiler(r naming.Resolver) *Compiler {
	if r == nil {
		r = naming.Identity
	}
	return &Compiler{resolver: r}
}

func (c *Compiler) fresh() term.Variable {
	return term.Variable(fmt.Sprintf("v_%d", c.seq.Add(1)))
}

// Query is a compiled template.
type Query struct {
	subject  term.Term
	fixedID  any
	triples  []term.Quad
	fields   []field
	resolver naming.Resolver
}

type field struct {
	key    string
	object term.Term
	fixed  any
	nested *Query
}

// Compile translates t into a query. The subject is a fresh variable unless
// t carries an "@id".
func (c *Compiler) Compile(t Template) (*Query, error) {
	subject, fixed, err := c.subjectOf(t)
	if err != nil {
		return nil, err
	}
	q, err := c.compile(t, subject, fixed)
	if err != nil {
		return nil, err
	}
	if len(q.AllTriples()) == 0 {
		return nil, apperror.New(apperror.KindInvalidPattern, "Compiler.Compile",
			"template constrains no property")
	}
	return q, nil
}

func (c *Compiler) subjectOf(t Template) (term.Term, any, error) {
	raw, ok := t[KeyID]
	if !ok || raw == nil {
		return c.fresh(), nil, nil
	}
	switch id := raw.(type) {
	case string:
		return term.IRI(c.resolver.Resolve(id)), id, nil
	case term.IRI:
		return id, id, nil
	}
	return nil, nil, apperror.New(apperror.KindInvalidPattern, "Compiler.Compile",
		"%s must be a name, got %T", KeyID, raw)
}

func (c *Compiler) compile(t Template, subject term.Term, fixedID any) (*Query, error) {
	q := &Query{subject: subject, fixedID: fixedID, resolver: c.resolver}

	for _, key := range sortedKeys(t) {
		pred := term.RDFType
		if key != KeyType {
			pred = term.IRI(c.resolver.Resolve(key))
		}

		f := field{key: key}
		switch v := t[key].(type) {
		case nil:
			f.object = c.fresh()
		case Template:
			if err := c.nest(&f, v); err != nil {
				return nil, err
			}
		case map[string]any:
			if err := c.nest(&f, Template(v)); err != nil {
				return nil, err
			}
		case term.IRI:
			f.object, f.fixed = v, v
		case term.Literal:
			f.object, f.fixed = v, v
		case string:
			if key == KeyType {
				f.object = term.IRI(c.resolver.Resolve(v))
			} else {
				f.object = term.String(v)
			}
			f.fixed = v
		default:
			lit, err := term.FromNative(v)
			if err != nil {
				return nil, apperror.New(apperror.KindInvalidPattern, "Compiler.Compile",
					"unsupported constraint for %s: %T", key, v)
			}
			f.object, f.fixed = lit, v
		}

		q.triples = append(q.triples, term.Quad{Subject: subject, Predicate: pred, Object: f.object})
		q.fields = append(q.fields, f)
	}
	return q, nil
}

func (c *Compiler) nest(f *field, t Template) error {
	obj, fixed, err := c.subjectOf(t)
	if err != nil {
		return err
	}
	nested, err := c.compile(t, obj, fixed)
	if err != nil {
		return err
	}
	f.object, f.nested = obj, nested
	return nil
}

// sortedKeys orders keys with "@type" first and the rest lexically, skipping
// the keys that produce no statement.
func sortedKeys(t Template) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		if k == KeyID || k == KeyContext {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		switch {
		case a == KeyType:
			return -1
		case b == KeyType:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

// Subject returns the query's subject: a variable or a fixed IRI.
func (q *Query) Subject() term.Term { return q.subject }

// Triples returns the statements constraining the query's own subject.
func (q *Query) Triples() []term.Quad { return slices.Clone(q.triples) }

// AllTriples returns the own statements followed by those of nested
// templates, depth-first.
func (q *Query) AllTriples() []term.Quad {
	out := slices.Clone(q.triples)
	for _, f := range q.fields {
		if f.nested != nil {
			out = append(out, f.nested.AllTriples()...)
		}
	}
	return out
}

// Variables lists the distinct variables of the query in order of first
// appearance.
func (q *Query) Variables() []term.Variable {
	var vars []term.Variable
	add := func(t term.Term) {
		if v, ok := t.(term.Variable); ok && !slices.Contains(vars, v) {
			vars = append(vars, v)
		}
	}
	add(q.subject)
	for _, tr := range q.AllTriples() {
		add(tr.Subject)
		add(tr.Object)
	}
	return vars
}

// SPARQL renders the query as a select over the conjunction of all its
// statements.
func (q *Query) SPARQL() string {
	var b strings.Builder
	b.WriteString("SELECT * WHERE {\n")
	for _, tr := range q.AllTriples() {
		b.WriteString("  ")
		b.WriteString(tr.Triple())
		b.WriteString(" .\n")
	}
	b.WriteString("}")
	return b.String()
}

func (q *Query) String() string { return q.SPARQL() }

// Bind rebuilds a match from one row. Keys are the template's keys; fixed
// constraints come back as given, bound IRIs are presented through the
// inverse of the compiler's resolver and bound literals as Go values.
func (q *Query) Bind(row Row) (Match, error) {
	return q.bind(row, q.resolver.Inverse())
}

func (q *Query) bind(row Row, inverse naming.Resolver) (Match, error) {
	m := make(Match, len(q.fields)+1)
	if q.fixedID != nil {
		m[KeyID] = q.fixedID
	} else {
		v, err := lookup(row, q.subject, inverse)
		if err != nil {
			return nil, err
		}
		m[KeyID] = v
	}

	for _, f := range q.fields {
		switch {
		case f.nested != nil:
			nested, err := f.nested.bind(row, inverse)
			if err != nil {
				return nil, err
			}
			m[f.key] = nested
		case f.fixed != nil:
			m[f.key] = f.fixed
		default:
			v, err := lookup(row, f.object, inverse)
			if err != nil {
				return nil, err
			}
			m[f.key] = v
		}
	}
	return m, nil
}

func lookup(row Row, t term.Term, inverse naming.Resolver) (any, error) {
	v, ok := t.(term.Variable)
	if !ok {
		return present(t, inverse), nil
	}
	bound, ok := row[string(v)]
	if !ok || bound == nil {
		return nil, apperror.New(apperror.KindInvalidPattern, "Query.Bind",
			"row has no binding for %s", v)
	}
	return present(bound, inverse), nil
}

func present(t term.Term, inverse naming.Resolver) any {
	switch x := t.(type) {
	case term.IRI:
		return inverse.Resolve(string(x))
	case term.Literal:
		return x.Native()
	}
	return t.String()
}
