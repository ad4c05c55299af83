package store

import (
	"context"

	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// evaluate joins the statements of q left to right. Every statement narrows
// the rows found so far; positions bound by an earlier statement become
// lookups for the later ones.
func evaluate(ctx context.Context, m matcher, q *pattern.Query) ([]pattern.Row, error) {
	rows := []pattern.Row{{}}
	for _, tr := range q.AllTriples() {
		var next []pattern.Row
		for _, row := range rows {
			s, p, o := substitute(tr.Subject, row), substitute(tr.Predicate, row), substitute(tr.Object, row)
			quads, err := m.match(ctx, s, p, o)
			if err != nil {
				return nil, err
			}
			for _, quad := range quads {
				if extended, ok := extend(row, tr, quad); ok {
					next = append(next, extended)
				}
			}
		}
		if len(next) == 0 {
			return nil, nil
		}
		rows = next
	}
	return rows, nil
}

// substitute returns the bound value of a variable, nil for an unbound one,
// or t itself.
func substitute(t term.Term, row pattern.Row) term.Term {
	v, ok := t.(term.Variable)
	if !ok {
		return t
	}
	return row[string(v)]
}

// extend binds the variables of tr to the positions of quad.
func extend(row pattern.Row, tr term.Quad, quad term.Quad) (pattern.Row, bool) {
	out := make(pattern.Row, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	for _, pair := range [][2]term.Term{{tr.Subject, quad.Subject}, {tr.Object, quad.Object}} {
		v, ok := pair[0].(term.Variable)
		if !ok {
			continue
		}
		if bound, ok := out[string(v)]; ok {
			if key(bound) != key(pair[1]) {
				return nil, false
			}
			continue
		}
		out[string(v)] = pair[1]
	}
	return out, true
}
