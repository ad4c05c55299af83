package graph

import (
	"context"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// TripleStore is the durable source of truth behind a Graph.
type TripleStore interface {
	// Fetch returns every statement whose subject is one of ids. A
	// PropertyValue id matches statements about that statement.
	Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error)

	// Modify applies edits in order. Either all edits are applied or the
	// call fails.
	Modify(ctx context.Context, edits []change.StoreEdit) error

	// Select evaluates a compiled query and returns one row per solution.
	Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error)
}
