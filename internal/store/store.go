// Package store provides embedded TripleStore backends for the subject
// graph: an in-memory store for tests, SQLite for a single-file database and
// Badger for a key-value layout.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/graph"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/term"
)

// Store is a graph.TripleStore that owns resources.
type Store interface {
	graph.TripleStore
	Close() error
}

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*BadgerStore)(nil)
	_ Store = (*Instrumented)(nil)
)

// matcher finds the statements agreeing with every bound position. A nil
// position is unbound.
type matcher interface {
	match(ctx context.Context, s, p, o term.Term) ([]term.Quad, error)
}

// fetch returns the statements about each of ids, in id order.
func fetch(ctx context.Context, m matcher, ids []identity.ID) ([]term.Quad, error) {
	var out []term.Quad
	for _, id := range ids {
		t, err := id.Term()
		if err != nil {
			return nil, err
		}
		quads, err := m.match(ctx, t, nil, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, quads...)
	}
	return out, nil
}

// key is the canonical text of a term, used for exact lookups.
func key(t term.Term) string {
	if t == nil {
		return ""
	}
	return t.String()
}

// predicateName returns the bare IRI of a predicate position.
func predicateName(t term.Term) string {
	if iri, ok := t.(term.IRI); ok {
		return string(iri)
	}
	return key(t)
}

// record is the persisted form of a statement.
type record struct {
	S json.RawMessage `json:"s"`
	P string          `json:"p"`
	O json.RawMessage `json:"o"`
	G string          `json:"g,omitempty"`
}

func encodeQuad(q term.Quad) ([]byte, error) {
	s, err := term.Encode(q.Subject)
	if err != nil {
		return nil, fmt.Errorf("encode subject: %w", err)
	}
	o, err := term.Encode(q.Object)
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return json.Marshal(record{S: s, P: string(q.Predicate), O: o, G: string(q.Graph)})
}

func decodeQuad(data []byte) (term.Quad, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return term.Quad{}, fmt.Errorf("decode statement: %w", err)
	}
	s, err := term.Decode(r.S)
	if err != nil {
		return term.Quad{}, err
	}
	o, err := term.Decode(r.O)
	if err != nil {
		return term.Quad{}, err
	}
	return term.Quad{Subject: s, Predicate: term.IRI(r.P), Object: o, Graph: term.IRI(r.G)}, nil
}

// statementKey identifies a statement within a store.
func statementKey(q term.Quad) string {
	return key(q.Subject) + " " + key(q.Predicate) + " " + key(q.Object) + " " + string(q.Graph)
}

func errIncomplete(e change.StoreEdit) error {
	return fmt.Errorf("store: incomplete statement in %s edit", e.Kind)
}
