package store

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// MemStore keeps statements in memory, in insertion order.
type MemStore struct {
	mu    sync.RWMutex
	quads []term.Quad
	keys  map[string]struct{}
	log   *zap.Logger
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(quads ...term.Quad) *MemStore {
	s := &MemStore{keys: make(map[string]struct{}), log: zap.NewNop()}
	for _, q := range quads {
		s.insert(q)
	}
	return s
}

// WithLogger sets the logger and returns s.
func (s *MemStore) WithLogger(log *zap.Logger) *MemStore {
	s.log = log
	return s
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

// Len returns the number of statements.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quads)
}

// Fetch implements graph.TripleStore.
func (s *MemStore) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	return fetch(ctx, s, ids)
}

// Select implements graph.TripleStore.
func (s *MemStore) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	return evaluate(ctx, s, q)
}

// Modify implements graph.TripleStore. Edits are validated before any is
// applied.
func (s *MemStore) Modify(ctx context.Context, edits []change.StoreEdit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range edits {
		if e.Statement.Subject == nil || e.Statement.Object == nil {
			return errIncomplete(e)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edits {
		if e.Kind == change.EditRemoved {
			s.remove(e.Statement)
		} else {
			s.insert(e.Statement)
		}
	}
	s.log.Debug("memstore modified", zap.Int("edits", len(edits)), zap.Int("statements", len(s.quads)))
	return nil
}

func (s *MemStore) insert(q term.Quad) {
	k := statementKey(q)
	if _, ok := s.keys[k]; ok {
		return
	}
	s.keys[k] = struct{}{}
	s.quads = append(s.quads, q)
}

func (s *MemStore) remove(q term.Quad) {
	k := statementKey(q)
	if _, ok := s.keys[k]; !ok {
		return
	}
	delete(s.keys, k)
	s.quads = slices.DeleteFunc(s.quads, func(x term.Quad) bool { return statementKey(x) == k })
}

func (s *MemStore) match(ctx context.Context, subj, pred, obj term.Term) ([]term.Quad, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []term.Quad
	for _, q := range s.quads {
		if subj != nil && key(q.Subject) != key(subj) {
			continue
		}
		if pred != nil && key(q.Predicate) != key(pred) {
			continue
		}
		if obj != nil && key(q.Object) != key(obj) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
