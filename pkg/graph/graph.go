// Package graph presents a triple store as a cache of identity-stable,
// mutable Subjects.
//
// A Graph owns every Subject in an arena: one entry per resolved identity.
// Property values hold identities, never Subject pointers, so cyclic data
// needs no special handling. Subjects are materialized lazily by Use and
// record local edits as pending changes until Commit.
package graph

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// Config configures a Graph. Only Store is required.
type Config struct {
	Store    TripleStore
	Resolver naming.Resolver
	Logger   *zap.Logger

	// DefaultLanguage applies to reads without an explicit language and is
	// attached to plain strings on write. "en?" marks it optional for reads.
	DefaultLanguage string

	// Name labels the graph in logs.
	Name string
}

// Graph caches Subjects over a TripleStore.
type Graph struct {
	name        string
	store       TripleStore
	resolver    naming.Resolver
	defaultLang string
	log         *zap.Logger
	compiler    *pattern.Compiler
	flight      singleflight.Group

	mu     sync.Mutex
	arena  []*Subject
	ids    *identity.Map[uint32]
	refs   *identity.Map[*roaring.Bitmap]
	serial uint64
}

// New creates an empty graph.
func New(cfg Config) (*Graph, error) {
	if cfg.Store == nil {
		return nil, errors.New("graph: a store is required")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = naming.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &Graph{
		name:        cfg.Name,
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		defaultLang: cfg.DefaultLanguage,
		log:         cfg.Logger.With(zap.String("graph", cfg.Name)),
		compiler:    pattern.NewCompiler(cfg.Resolver),
		ids:         identity.NewMap[uint32](),
		refs:        identity.NewMap[*roaring.Bitmap](),
	}, nil
}

func (g *Graph) Name() string              { return g.name }
func (g *Graph) Resolver() naming.Resolver { return g.resolver }
func (g *Graph) DefaultLanguage() string   { return g.defaultLang }
func (g *Graph) Store() TripleStore        { return g.store }

// =============================================================================
// Identity cache
// =============================================================================

// Subject returns the one Subject for the resolved form of id, creating an
// unmaterialized one on first request.
func (g *Graph) Subject(id identity.ID) *Subject {
	return g.subject(identity.Resolve(id, g.resolver))
}

// SubjectIRI is Subject(identity.Ref{IRI: name}).
func (g *Graph) SubjectIRI(name string) *Subject {
	return g.Subject(identity.Ref{IRI: name})
}

func (g *Graph) subject(resolved identity.ID) *Subject {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, created := g.ids.GetOrInsert(resolved, func() uint32 {
		g.serial++
		s := newSubject(g, resolved, uint32(len(g.arena)), strconv.FormatUint(g.serial, 10))
		g.arena = append(g.arena, s)
		return s.index
	})
	if created {
		g.log.Debug("subject cached", zap.Stringer("id", resolved), zap.Uint32("index", idx))
	}
	return g.arena[idx]
}

// lookupLocked returns the cached subject for a resolved id, or nil.
func (g *Graph) lookupLocked(id identity.ID) *Subject {
	idx, ok := g.ids.Get(id)
	if !ok {
		return nil
	}
	return g.arena[idx]
}

// Create mints a new subject named base followed by a random UUID. It is
// ready immediately and has no properties.
func (g *Graph) Create(base string) *Subject {
	if base == "" {
		base = "urn:uuid:"
	}
	s := g.subject(identity.Ref{IRI: g.resolver.Resolve(base) + uuid.NewString()})
	s.materialize(make(map[string][]identity.Value))
	return s
}

// Len returns the number of cached subjects.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.arena)
}

// Clear forgets every cached subject. Subjects still held by callers keep
// working but are no longer returned by Subject.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.arena = nil
	g.ids.Clear()
	g.refs.Clear()
}

// localize brings a written value into stored form: nested names are
// resolved and plain strings get the default language.
func (g *Graph) localize(v identity.Value) identity.Value {
	if v.IsRef() {
		return identity.ResolveValue(v, g.resolver)
	}
	lang, _ := parseLanguage(g.defaultLang)
	if l := v.Literal(); lang != "" && l.Language == "" && (l.Datatype == "" || l.Datatype == term.XSDString) {
		return identity.LangString(l.Lexical, lang)
	}
	return v
}

// =============================================================================
// Materialization
// =============================================================================

// Use materializes s by fetching its statements, unless it is ready already.
// Concurrent calls for the same subject share one fetch. On failure s stays
// unmaterialized and a StoreFailure is returned.
func (g *Graph) Use(ctx context.Context, s *Subject) (*Subject, error) {
	if s.Ready() {
		return s, nil
	}
	_, err, shared := g.flight.Do(s.serial, func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		return nil, g.fetchInto(ctx, []*Subject{s})
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.log.Debug("shared materialization", zap.Stringer("id", s.id))
	}
	return s, nil
}

// UseAll materializes every subject that is not ready with a single fetch.
func (g *Graph) UseAll(ctx context.Context, subjects ...*Subject) error {
	var pending []*Subject
	for _, s := range subjects {
		if !s.Ready() {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return g.fetchInto(ctx, pending)
}

func (g *Graph) fetchInto(ctx context.Context, subjects []*Subject) error {
	ids := make([]identity.ID, len(subjects))
	bySubject := make(map[string]map[string][]identity.Value, len(subjects))
	for i, s := range subjects {
		t, err := s.id.Term()
		if err != nil {
			return err
		}
		ids[i] = s.id
		bySubject[t.String()] = make(map[string][]identity.Value)
	}

	g.log.Debug("materializing", zap.Int("subjects", len(subjects)))
	quads, err := g.store.Fetch(ctx, ids...)
	if err != nil {
		g.log.Warn("fetch failed", zap.Int("subjects", len(subjects)), zap.Error(err))
		return apperror.New(apperror.KindStoreFailure, "Graph.Use",
			"fetching %d subjects", len(subjects)).WithInternal(err)
	}

	for _, q := range quads {
		props, ok := bySubject[q.Subject.String()]
		if !ok {
			continue
		}
		v, err := identity.FromTerm(q.Object)
		if err != nil {
			return err
		}
		name := string(q.Predicate)
		if identity.Index(props[name], v) < 0 {
			props[name] = append(props[name], v)
		}
	}

	for _, s := range subjects {
		t, _ := s.id.Term()
		props := bySubject[t.String()]
		if s.materialize(props) {
			g.indexReferences(s, props)
		}
	}
	g.log.Debug("materialized", zap.Int("subjects", len(subjects)), zap.Int("statements", len(quads)))
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Compile compiles a match template with the graph's resolver.
func (g *Graph) Compile(t pattern.Template) (*pattern.Query, error) {
	return g.compiler.Compile(t)
}

// Match runs template against the store and returns one match per row.
func (g *Graph) Match(ctx context.Context, t pattern.Template) ([]pattern.Match, error) {
	q, err := g.compiler.Compile(t)
	if err != nil {
		return nil, err
	}
	rows, err := g.store.Select(ctx, q)
	if err != nil {
		return nil, apperror.New(apperror.KindStoreFailure, "Graph.Match", "select").WithInternal(err)
	}
	matches := make([]pattern.Match, 0, len(rows))
	for _, row := range rows {
		m, err := q.Bind(row)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	g.log.Debug("matched", zap.Int("rows", len(rows)))
	return matches, nil
}

// =============================================================================
// Pushed deltas
// =============================================================================

// AcceptChanges applies edits that are already durable in the store, for
// example deltas pushed by another writer. Only cached, ready subjects are
// updated and their pending changes are left alone.
func (g *Graph) AcceptChanges(edits []change.StoreEdit) error {
	type batch struct {
		subject *Subject
		changes []change.PropertyChange
	}
	var batches []*batch
	bySubject := make(map[*Subject]*batch)

	for _, e := range edits {
		id, err := identity.IDFromTerm(e.Statement.Subject)
		if err != nil {
			return err
		}
		v, err := identity.FromTerm(e.Statement.Object)
		if err != nil {
			return err
		}

		g.mu.Lock()
		s := g.lookupLocked(id)
		g.mu.Unlock()
		if s == nil || !s.Ready() {
			continue
		}

		var c change.PropertyChange
		prop := string(e.Statement.Predicate)
		if e.Kind == change.EditRemoved {
			c = &change.Removed{Property: prop, Values: []identity.Value{v}}
		} else {
			c = &change.Added{Property: prop, Values: []identity.Value{v}}
		}

		b, ok := bySubject[s]
		if !ok {
			b = &batch{subject: s}
			bySubject[s] = b
			batches = append(batches, b)
		}
		b.changes = append(b.changes, c)
	}

	for _, b := range batches {
		b.subject.acceptExternal(b.changes)
	}
	g.log.Debug("accepted pushed changes", zap.Int("edits", len(edits)), zap.Int("subjects", len(batches)))
	return nil
}

// =============================================================================
// Reverse references
// =============================================================================

// Referrers returns the cached subjects holding a reference to id, in cache
// order.
func (g *Graph) Referrers(id identity.ID) []*Subject {
	target := identity.Resolve(id, g.resolver)

	g.mu.Lock()
	bm, ok := g.refs.Get(target)
	if !ok {
		g.mu.Unlock()
		return nil
	}
	var candidates []*Subject
	for _, idx := range bm.ToArray() {
		if int(idx) < len(g.arena) {
			candidates = append(candidates, g.arena[idx])
		}
	}
	g.mu.Unlock()

	var out []*Subject
	var stale []uint32
	for _, s := range candidates {
		if s.references(target) {
			out = append(out, s)
		} else {
			stale = append(stale, s.index)
		}
	}
	if len(stale) > 0 {
		g.mu.Lock()
		for _, idx := range stale {
			bm.Remove(idx)
		}
		g.mu.Unlock()
	}
	return out
}

// indexReferences records the references held by freshly materialized values.
func (g *Graph) indexReferences(s *Subject, values map[string][]identity.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cachedLocked(s) {
		return
	}
	for _, vs := range values {
		for _, v := range vs {
			if v.IsRef() {
				g.addReferrerLocked(v.ID(), s.index)
			}
		}
	}
}

// referencesChanged updates the reverse index for changes applied to from
// and tells every cached subject whose referents changed.
func (g *Graph) referencesChanged(from *Subject, changes []change.PropertyChange) {
	type notice struct {
		target   *Subject
		property string
	}
	var notices []notice

	g.mu.Lock()
	cached := g.cachedLocked(from)
	for _, c := range changes {
		added, touched := referencedIDs(c)
		if cached {
			for _, id := range added {
				g.addReferrerLocked(id, from.index)
			}
		}
		for _, id := range touched {
			if t := g.lookupLocked(id); t != nil {
				notices = append(notices, notice{target: t, property: c.Name()})
			}
		}
	}
	g.mu.Unlock()

	for _, n := range notices {
		for _, fn := range n.target.referentObservers.snapshot() {
			fn(from, n.property)
		}
	}
}

func (g *Graph) cachedLocked(s *Subject) bool {
	return int(s.index) < len(g.arena) && g.arena[s.index] == s
}

func (g *Graph) addReferrerLocked(target identity.ID, referrer uint32) {
	bm, _ := g.refs.GetOrInsert(target, roaring.New)
	bm.Add(referrer)
}

// referencedIDs returns the identities a change starts referencing and every
// identity whose set of referrers it may alter.
func referencedIDs(c change.PropertyChange) (added, touched []identity.ID) {
	var gained, lost []identity.Value
	switch x := c.(type) {
	case *change.Added:
		gained = x.Values
	case *change.Removed:
		lost = x.Values
	case *change.Replaced:
		gained, lost = x.New, x.Old
	}
	for _, v := range gained {
		if v.IsRef() {
			added = append(added, v.ID())
			touched = appendID(touched, v.ID())
		}
	}
	for _, v := range lost {
		if v.IsRef() {
			touched = appendID(touched, v.ID())
		}
	}
	return added, touched
}

func appendID(ids []identity.ID, id identity.ID) []identity.ID {
	for _, x := range ids {
		if x.Equal(id) {
			return ids
		}
	}
	return append(ids, id)
}
