package graph

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

const ex = "http://example.org/"

// fakeStore keeps statements in a slice and records every call.
type fakeStore struct {
	mu       sync.Mutex
	quads    []term.Quad
	modified [][]change.StoreEdit
	rows     []pattern.Row

	fetches     atomic.Int32
	fetchErr    error
	modifyErr   error
	fetchGate   chan struct{}
	fetchCalled chan struct{}
}

func newFakeStore(quads ...term.Quad) *fakeStore {
	return &fakeStore{quads: quads}
}

func (f *fakeStore) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	f.fetches.Add(1)
	if f.fetchCalled != nil {
		f.fetchCalled <- struct{}{}
	}
	if f.fetchGate != nil {
		<-f.fetchGate
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []term.Quad
	for _, id := range ids {
		t, err := id.Term()
		if err != nil {
			return nil, err
		}
		for _, q := range f.quads {
			if term.Equal(q.Subject, t) {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Modify(ctx context.Context, edits []change.StoreEdit) error {
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified = append(f.modified, edits)
	for _, e := range edits {
		i := slices.IndexFunc(f.quads, func(q term.Quad) bool { return term.Equal(q, e.Statement) })
		switch {
		case e.Kind == change.EditAdded && i < 0:
			f.quads = append(f.quads, e.Statement)
		case e.Kind == change.EditRemoved && i >= 0:
			f.quads = slices.Delete(f.quads, i, i+1)
		}
	}
	return nil
}

func (f *fakeStore) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	return f.rows, nil
}

func (f *fakeStore) modifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modified)
}

func quad(s, p string, o term.Term) term.Quad {
	return term.Quad{Subject: term.IRI(ex + s), Predicate: term.IRI(ex + p), Object: o}
}

func newTestGraph(t *testing.T, store TripleStore, lang string) *Graph {
	t.Helper()
	r := naming.Default()
	r.Prefixes.Set("ex", ex)
	g, err := New(Config{Store: store, Resolver: r, DefaultLanguage: lang})
	require.NoError(t, err)
	return g
}

func used(t *testing.T, g *Graph, name string) *Subject {
	t.Helper()
	s := g.SubjectIRI(name)
	require.NoError(t, s.Use(context.Background()))
	return s
}

func strs(ss ...string) []identity.Value {
	out := make([]identity.Value, len(ss))
	for i, s := range ss {
		out[i] = identity.String(s)
	}
	return out
}

// =============================================================================
// Identity cache
// =============================================================================

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSubject_SameInstancePerIdentity(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")

	a := g.SubjectIRI("ex:alice")
	b := g.Subject(identity.Ref{IRI: ex + "alice"})
	assert.Same(t, a, b)

	pv1 := g.Subject(identity.NewPropertyValue(identity.Ref{IRI: "ex:alice"}, "ex:knows", identity.IRI("ex:bob")))
	pv2 := g.Subject(identity.NewPropertyValue(identity.Ref{IRI: ex + "alice"}, ex+"knows", identity.IRI(ex+"bob")))
	assert.Same(t, pv1, pv2)
	assert.Same(t, pv1, a.AsSubject("ex:knows", identity.IRI("ex:bob")))

	assert.Equal(t, 2, g.Len())
	assert.False(t, a.Ready())
}

func TestSubject_ConcurrentLookup(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")

	var wg sync.WaitGroup
	got := make([]*Subject, 16)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = g.SubjectIRI("ex:shared")
		}()
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, g.Len())
}

func TestClear(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	a := g.SubjectIRI("ex:a")
	g.Clear()
	assert.Equal(t, 0, g.Len())
	assert.NotSame(t, a, g.SubjectIRI("ex:a"))
}

func TestCreate(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")

	a := g.Create("ex:item/")
	b := g.Create("ex:item/")
	assert.True(t, a.Ready())
	assert.NotSame(t, a, b)
	assert.True(t, strings.HasPrefix(a.ID().String(), ex+"item/"))

	names, err := a.PropertyNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

// =============================================================================
// Materialization
// =============================================================================

func TestUse_Materializes(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Carol")))
	g := newTestGraph(t, store, "")
	s := g.SubjectIRI("ex:s")

	_, _, err := s.Get("ex:name")
	assert.True(t, errors.Is(err, apperror.ErrNotReady))
	assert.True(t, errors.Is(s.Set("ex:name", identity.String("x")), apperror.ErrNotReady))

	require.NoError(t, s.Use(context.Background()))
	assert.True(t, s.Ready())

	v, ok, err := s.Get("ex:name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Carol", v.Native())

	require.NoError(t, s.Use(context.Background()))
	assert.Equal(t, int32(1), store.fetches.Load(), "ready subjects are not fetched again")
}

func TestUse_FailureLeavesUnmaterialized(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Carol")))
	store.fetchErr = errors.New("connection refused")
	g := newTestGraph(t, store, "")
	s := g.SubjectIRI("ex:s")

	err := s.Use(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrStoreFailure))
	assert.False(t, s.Ready())

	store.fetchErr = nil
	require.NoError(t, s.Use(context.Background()))
	assert.True(t, s.Ready())
}

func TestUse_SingleFlight(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Carol")))
	store.fetchGate = make(chan struct{})
	store.fetchCalled = make(chan struct{}, 16)
	g := newTestGraph(t, store, "")
	s := g.SubjectIRI("ex:s")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Use(context.Background()))
		}()
	}
	select {
	case <-store.fetchCalled:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}
	close(store.fetchGate)
	wg.Wait()

	assert.Equal(t, int32(1), store.fetches.Load())
	assert.True(t, s.Ready())
}

func TestUseAll_OneFetch(t *testing.T) {
	store := newFakeStore(
		quad("a", "name", term.String("A")),
		quad("b", "name", term.String("B")),
		quad("c", "name", term.String("C")),
	)
	g := newTestGraph(t, store, "")
	a, b := g.SubjectIRI("ex:a"), g.SubjectIRI("ex:b")

	require.NoError(t, g.UseAll(context.Background(), a, b))
	assert.Equal(t, int32(1), store.fetches.Load())

	v, _, err := b.Get("ex:name")
	require.NoError(t, err)
	assert.Equal(t, "B", v.Native())

	names, err := a.PropertyNames()
	require.NoError(t, err)
	assert.Equal(t, []string{ex + "name"}, names)
}

func TestUse_ReferencesAndAnnotations(t *testing.T) {
	knows := quad("alice", "knows", term.IRI(ex+"bob"))
	store := newFakeStore(
		knows,
		term.Quad{Subject: knows, Predicate: term.IRI(ex + "since"), Object: term.Int(2020)},
	)
	g := newTestGraph(t, store, "")
	alice := used(t, g, "ex:alice")

	bob, ok, err := alice.Ref("ex:knows")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, g.SubjectIRI("ex:bob"), bob)

	stmt := alice.AsSubject("ex:knows", identity.IRI("ex:bob"))
	require.NoError(t, stmt.Use(context.Background()))
	since, ok, err := stmt.Literal("ex:since")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2020), since.Native())
}

// =============================================================================
// Reads
// =============================================================================

func TestGetAll_Language(t *testing.T) {
	store := newFakeStore(
		quad("cat", "label", term.LangString("chat", "fr")),
		quad("cat", "label", term.LangString("cat", "en")),
	)

	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:cat")

	all, err := s.GetAll("ex:label")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	en, err := s.GetAll("ex:label", WithLanguage("en"))
	require.NoError(t, err)
	require.Len(t, en, 1)
	assert.Equal(t, "cat", en[0].Native())

	de, err := s.GetAll("ex:label", WithLanguage("de"))
	require.NoError(t, err)
	assert.Empty(t, de)

	optional, err := s.GetAll("ex:label", WithLanguage("de?"))
	require.NoError(t, err)
	assert.Len(t, optional, 2)

	fr := newTestGraph(t, store, "fr")
	v, ok, err := used(t, fr, "ex:cat").Get("ex:label")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chat", v.Native())
}

func TestTypeMismatch(t *testing.T) {
	store := newFakeStore(
		quad("a", "name", term.String("Alice")),
		quad("a", "knows", term.IRI(ex+"bob")),
	)
	g := newTestGraph(t, store, "")
	a := used(t, g, "ex:a")

	_, _, err := a.Ref("ex:name")
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	_, _, err = a.Literal("ex:knows")
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	err = a.SetMore("ex:knows", identity.String("carol"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	err = a.Set("ex:other", identity.String("x"), identity.IRI("ex:y"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	err = a.Set("ex:name", identity.IRI("ex:bob"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	err = a.Set("ex:knows", identity.String("bob"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	assert.Empty(t, a.Pending())
	name, _, err := a.Literal("ex:name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name.Lexical)
}

// =============================================================================
// Writes and commit
// =============================================================================

func TestSetMore_AppendsOnlyNewValue(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Alice")))
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")

	require.NoError(t, s.SetMore("ex:name", identity.String("Bob")))

	all, err := s.GetAll("ex:name")
	require.NoError(t, err)
	assert.Equal(t, strs("Alice", "Bob"), all)

	pending := s.Pending()
	require.Len(t, pending, 1)
	edits, err := change.Edits(s.ID(), pending)
	require.NoError(t, err)
	assert.Equal(t, []change.StoreEdit{{Kind: change.EditAdded, Statement: quad("s", "name", term.String("Bob"))}}, edits)

	require.NoError(t, s.SetMore("ex:name", identity.String("Alice")))
	assert.Len(t, s.Pending(), 1, "adding a held value records nothing")
}

func TestWrites_FirstSetIsAdded(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")

	require.NoError(t, s.Set("ex:tags", identity.String("a"), identity.String("b"), identity.String("a")))
	require.NoError(t, s.Set("ex:tags", identity.String("b"), identity.String("c")))

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.IsType(t, &change.Added{}, pending[0])
	assert.Equal(t, strs("a", "b"), pending[0].(*change.Added).Values)
	assert.IsType(t, &change.Replaced{}, pending[1])

	edits, err := change.Edits(s.ID(), pending[1:])
	require.NoError(t, err)
	assert.Equal(t, []change.StoreEdit{
		{Kind: change.EditRemoved, Statement: quad("s", "tags", term.String("a"))},
		{Kind: change.EditAdded, Statement: quad("s", "tags", term.String("c"))},
	}, edits)
}

func TestDelete(t *testing.T) {
	store := newFakeStore(
		quad("s", "tags", term.String("a")),
		quad("s", "tags", term.String("b")),
	)
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")

	require.NoError(t, s.Delete("ex:tags", identity.String("zzz")))
	assert.Empty(t, s.Pending(), "deleting a value that is not held records nothing")

	require.NoError(t, s.Delete("ex:tags", identity.String("a")))
	tags, err := s.GetAll("ex:tags")
	require.NoError(t, err)
	assert.Equal(t, strs("b"), tags)

	require.NoError(t, s.Delete("ex:tags"))
	names, err := s.PropertyNames()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Len(t, s.Pending(), 2)
}

func TestDefaultLanguageOnWrite(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "en?")
	s := used(t, g, "ex:s")

	require.NoError(t, s.Set("ex:label", identity.String("hello"), identity.Int(3)))
	values, err := s.GetAll("ex:label")
	require.NoError(t, err)
	assert.Equal(t, []identity.Value{identity.LangString("hello", "en"), identity.Int(3)}, values)
}

func TestCommit(t *testing.T) {
	store := newFakeStore()
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")
	ctx := context.Background()

	require.NoError(t, s.Set("ex:name", identity.String("Dora")))
	require.NoError(t, s.SetMore("ex:name", identity.String("D.")))

	store.modifyErr = errors.New("timeout")
	err := s.Commit(ctx)
	assert.True(t, errors.Is(err, apperror.ErrStoreFailure))
	assert.Len(t, s.Pending(), 2, "failed commit keeps the buffer")

	store.modifyErr = nil
	require.NoError(t, s.Commit(ctx))
	assert.Empty(t, s.Pending())
	require.Equal(t, 1, store.modifyCalls())
	assert.Len(t, store.modified[0], 2)

	fresh := newTestGraph(t, store, "")
	names, err := used(t, fresh, "ex:s").GetAll("ex:name")
	require.NoError(t, err)
	assert.Equal(t, strs("Dora", "D."), names)
}

func TestCommit_NothingToSend(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Eve")))
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")

	require.NoError(t, s.Set("ex:name", identity.String("Eve")))
	require.Len(t, s.Pending(), 1)

	require.NoError(t, s.Commit(context.Background()))
	assert.Empty(t, s.Pending())
	assert.Equal(t, 0, store.modifyCalls())

	assert.True(t, errors.Is(g.SubjectIRI("ex:other").Commit(context.Background()), apperror.ErrNotReady))
}

func TestCommit_Annotated(t *testing.T) {
	store := newFakeStore()
	g := newTestGraph(t, store, "")
	alice := used(t, g, "ex:alice")

	require.NoError(t, alice.AddAnnotated("ex:knows", identity.IRI("ex:bob"), change.Annotation{
		{Property: "ex:since", Value: identity.Int(2020)},
	}))
	require.NoError(t, alice.Commit(context.Background()))

	knows := quad("alice", "knows", term.IRI(ex+"bob"))
	assert.Equal(t, []change.StoreEdit{
		{Kind: change.EditAdded, Statement: knows},
		{Kind: change.EditAdded, Statement: term.Quad{Subject: knows, Predicate: term.IRI(ex + "since"), Object: term.Int(2020)}},
	}, store.modified[0])

	stmt := alice.AsSubject("ex:knows", identity.IRI("ex:bob"))
	require.NoError(t, stmt.Use(context.Background()))
	since, _, err := stmt.Literal("ex:since")
	require.NoError(t, err)
	assert.Equal(t, int64(2020), since.Native())
}

func TestAddAnnotated_DefaultLanguage(t *testing.T) {
	store := newFakeStore()
	g := newTestGraph(t, store, "en")
	s := used(t, g, "ex:s")

	require.NoError(t, s.AddAnnotated("ex:label", identity.String("x"), change.Annotation{
		{Property: "ex:source", Value: identity.String("wiki")},
	}))
	require.NoError(t, s.Commit(context.Background()))

	label := quad("s", "label", term.LangString("x", "en"))
	assert.Contains(t, store.quads, term.Quad{Subject: label, Predicate: term.IRI(ex + "source"), Object: term.LangString("wiki", "en")})

	fresh := newTestGraph(t, store, "en")
	stmt := fresh.SubjectIRI("ex:s").AsSubject("ex:label", identity.String("x"))
	require.NoError(t, stmt.Use(context.Background()))
	got, err := stmt.GetAll("ex:source")
	require.NoError(t, err)
	assert.Equal(t, []identity.Value{identity.LangString("wiki", "en")}, got)
}

func TestSet_SameValuesRecordsNothing(t *testing.T) {
	store := newFakeStore(
		quad("s", "color", term.String("red")),
		quad("s", "color", term.String("blue")),
	)
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")

	calls := 0
	s.OnPropertyChanged(func([]string) { calls++ })

	require.NoError(t, s.Set("ex:color", identity.String("blue"), identity.String("red")))
	assert.Empty(t, s.Pending())
	assert.Zero(t, calls)

	require.NoError(t, s.Set("ex:color", identity.String("blue")))
	assert.Len(t, s.Pending(), 1)
	assert.Equal(t, 1, calls)
}

func TestApply_Validates(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")

	err := s.Apply(&change.Added{Property: ex + "p", Values: strs("a", "b"), Annotations: []change.Annotation{nil}})
	assert.True(t, errors.Is(err, apperror.ErrAnnotationShapeMismatch))
	assert.Empty(t, s.Pending())

	require.NoError(t, s.Apply(&change.Added{Property: ex + "p", Values: strs("a")}))
	v, _, err := s.Get("ex:p")
	require.NoError(t, err)
	assert.Equal(t, "a", v.Native())
}

func TestDiscard(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")
	require.NoError(t, s.Set("ex:a", identity.String("1")))
	require.NoError(t, s.Set("ex:b", identity.String("2")))

	require.NoError(t, s.Discard(0))
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, ex+"b", pending[0].Name())

	assert.True(t, errors.Is(s.Discard(5), apperror.ErrUnsupportedOperation))
}

// =============================================================================
// Working copies
// =============================================================================

func TestWorkingCopy_Isolation(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Alice")))
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")

	wc, err := s.WorkingCopy()
	require.NoError(t, err)
	assert.True(t, wc.Ready())
	assert.True(t, wc.ID().Equal(s.ID()))
	assert.Same(t, s, wc.Original())

	require.NoError(t, wc.Set("ex:name", identity.String("Alicia")))
	orig, _, err := s.Get("ex:name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", orig.Native(), "copy writes stay local")
	assert.Empty(t, s.Pending())

	require.NoError(t, s.Set("ex:age", identity.Int(41)))
	age, ok, err := wc.Get("ex:age")
	require.NoError(t, err)
	require.True(t, ok, "original writes reach the copy")
	assert.Equal(t, int64(41), age.Native())
	require.Len(t, wc.Pending(), 1, "upstream changes do not enter the copy's buffer")

	require.NoError(t, wc.Commit(context.Background()))
	assert.Empty(t, wc.Pending())
	name, _, err := s.Get("ex:name")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", name.Native())
	assert.Len(t, s.Pending(), 2)

	require.NoError(t, s.Commit(context.Background()))
	assert.Empty(t, s.Pending())
}

func TestWorkingCopy_NotReady(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	_, err := g.SubjectIRI("ex:s").WorkingCopy()
	assert.True(t, errors.Is(err, apperror.ErrNotReady))
}

func TestWorkingCopy_Unsupported(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	wc, err := used(t, g, "ex:s").WorkingCopy()
	require.NoError(t, err)

	_, err = wc.WorkingCopy()
	assert.True(t, errors.Is(err, apperror.ErrUnsupportedOperation))

	nested := newWorkingCopy(wc.original, map[string][]identity.Value{})
	nested.upstream = wc
	require.NoError(t, nested.Set("ex:p", identity.String("x")))
	err = nested.Commit(context.Background())
	assert.True(t, errors.Is(err, apperror.ErrUnsupportedOperation))
	assert.Len(t, nested.Pending(), 1)
	assert.Empty(t, wc.Pending())
}

func TestWorkingCopy_CommitOverridesConcurrentEdit(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Alice")))
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")
	wc, err := s.WorkingCopy()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, wc.SetMore("ex:name", identity.String("Bob")))
	require.NoError(t, s.SetMore("ex:name", identity.String("Carol")))
	require.NoError(t, s.Commit(ctx))

	require.NoError(t, wc.Commit(ctx))
	require.NoError(t, s.Commit(ctx))

	got, err := s.GetAll("ex:name")
	require.NoError(t, err)
	assert.Equal(t, strs("Alice", "Bob"), got)
	assert.ElementsMatch(t, []term.Quad{
		quad("s", "name", term.String("Alice")),
		quad("s", "name", term.String("Carol")),
		quad("s", "name", term.String("Bob")),
	}, store.quads)
}

func TestWorkingCopy_SiblingsSeeMergedChanges(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")
	a, err := s.WorkingCopy()
	require.NoError(t, err)
	b, err := s.WorkingCopy()
	require.NoError(t, err)

	require.NoError(t, a.Set("ex:color", identity.String("red")))
	require.NoError(t, a.Commit(context.Background()))

	v, ok, err := b.Get("ex:color")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "red", v.Native())
	assert.Empty(t, b.Pending())
}

func TestWorkingCopy_Collected(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")

	func() {
		wc, err := s.WorkingCopy()
		require.NoError(t, err)
		require.NoError(t, wc.Set("ex:tmp", identity.String("x")))
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return len(s.liveCopies()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

// =============================================================================
// Notifications
// =============================================================================

func TestOnPropertyChanged(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	s := used(t, g, "ex:s")

	var got [][]string
	cancel := s.OnPropertyChanged(func(names []string) { got = append(got, names) })

	require.NoError(t, s.Set("ex:a", identity.String("1")))
	require.NoError(t, s.Apply(
		&change.Added{Property: ex + "b", Values: strs("2")},
		&change.Added{Property: ex + "b", Values: strs("3")},
	))
	cancel()
	require.NoError(t, s.Set("ex:c", identity.String("4")))

	assert.Equal(t, [][]string{{ex + "a"}, {ex + "b"}}, got)
}

func TestReferents(t *testing.T) {
	g := newTestGraph(t, newFakeStore(), "")
	alice := used(t, g, "ex:alice")
	bob := g.SubjectIRI("ex:bob")

	var events []string
	bob.OnReferentsChanged(func(referrer *Subject, property string) {
		events = append(events, referrer.ID().String()+" "+property)
	})

	require.NoError(t, alice.Set("ex:knows", identity.IRI("ex:bob")))
	assert.Equal(t, []string{ex + "alice " + ex + "knows"}, events)

	referrers := g.Referrers(identity.Ref{IRI: "ex:bob"})
	require.Len(t, referrers, 1)
	assert.Same(t, alice, referrers[0])

	require.NoError(t, alice.Delete("ex:knows"))
	assert.Len(t, events, 2)
	assert.Empty(t, g.Referrers(identity.Ref{IRI: "ex:bob"}))
}

func TestReferrers_FromMaterializedData(t *testing.T) {
	store := newFakeStore(quad("carol", "manager", term.IRI(ex+"dave")))
	g := newTestGraph(t, store, "")
	carol := used(t, g, "ex:carol")

	assert.Equal(t, []*Subject{carol}, g.Referrers(identity.Ref{IRI: ex + "dave"}))
	assert.Empty(t, g.Referrers(identity.Ref{IRI: ex + "nobody"}))
}

// =============================================================================
// Pushed deltas and matching
// =============================================================================

func TestAcceptChanges(t *testing.T) {
	store := newFakeStore(quad("s", "name", term.String("Old")))
	g := newTestGraph(t, store, "")
	s := used(t, g, "ex:s")
	wc, err := s.WorkingCopy()
	require.NoError(t, err)

	err = g.AcceptChanges([]change.StoreEdit{
		{Kind: change.EditRemoved, Statement: quad("s", "name", term.String("Old"))},
		{Kind: change.EditAdded, Statement: quad("s", "name", term.String("New"))},
		{Kind: change.EditAdded, Statement: quad("unknown", "name", term.String("x"))},
	})
	require.NoError(t, err)

	names, err := s.GetAll("ex:name")
	require.NoError(t, err)
	assert.Equal(t, strs("New"), names)
	assert.Empty(t, s.Pending(), "pushed changes are already durable")

	copied, err := wc.GetAll("ex:name")
	require.NoError(t, err)
	assert.Equal(t, strs("New"), copied)
	assert.Equal(t, 1, g.Len(), "unknown subjects are not cached")
}

func TestMatch(t *testing.T) {
	store := newFakeStore()
	store.rows = []pattern.Row{
		{"v_1": term.IRI(ex + "alice"), "v_2": term.String("Alice")},
		{"v_1": term.IRI(ex + "bob"), "v_2": term.String("Bob")},
	}
	g := newTestGraph(t, store, "")

	matches, err := g.Match(context.Background(), pattern.Template{"ex:name": nil})
	require.NoError(t, err)
	assert.Equal(t, []pattern.Match{
		{"@id": "ex:alice", "ex:name": "Alice"},
		{"@id": "ex:bob", "ex:name": "Bob"},
	}, matches)

	_, err = g.Match(context.Background(), pattern.Template{})
	assert.True(t, errors.Is(err, apperror.ErrInvalidPattern))
}
