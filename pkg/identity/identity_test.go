package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/term"
)

const ex = "http://example.org/"

func TestRefEquality(t *testing.T) {
	a := Ref{IRI: ex + "alice"}
	b := Ref{IRI: ex + "alice"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(Ref{IRI: ex + "bob"}))
	assert.False(t, a.Equal(NewPropertyValue(a, ex+"p", String("x"))))
}

func TestPropertyValueEquality(t *testing.T) {
	alice := Ref{IRI: ex + "alice"}
	p1 := NewPropertyValue(alice, ex+"age", Int(30))
	p2 := NewPropertyValue(Ref{IRI: ex + "alice"}, ex+"age", Lit(term.Typed("30", term.XSDInteger)))

	assert.True(t, p1.Equal(p2))
	assert.Equal(t, p1.Hash(), p2.Hash())

	p3 := NewPropertyValue(alice, ex+"age", String("30"))
	assert.False(t, p1.Equal(p3), "literal 30 and string \"30\" differ")

	ref := NewPropertyValue(alice, ex+"knows", IRI(ex+"bob"))
	lit := NewPropertyValue(alice, ex+"knows", String(ex+"bob"))
	assert.False(t, ref.Equal(lit), "reference never equals a literal")
}

func TestPropertyValueToQuad_Nested(t *testing.T) {
	alice := Ref{IRI: ex + "alice"}
	knows := NewPropertyValue(alice, ex+"knows", IRI(ex+"bob"))
	since := NewPropertyValue(knows, ex+"since", Int(2020))

	q, err := since.ToQuad()
	require.NoError(t, err)

	inner := term.Quad{Subject: term.IRI(ex + "alice"), Predicate: term.IRI(ex + "knows"), Object: term.IRI(ex + "bob")}
	assert.Equal(t, term.Quad{Subject: inner, Predicate: term.IRI(ex + "since"), Object: term.Int(2020)}, q)

	assert.Equal(t,
		"<< << http://example.org/alice http://example.org/knows http://example.org/bob >> http://example.org/since \"2020\"^^<http://www.w3.org/2001/XMLSchema#integer> >>",
		since.String())
}

func TestPropertyValueToQuad_Cycle(t *testing.T) {
	pv := NewPropertyValue(Ref{IRI: ex + "a"}, ex+"p", String("x"))
	pv.subject = pv

	_, err := pv.ToQuad()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrCyclicIdentity))
	assert.Contains(t, pv.String(), "<<cycle>>")
}

func TestFromTerm(t *testing.T) {
	v, err := FromTerm(term.IRI(ex + "bob"))
	require.NoError(t, err)
	assert.True(t, v.IsRef())
	assert.True(t, v.ID().Equal(Ref{IRI: ex + "bob"}))

	v, err = FromTerm(term.LangString("hi", "en"))
	require.NoError(t, err)
	assert.False(t, v.IsRef())
	assert.Equal(t, "hi", v.Native())

	q := term.Quad{Subject: term.IRI(ex + "a"), Predicate: term.IRI(ex + "p"), Object: term.String("x")}
	v, err = FromTerm(q)
	require.NoError(t, err)
	assert.True(t, v.ID().Equal(NewPropertyValue(Ref{IRI: ex + "a"}, ex+"p", String("x"))))

	_, err = FromTerm(term.Variable("v"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))

	_, err = IDFromTerm(term.String("x"))
	assert.True(t, errors.Is(err, apperror.ErrTypeMismatch))
}

func TestResolve(t *testing.T) {
	r := naming.NewPrefixResolver(map[string]string{"ex": ex})
	id := NewPropertyValue(Ref{IRI: "ex:alice"}, "ex:knows", IRI("ex:bob"))

	got := Resolve(id, r)
	want := NewPropertyValue(Ref{IRI: ex + "alice"}, ex+"knows", IRI(ex+"bob"))
	assert.True(t, got.Equal(want))

	lit := ResolveValue(String("ex:bob"), r)
	assert.Equal(t, "ex:bob", lit.Native(), "literals are not names")
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(1).Equal(Float(1)))
	assert.Equal(t, Int(1).Hash(), Float(1).Hash())
	assert.True(t, LangString("x", "EN").Equal(LangString("x", "en")))
	assert.Equal(t, LangString("x", "EN").Hash(), LangString("x", "en").Hash())
	assert.False(t, String("x").Equal(LangString("x", "en")))

	values := []Value{String("a"), IRI(ex + "b")}
	assert.Equal(t, 1, Index(values, IRI(ex+"b")))
	assert.Equal(t, -1, Index(values, String(ex+"b")))
}

func TestMap(t *testing.T) {
	m := NewMap[int]()
	alice := NewPropertyValue(Ref{IRI: ex + "alice"}, ex+"age", Int(30))

	v, inserted := m.GetOrInsert(alice, func() int { return 1 })
	assert.True(t, inserted)
	assert.Equal(t, 1, v)

	again := NewPropertyValue(Ref{IRI: ex + "alice"}, ex+"age", Int(30))
	v, inserted = m.GetOrInsert(again, func() int { return 2 })
	assert.False(t, inserted)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())

	m.Set(Ref{IRI: ex + "bob"}, 5)
	got, ok := m.Get(Ref{IRI: ex + "bob"})
	require.True(t, ok)
	assert.Equal(t, 5, got)
	assert.Equal(t, 2, m.Len())

	count := 0
	m.Range(func(ID, int) bool { count++; return true })
	assert.Equal(t, 2, count)

	assert.True(t, m.Delete(again))
	assert.False(t, m.Delete(again))
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}
