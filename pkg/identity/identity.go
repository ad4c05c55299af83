// Package identity names the subjects of a graph.
//
// An ID is either a Ref, wrapping a canonical IRI, or a PropertyValue naming
// "the value that property P holds on subject S". PropertyValues nest, which
// makes statements about statements addressable without a separate type.
package identity

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/term"
)

// ID identifies a subject. Implementations are immutable and compare
// structurally.
type ID interface {
	Equal(other ID) bool
	Hash() uint64
	String() string
	// Term renders the identity as a store term: an IRI for a Ref and a
	// quoted triple for a PropertyValue.
	Term() (term.Term, error)
}

// =============================================================================
// Ref
// =============================================================================

// Ref is a plain reference identity.
type Ref struct {
	IRI string
}

func (r Ref) Equal(other ID) bool {
	o, ok := other.(Ref)
	return ok && o.IRI == r.IRI
}

func (r Ref) Hash() uint64 {
	return xxhash.Sum64String("ref\x00" + r.IRI)
}

func (r Ref) String() string { return r.IRI }

func (r Ref) Term() (term.Term, error) { return term.IRI(r.IRI), nil }

// =============================================================================
// PropertyValue
// =============================================================================

// PropertyValue names the value a property holds on a subject.
type PropertyValue struct {
	subject  ID
	property string
	value    Value
}

// NewPropertyValue creates the identity of (subject, property, value).
func NewPropertyValue(subject ID, property string, value Value) *PropertyValue {
	return &PropertyValue{subject: subject, property: property, value: value}
}

func (p *PropertyValue) Subject() ID      { return p.subject }
func (p *PropertyValue) Property() string { return p.property }
func (p *PropertyValue) Value() Value     { return p.value }

func (p *PropertyValue) Equal(other ID) bool {
	o, ok := other.(*PropertyValue)
	if !ok || o == nil {
		return false
	}
	if o == p {
		return true
	}
	return p.property == o.property && p.subject.Equal(o.subject) && p.value.Equal(o.value)
}

func (p *PropertyValue) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	_, _ = d.WriteString("pv\x00")
	binary.LittleEndian.PutUint64(buf[:], p.subject.Hash())
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(p.property)
	binary.LittleEndian.PutUint64(buf[:], p.value.Hash())
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

func (p *PropertyValue) String() string {
	var b strings.Builder
	p.write(&b, map[*PropertyValue]bool{})
	return b.String()
}

func (p *PropertyValue) write(b *strings.Builder, visited map[*PropertyValue]bool) {
	if visited[p] {
		b.WriteString("<<cycle>>")
		return
	}
	visited[p] = true
	defer delete(visited, p)

	b.WriteString("<< ")
	writeID(b, p.subject, visited)
	b.WriteString(" ")
	b.WriteString(p.property)
	b.WriteString(" ")
	if p.value.id != nil {
		writeID(b, p.value.id, visited)
	} else {
		b.WriteString(p.value.lit.String())
	}
	b.WriteString(" >>")
}

func writeID(b *strings.Builder, id ID, visited map[*PropertyValue]bool) {
	if pv, ok := id.(*PropertyValue); ok {
		pv.write(b, visited)
		return
	}
	b.WriteString(id.String())
}

func (p *PropertyValue) Term() (term.Term, error) {
	return p.quad(map[*PropertyValue]bool{})
}

// ToQuad expands the identity into its statement, recursively quoting nested
// property-value subjects and values.
func (p *PropertyValue) ToQuad() (term.Quad, error) {
	return p.quad(map[*PropertyValue]bool{})
}

func (p *PropertyValue) quad(visited map[*PropertyValue]bool) (term.Quad, error) {
	if visited[p] {
		return term.Quad{}, apperror.New(apperror.KindCyclicIdentity, "PropertyValue.ToQuad",
			"identity refers to itself through %s", p.property)
	}
	visited[p] = true
	defer delete(visited, p)

	s, err := idTerm(p.subject, visited)
	if err != nil {
		return term.Quad{}, err
	}
	var o term.Term
	if p.value.id != nil {
		if o, err = idTerm(p.value.id, visited); err != nil {
			return term.Quad{}, err
		}
	} else {
		o = p.value.lit
	}
	return term.Quad{Subject: s, Predicate: term.IRI(p.property), Object: o}, nil
}

func idTerm(id ID, visited map[*PropertyValue]bool) (term.Term, error) {
	if pv, ok := id.(*PropertyValue); ok {
		return pv.quad(visited)
	}
	return id.Term()
}

// =============================================================================
// Conversion
// =============================================================================

// FromTerm converts a store term into a property value. IRIs become Refs and
// quoted triples become PropertyValues.
func FromTerm(t term.Term) (Value, error) {
	switch x := t.(type) {
	case term.Literal:
		return Lit(x), nil
	case term.IRI, term.Quad:
		id, err := IDFromTerm(x)
		if err != nil {
			return Value{}, err
		}
		return Of(id), nil
	}
	return Value{}, apperror.New(apperror.KindTypeMismatch, "identity.FromTerm",
		"cannot convert %v to a value", t)
}

// IDFromTerm converts a subject-position term into an identity.
func IDFromTerm(t term.Term) (ID, error) {
	switch x := t.(type) {
	case term.IRI:
		return Ref{IRI: string(x)}, nil
	case term.Quad:
		subject, err := IDFromTerm(x.Subject)
		if err != nil {
			return nil, err
		}
		value, err := FromTerm(x.Object)
		if err != nil {
			return nil, err
		}
		return NewPropertyValue(subject, string(x.Predicate), value), nil
	}
	return nil, apperror.New(apperror.KindTypeMismatch, "identity.IDFromTerm",
		"%v cannot name a subject", t)
}

// Resolve rewrites every name inside id through r. Literals are untouched.
func Resolve(id ID, r naming.Resolver) ID {
	switch x := id.(type) {
	case Ref:
		return Ref{IRI: r.Resolve(x.IRI)}
	case *PropertyValue:
		return NewPropertyValue(Resolve(x.subject, r), r.Resolve(x.property), ResolveValue(x.value, r))
	}
	return id
}

// ResolveValue resolves the identity held by v, if any.
func ResolveValue(v Value, r naming.Resolver) Value {
	if v.id == nil {
		return v
	}
	return Of(Resolve(v.id, r))
}
