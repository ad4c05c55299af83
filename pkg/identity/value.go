package identity

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/kittclouds/subjects/pkg/term"
)

// Value is what a property holds: a literal or a reference to another
// subject.
type Value struct {
	lit term.Literal
	id  ID
}

// Lit wraps a literal.
func Lit(l term.Literal) Value { return Value{lit: l} }

// Of wraps a reference to the subject named by id.
func Of(id ID) Value { return Value{id: id} }

// IRI is shorthand for Of(Ref{IRI: name}).
func IRI(name string) Value { return Of(Ref{IRI: name}) }

func String(s string) Value           { return Lit(term.String(s)) }
func LangString(s, lang string) Value { return Lit(term.LangString(s, lang)) }
func Int(n int64) Value               { return Lit(term.Int(n)) }
func Float(f float64) Value           { return Lit(term.Float(f)) }
func Bool(b bool) Value               { return Lit(term.Bool(b)) }

// IsRef reports whether v references a subject.
func (v Value) IsRef() bool { return v.id != nil }

// ID returns the referenced identity, or nil for a literal.
func (v Value) ID() ID { return v.id }

// Literal returns the literal. It is the zero literal for a reference.
func (v Value) Literal() term.Literal { return v.lit }

// Native returns the literal's Go value, or the identity string of a
// reference.
func (v Value) Native() any {
	if v.id != nil {
		return v.id.String()
	}
	return v.lit.Native()
}

// Equal compares references by identity and literals by value and language.
// A reference never equals a literal.
func (v Value) Equal(o Value) bool {
	if (v.id == nil) != (o.id == nil) {
		return false
	}
	if v.id != nil {
		return v.id.Equal(o.id)
	}
	return v.lit.Equal(o.lit)
}

// Hash is consistent with Equal.
func (v Value) Hash() uint64 {
	if v.id != nil {
		return v.id.Hash()
	}
	var native string
	switch x := v.lit.Native().(type) {
	case int64:
		native = "n" + strconv.FormatFloat(float64(x), 'g', -1, 64)
	case float64:
		native = "n" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		native = "b" + strconv.FormatBool(x)
	case string:
		native = "s" + x
	}
	return xxhash.Sum64String("lit\x00" + strings.ToLower(v.lit.Language) + "\x00" + native)
}

func (v Value) String() string {
	if v.id != nil {
		return v.id.String()
	}
	return v.lit.String()
}

// Term renders the value as a store term.
func (v Value) Term() (term.Term, error) {
	if v.id != nil {
		return v.id.Term()
	}
	return v.lit, nil
}

// Index returns the position of the first value equal to v, or -1.
func Index(values []Value, v Value) int {
	for i, x := range values {
		if x.Equal(v) {
			return i
		}
	}
	return -1
}
