// Package term defines the RDF-star terms exchanged with triple stores.
package term

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the concrete term types.
type Kind uint8

const (
	KindIRI Kind = iota + 1
	KindLiteral
	KindTriple
	KindVariable
)

func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindLiteral:
		return "literal"
	case KindTriple:
		return "triple"
	case KindVariable:
		return "variable"
	}
	return "unknown"
}

// Term is one position of a statement.
type Term interface {
	Kind() Kind
	// String renders the term in N-Triples-star syntax.
	String() string
}

// Well-known datatypes.
const (
	XSDString     IRI = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean    IRI = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger    IRI = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal    IRI = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble     IRI = "http://www.w3.org/2001/XMLSchema#double"
	XSDFloat      IRI = "http://www.w3.org/2001/XMLSchema#float"
	XSDLong       IRI = "http://www.w3.org/2001/XMLSchema#long"
	XSDInt        IRI = "http://www.w3.org/2001/XMLSchema#int"
	RDFType       IRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFLangString IRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// =============================================================================
// IRI
// =============================================================================

// IRI names a resource. Blank nodes are carried as IRIs with a "_:" prefix.
type IRI string

func (IRI) Kind() Kind { return KindIRI }

func (i IRI) String() string {
	if strings.HasPrefix(string(i), "_:") {
		return string(i)
	}
	return "<" + string(i) + ">"
}

// =============================================================================
// Variable
// =============================================================================

// Variable is an unbound query position.
type Variable string

func (Variable) Kind() Kind       { return KindVariable }
func (v Variable) String() string { return "?" + string(v) }

// =============================================================================
// Quad
// =============================================================================

// Quad is a statement. Used as a term it is a quoted triple and its graph is
// not part of its identity.
type Quad struct {
	Subject   Term
	Predicate IRI
	Object    Term
	Graph     IRI
}

func (Quad) Kind() Kind { return KindTriple }

func (q Quad) String() string {
	return "<< " + q.Triple() + " >>"
}

// Triple renders "s p o" without a terminating dot.
func (q Quad) Triple() string {
	return render(q.Subject) + " " + q.Predicate.String() + " " + render(q.Object)
}

func render(t Term) string {
	if t == nil {
		return "[]"
	}
	return t.String()
}

// =============================================================================
// Literal
// =============================================================================

// Literal is a lexical value with an optional language tag or datatype.
// A literal with neither is an xsd:string.
type Literal struct {
	Lexical  string
	Language string
	Datatype IRI
}

func (Literal) Kind() Kind { return KindLiteral }

func (l Literal) String() string {
	s := `"` + escape(l.Lexical) + `"`
	switch {
	case l.Language != "":
		return s + "@" + l.Language
	case l.Datatype != "" && l.Datatype != XSDString:
		return s + "^^" + l.Datatype.String()
	}
	return s
}

// String creates a plain string literal.
func String(s string) Literal { return Literal{Lexical: s} }

// LangString creates a language-tagged string literal.
func LangString(s, lang string) Literal { return Literal{Lexical: s, Language: lang} }

// Int creates an xsd:integer literal.
func Int(n int64) Literal {
	return Literal{Lexical: strconv.FormatInt(n, 10), Datatype: XSDInteger}
}

// Float creates an xsd:double literal.
func Float(f float64) Literal {
	return Literal{Lexical: strconv.FormatFloat(f, 'g', -1, 64), Datatype: XSDDouble}
}

// Bool creates an xsd:boolean literal.
func Bool(b bool) Literal {
	return Literal{Lexical: strconv.FormatBool(b), Datatype: XSDBoolean}
}

// Typed creates a literal with an explicit datatype.
func Typed(lexical string, datatype IRI) Literal {
	return Literal{Lexical: lexical, Datatype: datatype}
}

// FromNative converts a Go value into a literal.
func FromNative(v any) (Literal, error) {
	switch x := v.(type) {
	case Literal:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	}
	return Literal{}, fmt.Errorf("term: cannot convert %T to a literal", v)
}

// Native returns the Go value of the literal: int64 for integer types,
// float64 for decimals and floating point, bool for booleans and the
// lexical form otherwise. Malformed lexical forms fall back to the string.
func (l Literal) Native() any {
	switch l.Datatype {
	case XSDInteger, XSDLong, XSDInt,
		"http://www.w3.org/2001/XMLSchema#short",
		"http://www.w3.org/2001/XMLSchema#byte",
		"http://www.w3.org/2001/XMLSchema#nonNegativeInteger",
		"http://www.w3.org/2001/XMLSchema#positiveInteger",
		"http://www.w3.org/2001/XMLSchema#negativeInteger",
		"http://www.w3.org/2001/XMLSchema#nonPositiveInteger":
		if n, err := strconv.ParseInt(strings.TrimSpace(l.Lexical), 10, 64); err == nil {
			return n
		}
	case XSDDecimal, XSDDouble, XSDFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(l.Lexical), 64); err == nil {
			return f
		}
	case XSDBoolean:
		switch strings.TrimSpace(l.Lexical) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return l.Lexical
}

// Equal reports whether both literals carry the same native value and the
// same language tag, compared case-insensitively. Numbers compare by value
// regardless of their numeric datatype.
func (l Literal) Equal(o Literal) bool {
	if !strings.EqualFold(l.Language, o.Language) {
		return false
	}
	return nativeEqual(l.Native(), o.Native())
}

func nativeEqual(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// =============================================================================
// Equality
// =============================================================================

// Equal compares two terms structurally, recursing into quoted triples.
// Literals compare by Literal.Equal.
func Equal(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case IRI:
		y, ok := b.(IRI)
		return ok && x == y
	case Variable:
		y, ok := b.(Variable)
		return ok && x == y
	case Literal:
		y, ok := b.(Literal)
		return ok && x.Equal(y)
	case Quad:
		y, ok := b.(Quad)
		return ok && x.Predicate == y.Predicate && Equal(x.Subject, y.Subject) && Equal(x.Object, y.Object)
	}
	return false
}

func escape(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
