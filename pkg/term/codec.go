package term

import (
	"encoding/json"
	"fmt"
)

// jsonTerm is the SPARQL 1.1 JSON results term shape, with the RDF-star
// "triple" extension. The same shape persists terms in embedded stores.
type jsonTerm struct {
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
	Lang     string          `json:"xml:lang,omitempty"`
	Datatype string          `json:"datatype,omitempty"`
}

type jsonTriple struct {
	Subject   json.RawMessage `json:"subject"`
	Predicate json.RawMessage `json:"predicate"`
	Object    json.RawMessage `json:"object"`
}

// Encode serializes t. Variables cannot be encoded.
func Encode(t Term) ([]byte, error) {
	switch x := t.(type) {
	case IRI:
		if len(x) > 2 && x[:2] == "_:" {
			return marshalTerm("bnode", string(x[2:]), "", "")
		}
		return marshalTerm("uri", string(x), "", "")
	case Literal:
		dt := ""
		if x.Language == "" && x.Datatype != "" && x.Datatype != XSDString {
			dt = string(x.Datatype)
		}
		return marshalTerm("literal", x.Lexical, x.Language, dt)
	case Quad:
		s, err := Encode(x.Subject)
		if err != nil {
			return nil, err
		}
		p, err := Encode(x.Predicate)
		if err != nil {
			return nil, err
		}
		o, err := Encode(x.Object)
		if err != nil {
			return nil, err
		}
		inner, err := json.Marshal(jsonTriple{Subject: s, Predicate: p, Object: o})
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonTerm{Type: "triple", Value: inner})
	}
	return nil, fmt.Errorf("term: cannot encode %T", t)
}

func marshalTerm(typ, value, lang, datatype string) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonTerm{Type: typ, Value: v, Lang: lang, Datatype: datatype})
}

// Decode parses one encoded term.
func Decode(data []byte) (Term, error) {
	var jt jsonTerm
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, fmt.Errorf("term: decode: %w", err)
	}
	if jt.Type == "triple" {
		var tr jsonTriple
		if err := json.Unmarshal(jt.Value, &tr); err != nil {
			return nil, fmt.Errorf("term: decode triple: %w", err)
		}
		return decodeTriple(tr)
	}

	var value string
	if err := json.Unmarshal(jt.Value, &value); err != nil {
		return nil, fmt.Errorf("term: decode %s value: %w", jt.Type, err)
	}
	switch jt.Type {
	case "uri":
		return IRI(value), nil
	case "bnode":
		return IRI("_:" + value), nil
	case "literal", "typed-literal":
		return Literal{Lexical: value, Language: jt.Lang, Datatype: IRI(jt.Datatype)}, nil
	}
	return nil, fmt.Errorf("term: unknown term type %q", jt.Type)
}

func decodeTriple(tr jsonTriple) (Term, error) {
	s, err := Decode(tr.Subject)
	if err != nil {
		return nil, err
	}
	p, err := Decode(tr.Predicate)
	if err != nil {
		return nil, err
	}
	pred, ok := p.(IRI)
	if !ok {
		return nil, fmt.Errorf("term: triple predicate must be an IRI, got %s", p.Kind())
	}
	o, err := Decode(tr.Object)
	if err != nil {
		return nil, err
	}
	return Quad{Subject: s, Predicate: pred, Object: o}, nil
}
