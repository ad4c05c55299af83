package change

import (
	"fmt"

	"github.com/kittclouds/subjects/pkg/term"
)

// EditKind is the direction of a store edit.
type EditKind uint8

const (
	EditAdded EditKind = iota + 1
	EditRemoved
)

func (k EditKind) String() string {
	switch k {
	case EditAdded:
		return "added"
	case EditRemoved:
		return "removed"
	}
	return "unknown"
}

// StoreEdit inserts or deletes one statement. An annotation on an edit
// describes statements whose subject is the edited statement itself.
type StoreEdit struct {
	Kind       EditKind
	Statement  term.Quad
	Annotation Annotation
}

func (e StoreEdit) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Statement.Triple())
}

// Expand turns annotations into explicit edits. The annotation statements of
// an insert follow it; those of a delete precede it. Returned edits carry no
// annotation.
func Expand(edits []StoreEdit) ([]StoreEdit, error) {
	out := make([]StoreEdit, 0, len(edits))
	for _, e := range edits {
		if len(e.Annotation) == 0 {
			out = append(out, e)
			continue
		}
		anns := make([]StoreEdit, 0, len(e.Annotation))
		for _, entry := range e.Annotation {
			o, err := entry.Value.Term()
			if err != nil {
				return nil, err
			}
			anns = append(anns, StoreEdit{
				Kind: e.Kind,
				Statement: term.Quad{
					Subject:   term.Quad{Subject: e.Statement.Subject, Predicate: e.Statement.Predicate, Object: e.Statement.Object},
					Predicate: term.IRI(entry.Property),
					Object:    o,
					Graph:     e.Statement.Graph,
				},
			})
		}
		bare := StoreEdit{Kind: e.Kind, Statement: e.Statement}
		if e.Kind == EditRemoved {
			out = append(out, anns...)
			out = append(out, bare)
		} else {
			out = append(out, bare)
			out = append(out, anns...)
		}
	}
	return out, nil
}
