// Package change models property-level edits and translates them into the
// statement-level edits a triple store understands.
package change

import (
	"fmt"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/identity"
)

// PropertyChange is one edit of one property of a subject.
type PropertyChange interface {
	// Name is the resolved property name.
	Name() string
	// Validate checks that annotations line up with the values they describe.
	Validate() error
	// ToStoreEdits translates the change into statement edits about subject.
	ToStoreEdits(subject identity.ID) ([]StoreEdit, error)
}

// AnnotationEntry is one statement about a statement.
type AnnotationEntry struct {
	Property string
	Value    identity.Value
}

// Annotation groups the entries attached to one value. A nil Annotation
// means the value is not annotated.
type Annotation []AnnotationEntry

// Added appends values to a property.
type Added struct {
	Property    string
	Values      []identity.Value
	Annotations []Annotation
}

// Removed drops values from a property.
type Removed struct {
	Property    string
	Values      []identity.Value
	Annotations []Annotation
}

// Replaced swaps the Old values of a property for New. Annotations are
// aligned with New.
type Replaced struct {
	Property    string
	Old         []identity.Value
	New         []identity.Value
	Annotations []Annotation
}

var (
	_ PropertyChange = (*Added)(nil)
	_ PropertyChange = (*Removed)(nil)
	_ PropertyChange = (*Replaced)(nil)
)

func (c *Added) Name() string    { return c.Property }
func (c *Removed) Name() string  { return c.Property }
func (c *Replaced) Name() string { return c.Property }

func (c *Added) Validate() error {
	return checkShape("Added", c.Property, len(c.Values), len(c.Annotations))
}

func (c *Removed) Validate() error {
	return checkShape("Removed", c.Property, len(c.Values), len(c.Annotations))
}

func (c *Replaced) Validate() error {
	return checkShape("Replaced", c.Property, len(c.New), len(c.Annotations))
}

func checkShape(kind, property string, values, annotations int) error {
	if annotations != 0 && annotations != values {
		return apperror.New(apperror.KindAnnotationShapeMismatch, kind+".Validate",
			"%s: %d annotations for %d values", property, annotations, values)
	}
	return nil
}

func (c *Added) String() string {
	return fmt.Sprintf("Added(%s, %v)", c.Property, c.Values)
}

func (c *Removed) String() string {
	return fmt.Sprintf("Removed(%s, %v)", c.Property, c.Values)
}

func (c *Replaced) String() string {
	return fmt.Sprintf("Replaced(%s, %v -> %v)", c.Property, c.Old, c.New)
}

// ToStoreEdits emits one insert per value.
func (c *Added) ToStoreEdits(subject identity.ID) ([]StoreEdit, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	edits := make([]StoreEdit, 0, len(c.Values))
	for i, v := range c.Values {
		e, err := newEdit(EditAdded, subject, c.Property, v, at(c.Annotations, i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, nil
}

// ToStoreEdits emits one delete per value.
func (c *Removed) ToStoreEdits(subject identity.ID) ([]StoreEdit, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	edits := make([]StoreEdit, 0, len(c.Values))
	for i, v := range c.Values {
		e, err := newEdit(EditRemoved, subject, c.Property, v, at(c.Annotations, i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, nil
}

// ToStoreEdits emits deletes for old values that are not kept, in Old order,
// followed by inserts for new values that were not already present, in New
// order. Values present on both sides produce no edit.
func (c *Replaced) ToStoreEdits(subject identity.ID) ([]StoreEdit, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	removed, kept := Reconcile(c.Old, c.New)

	edits := make([]StoreEdit, 0, len(removed)+len(c.New))
	for _, i := range removed {
		e, err := newEdit(EditRemoved, subject, c.Property, c.Old[i], nil)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	for j, v := range c.New {
		if kept[j] {
			continue
		}
		e, err := newEdit(EditAdded, subject, c.Property, v, at(c.Annotations, j))
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, nil
}

func at(annotations []Annotation, i int) Annotation {
	if i < len(annotations) {
		return annotations[i]
	}
	return nil
}

func newEdit(kind EditKind, subject identity.ID, property string, v identity.Value, ann Annotation) (StoreEdit, error) {
	q, err := identity.NewPropertyValue(subject, property, v).ToQuad()
	if err != nil {
		return StoreEdit{}, err
	}
	return StoreEdit{Kind: kind, Statement: q, Annotation: ann}, nil
}

// =============================================================================
// Reconciliation
// =============================================================================

// Reconcile matches old values against new ones. Each old value claims the
// first unclaimed equal slot in next. It returns the indexes of old values
// that found no slot, and for each slot of next whether it was claimed.
func Reconcile(old, next []identity.Value) (removed []int, kept []bool) {
	kept = make([]bool, len(next))
	for i, o := range old {
		slot := -1
		for j, n := range next {
			if !kept[j] && n.Equal(o) {
				slot = j
				break
			}
		}
		if slot < 0 {
			removed = append(removed, i)
			continue
		}
		kept[slot] = true
	}
	return removed, kept
}

// Union appends to existing the incoming values it does not already hold.
// Existing values keep their position and get a nil annotation; incoming
// duplicates collapse into their first occurrence. The returned annotations
// are nil when incomingAnn is empty.
func Union(existing, incoming []identity.Value, incomingAnn []Annotation) ([]identity.Value, []Annotation) {
	values := make([]identity.Value, len(existing), len(existing)+len(incoming))
	copy(values, existing)

	var anns []Annotation
	if len(incomingAnn) > 0 {
		anns = make([]Annotation, len(existing), len(existing)+len(incoming))
	}
	for i, v := range incoming {
		if identity.Index(values, v) >= 0 {
			continue
		}
		values = append(values, v)
		if anns != nil {
			anns = append(anns, at(incomingAnn, i))
		}
	}
	return values, anns
}

// Apply returns the values of a property after c. The input slice is not
// modified.
func Apply(values []identity.Value, c PropertyChange) []identity.Value {
	switch x := c.(type) {
	case *Added:
		out := append([]identity.Value(nil), values...)
		for _, v := range x.Values {
			if identity.Index(out, v) < 0 {
				out = append(out, v)
			}
		}
		return out
	case *Removed:
		out := append([]identity.Value(nil), values...)
		for _, v := range x.Values {
			if i := identity.Index(out, v); i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
		}
		return out
	case *Replaced:
		return append([]identity.Value(nil), x.New...)
	}
	return values
}

// Edits translates changes into store edits in order, expanding annotations.
func Edits(subject identity.ID, changes []PropertyChange) ([]StoreEdit, error) {
	var edits []StoreEdit
	for _, c := range changes {
		e, err := c.ToStoreEdits(subject)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e...)
	}
	return Expand(edits)
}
