package graph

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/term"
)

// propertySet is the read/write surface shared by Subject and WorkingCopy.
// Every mutation of values goes through applyLocked.
type propertySet struct {
	graph *Graph
	kind  string

	mu      sync.RWMutex
	ready   bool
	values  map[string][]identity.Value
	pending []change.PropertyChange

	propertyObservers observers[PropertyChangedFunc]

	// changed runs after a local write, outside the lock.
	changed func(changes []change.PropertyChange)
}

// Ready reports whether the properties have been materialized.
func (p *propertySet) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *propertySet) notReady(op string) error {
	return apperror.New(apperror.KindNotReady, p.kind+"."+op, "not materialized")
}

// =============================================================================
// Reads
// =============================================================================

// GetAll returns the values of property. String values are filtered by
// language; see WithLanguage. Without an explicit language the graph's
// default language applies.
func (p *propertySet) GetAll(property string, opts ...ReadOption) ([]identity.Value, error) {
	o := readOptions{lang: p.graph.defaultLang}
	for _, opt := range opts {
		opt(&o)
	}
	name := p.graph.resolver.Resolve(property)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, p.notReady("GetAll")
	}
	return filterLanguage(p.values[name], o.lang), nil
}

// Get returns the first value of property.
func (p *propertySet) Get(property string, opts ...ReadOption) (identity.Value, bool, error) {
	values, err := p.GetAll(property, opts...)
	if err != nil || len(values) == 0 {
		return identity.Value{}, false, err
	}
	return values[0], true, nil
}

// Literal returns the first value of property, which must be a literal.
func (p *propertySet) Literal(property string, opts ...ReadOption) (term.Literal, bool, error) {
	v, ok, err := p.Get(property, opts...)
	if err != nil || !ok {
		return term.Literal{}, false, err
	}
	if v.IsRef() {
		return term.Literal{}, false, apperror.New(apperror.KindTypeMismatch, p.kind+".Literal",
			"%s holds references", property)
	}
	return v.Literal(), true, nil
}

// Ref returns the subject referenced by the first value of property.
func (p *propertySet) Ref(property string) (*Subject, bool, error) {
	v, ok, err := p.Get(property)
	if err != nil || !ok {
		return nil, false, err
	}
	if !v.IsRef() {
		return nil, false, apperror.New(apperror.KindTypeMismatch, p.kind+".Ref",
			"%s holds literals", property)
	}
	return p.graph.Subject(v.ID()), true, nil
}

// Refs returns the subjects referenced by property.
func (p *propertySet) Refs(property string) ([]*Subject, error) {
	values, err := p.GetAll(property)
	if err != nil {
		return nil, err
	}
	subjects := make([]*Subject, 0, len(values))
	for _, v := range values {
		if !v.IsRef() {
			return nil, apperror.New(apperror.KindTypeMismatch, p.kind+".Refs",
				"%s holds literals", property)
		}
		subjects = append(subjects, p.graph.Subject(v.ID()))
	}
	return subjects, nil
}

// PropertyNames returns the resolved names of all properties, sorted.
func (p *propertySet) PropertyNames() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, p.notReady("PropertyNames")
	}
	return slices.Sorted(maps.Keys(p.values)), nil
}

// Properties returns a copy of the property map.
func (p *propertySet) Properties() (map[string][]identity.Value, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, p.notReady("Properties")
	}
	return cloneValues(p.values), nil
}

// Pending returns the changes not yet committed, oldest first.
func (p *propertySet) Pending() []change.PropertyChange {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.pending)
}

// Discard drops the pending change at index i without reverting it locally.
func (p *propertySet) Discard(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.pending) {
		return apperror.New(apperror.KindUnsupportedOperation, p.kind+".Discard",
			"no pending change at %d of %d", i, len(p.pending))
	}
	p.pending = slices.Delete(slices.Clone(p.pending), i, i+1)
	return nil
}

// OnPropertyChanged registers fn for every applied change.
func (p *propertySet) OnPropertyChanged(fn PropertyChangedFunc) (cancel func()) {
	return p.propertyObservers.add(fn)
}

func (p *propertySet) notifyProperties(changes []change.PropertyChange) {
	fns := p.propertyObservers.snapshot()
	if len(fns) == 0 {
		return
	}
	names := changedNames(changes)
	for _, fn := range fns {
		fn(names)
	}
}

func filterLanguage(values []identity.Value, lang string) []identity.Value {
	language, optional := parseLanguage(lang)
	if language == "" || len(values) == 0 || values[0].IsRef() {
		return slices.Clone(values)
	}
	var out []identity.Value
	for _, v := range values {
		l := v.Literal()
		if !isString(l) || strings.EqualFold(l.Language, language) {
			out = append(out, v)
		}
	}
	if len(out) == 0 && optional {
		return slices.Clone(values)
	}
	return out
}

func isString(l term.Literal) bool {
	return l.Language != "" || l.Datatype == "" || l.Datatype == term.XSDString || l.Datatype == term.RDFLangString
}

// =============================================================================
// Writes
// =============================================================================

// Set replaces the values of property.
func (p *propertySet) Set(property string, values ...identity.Value) error {
	name, vals, err := p.prepare("Set", property, values)
	if err != nil {
		return err
	}
	return p.write("Set", func() (change.PropertyChange, error) {
		old, exists := p.values[name]
		if !exists {
			if len(vals) == 0 {
				return nil, nil
			}
			return &change.Added{Property: name, Values: vals}, nil
		}
		if len(old) > 0 && len(vals) > 0 && old[0].IsRef() != vals[0].IsRef() {
			return nil, apperror.New(apperror.KindTypeMismatch, p.kind+".Set",
				"%s cannot mix literals and references", name)
		}
		if sameValues(old, vals) {
			return nil, nil
		}
		return &change.Replaced{Property: name, Old: slices.Clone(old), New: vals}, nil
	})
}

// sameValues reports whether a and b hold the same distinct values.
func sameValues(a, b []identity.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range b {
		if identity.Index(a, v) < 0 {
			return false
		}
	}
	return true
}

// SetMore adds values to property, keeping the values it already holds.
func (p *propertySet) SetMore(property string, values ...identity.Value) error {
	return p.addMore("SetMore", property, values, nil)
}

// AddAnnotated adds one value to property together with statements about
// the resulting statement. It does nothing when the value is already held.
func (p *propertySet) AddAnnotated(property string, value identity.Value, annotation change.Annotation) error {
	resolved := make(change.Annotation, len(annotation))
	for i, entry := range annotation {
		resolved[i] = change.AnnotationEntry{
			Property: p.graph.resolver.Resolve(entry.Property),
			Value:    p.graph.localize(entry.Value),
		}
	}
	return p.addMore("AddAnnotated", property, []identity.Value{value}, []change.Annotation{resolved})
}

func (p *propertySet) addMore(op, property string, values []identity.Value, anns []change.Annotation) error {
	name, vals, err := p.prepare(op, property, values)
	if err != nil {
		return err
	}
	if len(anns) > 0 && len(vals) != len(values) {
		return apperror.New(apperror.KindAnnotationShapeMismatch, p.kind+"."+op,
			"annotated values must be distinct")
	}
	return p.write(op, func() (change.PropertyChange, error) {
		old := p.values[name]
		if len(vals) == 0 {
			return nil, nil
		}
		if len(old) == 0 {
			return &change.Added{Property: name, Values: vals, Annotations: anns}, nil
		}
		if old[0].IsRef() != vals[0].IsRef() {
			return nil, apperror.New(apperror.KindTypeMismatch, p.kind+"."+op,
				"%s cannot mix literals and references", name)
		}
		next, nextAnns := change.Union(old, vals, anns)
		if len(next) == len(old) {
			return nil, nil
		}
		return &change.Replaced{Property: name, Old: slices.Clone(old), New: next, Annotations: nextAnns}, nil
	})
}

// Delete removes the given values from property, or every value when none
// are given. Values the property does not hold are ignored.
func (p *propertySet) Delete(property string, values ...identity.Value) error {
	name, vals, err := p.prepare("Delete", property, values)
	if err != nil {
		return err
	}
	return p.write("Delete", func() (change.PropertyChange, error) {
		old := p.values[name]
		if len(old) == 0 {
			return nil, nil
		}
		if len(values) == 0 {
			return &change.Removed{Property: name, Values: slices.Clone(old)}, nil
		}
		var present []identity.Value
		for _, v := range vals {
			if identity.Index(old, v) >= 0 {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return nil, nil
		}
		return &change.Removed{Property: name, Values: present}, nil
	})
}

// Apply applies and records changes whose property names are already
// resolved.
func (p *propertySet) Apply(changes ...change.PropertyChange) error {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return p.notReady("Apply")
	}
	for _, c := range changes {
		p.applyLocked(c)
	}
	p.pending = append(p.pending, changes...)
	p.mu.Unlock()

	p.changed(changes)
	return nil
}

// prepare resolves the property name and normalizes values: nested names are
// resolved, plain strings get the default language and duplicates collapse.
func (p *propertySet) prepare(op, property string, values []identity.Value) (string, []identity.Value, error) {
	name := p.graph.resolver.Resolve(property)

	out := make([]identity.Value, 0, len(values))
	for _, v := range values {
		v = p.graph.localize(v)
		if len(out) > 0 && out[0].IsRef() != v.IsRef() {
			return "", nil, apperror.New(apperror.KindTypeMismatch, p.kind+"."+op,
				"%s cannot mix literals and references", name)
		}
		if identity.Index(out, v) >= 0 {
			continue
		}
		out = append(out, v)
	}
	return name, out, nil
}

// write computes one change from the current values, applies it and
// enqueues it atomically, then notifies outside the lock.
func (p *propertySet) write(op string, plan func() (change.PropertyChange, error)) error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return p.notReady(op)
	}
	c, err := plan()
	if err == nil && c != nil {
		err = c.Validate()
	}
	if err != nil || c == nil {
		p.mu.Unlock()
		return err
	}
	p.applyLocked(c)
	p.pending = append(p.pending, c)
	p.mu.Unlock()

	p.changed([]change.PropertyChange{c})
	return nil
}

// applyLocked updates values for c. The caller holds mu.
func (p *propertySet) applyLocked(c change.PropertyChange) {
	next := change.Apply(p.values[c.Name()], c)
	if len(next) == 0 {
		delete(p.values, c.Name())
		return
	}
	p.values[c.Name()] = next
}

// applyAll updates values without recording the changes.
func (p *propertySet) applyAll(changes []change.PropertyChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range changes {
		p.applyLocked(c)
	}
}

func changedNames(changes []change.PropertyChange) []string {
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		if !slices.Contains(names, c.Name()) {
			names = append(names, c.Name())
		}
	}
	return names
}

func cloneValues(m map[string][]identity.Value) map[string][]identity.Value {
	out := make(map[string][]identity.Value, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}
