package graph

import (
	"context"
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
)

// Subject is the cached, mutable view of every statement about one identity.
// A Graph holds exactly one Subject per resolved identity.
type Subject struct {
	propertySet

	id     identity.ID
	index  uint32
	serial string

	commitMu sync.Mutex

	copiesMu sync.Mutex
	copies   []weak.Pointer[WorkingCopy]

	referentObservers observers[ReferentsChangedFunc]
}

func newSubject(g *Graph, id identity.ID, index uint32, serial string) *Subject {
	s := &Subject{id: id, index: index, serial: serial}
	s.graph = g
	s.kind = "Subject"
	s.values = make(map[string][]identity.Value)
	s.changed = func(changes []change.PropertyChange) { s.afterApply(changes, nil) }
	return s
}

// ID returns the resolved identity.
func (s *Subject) ID() identity.ID { return s.id }

// Graph returns the graph owning s.
func (s *Subject) Graph() *Graph { return s.graph }

func (s *Subject) String() string { return s.id.String() }

// Use materializes s; see Graph.Use.
func (s *Subject) Use(ctx context.Context) error {
	_, err := s.graph.Use(ctx, s)
	return err
}

// AsSubject returns the subject naming the statement (s, property, value),
// whose own properties annotate that statement. value is read the way a
// write would store it, so plain strings take the default language.
func (s *Subject) AsSubject(property string, value identity.Value) *Subject {
	return s.graph.Subject(identity.NewPropertyValue(s.id, property, s.graph.localize(value)))
}

// OnReferentsChanged registers fn for changes of properties of other
// subjects that reference s.
func (s *Subject) OnReferentsChanged(fn ReferentsChangedFunc) (cancel func()) {
	return s.referentObservers.add(fn)
}

// Commit sends the pending changes to the store as one request. On success
// exactly the committed changes leave the pending buffer; on failure it is
// left intact and a StoreFailure is returned.
func (s *Subject) Commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	if !s.ready {
		s.mu.RUnlock()
		return s.notReady("Commit")
	}
	changes := slices.Clone(s.pending)
	s.mu.RUnlock()
	if len(changes) == 0 {
		return nil
	}

	edits, err := change.Edits(s.id, changes)
	if err != nil {
		return err
	}
	if len(edits) > 0 {
		if err := s.graph.store.Modify(ctx, edits); err != nil {
			s.graph.log.Warn("commit failed",
				zap.Stringer("subject", s.id),
				zap.Int("changes", len(changes)),
				zap.Error(err))
			return apperror.New(apperror.KindStoreFailure, "Subject.Commit",
				"%d edits rejected", len(edits)).WithInternal(err)
		}
	}

	s.mu.Lock()
	// a concurrent Discard may have shortened the buffer
	s.pending = slices.Clone(s.pending[min(len(changes), len(s.pending)):])
	s.mu.Unlock()

	s.graph.log.Debug("committed",
		zap.Stringer("subject", s.id),
		zap.Int("changes", len(changes)),
		zap.Int("edits", len(edits)))
	return nil
}

// WorkingCopy snapshots the current properties into a new working copy that
// keeps receiving changes applied to s.
func (s *Subject) WorkingCopy() (*WorkingCopy, error) {
	s.mu.RLock()
	if !s.ready {
		s.mu.RUnlock()
		return nil, s.notReady("WorkingCopy")
	}
	snapshot := cloneValues(s.values)
	s.mu.RUnlock()

	wc := newWorkingCopy(s, snapshot)

	s.copiesMu.Lock()
	s.copies = append(s.copies, weak.Make(wc))
	s.copiesMu.Unlock()
	return wc, nil
}

// liveCopies returns the working copies still in use, dropping collected
// ones.
func (s *Subject) liveCopies() []*WorkingCopy {
	s.copiesMu.Lock()
	defer s.copiesMu.Unlock()

	live := make([]*WorkingCopy, 0, len(s.copies))
	kept := s.copies[:0]
	for _, wp := range s.copies {
		if wc := wp.Value(); wc != nil {
			live = append(live, wc)
			kept = append(kept, wp)
		}
	}
	clear(s.copies[len(kept):])
	s.copies = kept
	return live
}

// acceptFromCopy applies changes committed by a working copy and enqueues
// them for the next Commit.
func (s *Subject) acceptFromCopy(from *WorkingCopy, changes []change.PropertyChange) error {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return s.notReady("acceptFromCopy")
	}
	for _, c := range changes {
		s.applyLocked(c)
	}
	s.pending = append(s.pending, changes...)
	s.mu.Unlock()

	s.afterApply(changes, from)
	return nil
}

// acceptExternal applies changes already durable in the store.
func (s *Subject) acceptExternal(changes []change.PropertyChange) {
	s.applyAll(changes)
	s.afterApply(changes, nil)
}

// afterApply notifies property observers, referenced subjects and every live
// working copy except skip, in that order.
func (s *Subject) afterApply(changes []change.PropertyChange, skip *WorkingCopy) {
	s.notifyProperties(changes)
	s.graph.referencesChanged(s, changes)
	for _, wc := range s.liveCopies() {
		if wc != skip {
			wc.syncFromUpstream(changes)
		}
	}
}

// materialize installs fetched properties unless s is already ready. It
// reports whether it did.
func (s *Subject) materialize(values map[string][]identity.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return false
	}
	s.values = values
	s.ready = true
	return true
}

// references reports whether any property of s holds a reference to id.
func (s *Subject) references(id identity.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, values := range s.values {
		for _, v := range values {
			if v.IsRef() && v.ID().Equal(id) {
				return true
			}
		}
	}
	return false
}
