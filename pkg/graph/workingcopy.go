package graph

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/apperror"
	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
)

// WorkingCopy is an isolated, always-ready snapshot of a Subject's
// properties. Its writes stay local until Commit hands them to the original.
// Changes applied to the original update the copy's properties but never its
// pending changes.
type WorkingCopy struct {
	propertySet

	original *Subject
	upstream upstream
	commitMu sync.Mutex
}

// upstream receives the pending changes a working copy commits.
type upstream interface {
	acceptFromCopy(from *WorkingCopy, changes []change.PropertyChange) error
}

var (
	_ upstream = (*Subject)(nil)
	_ upstream = (*WorkingCopy)(nil)
)

func newWorkingCopy(original *Subject, values map[string][]identity.Value) *WorkingCopy {
	wc := &WorkingCopy{original: original, upstream: original}
	wc.graph = original.graph
	wc.kind = "WorkingCopy"
	wc.values = values
	wc.ready = true
	wc.changed = wc.notifyProperties
	return wc
}

// ID returns the identity shared with the original.
func (wc *WorkingCopy) ID() identity.ID { return wc.original.id }

// Original returns the subject wc was made from.
func (wc *WorkingCopy) Original() *Subject { return wc.original }

// WorkingCopy always fails: copies cannot be branched again.
func (wc *WorkingCopy) WorkingCopy() (*WorkingCopy, error) {
	return nil, apperror.New(apperror.KindUnsupportedOperation, "WorkingCopy.WorkingCopy",
		"a working copy cannot be copied")
}

// Commit applies the pending changes of wc to the original, which records
// them for its own Commit. The original is materialized first if needed.
//
// Changes are merged as recorded against the copy's view, without conflict
// resolution. A Set on a property the original changed since the copy last
// synced replaces the original's local values; both edits still reach the
// store once the original commits.
func (wc *WorkingCopy) Commit(ctx context.Context) error {
	wc.commitMu.Lock()
	defer wc.commitMu.Unlock()

	changes := wc.Pending()
	if len(changes) == 0 {
		return nil
	}
	if _, err := wc.graph.Use(ctx, wc.original); err != nil {
		return err
	}
	if err := wc.upstream.acceptFromCopy(wc, changes); err != nil {
		return err
	}

	wc.mu.Lock()
	// a concurrent Discard may have shortened the buffer
	wc.pending = slices.Clone(wc.pending[min(len(changes), len(wc.pending)):])
	wc.mu.Unlock()

	wc.graph.log.Debug("working copy merged",
		zap.Stringer("subject", wc.original.id),
		zap.Int("changes", len(changes)))
	return nil
}

// syncFromUpstream updates properties with changes applied to the original.
func (wc *WorkingCopy) syncFromUpstream(changes []change.PropertyChange) {
	wc.applyAll(changes)
	wc.notifyProperties(changes)
}

// acceptFromCopy rejects changes claiming to come from a copy of wc.
func (wc *WorkingCopy) acceptFromCopy(_ *WorkingCopy, _ []change.PropertyChange) error {
	return apperror.New(apperror.KindUnsupportedOperation, "WorkingCopy.acceptFromCopy",
		"working copies have no downstream copies")
}
