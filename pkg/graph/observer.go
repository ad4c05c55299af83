package graph

import "sync"

// PropertyChangedFunc is called after properties of a subject or working
// copy changed, with the resolved names of the changed properties.
type PropertyChangedFunc func(names []string)

// ReferentsChangedFunc is called on a subject when another subject changed
// a property that references it.
type ReferentsChangedFunc func(referrer *Subject, property string)

// observers is an ordered subscriber list with synchronous dispatch.
type observers[F any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscriber[F]
}

type subscriber[F any] struct {
	id uint64
	fn F
}

// add registers fn and returns a func that removes it again.
func (o *observers[F]) add(fn F) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.subs = append(o.subs, subscriber[F]{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// snapshot returns the current subscribers in registration order.
func (o *observers[F]) snapshot() []F {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.subs) == 0 {
		return nil
	}
	fns := make([]F, len(o.subs))
	for i, s := range o.subs {
		fns[i] = s.fn
	}
	return fns
}
