package identity

// Map is keyed by structural identity: keys that are Equal share an entry
// no matter how they were constructed. It is not safe for concurrent use.
type Map[V any] struct {
	buckets map[uint64][]entry[V]
	n       int
}

type entry[V any] struct {
	key ID
	val V
}

// NewMap creates an empty map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{buckets: make(map[uint64][]entry[V])}
}

// Get returns the value stored under a key equal to id.
func (m *Map[V]) Get(id ID) (V, bool) {
	for _, e := range m.buckets[id.Hash()] {
		if e.key.Equal(id) {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Set stores v under id, replacing any value stored under an equal key.
func (m *Map[V]) Set(id ID, v V) {
	h := id.Hash()
	bucket := m.buckets[h]
	for i := range bucket {
		if bucket[i].key.Equal(id) {
			bucket[i].val = v
			return
		}
	}
	m.buckets[h] = append(bucket, entry[V]{key: id, val: v})
	m.n++
}

// GetOrInsert returns the value stored under id, or stores and returns
// create(). The boolean reports whether create was called.
func (m *Map[V]) GetOrInsert(id ID, create func() V) (V, bool) {
	if v, ok := m.Get(id); ok {
		return v, false
	}
	v := create()
	m.buckets[id.Hash()] = append(m.buckets[id.Hash()], entry[V]{key: id, val: v})
	m.n++
	return v, true
}

// Delete removes the entry for id and reports whether one existed.
func (m *Map[V]) Delete(id ID) bool {
	h := id.Hash()
	bucket := m.buckets[h]
	for i := range bucket {
		if bucket[i].key.Equal(id) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = bucket
			}
			m.n--
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return m.n }

// Range calls fn for every entry until fn returns false. Order is
// unspecified.
func (m *Map[V]) Range(fn func(ID, V) bool) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}

// Clear removes every entry.
func (m *Map[V]) Clear() {
	clear(m.buckets)
	m.n = 0
}
