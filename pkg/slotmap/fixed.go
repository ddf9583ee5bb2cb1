package slotmap

import "sync/atomic"

// FixedMap is the lock-capacity-fixed concurrent slot map. The element
// count ceiling is set at construction and there is no growth path; an
// insert into a full map fails with ErrCapacityExceeded.
//
// Inserts, lookups and iteration run concurrently without excluding each
// other. Erase marks the key dead immediately and defers the physical
// compaction; see DrainEraseQueue.
type FixedMap[T any] struct {
	core core[T]

	slots   []slot // capacity+1, last is the free-list sentinel
	data    []T
	reverse []atomic.Uint32
	queue   []atomic.Uint32
}

func NewFixedMap[T any](capacity uint32) *FixedMap[T] {
	m := &FixedMap[T]{
		slots:   make([]slot, capacity+1),
		data:    make([]T, capacity),
		reverse: make([]atomic.Uint32, capacity),
		queue:   make([]atomic.Uint32, capacity+1),
	}
	m.core.store = m
	m.core.initFreeList(capacity)
	return m
}

func (m *FixedMap[T]) slotAt(i uint32) *slot             { return &m.slots[i] }
func (m *FixedMap[T]) valueAt(i uint32) *T               { return &m.data[i] }
func (m *FixedMap[T]) reverseAt(i uint32) *atomic.Uint32 { return &m.reverse[i] }
func (m *FixedMap[T]) eraseAt(i uint32) *atomic.Uint32   { return &m.queue[i] }

// Insert places v into the map and returns its key.
func (m *FixedMap[T]) Insert(v T) (Key, error) {
	return m.core.insert(v)
}

// Get copies the value for k out of the map. A stale or out-of-range key
// returns ok=false; that is the generation check doing its job, not an
// error.
func (m *FixedMap[T]) Get(k Key) (T, bool) {
	return m.core.get(k)
}

// GetUnchecked skips the bounds and generation checks. Only for callers
// that prove liveness some other way.
func (m *FixedMap[T]) GetUnchecked(k Key) T {
	return m.core.getUnchecked(k)
}

// At is Get plus an explicit error for an index past the capacity.
func (m *FixedMap[T]) At(k Key) (T, bool, error) {
	return m.core.at(k)
}

// With runs f against the live value in place. The callback executes
// under the shared erase latch, so a concurrent drain cannot relocate the
// cell out from under it.
func (m *FixedMap[T]) With(k Key, f func(*T)) bool {
	return m.core.with(k, f)
}

// Erase kills k. The key stops resolving before Erase returns; the dense
// cell is reclaimed by the next drain. Returns false if k was already
// dead.
func (m *FixedMap[T]) Erase(k Key) bool {
	return m.core.erase(k)
}

// DrainEraseQueue compacts out every erased cell. With block=true it
// waits for the erase latch; otherwise it is a best-effort try.
func (m *FixedMap[T]) DrainEraseQueue(block bool) {
	m.core.drainEraseQueue(block)
}

// Iterate applies f to every published value. Values inserted during the
// walk may be visited; values erased mid-walk may still be visited once.
func (m *FixedMap[T]) Iterate(f func(*T)) {
	m.core.iterate(f)
}

func (m *FixedMap[T]) Len() int      { return m.core.length() }
func (m *FixedMap[T]) Cap() int      { return m.core.cap() }
func (m *FixedMap[T]) IsEmpty() bool { return m.Len() == 0 }
