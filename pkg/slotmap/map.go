package slotmap

// seqSlot mirrors slot without the atomics; Map does no internal
// synchronization.
type seqSlot struct {
	index      uint32
	generation uint32
}

// Map is the plain sequential slot map: stable generation-tagged keys,
// densely packed values, O(1) insert/lookup/erase, swap-with-last
// compaction performed eagerly on erase. It is not safe for concurrent
// use; LockedMap wraps it for that, and FixedMap/DynamicMap replace the
// locking wholesale with the optimistic engine.
type Map[T any] struct {
	slots   []seqSlot // capacity+1, last is the free-list sentinel
	data    []T
	reverse []uint32

	head uint32
	tail uint32
	size uint32
}

func NewMap[T any](capacity uint32) *Map[T] {
	m := &Map[T]{}
	m.init(capacity)
	return m
}

func (m *Map[T]) init(capacity uint32) {
	m.slots = make([]seqSlot, capacity+1)
	m.data = make([]T, capacity)
	m.reverse = make([]uint32, capacity)
	for s := uint32(0); s < capacity; s++ {
		m.slots[s].index = s + 1
	}
	m.slots[capacity].index = capacity
	m.head = 0
	m.tail = capacity
	m.size = 0
}

// Insert places v into the map, growing the backing arrays if the free
// list is empty. It cannot fail.
func (m *Map[T]) Insert(v T) Key {
	if m.head == m.tail {
		m.growDouble()
	}
	s := m.head
	m.head = m.slots[s].index

	d := m.size
	m.size++
	m.data[d] = v
	m.slots[s].index = d
	m.reverse[d] = s
	return Key{Index: s, Generation: m.slots[s].generation}
}

func (m *Map[T]) growDouble() {
	target := uint32(len(m.data)) * 2
	if target == 0 {
		target = 1
	}
	m.grow(target)
}

// grow reallocates the backing arrays and splices the fresh slots onto
// the free list; generations are preserved so outstanding keys survive.
func (m *Map[T]) grow(target uint32) {
	old := uint32(len(m.data))
	if target <= old {
		return
	}

	slots := make([]seqSlot, target+1)
	copy(slots, m.slots)
	data := make([]T, target)
	copy(data, m.data)
	reverse := make([]uint32, target)
	copy(reverse, m.reverse)

	for s := old + 1; s < target; s++ {
		slots[s].index = s + 1
	}
	slots[target].index = target
	slots[m.tail].index = old + 1

	m.slots = slots
	m.data = data
	m.reverse = reverse
	m.tail = target
}

// Get copies the value for k out of the map. Stale and out-of-range keys
// miss.
func (m *Map[T]) Get(k Key) (T, bool) {
	var zero T
	if k.Index >= uint32(len(m.slots)) {
		return zero, false
	}
	sl := m.slots[k.Index]
	if sl.generation != k.Generation {
		return zero, false
	}
	return m.data[sl.index], true
}

// GetUnchecked skips the bounds and generation checks.
func (m *Map[T]) GetUnchecked(k Key) T {
	return m.data[m.slots[k.Index].index]
}

// At is Get plus an explicit error for an index past the capacity.
func (m *Map[T]) At(k Key) (T, bool, error) {
	var zero T
	if k.Index >= uint32(len(m.slots)) {
		return zero, false, ErrOutOfBounds
	}
	v, ok := m.Get(k)
	return v, ok, nil
}

// With runs f against the live value in place.
func (m *Map[T]) With(k Key, f func(*T)) bool {
	if k.Index >= uint32(len(m.slots)) {
		return false
	}
	sl := m.slots[k.Index]
	if sl.generation != k.Generation {
		return false
	}
	f(&m.data[sl.index])
	return true
}

// Erase kills k, swaps the last live element into the vacated dense cell
// and returns the slot to the free list. Returns false if k was already
// dead.
func (m *Map[T]) Erase(k Key) bool {
	if k.Index >= uint32(len(m.slots)) {
		return false
	}
	sl := &m.slots[k.Index]
	if sl.generation != k.Generation {
		return false
	}
	sl.generation++

	d := sl.index
	last := m.size - 1
	if d != last {
		m.data[d] = m.data[last]
		moved := m.reverse[last]
		m.slots[moved].index = d
		m.reverse[d] = moved
	}
	m.size = last

	m.slots[m.tail].index = k.Index
	m.tail = k.Index
	return true
}

// Iterate applies f to every live value in dense order.
func (m *Map[T]) Iterate(f func(*T)) {
	for i := uint32(0); i < m.size; i++ {
		f(&m.data[i])
	}
}

// Clear erases everything. Outstanding keys die: every occupied slot has
// its generation bumped before the free list is rebuilt.
func (m *Map[T]) Clear() {
	for d := uint32(0); d < m.size; d++ {
		m.slots[m.reverse[d]].generation++
	}
	capacity := uint32(len(m.data))
	for s := uint32(0); s < capacity; s++ {
		m.slots[s].index = s + 1
	}
	m.slots[capacity].index = capacity
	m.head = 0
	m.tail = capacity
	m.size = 0
}

// Reserve grows the backing arrays to hold at least n elements.
func (m *Map[T]) Reserve(n uint32) {
	m.grow(n)
}

func (m *Map[T]) Len() int      { return int(m.size) }
func (m *Map[T]) Cap() int      { return len(m.data) }
func (m *Map[T]) IsEmpty() bool { return m.size == 0 }
