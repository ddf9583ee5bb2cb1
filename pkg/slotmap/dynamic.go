package slotmap

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/slotmap/pkg/segvec"
)

const DefaultGrowthFactor = 2.0

// DynamicMap is the lock-capacity-dynamic concurrent slot map: the same
// engine as FixedMap, backed by segmented append-only vectors so that
// growing never relocates a live element, plus a cooperative grow
// protocol triggered when the free list runs dry.
//
// A pointer into any backing stays valid across grows, which is what
// lets lock-free inserts and lookups overlap a concurrent grow.
type DynamicMap[T any] struct {
	core core[T]

	slots   *segvec.Vector[slot]
	data    *segvec.Vector[T]
	reverse *segvec.Vector[atomic.Uint32]
	queue   *segvec.Vector[atomic.Uint32]

	// growMu serializes growers; the engine's latch and atomics cover
	// everyone else.
	growMu       sync.Mutex
	growthFactor float64
}

type DynamicConfig struct {
	InitialCapacity uint32
	// GrowthFactor scales the capacity on each grow. Zero means
	// DefaultGrowthFactor; values at or below 1 are rejected.
	GrowthFactor float64
}

func NewDynamicMap[T any](config DynamicConfig) (*DynamicMap[T], error) {
	factor := config.GrowthFactor
	if factor == 0 {
		factor = DefaultGrowthFactor
	}
	if factor <= 1 {
		return nil, ErrGrowthFactor
	}

	capacity := config.InitialCapacity
	m := &DynamicMap[T]{
		slots:        segvec.New[slot](),
		data:         segvec.New[T](),
		reverse:      segvec.New[atomic.Uint32](),
		queue:        segvec.New[atomic.Uint32](),
		growthFactor: factor,
	}
	if err := m.reserveBackings(capacity); err != nil {
		return nil, err
	}
	m.core.store = m
	m.core.onFull = m.grow
	m.core.initFreeList(capacity)
	return m, nil
}

func (m *DynamicMap[T]) slotAt(i uint32) *slot             { return mustAt(m.slots, i) }
func (m *DynamicMap[T]) valueAt(i uint32) *T               { return mustAt(m.data, i) }
func (m *DynamicMap[T]) reverseAt(i uint32) *atomic.Uint32 { return mustAt(m.reverse, i) }
func (m *DynamicMap[T]) eraseAt(i uint32) *atomic.Uint32   { return mustAt(m.queue, i) }

func mustAt[T any](v *segvec.Vector[T], i uint32) *T {
	p, err := v.Get(uint64(i))
	if err != nil {
		panic(err)
	}
	return p
}

func (m *DynamicMap[T]) reserveBackings(capacity uint32) error {
	if err := m.slots.Reserve(uint64(capacity) + 1); err != nil {
		return err
	}
	if err := m.queue.Reserve(uint64(capacity) + 1); err != nil {
		return err
	}
	if capacity == 0 {
		return nil
	}
	if err := m.data.Reserve(uint64(capacity)); err != nil {
		return err
	}
	return m.reverse.Reserve(uint64(capacity))
}

// grow handles a full free list: one caller scales the capacity by the
// growth factor, the rest
// re-check under the mutex and go back to retry their claim.
func (m *DynamicMap[T]) grow() error {
	m.growMu.Lock()
	defer m.growMu.Unlock()

	if m.core.head.Load() != m.core.tail.Load() {
		// another grower got here first
		return nil
	}
	old := m.core.capacity.Load()
	target := uint32(math.Ceil(float64(old) * m.growthFactor))
	if target <= old {
		target = old + 1
	}
	return m.growLocked(old, target)
}

// growLocked extends every backing to target, chains the fresh slots,
// and splices them onto the free list. The sentinel patch runs under the
// shared erase latch so it cannot interleave with a drain's own tail
// updates; capacity is published last, once the new slots are
// addressable.
func (m *DynamicMap[T]) growLocked(old, target uint32) error {
	if err := m.reserveBackings(target); err != nil {
		return err
	}
	for s := old + 1; s < target; s++ {
		mustAt(m.slots, s).index.Store(s + 1)
	}
	mustAt(m.slots, target).index.Store(target)

	m.core.eraseMu.RLock()
	prev := m.core.tail.Load()
	mustAt(m.slots, prev).index.Store(old + 1)
	m.core.tail.Store(target)
	m.core.eraseMu.RUnlock()

	m.core.capacity.Store(target)
	log.Debug().Msgf("slot map grown from %d to %d slots", old, target)
	return nil
}

// Reserve pre-grows the map so it can hold at least n elements without
// triggering the grow path on insert.
func (m *DynamicMap[T]) Reserve(n uint32) error {
	m.growMu.Lock()
	defer m.growMu.Unlock()

	old := m.core.capacity.Load()
	if n <= old {
		return nil
	}
	return m.growLocked(old, n)
}

// SetGrowthFactor replaces the growth factor for subsequent grows.
// Values at or below 1 are ignored.
func (m *DynamicMap[T]) SetGrowthFactor(factor float64) {
	if factor <= 1 {
		return
	}
	m.growMu.Lock()
	m.growthFactor = factor
	m.growMu.Unlock()
}

// Insert places v into the map, growing if no free slot remains.
func (m *DynamicMap[T]) Insert(v T) (Key, error) {
	return m.core.insert(v)
}

// Get copies the value for k out of the map. A stale or out-of-range key
// returns ok=false.
func (m *DynamicMap[T]) Get(k Key) (T, bool) {
	return m.core.get(k)
}

// GetUnchecked skips the bounds and generation checks. Only for callers
// that prove liveness some other way.
func (m *DynamicMap[T]) GetUnchecked(k Key) T {
	return m.core.getUnchecked(k)
}

// At is Get plus an explicit error for an index past the capacity.
func (m *DynamicMap[T]) At(k Key) (T, bool, error) {
	return m.core.at(k)
}

// With runs f against the live value in place, under the shared erase
// latch.
func (m *DynamicMap[T]) With(k Key, f func(*T)) bool {
	return m.core.with(k, f)
}

// Erase kills k; the dense cell is reclaimed by the next drain.
func (m *DynamicMap[T]) Erase(k Key) bool {
	return m.core.erase(k)
}

// DrainEraseQueue compacts out every erased cell. With block=true it
// waits for the erase latch; otherwise it is a best-effort try.
func (m *DynamicMap[T]) DrainEraseQueue(block bool) {
	m.core.drainEraseQueue(block)
}

// Iterate applies f to every published value.
func (m *DynamicMap[T]) Iterate(f func(*T)) {
	m.core.iterate(f)
}

func (m *DynamicMap[T]) Len() int      { return m.core.length() }
func (m *DynamicMap[T]) Cap() int      { return m.core.cap() }
func (m *DynamicMap[T]) IsEmpty() bool { return m.Len() == 0 }
