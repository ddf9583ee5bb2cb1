package slotmap

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// backing abstracts the four storage areas the engine binds together, so
// the same protocol runs over plain slices (FixedMap) and segmented
// vectors (DynamicMap). Implementations return stable pointers: once
// handed out, an address stays valid for the life of the map.
type backing[T any] interface {
	slotAt(i uint32) *slot
	valueAt(i uint32) *T
	reverseAt(i uint32) *atomic.Uint32
	eraseAt(i uint32) *atomic.Uint32
}

// core is the optimistic engine shared by FixedMap and DynamicMap.
//
// Inserts, lookups and iteration never exclude each other. The only
// exclusion in the structure is the erase latch: inserts and iteration
// hold it shared, draining the erase queue holds it exclusively. Erase
// itself is a lock-free generation bump plus a queue append; the physical
// compaction is deferred to the drain.
//
// size counts dense cells reserved by inserters. published trails it and
// only covers the prefix where slots, dense array and reverse index are
// mutually consistent; iteration trusts published, never size. Lookups
// rely on the slot's generation instead.
type core[T any] struct {
	store backing[T]

	head atomic.Uint32
	_    cpu.CacheLinePad
	tail atomic.Uint32
	_    cpu.CacheLinePad

	size      atomic.Uint32
	published atomic.Uint32
	_         cpu.CacheLinePad

	capacity atomic.Uint32

	// erase queue counters; the entries live in the backing.
	queueReserved  atomic.Uint32
	_              cpu.CacheLinePad
	queuePublished atomic.Uint32
	_              cpu.CacheLinePad

	// onFull runs when the free list is empty. nil means fail the
	// insert; DynamicMap hooks its grow protocol in here.
	onFull func() error

	eraseMu sync.RWMutex
}

// initFreeList chains every slot in [0, capacity) through its index field
// and installs the sentinel at position capacity.
func (c *core[T]) initFreeList(capacity uint32) {
	for s := uint32(0); s < capacity; s++ {
		c.store.slotAt(s).index.Store(s + 1)
	}
	c.store.slotAt(capacity).index.Store(capacity)
	c.head.Store(0)
	c.tail.Store(capacity)
	c.capacity.Store(capacity)
}

// claim pops the free-list head. head == tail means no free slot: fixed
// maps fail, dynamic maps grow and retry.
func (c *core[T]) claim() (uint32, error) {
	for {
		cur := c.head.Load()
		if cur == c.tail.Load() {
			if c.onFull == nil {
				return 0, ErrCapacityExceeded
			}
			if err := c.onFull(); err != nil {
				return 0, err
			}
			runtime.Gosched()
			continue
		}
		next := c.store.slotAt(cur).index.Load()
		if c.head.CompareAndSwap(cur, next) {
			return cur, nil
		}
	}
}

func (c *core[T]) insert(v T) (Key, error) {
	s, err := c.claim()
	if err != nil {
		return NullKey, err
	}

	c.eraseMu.RLock()
	d := c.size.Add(1) - 1
	*c.store.valueAt(d) = v

	sl := c.store.slotAt(s)
	sl.index.Store(d)
	c.store.reverseAt(d).Store(s)

	c.publish()

	key := Key{Index: s, Generation: sl.generation.Load()}
	c.eraseMu.RUnlock()
	return key, nil
}

// publish advances the consistent-prefix watermark toward size. The
// watermark moves past a dense cell only once the cell's reverse entry
// and its slot agree, so an inserter that reserved a lower index but has
// not finished writing stalls the advance for everyone; whoever finishes
// last pushes the watermark over the whole batch.
func (c *core[T]) publish() {
	for {
		cur := c.published.Load()
		if cur >= c.size.Load() {
			return
		}
		if c.store.slotAt(c.store.reverseAt(cur).Load()).index.Load() != cur {
			return
		}
		c.published.CompareAndSwap(cur, cur+1)
	}
}

// inBounds reports whether i can name a slot. The slot table has
// capacity+1 entries and the sentinel role rotates through it as drains
// push freed slots onto the tail, so index==capacity is a legal key.
func (c *core[T]) inBounds(i uint32) bool {
	return i != NullIndex && i <= c.capacity.Load()
}

// get copies the value out. Stale and out-of-range keys miss.
func (c *core[T]) get(k Key) (T, bool) {
	var zero T
	if !c.inBounds(k.Index) {
		return zero, false
	}
	sl := c.store.slotAt(k.Index)
	if sl.generation.Load() != k.Generation {
		return zero, false
	}
	d := sl.index.Load()
	if d >= c.capacity.Load() {
		// the slot lost a race with erase+drain and its index field is a
		// free-list pointer now; the key is dead
		return zero, false
	}
	return *c.store.valueAt(d), true
}

// getUnchecked skips the bounds and generation checks. The caller must
// know the key is live; a stale or never-issued key reads whatever cell
// the slot's index field points at, and panics when the index or that
// cell lies outside the storage.
func (c *core[T]) getUnchecked(k Key) T {
	return *c.store.valueAt(c.store.slotAt(k.Index).index.Load())
}

func (c *core[T]) at(k Key) (T, bool, error) {
	var zero T
	if !c.inBounds(k.Index) {
		return zero, false, ErrOutOfBounds
	}
	v, ok := c.get(k)
	return v, ok, nil
}

// with runs f against the live cell under the shared erase latch, so the
// cell cannot be relocated by a drain while f runs. This is the mutating
// read path; callers that only need the value use get.
func (c *core[T]) with(k Key, f func(*T)) bool {
	if !c.inBounds(k.Index) {
		return false
	}
	c.eraseMu.RLock()
	sl := c.store.slotAt(k.Index)
	if sl.generation.Load() != k.Generation {
		c.eraseMu.RUnlock()
		return false
	}
	f(c.store.valueAt(sl.index.Load()))
	c.eraseMu.RUnlock()
	return true
}

// erase is the lock-free phase: bump the generation so the key is dead
// for every subsequent lookup, then log the slot for the next drain. The
// CAS arbitrates double erases; exactly one caller wins. An opportunistic
// non-blocking drain piggy-backs on the tail.
func (c *core[T]) erase(k Key) bool {
	if !c.tombstone(k) {
		return false
	}
	c.drainEraseQueue(false)
	return true
}

func (c *core[T]) tombstone(k Key) bool {
	if !c.inBounds(k.Index) {
		return false
	}
	sl := c.store.slotAt(k.Index)
	if !sl.generation.CompareAndSwap(k.Generation, k.Generation+1) {
		return false
	}

	i := c.queueReserved.Add(1) - 1
	c.store.eraseAt(i).Store(k.Index)
	// Publish in claim order; entries below the watermark must be fully
	// written before a drain may consume them, so wait for slower
	// enqueuers of lower indices.
	for !c.queuePublished.CompareAndSwap(i, i+1) {
		runtime.Gosched()
	}
	return true
}

// drainEraseQueue compacts the dense array under exclusive ownership of
// the erase latch. With block=false the latch is only tried.
func (c *core[T]) drainEraseQueue(block bool) {
	if block {
		c.eraseMu.Lock()
	} else if !c.eraseMu.TryLock() {
		return
	}
	defer c.eraseMu.Unlock()
	c.drainLocked()
}

func (c *core[T]) drainLocked() {
	var idx uint32
	for {
		q := c.queuePublished.Load()
		for ; idx < q; idx++ {
			s := c.store.eraseAt(idx).Load()
			d := c.store.slotAt(s).index.Load()

			last := c.size.Add(^uint32(0)) // fetch_sub(1), returns new size

			if d != last {
				// swap the last live element into the hole
				*c.store.valueAt(d) = *c.store.valueAt(last)
				moved := c.store.reverseAt(last).Load()
				c.store.slotAt(moved).index.Store(d)
				c.store.reverseAt(d).Store(moved)
			}
			c.published.Store(last)

			// return the slot to the free-list tail; one sentinel
			// update per erased slot
			prev := c.tail.Load()
			c.store.slotAt(prev).index.Store(s)
			c.tail.Store(s)
		}
		// retire the drained prefix; a producer that appended since we
		// sampled q fails the CAS and we go around again
		if c.queueReserved.CompareAndSwap(q, 0) {
			if q != 0 {
				c.queuePublished.Store(0)
			}
			return
		}
	}
}

// iterate applies f to the published dense prefix under the shared erase
// latch, re-checking the watermark until it stops moving so inserts that
// land mid-walk are picked up. Afterwards it opportunistically drains.
func (c *core[T]) iterate(f func(*T)) {
	c.eraseMu.RLock()
	var i uint32
	for {
		n := c.published.Load()
		for ; i < n; i++ {
			f(c.store.valueAt(i))
		}
		if n == c.published.Load() {
			break
		}
	}
	c.eraseMu.RUnlock()

	c.drainEraseQueue(false)
}

func (c *core[T]) length() int {
	return int(c.size.Load())
}

func (c *core[T]) cap() int {
	return int(c.capacity.Load())
}
