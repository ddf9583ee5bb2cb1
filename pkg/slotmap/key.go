package slotmap

import "sync/atomic"

// NullIndex is the reserved slot index that never refers to a real slot.
const NullIndex = ^uint32(0)

// Key is the opaque handle issued on insert. It stays valid until the
// element is erased; after that the generation check makes every lookup
// with it miss. The pair is the entire identity, nothing in it points
// into the map's storage.
type Key struct {
	Index      uint32
	Generation uint32
}

// NullKey resolves to nothing in any map.
var NullKey = Key{Index: NullIndex}

func (k Key) IsNull() bool {
	return k.Index == NullIndex
}

// slot is dual-use: while occupied, index is the position of the payload
// in the dense array; while free, index is the next free slot, with the
// sentinel's index holding its own position. generation only ever
// increases, a bump on erase is what kills outstanding keys.
type slot struct {
	index      atomic.Uint32
	generation atomic.Uint32
}
