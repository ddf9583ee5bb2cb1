package slotmap

import "sync"

// LockedMap is the shared-exclusion variant: a sequential Map behind a
// readers-writer lock. Lookups take the lock shared; anything that
// mutates or hands out mutable access (With, Iterate) takes it
// exclusively. It is the reference
// semantics the optimistic variants are measured against.
type LockedMap[T any] struct {
	mu sync.RWMutex
	m  *Map[T]
}

func NewLockedMap[T any](capacity uint32) *LockedMap[T] {
	return &LockedMap[T]{m: NewMap[T](capacity)}
}

func (l *LockedMap[T]) Insert(v T) Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Insert(v)
}

func (l *LockedMap[T]) Get(k Key) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Get(k)
}

func (l *LockedMap[T]) GetUnchecked(k Key) T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.GetUnchecked(k)
}

func (l *LockedMap[T]) At(k Key) (T, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.At(k)
}

// With may mutate the value, so it holds the lock exclusively.
func (l *LockedMap[T]) With(k Key, f func(*T)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.With(k, f)
}

func (l *LockedMap[T]) Erase(k Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Erase(k)
}

// Iterate may mutate values through f, so it holds the lock exclusively.
func (l *LockedMap[T]) Iterate(f func(*T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m.Iterate(f)
}

func (l *LockedMap[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m.Clear()
}

func (l *LockedMap[T]) Reserve(n uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m.Reserve(n)
}

func (l *LockedMap[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Len()
}

func (l *LockedMap[T]) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Cap()
}

func (l *LockedMap[T]) IsEmpty() bool {
	return l.Len() == 0
}
