package slotmap

import (
	"fmt"
	"testing"
)

func TestDynamicMap_GrowFromOne(t *testing.T) {
	m, err := NewDynamicMap[string](DynamicConfig{InitialCapacity: 1, GrowthFactor: 2})
	if err != nil {
		t.Fatal(err)
	}

	vals := make([]string, 10)
	keys := make([]Key, 10)
	for i := range vals {
		vals[i] = fmt.Sprintf("s%d", i)
		keys[i], err = m.Insert(vals[i])
		if err != nil {
			t.Fatalf("insert %q: %v", vals[i], err)
		}
	}

	if m.Len() != 10 {
		t.Fatalf("expected len 10, got %d", m.Len())
	}
	if m.Cap() < 10 {
		t.Fatalf("expected capacity >= 10, got %d", m.Cap())
	}
	for i, k := range keys {
		if got, ok := m.Get(k); !ok || got != vals[i] {
			t.Errorf("key %d: expected (%q, true), got (%q, %v)", i, vals[i], got, ok)
		}
	}
	checkEngineInvariants(t, &m.core)
}

func TestDynamicMap_KeysSurviveGrow(t *testing.T) {
	m, err := NewDynamicMap[uint64](DynamicConfig{InitialCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}

	early := make([]Key, 4)
	for i := range early {
		early[i], _ = m.Insert(uint64(i))
	}
	capBefore := m.Cap()

	// force several grows
	for i := 4; i < 200; i++ {
		if _, err := m.Insert(uint64(i)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if m.Cap() <= capBefore {
		t.Fatalf("expected capacity growth past %d, got %d", capBefore, m.Cap())
	}

	// keys issued before the grow keep their index and payload
	for i, k := range early {
		if got, ok := m.Get(k); !ok || got != uint64(i) {
			t.Errorf("early key %d: expected (%d, true), got (%d, %v)", i, i, got, ok)
		}
	}
}

func TestDynamicMap_ZeroInitialCapacity(t *testing.T) {
	m, err := NewDynamicMap[int](DynamicConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Cap() != 0 {
		t.Fatalf("expected capacity 0, got %d", m.Cap())
	}
	k, err := m.Insert(5)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got, ok := m.Get(k); !ok || got != 5 {
		t.Errorf("expected (5, true), got (%d, %v)", got, ok)
	}
}

func TestDynamicMap_GrowthFactorValidation(t *testing.T) {
	if _, err := NewDynamicMap[int](DynamicConfig{GrowthFactor: 1}); err != ErrGrowthFactor {
		t.Errorf("factor 1: expected ErrGrowthFactor, got %v", err)
	}
	if _, err := NewDynamicMap[int](DynamicConfig{GrowthFactor: 0.5}); err != ErrGrowthFactor {
		t.Errorf("factor 0.5: expected ErrGrowthFactor, got %v", err)
	}
	if _, err := NewDynamicMap[int](DynamicConfig{GrowthFactor: 1.5}); err != nil {
		t.Errorf("factor 1.5: unexpected error %v", err)
	}
}

func TestDynamicMap_Reserve(t *testing.T) {
	m, err := NewDynamicMap[int](DynamicConfig{InitialCapacity: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Reserve(100); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if m.Cap() < 100 {
		t.Fatalf("expected capacity >= 100, got %d", m.Cap())
	}
	capAfter := m.Cap()

	// reserve below current capacity is a no-op
	if err := m.Reserve(10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if m.Cap() != capAfter {
		t.Errorf("capacity moved from %d to %d on shrinking reserve", capAfter, m.Cap())
	}

	// a reserved map inserts without growing
	for i := 0; i < 100; i++ {
		if _, err := m.Insert(i); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if m.Cap() != capAfter {
		t.Errorf("capacity moved from %d to %d during reserved inserts", capAfter, m.Cap())
	}
	checkEngineInvariants(t, &m.core)
}

func TestDynamicMap_SetGrowthFactor(t *testing.T) {
	m, err := NewDynamicMap[int](DynamicConfig{InitialCapacity: 2})
	if err != nil {
		t.Fatal(err)
	}
	m.SetGrowthFactor(0.5) // ignored
	m.SetGrowthFactor(4)

	for i := 0; i < 3; i++ {
		if _, err := m.Insert(i); err != nil {
			t.Fatal(err)
		}
	}
	if m.Cap() != 8 {
		t.Errorf("expected capacity 8 after one grow at factor 4, got %d", m.Cap())
	}
}

func TestDynamicMap_IterateSum(t *testing.T) {
	m, err := NewDynamicMap[uint64](DynamicConfig{InitialCapacity: 16})
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 1000; i++ {
		if _, err := m.Insert(i * 3); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	var sum uint64
	m.Iterate(func(v *uint64) { sum += *v })
	const want = 3 * 999 * 1000 / 2
	if sum != uint64(want) {
		t.Errorf("expected sum %d, got %d", uint64(want), sum)
	}
}

func TestDynamicMap_EraseThenDrain(t *testing.T) {
	m, err := NewDynamicMap[string](DynamicConfig{InitialCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}
	kA, _ := m.Insert("A")
	kB, _ := m.Insert("B")
	kC, _ := m.Insert("C")

	if !m.Erase(kB) {
		t.Fatal("erase failed")
	}
	m.DrainEraseQueue(true)

	if m.Len() != 2 {
		t.Errorf("expected len 2, got %d", m.Len())
	}
	if _, ok := m.Get(kB); ok {
		t.Error("erased key resolves")
	}
	if got, ok := m.Get(kA); !ok || got != "A" {
		t.Errorf("expected (A, true), got (%q, %v)", got, ok)
	}
	if got, ok := m.Get(kC); !ok || got != "C" {
		t.Errorf("expected (C, true), got (%q, %v)", got, ok)
	}
	checkEngineInvariants(t, &m.core)
}

func TestDynamicMap_AtAndWith(t *testing.T) {
	m, err := NewDynamicMap[int](DynamicConfig{InitialCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.At(Key{Index: 50}); err != ErrOutOfBounds {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	k, _ := m.Insert(10)
	if v, ok, err := m.At(k); err != nil || !ok || v != 10 {
		t.Errorf("expected (10, true, nil), got (%d, %v, %v)", v, ok, err)
	}
	if !m.With(k, func(v *int) { *v *= 2 }) {
		t.Fatal("With on live key returned false")
	}
	if got, _ := m.Get(k); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
}
