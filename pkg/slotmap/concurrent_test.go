package slotmap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Meesho/BharatMLStack/slotmap/internal/workload"
)

func TestDynamicMap_ConcurrentInserts(t *testing.T) {
	const (
		writers   = 4
		perWriter = 25_000
	)
	m, err := NewDynamicMap[uint64](DynamicConfig{InitialCapacity: 64})
	if err != nil {
		t.Fatal(err)
	}

	keys := make([][]Key, writers)
	vals := make([][]uint64, writers)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			keys[w] = make([]Key, perWriter)
			vals[w] = make([]uint64, perWriter)
			for i := 0; i < perWriter; i++ {
				v := workload.ValueFor(w, i)
				k, err := m.Insert(v)
				if err != nil {
					t.Errorf("worker %d insert %d: %v", w, i, err)
					return
				}
				keys[w][i] = k
				vals[w][i] = v
			}
		}(w)
	}
	wg.Wait()

	if m.Len() != writers*perWriter {
		t.Fatalf("expected len %d, got %d", writers*perWriter, m.Len())
	}

	dedup := make(map[Key]struct{}, writers*perWriter)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			k := keys[w][i]
			if _, dup := dedup[k]; dup {
				t.Fatalf("duplicate key issued: %+v", k)
			}
			dedup[k] = struct{}{}
			if got, ok := m.Get(k); !ok || got != vals[w][i] {
				t.Errorf("worker %d key %d: expected (%d, true), got (%d, %v)", w, i, vals[w][i], got, ok)
			}
		}
	}
	checkEngineInvariants(t, &m.core)
}

func TestFixedMap_ConcurrentInserts(t *testing.T) {
	const (
		writers   = 4
		perWriter = 10_000
	)
	m := NewFixedMap[uint64](writers * perWriter)

	keys := make([][]Key, writers)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			keys[w] = make([]Key, perWriter)
			for i := 0; i < perWriter; i++ {
				k, err := m.Insert(workload.ValueFor(w, i))
				if err != nil {
					t.Errorf("worker %d insert %d: %v", w, i, err)
					return
				}
				keys[w][i] = k
			}
		}(w)
	}
	wg.Wait()

	if m.Len() != writers*perWriter {
		t.Fatalf("expected len %d, got %d", writers*perWriter, m.Len())
	}
	dedup := make(map[Key]struct{}, writers*perWriter)
	for w := range keys {
		for _, k := range keys[w] {
			if _, dup := dedup[k]; dup {
				t.Fatalf("duplicate key issued: %+v", k)
			}
			dedup[k] = struct{}{}
		}
	}
	checkEngineInvariants(t, &m.core)
}

// Concurrent insert/erase churn with readers and a background iterator.
// Reads go through With so they hold the erase latch shared
// and cannot race a drain's relocations.
func TestDynamicMap_ConcurrentChurn(t *testing.T) {
	const (
		writers   = 4
		perWriter = 5_000
		erasePct  = 30
	)
	m, err := NewDynamicMap[uint64](DynamicConfig{InitialCapacity: 16})
	if err != nil {
		t.Fatal(err)
	}

	var inserted, erased atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				k, err := m.Insert(workload.ValueFor(w, i))
				if err != nil {
					t.Errorf("worker %d insert %d: %v", w, i, err)
					return
				}
				inserted.Add(1)
				if workload.ShouldErase(w, i, erasePct) {
					if !m.Erase(k) {
						t.Errorf("worker %d: erase of own live key failed", w)
						return
					}
					erased.Add(1)
					if m.Erase(k) {
						t.Errorf("worker %d: double erase succeeded", w)
						return
					}
				} else if i%16 == 0 {
					var sink uint64
					ok := m.With(k, func(v *uint64) { sink = *v })
					_ = sink
					if !ok {
						t.Errorf("worker %d: With on live key failed", w)
						return
					}
				}
			}
		}(w)
	}

	stop := make(chan struct{})
	var iterWg sync.WaitGroup
	iterWg.Add(1)
	go func() {
		defer iterWg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			count := 0
			m.Iterate(func(v *uint64) { count++ })
		}
	}()

	wg.Wait()
	close(stop)
	iterWg.Wait()

	m.DrainEraseQueue(true)
	want := int(inserted.Load() - erased.Load())
	if m.Len() != want {
		t.Errorf("expected len %d after blocking drain, got %d", want, m.Len())
	}
	checkEngineInvariants(t, &m.core)
}

// Every value visible after single-threaded inserts must be visited
// exactly once by Iterate.
func TestFixedMap_IterateVisitsEachOnce(t *testing.T) {
	const n = 512
	m := NewFixedMap[uint64](n)
	for i := uint64(0); i < n; i++ {
		if _, err := m.Insert(i); err != nil {
			t.Fatal(err)
		}
	}
	visits := make(map[uint64]int, n)
	m.Iterate(func(v *uint64) { visits[*v]++ })
	if len(visits) != n {
		t.Fatalf("visited %d distinct values, expected %d", len(visits), n)
	}
	for v, c := range visits {
		if c != 1 {
			t.Errorf("value %d visited %d times", v, c)
		}
	}
}

// Iteration concurrent with inserts must see at least everything that
// was published before the call, and nothing torn.
func TestDynamicMap_IterateDuringInserts(t *testing.T) {
	const pre = 1_000
	m, err := NewDynamicMap[uint64](DynamicConfig{InitialCapacity: 64})
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < pre; i++ {
		if _, err := m.Insert(3); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2_000; i++ {
			if _, err := m.Insert(3); err != nil {
				t.Errorf("background insert: %v", err)
				return
			}
		}
	}()

	var count int
	m.Iterate(func(v *uint64) {
		if *v != 3 {
			t.Errorf("torn or foreign value %d observed", *v)
		}
		count++
	})
	<-done

	if count < pre {
		t.Errorf("iterate visited %d values, fewer than the %d published before the call", count, pre)
	}
}

func TestFixedMap_ConcurrentEraseSingleWinner(t *testing.T) {
	const rounds = 200
	m := NewFixedMap[int](8)
	for r := 0; r < rounds; r++ {
		k, err := m.Insert(r)
		if err != nil {
			t.Fatal(err)
		}
		var wins atomic.Int32
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if m.Erase(k) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("round %d: %d erasers won, expected exactly 1", r, wins.Load())
		}
		m.DrainEraseQueue(true)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty map, len %d", m.Len())
	}
	checkEngineInvariants(t, &m.core)
}
