package main

import (
	"flag"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/slotmap/internal/workload"
	"github.com/Meesho/BharatMLStack/slotmap/pkg/metrics"
	"github.com/Meesho/BharatMLStack/slotmap/pkg/slotmap"
)

// planIterate measures dense iteration while writers churn the map
// underneath. Iteration holds the erase latch shared, so compaction
// waits but inserts keep flowing; the visited count per sweep shows how
// the published prefix moves.
func planIterate() {
	var (
		elements   int
		writers    int
		erasePct   int
		sweeps     int
		initialCap int
	)

	flag.IntVar(&elements, "elements", 1_000_000, "elements inserted before sweeping starts")
	flag.IntVar(&writers, "writers", 2, "churn workers running during the sweeps")
	flag.IntVar(&erasePct, "erase-pct", 50, "probability (percent) a churn insert is erased again")
	flag.IntVar(&sweeps, "sweeps", 100, "number of full iterations")
	flag.IntVar(&initialCap, "initial-cap", 1024, "initial slot map capacity")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	metrics.Init()

	m, err := slotmap.NewDynamicMap[uint64](slotmap.DynamicConfig{InitialCapacity: uint32(initialCap)})
	if err != nil {
		log.Panic().Err(err).Msg("Failed to create slot map")
	}

	for i := 0; i < elements; i++ {
		if _, err := m.Insert(workload.ValueFor(0, i)); err != nil {
			log.Panic().Err(err).Msg("preload insert failed")
		}
	}
	log.Info().Msgf("preloaded %d elements, cap %d", m.Len(), m.Cap())

	stop := make(chan struct{})
	var churned atomic.Uint64
	var wg sync.WaitGroup
	for w := 1; w <= writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				k, err := m.Insert(workload.ValueFor(w, i))
				if err != nil {
					log.Error().Err(err).Msg("churn insert failed")
					return
				}
				if workload.ShouldErase(w, i, erasePct) {
					m.Erase(k)
				}
				churned.Add(1)
			}
		}(w)
	}

	tags := metrics.GetPlanTag("iterate")
	for s := 0; s < sweeps; s++ {
		start := time.Now()
		var visited uint64
		m.Iterate(func(v *uint64) { visited++ })
		elapsed := time.Since(start)

		metrics.Timing(metrics.KEY_ITERATE_LATENCY, elapsed, tags)
		if s%10 == 0 {
			log.Info().Msgf("sweep %d: visited %d in %v (%.0f elems/sec)",
				s, visited, elapsed, float64(visited)/elapsed.Seconds())
		}
		if visited < uint64(elements) {
			// the preload is never erased, every sweep must cover it
			log.Error().Msgf("sweep %d: visited %d < preloaded %d", s, visited, elements)
		}
	}

	close(stop)
	wg.Wait()
	m.DrainEraseQueue(true)
	log.Info().Msgf("iterate done: churned=%d final len=%d cap=%d", churned.Load(), m.Len(), m.Cap())
}
