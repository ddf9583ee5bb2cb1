package main

import (
	"flag"
	"os"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/slotmap/internal/workload"
	"github.com/Meesho/BharatMLStack/slotmap/pkg/metrics"
	"github.com/Meesho/BharatMLStack/slotmap/pkg/slotmap"
)

// planChurn drives a shared dynamic slot map with concurrent writers
// (insert + probabilistic erase) and readers that resolve recently
// issued keys. This is the steady-state shape the optimistic engine is
// built for: the erase queue drains opportunistically off the hot path.
func planChurn() {
	var (
		writers    int
		readers    int
		iterations int
		erasePct   int
		initialCap int
		growth     float64
		sampleSecs int
		logStats   bool
		cpuProfile string
	)

	flag.IntVar(&writers, "writers", 4, "number of write workers")
	flag.IntVar(&readers, "readers", 4, "number of read workers")
	flag.IntVar(&iterations, "iterations", 5_000_000, "inserts per writer")
	flag.IntVar(&erasePct, "erase-pct", 30, "probability (percent) an insert is erased again")
	flag.IntVar(&initialCap, "initial-cap", 1024, "initial slot map capacity")
	flag.Float64Var(&growth, "growth", 2, "growth factor")
	flag.IntVar(&sampleSecs, "sample-secs", 10, "stats logging interval in seconds")
	flag.BoolVar(&logStats, "log-stats", true, "periodically log throughput and latencies")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "write cpu profile to this file")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	metrics.Init()

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Panic().Err(err).Msg("Failed to create cpu profile")
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	m, err := slotmap.NewDynamicMap[uint64](slotmap.DynamicConfig{
		InitialCapacity: uint32(initialCap),
		GrowthFactor:    growth,
	})
	if err != nil {
		log.Panic().Err(err).Msg("Failed to create slot map")
	}

	var (
		inserted atomic.Uint64
		erased   atomic.Uint64
		reads    atomic.Uint64
		misses   atomic.Uint64
	)
	tracker := metrics.NewLatencyTracker()
	keyCh := make(chan slotmap.Key, 1<<16)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				start := time.Now()
				k, err := m.Insert(workload.ValueFor(w, i))
				if err != nil {
					log.Error().Err(err).Msgf("writer %d: insert failed", w)
					return
				}
				tracker.RecordWrite(time.Since(start))
				inserted.Add(1)

				if workload.ShouldErase(w, i, erasePct) {
					if m.Erase(k) {
						erased.Add(1)
					}
					continue
				}
				select {
				case keyCh <- k:
				default:
				}
			}
		}(w)
	}

	var readerWg sync.WaitGroup
	for r := 0; r < readers; r++ {
		readerWg.Add(1)
		go func() {
			defer readerWg.Done()
			var sink uint64
			for {
				select {
				case <-stop:
					return
				case k := <-keyCh:
					start := time.Now()
					ok := m.With(k, func(v *uint64) { sink = *v })
					_ = sink
					tracker.RecordRead(time.Since(start))
					reads.Add(1)
					if !ok {
						misses.Add(1)
					} else {
						select {
						case keyCh <- k:
						default:
						}
					}
				}
			}
		}()
	}

	if logStats {
		go runStatsLogger("churn", m, tracker, &inserted, &erased, &reads, time.Duration(sampleSecs)*time.Second, stop)
	}

	wg.Wait()
	close(stop)
	readerWg.Wait()

	m.DrainEraseQueue(true)

	rp25, rp50, rp99 := tracker.ReadLatencyPercentiles()
	wp25, wp50, wp99 := tracker.WriteLatencyPercentiles()
	log.Info().Msgf("churn done: inserted=%d erased=%d reads=%d misses=%d len=%d cap=%d",
		inserted.Load(), erased.Load(), reads.Load(), misses.Load(), m.Len(), m.Cap())
	log.Info().Msgf("read latencies - P25: %v, P50: %v, P99: %v", rp25, rp50, rp99)
	log.Info().Msgf("write latencies - P25: %v, P50: %v, P99: %v", wp25, wp50, wp99)

	if want := int(inserted.Load() - erased.Load()); m.Len() != want {
		log.Error().Msgf("length mismatch after drain: len=%d want=%d", m.Len(), want)
	}
}

func runStatsLogger(plan string, m *slotmap.DynamicMap[uint64], tracker *metrics.LatencyTracker,
	inserted, erased, reads *atomic.Uint64, interval time.Duration, stop chan struct{}) {

	tags := metrics.GetPlanTag(plan)
	var prevInserts, prevReads uint64
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ins := inserted.Load()
			rds := reads.Load()
			wtps := float64(ins-prevInserts) / interval.Seconds()
			rtps := float64(rds-prevReads) / interval.Seconds()
			prevInserts, prevReads = ins, rds

			rp25, rp50, rp99 := tracker.ReadLatencyPercentiles()
			wp25, wp50, wp99 := tracker.WriteLatencyPercentiles()

			log.Info().Msgf("inserts/sec: %.0f reads/sec: %.0f len: %d cap: %d", wtps, rtps, m.Len(), m.Cap())
			log.Info().Msgf("read latencies - P25: %v, P50: %v, P99: %v", rp25, rp50, rp99)
			log.Info().Msgf("write latencies - P25: %v, P50: %v, P99: %v", wp25, wp50, wp99)

			metrics.Gauge(metrics.KEY_WTHROUGHPUT, wtps, tags)
			metrics.Gauge(metrics.KEY_RTHROUGHPUT, rtps, tags)
			metrics.Gauge(metrics.KEY_ACTIVE_ENTRIES, float64(m.Len()), tags)
			metrics.Gauge(metrics.KEY_CAPACITY, float64(m.Cap()), tags)
			metrics.Count(metrics.KEY_ERASES, int64(erased.Load()), tags)
			metrics.Timing(metrics.KEY_GET_LATENCY, rp99, append(tags, metrics.TagAsString(metrics.TAG_LATENCY_PERCENTILE, metrics.TAG_VALUE_P99)))
			metrics.Timing(metrics.KEY_INSERT_LATENCY, wp99, append(tags, metrics.TagAsString(metrics.TAG_LATENCY_PERCENTILE, metrics.TAG_VALUE_P99)))
		}
	}
}
