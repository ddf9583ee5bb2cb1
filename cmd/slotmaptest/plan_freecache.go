package main

import (
	"encoding/binary"
	"flag"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/slotmap/internal/workload"
	"github.com/Meesho/BharatMLStack/slotmap/pkg/metrics"
)

// planFreecache runs the churn workload against freecache as a hash-keyed
// baseline. The comparison is deliberately unfair in both directions:
// freecache hashes full keys and copies values, the slot map hands out
// indices; the numbers bracket what key indirection costs.
func planFreecache() {
	var (
		writers    int
		readers    int
		iterations int
		erasePct   int
		cacheMB    int
		sampleSecs int
		logStats   bool
	)

	flag.IntVar(&writers, "writers", 4, "number of write workers")
	flag.IntVar(&readers, "readers", 4, "number of read workers")
	flag.IntVar(&iterations, "iterations", 5_000_000, "sets per writer")
	flag.IntVar(&erasePct, "erase-pct", 30, "probability (percent) a set is deleted again")
	flag.IntVar(&cacheMB, "cache-mb", 256, "freecache size in MiB")
	flag.IntVar(&sampleSecs, "sample-secs", 10, "stats logging interval in seconds")
	flag.BoolVar(&logStats, "log-stats", true, "periodically log throughput and latencies")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	metrics.Init()

	cache := freecache.NewCache(cacheMB * 1024 * 1024)
	debug.SetGCPercent(20)

	var (
		sets    atomic.Uint64
		deletes atomic.Uint64
		gets    atomic.Uint64
		misses  atomic.Uint64
	)
	tracker := metrics.NewLatencyTracker()
	keyCh := make(chan []byte, 1<<16)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var val [8]byte
			for i := 0; i < iterations; i++ {
				key := workload.KeyBytes(w, i)
				binary.LittleEndian.PutUint64(val[:], workload.ValueFor(w, i))

				start := time.Now()
				if err := cache.Set(key, val[:], 0); err != nil {
					log.Error().Err(err).Msgf("writer %d: set failed", w)
					return
				}
				tracker.RecordWrite(time.Since(start))
				sets.Add(1)

				if workload.ShouldErase(w, i, erasePct) {
					if cache.Del(key) {
						deletes.Add(1)
					}
					continue
				}
				select {
				case keyCh <- key:
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
			for {
				select {
				case <-stop:
					return
				case key := <-keyCh:
					start := time.Now()
					_, err := cache.Get(key)
					tracker.RecordRead(time.Since(start))
					gets.Add(1)
					if err != nil {
						misses.Add(1)
					} else {
						select {
						case keyCh <- key:
						default:
						}
					}
				}
			}
		}()
	}

	if logStats {
		go func() {
			tags := metrics.GetPlanTag("freecache")
			var prevSets, prevGets uint64
			ticker := time.NewTicker(time.Duration(sampleSecs) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					s := sets.Load()
					g := gets.Load()
					wtps := float64(s-prevSets) / float64(sampleSecs)
					rtps := float64(g-prevGets) / float64(sampleSecs)
					prevSets, prevGets = s, g

					log.Info().Msgf("sets/sec: %.0f gets/sec: %.0f entries: %d hitrate: %.3f",
						wtps, rtps, cache.EntryCount(), cache.HitRate())
					metrics.Gauge(metrics.KEY_WTHROUGHPUT, wtps, tags)
					metrics.Gauge(metrics.KEY_RTHROUGHPUT, rtps, tags)
					metrics.Gauge(metrics.KEY_ACTIVE_ENTRIES, float64(cache.EntryCount()), tags)
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readerWg.Wait()

	rp25, rp50, rp99 := tracker.ReadLatencyPercentiles()
	wp25, wp50, wp99 := tracker.WriteLatencyPercentiles()
	log.Info().Msgf("freecache done: sets=%d deletes=%d gets=%d misses=%d entries=%d",
		sets.Load(), deletes.Load(), gets.Load(), misses.Load(), cache.EntryCount())
	log.Info().Msgf("get latencies - P25: %v, P50: %v, P99: %v", rp25, rp50, rp99)
	log.Info().Msgf("set latencies - P25: %v, P50: %v, P99: %v", wp25, wp50, wp99)
}
