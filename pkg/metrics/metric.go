package metrics

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Slotmap metric keys
const (
	KEY_INSERT_LATENCY  = "slotmap_insert_latency"
	KEY_GET_LATENCY     = "slotmap_get_latency"
	KEY_ERASE_LATENCY   = "slotmap_erase_latency"
	KEY_ITERATE_LATENCY = "slotmap_iterate_latency"
	KEY_DRAIN_LATENCY   = "slotmap_drain_latency"

	KEY_WTHROUGHPUT = "slotmap_wthroughput"
	KEY_RTHROUGHPUT = "slotmap_rthroughput"

	KEY_INSERTS        = "slotmap_inserts"
	KEY_ERASES         = "slotmap_erases"
	KEY_STALE_HITS     = "slotmap_stale_hits"
	KEY_GROW_COUNT     = "slotmap_grow_count"
	KEY_ACTIVE_ENTRIES = "slotmap_active_entries"
	KEY_CAPACITY       = "slotmap_capacity"
)

// Tag keys
const (
	TAG_LATENCY_PERCENTILE = "latency_percentile"
	TAG_VALUE_P25          = "p25"
	TAG_VALUE_P50          = "p50"
	TAG_VALUE_P99          = "p99"
	TAG_PLAN               = "plan"
	TAG_WORKER_IDX         = "worker_idx"

	TagEnv     = "env"
	TagService = "service"
)

const telegrafAddress = "localhost:8125"

var (
	once         sync.Once
	statsDClient *statsd.Client
	samplingRate = 0.1
	serviceTag   string

	// When false, every sender is a no-op (zero allocations).
	// Controlled by the SLOTMAP_METRICS_ENABLED env var ("true"/"1" to
	// enable).
	enabled = envEnabled()
)

func envEnabled() bool {
	switch strings.ToLower(os.Getenv("SLOTMAP_METRICS_ENABLED")) {
	case "1", "true":
		return true
	}
	return false
}

// Init builds the statsd client from the app config. Senders drop
// metrics until it has run.
func Init() {
	once.Do(func() {
		samplingRate = viper.GetFloat64("APP_METRIC_SAMPLING_RATE")
		service := viper.GetString("APP_NAME")
		if service == "" {
			log.Warn().Msg("APP_NAME is not set")
		}
		env := viper.GetString("APP_ENV")
		if env == "" {
			log.Warn().Msg("APP_ENV is not set")
		}
		serviceTag = TagAsString(TagService, service)

		client, err := statsd.New(
			telegrafAddress,
			statsd.WithTags([]string{TagAsString(TagEnv, env), serviceTag}),
		)
		if err != nil {
			log.Panic().Err(err).Msg("statsd client initialization failed")
		}
		statsDClient = client
		log.Info().Msgf("metrics client initialized: addr=%s sampling=%.2f enabled=%v",
			telegrafAddress, samplingRate, enabled)
	})
}

// emit is the single funnel for every sender: it applies the enabled
// gate, decorates the tags with the service, runs the send and logs a
// failure without surfacing it to the hot path.
func emit(name string, tags []string, send func(c *statsd.Client, tags []string) error) {
	if !enabled {
		return
	}
	client := statsDClient
	if client == nil {
		// Init has not run; nowhere to send
		return
	}
	if err := send(client, append(tags, serviceTag)); err != nil {
		log.Warn().Err(err).Msgf("statsd send failed for %s", name)
	}
}

func Timing(name string, value time.Duration, tags []string) {
	emit(name, tags, func(c *statsd.Client, tags []string) error {
		return c.Timing(name, value, tags, samplingRate)
	})
}

func Count(name string, value int64, tags []string) {
	emit(name, tags, func(c *statsd.Client, tags []string) error {
		return c.Count(name, value, tags, samplingRate)
	})
}

func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

func Gauge(name string, value float64, tags []string) {
	emit(name, tags, func(c *statsd.Client, tags []string) error {
		return c.Gauge(name, value, tags, samplingRate)
	})
}

// Enabled returns whether slotmap metrics are enabled. Call sites
// should check this before allocating tags to avoid heap allocations.
func Enabled() bool {
	return enabled
}

func TagAsString(key, value string) string {
	return key + ":" + value
}

func GetPlanTag(plan string) []string {
	return []string{TagAsString(TAG_PLAN, plan)}
}

func GetWorkerTag(workerIdx int) []string {
	return []string{TagAsString(TAG_WORKER_IDX, strconv.Itoa(workerIdx))}
}
