package metrics

import "time"

type Tags map[string]string

// Client is the sink for counters and timings emitted by backends and workers. Adapters for a
// concrete metrics system implement it.
type Client interface {
	Counter(name string, tags Tags, value int64)

	Distribution(name string, tags Tags, value float64)

	Gauge(name string, tags Tags, value int64)

	Timing(name string, tags Tags, duration time.Duration)

	WithTags(tags Tags) Client
}
