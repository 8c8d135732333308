package metrics

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cschleiden/go-mediaflow/backend/metrics"
)

type Timer struct {
	client metrics.Client
	clock  clock.Clock
	start  time.Time
	name   string
	tags   metrics.Tags
}

func NewTimer(client metrics.Client, name string, tags metrics.Tags) *Timer {
	return NewTimerWithClock(clock.New(), client, name, tags)
}

func NewTimerWithClock(clk clock.Clock, client metrics.Client, name string, tags metrics.Tags) *Timer {
	return &Timer{
		client: client,
		clock:  clk,
		start:  clk.Now(),
		name:   name,
		tags:   tags,
	}
}

// Stop the timer and send the elapsed time as milliseconds as a distribution metric
func (t *Timer) Stop() time.Duration {
	elapsed := t.clock.Since(t.start)
	t.client.Distribution(t.name, t.tags, float64(elapsed/time.Millisecond))
	return elapsed
}
