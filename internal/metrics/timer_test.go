package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	m "github.com/cschleiden/go-mediaflow/backend/metrics"
)

type recordingClient struct {
	noopMetricsClient

	name  string
	value float64
}

func (c *recordingClient) Distribution(name string, tags m.Tags, value float64) {
	c.name = name
	c.value = value
}

func TestTimer_Stop(t *testing.T) {
	clk := clock.NewMock()
	c := &recordingClient{}

	timer := NewTimerWithClock(clk, c, "mediaflow.test", nil)
	clk.Add(1500 * time.Millisecond)

	require.Equal(t, 1500*time.Millisecond, timer.Stop())
	require.Equal(t, "mediaflow.test", c.name)
	require.Equal(t, float64(1500), c.value)
}
