package backend

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestWithDecisionLockTimeout(t *testing.T) {
	timeout := 5 * time.Minute
	option := WithDecisionLockTimeout(timeout)

	opts := ApplyOptions(option)

	assert.Equal(t, timeout, opts.DecisionLockTimeout)
}

func TestWithActivityLockTimeout(t *testing.T) {
	timeout := 3 * time.Minute
	option := WithActivityLockTimeout(timeout)

	opts := ApplyOptions(option)

	assert.Equal(t, timeout, opts.ActivityLockTimeout)
}

func TestDefaultValues(t *testing.T) {
	opts := ApplyOptions()

	// Verify default values are preserved when no options are provided
	assert.Equal(t, time.Minute, opts.DecisionLockTimeout)
	assert.Equal(t, time.Minute*2, opts.ActivityLockTimeout)
	assert.Equal(t, time.Hour*24, opts.TokenRetention)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Clock)
	assert.NotEmpty(t, opts.WorkerName)
}

func TestWorkerNamesAreUnique(t *testing.T) {
	assert.NotEqual(t, ApplyOptions().WorkerName, ApplyOptions().WorkerName)
	assert.Equal(t, "decider-1", ApplyOptions(WithWorkerName("decider-1")).WorkerName)
}

func TestWithClock(t *testing.T) {
	clk := clock.NewMock()

	opts := ApplyOptions(WithClock(clk), WithLogger(nil))

	assert.Equal(t, clk, opts.Clock)
	assert.NotNil(t, opts.Logger)
}
