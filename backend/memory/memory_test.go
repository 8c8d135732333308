package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/backend/test"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
)

func Test_MemoryBackend(t *testing.T) {
	test.BackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		return NewMemoryBackend(options...)
	}, nil)
}

func Test_EndToEndMemoryBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		return NewMemoryBackend(options...)
	}, nil)
}

func Test_ConsumedTokensExpire(t *testing.T) {
	clk := clock.NewMock()
	b := NewMemoryBackend(backend.WithClock(clk), backend.WithTokenRetention(10*time.Millisecond))
	ctx := context.Background()

	e := core.NewExecution("exec-1", "lifecycle", "1")
	require.NoError(t, b.CreateExecution(ctx, e, history.NewHistoryEvent(clk.Now(), history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
		WorkflowType: "lifecycle",
		Input:        core.NewRecord("a.jpg"),
	})))

	task, err := b.GetDecisionTask(ctx, []string{"lifecycle"})
	require.NoError(t, err)

	d := decision.NewCompleteExecution(core.NewRecord("a.jpg"))
	require.NoError(t, b.CompleteDecisionTask(ctx, task, d))
	require.ErrorIs(t, b.CompleteDecisionTask(ctx, task, d), backend.ErrTaskTokenConsumed)

	// Retention is tracked in wall time
	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, b.CompleteDecisionTask(ctx, task, d), backend.ErrTaskNotFound)
}
