package sqlite

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

func Test_SqliteBackend(t *testing.T) {
	test.BackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		return NewInMemoryBackend(WithBackendOptions(options...))
	}, func(b backend.Backend) {
		b.Close()
	})
}

func Test_EndToEndSqliteBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		return NewInMemoryBackend(WithBackendOptions(options...))
	}, func(b backend.Backend) {
		b.Close()
	})
}

func Test_SqliteBackend_MigrateIsIdempotent(t *testing.T) {
	b := NewInMemoryBackend()
	defer b.Close()

	require.NoError(t, b.Migrate())
}

func Test_SqliteBackend_ConsumedTokensExpire(t *testing.T) {
	clk := clock.NewMock()
	b := NewInMemoryBackend(WithBackendOptions(backend.WithClock(clk), backend.WithTokenRetention(time.Hour)))
	defer b.Close()

	ctx := context.Background()

	e := core.NewExecution("exec-1", "lifecycle", "1")
	require.NoError(t, b.CreateExecution(ctx, e, history.NewHistoryEvent(clk.Now(), history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
		WorkflowType: "lifecycle",
		Input:        core.NewRecord("a.jpg"),
	})))

	task, err := b.GetDecisionTask(ctx, []string{"lifecycle"})
	require.NoError(t, err)
	require.NotNil(t, task)

	d := decision.NewCompleteExecution(core.NewRecord("a.jpg"))
	require.NoError(t, b.CompleteDecisionTask(ctx, task, d))
	require.ErrorIs(t, b.CompleteDecisionTask(ctx, task, d), backend.ErrTaskTokenConsumed)

	clk.Add(2 * time.Hour)

	require.ErrorIs(t, b.CompleteDecisionTask(ctx, task, d), backend.ErrTaskNotFound)

	// Removal purges expired tombstones
	require.NoError(t, b.RemoveExecutions(ctx))

	var n int
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM consumed_tokens").Scan(&n))
	require.Equal(t, 0, n)
}
