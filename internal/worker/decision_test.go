package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decider"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

func decisionTask(workflowType string, events ...*history.Event) *backend.DecisionTask {
	last := backend.AssignSequenceIDs(0, events...)

	return &backend.DecisionTask{
		Token:          core.NewTaskToken(),
		Execution:      core.NewExecution("exec-1", workflowType, "1"),
		LastSequenceID: last,
		History:        events,
	}
}

func startedEvent(input core.Record) *history.Event {
	return history.NewHistoryEvent(time.Now(), history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
		WorkflowType: "ingest",
		Version:      "1",
		Input:        input,
	})
}

func TestDecisionTaskWorker_WorkflowTypes(t *testing.T) {
	b := createMockBackend(t, clock.NewMock())
	dtw := NewDecisionTaskWorker(b, []*pipeline.Definition{
		pipeline.MustBuiltin(pipeline.Lifecycle),
		pipeline.MustBuiltin(pipeline.Ingest),
		pipeline.MustBuiltin(pipeline.Ingest),
	})

	require.Equal(t, []string{"ingest", "lifecycle"}, dtw.workflowTypes)

	b.On("GetDecisionTask", mock.Anything, []string{"ingest", "lifecycle"}).Return(nil, nil)
	task, err := dtw.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestDecisionTaskWorker_Execute(t *testing.T) {
	b := createMockBackend(t, clock.NewMock())
	dtw := NewDecisionTaskWorker(b, []*pipeline.Definition{pipeline.MustBuiltin(pipeline.Ingest)})

	task := decisionTask("ingest", startedEvent(core.NewRecord("landing/a.jpg")))

	d, err := dtw.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, decision.Type_ScheduleActivityTask, d.Type)
	require.Equal(t, "identifyAssetClass", d.ScheduleActivity.Activity)
}

func TestDecisionTaskWorker_RoutingErrorFailsExecution(t *testing.T) {
	b := createMockBackend(t, clock.NewMock())
	dtw := NewDecisionTaskWorker(b, []*pipeline.Definition{pipeline.MustBuiltin(pipeline.Ingest)})

	completed := history.NewHistoryEvent(time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
		Name:   "registerAsset",
		Result: core.NewRecord("a.xyz"),
	})

	task := decisionTask("ingest", startedEvent(core.NewRecord("a.xyz")), completed)

	d, err := dtw.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, decision.Type_CompleteExecution, d.Type)
	require.NotNil(t, d.CompleteExecution.Failure)
	require.Equal(t, decider.ReasonRoutingError, d.CompleteExecution.Failure.Reason)
	require.Contains(t, d.CompleteExecution.Failure.Detail, "registerAsset")
}

func TestDecisionTaskWorker_UnknownWorkflowType(t *testing.T) {
	b := createMockBackend(t, clock.NewMock())
	dtw := NewDecisionTaskWorker(b, []*pipeline.Definition{pipeline.MustBuiltin(pipeline.Ingest)})

	_, err := dtw.Execute(context.Background(), decisionTask("other", startedEvent(core.NewRecord("a.jpg"))))
	require.Error(t, err)
}

func TestDecisionTaskWorker_Complete(t *testing.T) {
	b := createMockBackend(t, clock.NewMock())
	dtw := NewDecisionTaskWorker(b, []*pipeline.Definition{pipeline.MustBuiltin(pipeline.Ingest)})

	task := decisionTask("ingest", startedEvent(core.NewRecord("a.jpg")))
	d := decision.NewScheduleActivityTask("identifyAssetClass", "identifyAssetClass", core.NewRecord("a.jpg"))

	b.On("CompleteDecisionTask", mock.Anything, task, d).Return(backend.ErrTaskTokenConsumed).Once()
	require.NoError(t, dtw.Complete(context.Background(), d, task))

	b.On("CompleteDecisionTask", mock.Anything, task, d).Return(errors.New("connection reset")).Once()
	require.Error(t, dtw.Complete(context.Background(), d, task))
}
