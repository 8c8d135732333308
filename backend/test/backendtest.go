package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
)

const (
	decisionLockTimeout = time.Minute
	activityLockTimeout = 2 * time.Minute
)

// BackendTest runs the conformance tests every backend has to pass. setup has to apply the given
// options; tests control time through the mock clock passed in them.
func BackendTest(t *testing.T, setup func(options ...backend.BackendOption) backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock)
	}{
		{
			name: "GetDecisionTask_ReturnsNilWhenEmpty",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				require.Nil(t, getDecisionTask(t, ctx, b, "ingest"))
			},
		},
		{
			name: "GetActivityTask_ReturnsNilWhenEmpty",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				require.Nil(t, getActivityTask(t, ctx, b, "identifyAssetClass"))
			},
		},
		{
			name: "CreateExecution_SameIDErrors",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				err := b.CreateExecution(ctx, e, startedEvent(clk, "ingest", core.NewRecord("a.jpg")))
				require.ErrorIs(t, err, backend.ErrExecutionAlreadyExists)
			},
		},
		{
			name: "CreateExecution_SchedulesDecision",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				state, err := b.GetExecutionState(ctx, e)
				require.NoError(t, err)
				require.Equal(t, core.ExecutionStateActive, state)

				requireHistory(t, ctx, b, e,
					history.EventType_ExecutionStarted,
					history.EventType_DecisionTaskScheduled,
				)
			},
		},
		{
			name: "GetExecution_NotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := core.NewExecution(uuid.NewString(), "ingest", "1")

				_, err := b.GetExecutionState(ctx, e)
				require.ErrorIs(t, err, backend.ErrExecutionNotFound)

				_, err = b.GetExecutionHistory(ctx, e)
				require.ErrorIs(t, err, backend.ErrExecutionNotFound)
			},
		},
		{
			name: "GetDecisionTask_ReturnsTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				task := getDecisionTask(t, ctx, b, "ingest")
				require.NotNil(t, task)
				require.NotEmpty(t, task.Token)
				require.Equal(t, e.ID, task.Execution.ID)
				require.Equal(t, "ingest", task.Execution.WorkflowType)
				require.Equal(t, int64(3), task.LastSequenceID)

				require.Len(t, task.History, 3)
				require.Equal(t, history.EventType_ExecutionStarted, task.History[0].Type)
				require.Equal(t, history.EventType_DecisionTaskStarted, task.History[2].Type)

				a := task.History[0].Attributes.(*history.ExecutionStartedAttributes)
				require.Equal(t, "a.jpg", a.Input.Asset)

				for i, event := range task.History {
					require.Equal(t, int64(i+1), event.SequenceID)
				}
			},
		},
		{
			name: "GetDecisionTask_FiltersWorkflowTypes",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "lifecycle")

				require.Nil(t, getDecisionTask(t, ctx, b, "ingest"))
				require.NotNil(t, getDecisionTask(t, ctx, b, "lifecycle"))
			},
		},
		{
			name: "GetDecisionTask_LocksTask",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "ingest")

				require.NotNil(t, getDecisionTask(t, ctx, b, "ingest"))

				// First task is locked, second call should return nil
				require.Nil(t, getDecisionTask(t, ctx, b, "ingest"))
			},
		},
		{
			name: "DecisionTask_RedeliveredWithNewTokenAfterLeaseExpiry",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "ingest")

				first := getDecisionTask(t, ctx, b, "ingest")
				require.NotNil(t, first)

				clk.Add(decisionLockTimeout + time.Second)

				second := getDecisionTask(t, ctx, b, "ingest")
				require.NotNil(t, second)
				require.NotEqual(t, first.Token, second.Token)

				d := decision.NewScheduleActivityTask("identifyAssetClass", "identifyAssetClass", core.NewRecord("a.jpg"))

				require.ErrorIs(t, b.ExtendDecisionTask(ctx, first), backend.ErrTaskNotFound)
				require.ErrorIs(t, b.CompleteDecisionTask(ctx, first, d), backend.ErrTaskNotFound)
				require.NoError(t, b.CompleteDecisionTask(ctx, second, d))
			},
		},
		{
			name: "ExtendDecisionTask_ExtendsLease",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "ingest")

				task := getDecisionTask(t, ctx, b, "ingest")
				require.NotNil(t, task)

				clk.Add(decisionLockTimeout - 10*time.Second)
				require.NoError(t, b.ExtendDecisionTask(ctx, task))

				clk.Add(30 * time.Second)
				require.Nil(t, getDecisionTask(t, ctx, b, "ingest"))
			},
		},
		{
			name: "CompleteDecisionTask_SchedulesActivity",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				task := getDecisionTask(t, ctx, b, "ingest")
				input := core.NewRecord("a.jpg").With("owner", "me")
				require.NoError(t, b.CompleteDecisionTask(ctx, task,
					decision.NewScheduleActivityTask("identifyAssetClass", "identifyAssetClass", input)))

				h := requireHistory(t, ctx, b, e,
					history.EventType_ExecutionStarted,
					history.EventType_DecisionTaskScheduled,
					history.EventType_DecisionTaskStarted,
					history.EventType_DecisionTaskCompleted,
					history.EventType_ActivityScheduled,
				)
				require.Equal(t, h[4].SequenceID, h[4].ScheduleEventID)

				// Other queues don't see the task
				require.Nil(t, getActivityTask(t, ctx, b, "moveFiles"))

				at := getActivityTask(t, ctx, b, "moveFiles", "identifyAssetClass")
				require.NotNil(t, at)
				require.NotEmpty(t, at.Token)
				require.Equal(t, e.ID, at.Execution.ID)
				require.Equal(t, core.Queue("identifyAssetClass"), at.Queue)
				require.Equal(t, "identifyAssetClass", at.Name())
				require.Equal(t, "me", at.Input().Get("owner"))
				require.Equal(t, h[4].SequenceID, at.Event.SequenceID)

				// No further decision until the activity reports
				require.Nil(t, getDecisionTask(t, ctx, b, "ingest"))
			},
		},
		{
			name: "CompleteDecisionTask_TokenConsumed",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "ingest")

				task := getDecisionTask(t, ctx, b, "ingest")
				d := decision.NewScheduleActivityTask("identifyAssetClass", "identifyAssetClass", core.NewRecord("a.jpg"))
				require.NoError(t, b.CompleteDecisionTask(ctx, task, d))

				require.ErrorIs(t, b.CompleteDecisionTask(ctx, task, d), backend.ErrTaskTokenConsumed)
				require.ErrorIs(t, b.ExtendDecisionTask(ctx, task), backend.ErrTaskTokenConsumed)
			},
		},
		{
			name: "CompleteDecisionTask_UnknownToken",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				task := &backend.DecisionTask{Token: core.NewTaskToken(), Execution: e}
				err := b.CompleteDecisionTask(ctx, task, decision.NewCompleteExecution(core.NewRecord("a.jpg")))
				require.ErrorIs(t, err, backend.ErrTaskNotFound)
			},
		},
		{
			name: "CompleteActivityTask_SchedulesDecision",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e, at := scheduleActivity(t, ctx, b, clk, "identifyAssetClass")

				result := completedEvent(clk, at, at.Input().With("assetClass", "Image"))
				require.NoError(t, b.CompleteActivityTask(ctx, at, result))

				h := requireHistory(t, ctx, b, e,
					history.EventType_ExecutionStarted,
					history.EventType_DecisionTaskScheduled,
					history.EventType_DecisionTaskStarted,
					history.EventType_DecisionTaskCompleted,
					history.EventType_ActivityScheduled,
					history.EventType_ActivityCompleted,
					history.EventType_DecisionTaskScheduled,
				)
				require.Equal(t, h[4].SequenceID, h[5].ScheduleEventID)

				task := getDecisionTask(t, ctx, b, "ingest")
				require.NotNil(t, task)
				require.Len(t, task.History, 8)

				a := task.History[5].Attributes.(*history.ActivityCompletedAttributes)
				require.Equal(t, "identifyAssetClass", a.Name)
				require.Equal(t, core.AssetClassImage, a.Result.AssetClass)

				// The activity is gone
				require.Nil(t, getActivityTask(t, ctx, b, "identifyAssetClass"))
			},
		},
		{
			name: "CompleteActivityTask_Failure",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e, at := scheduleActivity(t, ctx, b, clk, "registerAsset")

				result := history.NewHistoryEvent(clk.Now(), history.EventType_ActivityFailed, &history.ActivityFailedAttributes{
					Name:   "registerAsset",
					Reason: "REG-0001_Duplicate file entry",
					Detail: "The file with ID abc already exists",
				}, history.ScheduleEventID(at.Event.SequenceID))
				require.NoError(t, b.CompleteActivityTask(ctx, at, result))

				h, err := b.GetExecutionHistory(ctx, e)
				require.NoError(t, err)

				a := h[5].Attributes.(*history.ActivityFailedAttributes)
				require.Equal(t, "REG-0001_Duplicate file entry", a.Reason)
				require.Equal(t, "The file with ID abc already exists", a.Detail)
			},
		},
		{
			name: "CompleteActivityTask_TokenConsumed",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				_, at := scheduleActivity(t, ctx, b, clk, "identifyAssetClass")

				result := completedEvent(clk, at, at.Input())
				require.NoError(t, b.CompleteActivityTask(ctx, at, result))

				require.ErrorIs(t, b.CompleteActivityTask(ctx, at, completedEvent(clk, at, at.Input())), backend.ErrTaskTokenConsumed)
				require.ErrorIs(t, b.ExtendActivityTask(ctx, at), backend.ErrTaskTokenConsumed)
			},
		},
		{
			name: "CompleteActivityTask_RejectsMismatchedResult",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				_, at := scheduleActivity(t, ctx, b, clk, "identifyAssetClass")

				result := history.NewHistoryEvent(clk.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
					Name: "identifyAssetClass",
				}, history.ScheduleEventID(at.Event.SequenceID+100))
				require.Error(t, b.CompleteActivityTask(ctx, at, result))

				// Task is still held
				require.NoError(t, b.CompleteActivityTask(ctx, at, completedEvent(clk, at, at.Input())))
			},
		},
		{
			name: "ActivityTask_RedeliveredWithNewTokenAfterLeaseExpiry",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e, first := scheduleActivity(t, ctx, b, clk, "createThumbnailFromImage")

				// Locked
				require.Nil(t, getActivityTask(t, ctx, b, "createThumbnailFromImage"))

				clk.Add(activityLockTimeout + time.Second)

				second := getActivityTask(t, ctx, b, "createThumbnailFromImage")
				require.NotNil(t, second)
				require.NotEqual(t, first.Token, second.Token)
				require.Equal(t, e.ID, second.Execution.ID)
				require.Equal(t, first.Event.SequenceID, second.Event.SequenceID)

				require.ErrorIs(t, b.ExtendActivityTask(ctx, first), backend.ErrTaskNotFound)
				require.ErrorIs(t, b.CompleteActivityTask(ctx, first, completedEvent(clk, first, first.Input())), backend.ErrTaskNotFound)
				require.NoError(t, b.CompleteActivityTask(ctx, second, completedEvent(clk, second, second.Input())))

				// Exactly one result was recorded
				h, err := b.GetExecutionHistory(ctx, e)
				require.NoError(t, err)

				completed := 0
				for _, event := range h {
					if event.Type == history.EventType_ActivityCompleted {
						completed++
					}
				}
				require.Equal(t, 1, completed)
			},
		},
		{
			name: "ExtendActivityTask_ExtendsLease",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				_, at := scheduleActivity(t, ctx, b, clk, "transcodeVideoDefault")

				clk.Add(activityLockTimeout - 10*time.Second)
				require.NoError(t, b.ExtendActivityTask(ctx, at))

				clk.Add(30 * time.Second)
				require.Nil(t, getActivityTask(t, ctx, b, "transcodeVideoDefault"))

				require.NoError(t, b.CompleteActivityTask(ctx, at, completedEvent(clk, at, at.Input())))
			},
		},
		{
			name: "CompleteExecution",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "lifecycle")

				task := getDecisionTask(t, ctx, b, "lifecycle")
				result := core.NewRecord("a.jpg").With("File_Location", "archive")
				require.NoError(t, b.CompleteDecisionTask(ctx, task, decision.NewCompleteExecution(result)))

				state, err := b.GetExecutionState(ctx, e)
				require.NoError(t, err)
				require.Equal(t, core.ExecutionStateFinished, state)

				h := requireHistory(t, ctx, b, e,
					history.EventType_ExecutionStarted,
					history.EventType_DecisionTaskScheduled,
					history.EventType_DecisionTaskStarted,
					history.EventType_DecisionTaskCompleted,
					history.EventType_ExecutionCompleted,
				)

				a := h[4].Attributes.(*history.ExecutionCompletedAttributes)
				require.Nil(t, a.Failure)
				require.Equal(t, "archive", a.Result.Get("File_Location"))

				require.Nil(t, getDecisionTask(t, ctx, b, "lifecycle"))
			},
		},
		{
			name: "CompleteExecution_WithFailure",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				e := startExecution(t, ctx, b, clk, "ingest")

				task := getDecisionTask(t, ctx, b, "ingest")
				require.NoError(t, b.CompleteDecisionTask(ctx, task,
					decision.NewFailExecution("registerAsset", "REG-0001_Duplicate file entry", "abc")))

				h, err := b.GetExecutionHistory(ctx, e)
				require.NoError(t, err)

				a := h[len(h)-1].Attributes.(*history.ExecutionCompletedAttributes)
				require.Nil(t, a.Result)
				require.Equal(t, "registerAsset", a.Failure.Activity)
				require.Equal(t, "REG-0001_Duplicate file entry", a.Failure.Reason)
			},
		},
		{
			name: "RemoveExecutions_RemovesFinished",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				finished := startExecution(t, ctx, b, clk, "lifecycle")
				task := getDecisionTask(t, ctx, b, "lifecycle")
				require.NoError(t, b.CompleteDecisionTask(ctx, task, decision.NewCompleteExecution(core.NewRecord("a.jpg"))))

				active := startExecution(t, ctx, b, clk, "ingest")

				clk.Add(time.Hour)

				require.NoError(t, b.RemoveExecutions(ctx, backend.RemoveFinishedBefore(clk.Now().Add(-2*time.Hour))))
				_, err := b.GetExecutionState(ctx, finished)
				require.NoError(t, err)

				require.NoError(t, b.RemoveExecutions(ctx, backend.RemoveFinishedBefore(clk.Now())))

				_, err = b.GetExecutionState(ctx, finished)
				require.ErrorIs(t, err, backend.ErrExecutionNotFound)

				_, err = b.GetExecutionHistory(ctx, finished)
				require.ErrorIs(t, err, backend.ErrExecutionNotFound)

				state, err := b.GetExecutionState(ctx, active)
				require.NoError(t, err)
				require.Equal(t, core.ExecutionStateActive, state)
			},
		},
		{
			name: "GetStats",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, clk *clock.Mock) {
				startExecution(t, ctx, b, clk, "ingest")
				scheduleActivity(t, ctx, b, clk, "moveFiles")

				s, err := b.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(2), s.ActiveExecutions)
				require.Equal(t, int64(1), s.PendingDecisionTasks)
				require.Equal(t, int64(1), s.PendingActivities["moveFiles"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

			b := setup(
				backend.WithClock(clk),
				backend.WithDecisionLockTimeout(decisionLockTimeout),
				backend.WithActivityLockTimeout(activityLockTimeout),
			)
			if teardown != nil {
				defer teardown(b)
			}

			tt.f(t, context.Background(), b, clk)
		})
	}
}

func startedEvent(clk clock.Clock, workflowType string, input core.Record) *history.Event {
	return history.NewHistoryEvent(clk.Now(), history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
		WorkflowType: workflowType,
		Version:      "1",
		Input:        input,
	})
}

func startExecution(t *testing.T, ctx context.Context, b backend.Backend, clk clock.Clock, workflowType string) *core.Execution {
	e := core.NewExecution(uuid.NewString(), workflowType, "1")
	require.NoError(t, b.CreateExecution(ctx, e, startedEvent(clk, workflowType, core.NewRecord("a.jpg"))))

	return e
}

// scheduleActivity starts a lifecycle execution, schedules the named activity, and claims it.
func scheduleActivity(t *testing.T, ctx context.Context, b backend.Backend, clk clock.Clock, name string) (*core.Execution, *backend.ActivityTask) {
	e := startExecution(t, ctx, b, clk, "lifecycle")

	task := getDecisionTask(t, ctx, b, "lifecycle")
	require.NotNil(t, task)
	require.NoError(t, b.CompleteDecisionTask(ctx, task,
		decision.NewScheduleActivityTask(name, core.Queue(name), core.NewRecord("a.jpg"))))

	at := getActivityTask(t, ctx, b, core.Queue(name))
	require.NotNil(t, at)

	return e, at
}

func completedEvent(clk clock.Clock, at *backend.ActivityTask, result core.Record) *history.Event {
	return history.NewHistoryEvent(clk.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
		Name:   at.Name(),
		Result: result,
	}, history.ScheduleEventID(at.Event.SequenceID))
}

// getDecisionTask polls once. Backends that block until a task is available return on the short
// timeout.
func getDecisionTask(t *testing.T, ctx context.Context, b backend.Backend, workflowTypes ...string) *backend.DecisionTask {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	task, err := b.GetDecisionTask(ctx, workflowTypes)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		require.NoError(t, err)
	}

	return task
}

func getActivityTask(t *testing.T, ctx context.Context, b backend.Backend, queues ...core.Queue) *backend.ActivityTask {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	task, err := b.GetActivityTask(ctx, queues)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		require.NoError(t, err)
	}

	return task
}

func requireHistory(t *testing.T, ctx context.Context, b backend.Backend, e *core.Execution, types ...history.EventType) []*history.Event {
	h, err := b.GetExecutionHistory(ctx, e)
	require.NoError(t, err)

	got := make([]history.EventType, len(h))
	for i, event := range h {
		got[i] = event.Type
		require.Equal(t, int64(i+1), event.SequenceID)
	}

	require.Equal(t, types, got)

	return h
}
