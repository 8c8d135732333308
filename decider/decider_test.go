package decider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

type historyBuilder struct {
	events []*history.Event
	seq    int64
}

func (b *historyBuilder) add(t history.EventType, attr interface{}, opts ...history.HistoryEventOption) *historyBuilder {
	e := history.NewHistoryEvent(time.Unix(1700000000, 0), t, attr, opts...)
	b.seq = backend.AssignSequenceIDs(b.seq, e)
	b.events = append(b.events, e)
	return b
}

func (b *historyBuilder) started(input core.Record) *historyBuilder {
	return b.add(history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{WorkflowType: "ingest", Input: input}).
		decisionTask()
}

func (b *historyBuilder) decisionTask() *historyBuilder {
	return b.add(history.EventType_DecisionTaskScheduled, &history.DecisionTaskScheduledAttributes{}).
		add(history.EventType_DecisionTaskStarted, &history.DecisionTaskStartedAttributes{Worker: "w"})
}

func (b *historyBuilder) completed(name string, result core.Record) *historyBuilder {
	b.add(history.EventType_DecisionTaskCompleted, &history.DecisionTaskCompletedAttributes{}).
		add(history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{Name: name, Queue: core.Queue(name)})
	scheduled := b.seq

	return b.add(history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{Name: name, Result: result}, history.ScheduleEventID(scheduled)).
		decisionTask()
}

func (b *historyBuilder) failed(name, reason, detail string) *historyBuilder {
	b.add(history.EventType_DecisionTaskCompleted, &history.DecisionTaskCompletedAttributes{}).
		add(history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{Name: name, Queue: core.Queue(name)})
	scheduled := b.seq

	return b.add(history.EventType_ActivityFailed, &history.ActivityFailedAttributes{Name: name, Reason: reason, Detail: detail}, history.ScheduleEventID(scheduled)).
		decisionTask()
}

func imageRecord() core.Record {
	return core.Record{
		Asset:      "/working/a.jpg",
		AssetClass: core.AssetClassImage,
		CatalogKey: "5f7a",
		Fields:     map[string]any{"metadata": map[string]any{"owner": "me"}},
	}
}

func TestSelectLastEvent(t *testing.T) {
	h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).completed("identifyAssetClass", imageRecord())

	e, err := SelectLastEvent(h.events)
	require.NoError(t, err)
	require.Equal(t, history.EventType_ActivityCompleted, e.Type)

	// Bookkeeping events are the tail of the history
	require.True(t, h.events[len(h.events)-1].Type.Bookkeeping())
}

func TestSelectLastEvent_Empty(t *testing.T) {
	_, err := SelectLastEvent(nil)
	require.ErrorIs(t, err, ErrNoRoutingEvent)

	h := &historyBuilder{}
	h.decisionTask()
	_, err = SelectLastEvent(h.events)
	require.ErrorIs(t, err, ErrNoRoutingEvent)
}

func TestSelectLastEvent_Completed(t *testing.T) {
	h := (&historyBuilder{}).started(core.NewRecord("a.jpg"))
	h.add(history.EventType_ExecutionCompleted, &history.ExecutionCompletedAttributes{})

	_, err := SelectLastEvent(h.events)
	require.ErrorIs(t, err, ErrExecutionCompleted)
}

func TestDecide_Started(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Ingest)
	input := core.NewRecord("a.jpg").With("metadata", map[string]any{"owner": "me"})

	h := (&historyBuilder{}).started(input)

	d, err := Decide(def, h.events)
	require.NoError(t, err)
	require.Equal(t, decision.NewScheduleActivityTask("identifyAssetClass", "identifyAssetClass", input), d)
}

func TestDecide_Scheduled(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Ingest)

	h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).completed("registerAsset", imageRecord())

	d, err := Decide(def, h.events)
	require.NoError(t, err)
	require.Equal(t, decision.Type_ScheduleActivityTask, d.Type)
	require.Equal(t, "createThumbnailFromImage", d.ScheduleActivity.Activity)
	require.Equal(t, core.Queue("createThumbnailFromImage"), d.ScheduleActivity.Queue)
	require.Equal(t, imageRecord(), d.ScheduleActivity.Input)
}

func TestDecide_Idempotent(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Ingest)
	h := (&historyBuilder{}).started(core.NewRecord("a.mov")).completed("createThumbnailFromVideo", core.Record{
		Asset: "/working/a.mov", AssetClass: core.AssetClassVideo, CatalogKey: "k",
		Fields: map[string]any{"thumbnail": "/thumbnails/a_thumbnail_1.jpg"},
	})

	first, err := Decide(def, h.events)
	require.NoError(t, err)

	second, err := Decide(def, h.events)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, "transcodeVideoDefault", first.ScheduleActivity.Activity)
}

func TestDecide_FinalStageCompletes(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Ingest)
	result := imageRecord().With("result", "success")

	h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).completed("cleanUpLandingPad", result)

	d, err := Decide(def, h.events)
	require.NoError(t, err)
	require.Equal(t, decision.Type_CompleteExecution, d.Type)
	require.Nil(t, d.CompleteExecution.Failure)
	require.Equal(t, result, *d.CompleteExecution.Result)
}

func TestDecide_FailureCompletes(t *testing.T) {
	for _, def := range []*pipeline.Definition{pipeline.MustBuiltin(pipeline.Ingest), pipeline.MustBuiltin(pipeline.Lifecycle)} {
		for _, activity := range def.Activities() {
			t.Run(def.Name+"/"+activity, func(t *testing.T) {
				h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).failed(activity, "THB-0001_Error in image thumbnail creation", "exit status 1")

				d, err := Decide(def, h.events)
				require.NoError(t, err)
				require.Equal(t, decision.NewFailExecution(activity, "THB-0001_Error in image thumbnail creation", "exit status 1"), d)
				require.Nil(t, d.ScheduleActivity)
			})
		}
	}
}

func TestDecide_RoutingError(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Ingest)

	// Asset class lost before registration branches
	h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).completed("registerAsset", core.NewRecord("/working/a.jpg"))

	d, err := Decide(def, h.events)
	require.Nil(t, d)
	require.ErrorIs(t, err, pipeline.ErrNoRoute)

	var re *pipeline.RoutingError
	require.True(t, errors.As(err, &re))

	f := RoutingFailure(err)
	require.Equal(t, ReasonRoutingError, f.CompleteExecution.Failure.Reason)
	require.Contains(t, f.CompleteExecution.Failure.Detail, "registerAsset")
}

func TestDecide_RoutingError_UnresolvedBranch(t *testing.T) {
	tests := []struct {
		name     string
		def      string
		activity string
		result   core.Record
	}{
		{"missing asset class", pipeline.Ingest, "identifyAssetClass", core.NewRecord("/landing/a.jpg")},
		{"unknown asset class", pipeline.Ingest, "identifyAssetClass", core.Record{Asset: "/landing/a.pdf", AssetClass: "Document"}},
		{"missing tiers", pipeline.Lifecycle, "moveFiles", core.NewRecord("/assets/k").With("File_Location", "near_line")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := (&historyBuilder{}).started(core.NewRecord("a.jpg")).completed(tt.activity, tt.result)

			d, err := Decide(pipeline.MustBuiltin(tt.def), h.events)
			require.Nil(t, d)

			var re *pipeline.RoutingError
			require.True(t, errors.As(err, &re))
			require.Equal(t, tt.activity, re.From)
			require.ErrorIs(t, err, pipeline.ErrNoRoute)
		})
	}
}

func TestDecide_TraceContextPropagates(t *testing.T) {
	def := pipeline.MustBuiltin(pipeline.Lifecycle)
	input := core.NewRecord("/assets/k").With("locationSource", "CDN").With("locationDestination", "delete")

	h := &historyBuilder{}
	h.add(history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
		WorkflowType: "lifecycle",
		Input:        input,
		TraceContext: map[string]string{"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"},
	}).decisionTask()

	d, err := Decide(def, h.events)
	require.NoError(t, err)
	require.Equal(t, "deleteFiles", d.ScheduleActivity.Activity)
	require.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", d.ScheduleActivity.TraceContext["traceparent"])
}
