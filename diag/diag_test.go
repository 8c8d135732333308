package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/history"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/stages"
	"github.com/cschleiden/go-mediaflow/stages/catalog"
)

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func executionHistory() []*history.Event {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	input := core.NewRecord("landing/a1/photo.jpg")
	output := input.With("doc", map[string]any{"Filename": "photo"})

	return []*history.Event{
		history.NewHistoryEvent(start, history.EventType_ExecutionStarted, &history.ExecutionStartedAttributes{
			WorkflowType: "ingest",
			Version:      "1",
			Input:        input,
		}),
		history.NewHistoryEvent(start.Add(time.Second), history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{
			Name:  stages.IdentifyAssetClass,
			Queue: core.Queue(stages.IdentifyAssetClass),
			Input: input,
		}),
		history.NewHistoryEvent(start.Add(2*time.Second), history.EventType_ActivityFailed, &history.ActivityFailedAttributes{
			Name:   stages.IdentifyAssetClass,
			Reason: stages.ReasonInvalidInput,
		}),
		history.NewHistoryEvent(start.Add(3*time.Second), history.EventType_ExecutionCompleted, &history.ExecutionCompletedAttributes{
			Result: &output,
			Failure: &history.Failure{
				Activity: stages.IdentifyAssetClass,
				Reason:   stages.ReasonInvalidInput,
			},
		}),
	}
}

func Test_Execution(t *testing.T) {
	b := backend.NewMockBackend(t)
	execution := &core.Execution{ID: "exec-1"}

	b.On("GetExecutionState", mock.Anything, execution).Return(core.ExecutionStateFinished, nil)
	b.On("GetExecutionHistory", mock.Anything, execution).Return(executionHistory(), nil)

	rec := get(t, NewServeMux(b, nil, nil), "/api/executions/exec-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info struct {
		Execution struct {
			ID           string `json:"id"`
			WorkflowType string `json:"workflow_type"`
		} `json:"execution"`
		State       string     `json:"state"`
		CompletedAt *time.Time `json:"completed_at"`
		Failure     struct {
			Activity string `json:"activity"`
			Reason   string `json:"reason"`
		} `json:"failure"`
		History []struct {
			Type string `json:"type"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	require.Equal(t, "exec-1", info.Execution.ID)
	require.Equal(t, "ingest", info.Execution.WorkflowType)
	require.Equal(t, core.ExecutionStateFinished.String(), info.State)
	require.NotNil(t, info.CompletedAt)
	require.Equal(t, stages.ReasonInvalidInput, info.Failure.Reason)

	types := make([]string, 0, len(info.History))
	for _, e := range info.History {
		types = append(types, e.Type)
	}
	require.Equal(t, []string{"ExecutionStarted", "ActivityScheduled", "ActivityFailed", "ExecutionCompleted"}, types)
}

func Test_Execution_NotFound(t *testing.T) {
	b := backend.NewMockBackend(t)
	b.On("GetExecutionState", mock.Anything, mock.Anything).Return(core.ExecutionStateActive, backend.ErrExecutionNotFound)

	rec := get(t, NewServeMux(b, nil, nil), "/api/executions/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Execution_BackendError(t *testing.T) {
	b := backend.NewMockBackend(t)
	b.On("GetExecutionState", mock.Anything, mock.Anything).Return(core.ExecutionStateActive, nil)
	b.On("GetExecutionHistory", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	rec := get(t, NewServeMux(b, nil, nil), "/api/executions/exec-1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func Test_MethodNotAllowed(t *testing.T) {
	b := backend.NewMockBackend(t)

	rec := httptest.NewRecorder()
	NewServeMux(b, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/executions/exec-1", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func Test_Stats(t *testing.T) {
	b := backend.NewMockBackend(t)
	b.On("GetStats", mock.Anything).Return(&backend.Stats{
		ActiveExecutions:     2,
		PendingDecisionTasks: 1,
		PendingActivities: map[core.Queue]int64{
			core.Queue(stages.DistributeToStore): 3,
		},
	}, nil)

	rec := get(t, NewServeMux(b, nil, nil), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats backend.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(2), stats.ActiveExecutions)
	require.Equal(t, int64(3), stats.PendingActivities[core.Queue(stages.DistributeToStore)])
}

func Test_Asset(t *testing.T) {
	b := backend.NewMockBackend(t)
	c := catalog.NewMemoryCatalog()
	require.NoError(t, c.Insert(context.Background(), "photo", stages.Document{
		stages.DocFilename:     "photo",
		stages.DocFileLocation: "CDN",
	}))

	mux := NewServeMux(b, c, nil)

	rec := get(t, mux, "/api/assets/photo")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "CDN", doc[stages.DocFileLocation])

	require.Equal(t, http.StatusNotFound, get(t, mux, "/api/assets/other").Code)
	require.Equal(t, http.StatusNotFound, get(t, NewServeMux(b, nil, nil), "/api/assets/photo").Code)
}
