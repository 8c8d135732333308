package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/core"
)

func TestRoundtripJSON(t *testing.T) {
	input := core.NewRecord("a.jpg").With("metadata", map[string]any{"owner": "x"})
	event := NewHistoryEvent(time.Now().UTC().Truncate(time.Millisecond), EventType_ActivityScheduled, &ActivityScheduledAttributes{
		Name:  "identifyAssetClass",
		Queue: "identifyAssetClass",
		Input: input,
	}, ScheduleEventID(3))
	event.SequenceID = 3

	b, err := json.Marshal(event)
	require.NoError(t, err)

	var event2 Event
	require.NoError(t, json.Unmarshal(b, &event2))

	require.Equal(t, event.ID, event2.ID)
	require.Equal(t, event.SequenceID, event2.SequenceID)
	require.Equal(t, event.Type, event2.Type)
	require.Equal(t, event.ScheduleEventID, event2.ScheduleEventID)
	require.True(t, event.Timestamp.Equal(event2.Timestamp))
	require.Equal(t, event.Attributes, event2.Attributes)
}

func TestDeserializeAttributes_UnknownType(t *testing.T) {
	_, err := DeserializeAttributes(EventType(99), []byte("{}"))
	require.Error(t, err)
}

func TestEventType_Bookkeeping(t *testing.T) {
	require.True(t, EventType_DecisionTaskStarted.Bookkeeping())
	require.False(t, EventType_ActivityCompleted.Bookkeeping())
	require.Equal(t, "ActivityFailed", EventType_ActivityFailed.String())
}
