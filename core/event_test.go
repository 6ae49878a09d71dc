package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressEventJSONShape(t *testing.T) {
	ev := NewMessageChunkEvent(0, "Helper", "abc")
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "progress", decoded["type"])

	data := decoded["data"].(map[string]any)
	assert.Equal(t, "message_chunk", data["step"])
	// Index zero must survive serialization; it is a pointer, not omitempty'd away.
	assert.EqualValues(t, 0, data["index"])
	assert.Equal(t, "abc", data["content"])
	assert.Equal(t, "Helper", data["agent_name"])
}

func TestDoneEventJSONShape(t *testing.T) {
	raw, err := json.Marshal(NewDoneEvent(nil))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "done", decoded["type"])

	data := decoded["data"].(map[string]any)
	assert.NotContains(t, data, "last_assistant_message")
}

func TestPlanGeneratedEventNeverNilActions(t *testing.T) {
	ev := NewPlanGeneratedEvent(nil)
	require.NotNil(t, ev.Data.Actions)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"actions":[]`)
}

func TestRoundTripEventUnion(t *testing.T) {
	count := 3
	original := NewHistoryRetrievedEvent(count)
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ProgressEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, EventProgress, decoded.Type)
	assert.Equal(t, StepHistoryRetrieved, decoded.Data.Step)
	require.NotNil(t, decoded.Data.Count)
	assert.Equal(t, count, *decoded.Data.Count)
}

func TestChatSummary(t *testing.T) {
	chat := Chat{ID: "c1", Title: "t", Status: "active"}
	summary := chat.Summary(4)
	assert.Equal(t, "c1", summary.ID)
	assert.Equal(t, 4, summary.MessageCount)
}

func TestIsDone(t *testing.T) {
	assert.True(t, NewDoneEvent(nil).IsDone())
	assert.False(t, NewStatusEvent("working").IsDone())
	assert.False(t, NewFatalErrorEvent("boom").IsDone())
}
