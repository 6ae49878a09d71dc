package intention

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

func TestRecognize_ParsesModelOutput(t *testing.T) {
	mock := model.NewMockModel()
	mock.AddResponse("weather", `{"intent": "query", "sub_intent": "information", "parameters": {"topic": "weather"}, "confidence": 0.92}`)

	r := NewRecognizer(mock, nil)
	intent, err := r.Recognize(context.Background(), "what is the weather today", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentQuery, intent.Intent)
	assert.Equal(t, QueryInformation, intent.SubIntent)
	assert.Equal(t, "weather", intent.Parameters["topic"])
	assert.InDelta(t, 0.92, intent.Confidence, 1e-9)
}

func TestRecognize_StripsSurroundingText(t *testing.T) {
	mock := model.NewMockModel()
	mock.AddResponse("hello", "Here is my analysis:\n```json\n{\"intent\": \"greeting\", \"confidence\": 0.99}\n```")

	r := NewRecognizer(mock, nil)
	intent, err := r.Recognize(context.Background(), "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentGreeting, intent.Intent)
}

func TestRecognize_MalformedOutputDegradesToUnknown(t *testing.T) {
	mock := model.NewMockModel()
	mock.AddResponse("garbled", "sorry, I cannot classify this")

	r := NewRecognizer(mock, nil)
	intent, err := r.Recognize(context.Background(), "garbled input", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, intent.Intent)
	assert.Zero(t, intent.Confidence)
}

func TestRecognize_ModelErrorIsFatal(t *testing.T) {
	mock := model.NewMockModel()
	mock.FailWith(errors.New("connection refused"))

	r := NewRecognizer(mock, nil)
	_, err := r.Recognize(context.Background(), "anything", []core.ContextEntry{{Role: "user", Content: "prior"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intention recognition failed")
}
