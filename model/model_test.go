package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func TestMockModel_StreamingEmitsPartialsThenFinal(t *testing.T) {
	mock := NewMockModel()
	mock.AddResponse("hi", "hey")

	out, errCh := mock.Generate(context.Background(), Request{
		Messages: []core.ContextEntry{{Role: "user", Content: "hi there"}},
		Stream:   true,
	})

	var partials []string
	var final string
	for resp := range out {
		if resp.Partial {
			partials = append(partials, resp.Content)
		} else {
			final = resp.Content
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "hey", strings.Join(partials, ""))
	assert.Equal(t, "hey", final)
}

func TestMockModel_FirstRegisteredKeyWins(t *testing.T) {
	mock := NewMockModel()
	mock.AddResponse("alpha", "first")
	mock.AddResponse("beta", "second")

	got, err := Complete(context.Background(), mock, Request{
		Messages: []core.ContextEntry{{Role: "user", Content: "alpha and beta"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestMockModel_DefaultReply(t *testing.T) {
	mock := NewMockModel()
	got, err := Complete(context.Background(), mock, Request{
		Messages: []core.ContextEntry{{Role: "user", Content: "unmatched"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: unmatched", got)
}

func TestComplete_PropagatesError(t *testing.T) {
	mock := NewMockModel()
	mock.FailWith(errors.New("down"))

	_, err := Complete(context.Background(), mock, Request{
		Messages: []core.ContextEntry{{Role: "user", Content: "x"}},
	})
	assert.Error(t, err)
}
