// Package model defines the vendor-neutral LLM contract used by the
// recognizer, planner, title generation and LLM-backed tools, plus a
// deterministic MockModel for tests.
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
)

// Request captures one normalized chat completion input.
type Request struct {
	// System is an optional system instruction prepended to the messages.
	System string `json:"system,omitempty"`
	// Messages is the role-tagged conversation, oldest first.
	Messages []core.ContextEntry `json:"messages"`
	// Stream requests incremental text deltas instead of one final response.
	Stream bool `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	// Partial marks a streaming fragment; the final response repeats the
	// full accumulated text with Partial=false.
	Partial bool `json:"partial"`
	// Content is the delta text for partial responses, the complete text otherwise.
	Content string `json:"content"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required to drive generation. The response
// channel is closed on completion; the error channel carries at most one
// terminal error.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete runs a non-streaming request and returns the final text.
func Complete(ctx context.Context, m Model, req Request) (string, error) {
	req.Stream = false
	out, errCh := m.Generate(ctx, req)
	var last string
	for resp := range out {
		if !resp.Partial {
			last = resp.Content
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return last, nil
}

// MockModel is a lightweight in-memory Model useful for tests. Responses are
// keyed by a substring of the last message; the first registered key that
// matches wins, in registration order.
type MockModel struct {
	info     Info
	keys     []string
	replies  map[string]string
	failWith error
}

// NewMockModel constructs an empty MockModel.
func NewMockModel() *MockModel {
	return &MockModel{
		info:    Info{Name: "mock", Provider: "mock"},
		replies: make(map[string]string),
	}
}

// AddResponse registers a canned completion for inputs containing key.
func (m *MockModel) AddResponse(key, response string) {
	if _, ok := m.replies[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.replies[key] = response
}

// FailWith makes every Generate call report err as its terminal error.
func (m *MockModel) FailWith(err error) { m.failWith = err }

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Generate implements Model; emits optional streaming rune chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		if m.failWith != nil {
			errCh <- m.failWith
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Content
		full := ""
		for _, key := range m.keys {
			if strings.Contains(input, key) {
				full = m.replies[key]
				break
			}
		}
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", input)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Response{Partial: true, Content: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Response{Partial: false, Content: full}:
		}
	}()
	return out, errCh
}
