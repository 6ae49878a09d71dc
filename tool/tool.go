// Package tool implements the streaming tool subsystem: the contract every
// tool satisfies, the dispatch registry that resolves (agent, tool) pairs
// with permission checks, and the concrete tool implementations.
package tool

import (
	"context"

	"github.com/parleyhq/parley/core"
)

// Tool is the streaming capability contract. Run produces a finite, ordered
// sequence of tool events over the returned channel and closes it when done.
// Each call is a fresh, independent execution; nothing resumes a prior run.
//
// A tool terminates its sequence with either one or more content/result
// events (success) or exactly one error event (failure). Internal faults must
// be reified as error events rather than escaping; panics are recovered by
// the dispatching Registry as a safety net.
//
// Side effects (network calls, process spawning, file writes) are the tool's
// private concern; the contract only constrains the event sequence shape.
//
// Tool instances are process-scoped singletons and may be invoked
// concurrently by independent runs, so implementations must be safe to share:
// keep per-invocation state in locals and guard any configuration state.
type Tool interface {
	// Name returns the unique catalog name of this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Run executes the tool. args carries the planned action parameters plus
	// the inbound user message under the "message" key; conversation is the
	// run's accumulated context.
	Run(ctx context.Context, args map[string]any, conversation []core.ContextEntry) <-chan core.ToolEvent
}

// Configurable is implemented by tools accepting per-grant configuration.
// Configure must be idempotent: it may be re-applied before each dispatch and
// only overwrites prior configuration values.
type Configurable interface {
	Configure(config map[string]any)
}

// emit sends ev unless the context is done, so producer goroutines unwind
// when the consumer stops reading. Reports whether the send happened.
func emit(ctx context.Context, out chan<- core.ToolEvent, ev core.ToolEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// stringArg reads a string argument, falling back to def.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// queryArg reads the "query" argument, falling back to the inbound message.
func queryArg(args map[string]any) string {
	if q := stringArg(args, "query", ""); q != "" {
		return q
	}
	return stringArg(args, "message", "")
}

// intArg reads an integer argument, tolerating the float64 values that JSON
// decoding produces, falling back to def.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
