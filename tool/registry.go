package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// EnvelopeStatus discriminates dispatch envelopes.
type EnvelopeStatus string

const (
	// EnvelopeSuccess wraps one relayed tool event.
	EnvelopeSuccess EnvelopeStatus = "success"
	// EnvelopeError is terminal: resolution failed, the tool reported an
	// error, or the tool panicked mid-stream.
	EnvelopeError EnvelopeStatus = "error"
)

// Envelope is the uniform wrapper the registry emits around tool events.
type Envelope struct {
	Status EnvelopeStatus `json:"status"`
	Data   core.ToolEvent `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Registry resolves (agent, tool) pairs to ready-to-invoke tool handles and
// relays their event streams in envelopes. Tool instances are process-scoped
// singletons keyed by tool name, constructed lazily from registered
// factories.
type Registry struct {
	store  core.Store
	logger logging.Logger

	mu        sync.Mutex
	factories map[string]func() Tool
	instances map[string]Tool
}

// NewRegistry creates a registry performing permission checks against store.
func NewRegistry(store core.Store, logger logging.Logger) *Registry {
	return &Registry{
		store:     store,
		logger:    logging.OrNoOp(logger),
		factories: make(map[string]func() Tool),
		instances: make(map[string]Tool),
	}
}

// Register adds a factory for the named tool. The instance is built on first
// resolution and reused for the process lifetime.
func (r *Registry) Register(name string, factory func() Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// RegisterInstance adds a pre-built tool as the singleton for its name.
func (r *Registry) RegisterInstance(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[t.Name()] = t
}

// instance returns the singleton for name, building it if needed.
func (r *Registry) instance(name string) (Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.instances[name]; ok {
		return t, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotRegistered, name)
	}
	t := factory()
	r.instances[name] = t
	return t, nil
}

// Resolve verifies the agent exists and holds an active grant for the named
// tool, applies the grant's configuration to the singleton instance, and
// returns the ready handle. Resolution failures are terminal for the dispatch
// attempt and never retried automatically.
func (r *Registry) Resolve(ctx context.Context, agentName, toolName string) (Tool, error) {
	grant, err := r.store.GetToolGrant(ctx, agentName, toolName)
	if err != nil {
		if errors.Is(err, core.ErrAgentNotFound) {
			return nil, fmt.Errorf("agent '%s' %w", agentName, core.ErrAgentNotFound)
		}
		if errors.Is(err, core.ErrToolNotAuthorized) {
			return nil, fmt.Errorf("agent '%s' does not have permission to use tool '%s' or tool is inactive: %w",
				agentName, toolName, core.ErrToolNotAuthorized)
		}
		return nil, fmt.Errorf("failed to resolve tool grant: %w", err)
	}

	t, err := r.instance(toolName)
	if err != nil {
		return nil, err
	}

	// Per-grant configuration is re-applied on every dispatch, an empty
	// grant config included, so one grant's settings never carry over into
	// the next dispatch.
	if cfg, ok := t.(Configurable); ok {
		cfg.Configure(grant.Config)
	}
	return t, nil
}

// Execute resolves the handle and relays the tool's event stream. Every tool
// event is wrapped as {status: success, data: event}; a resolution failure,
// an error event from the tool, or a panic inside the tool yields exactly one
// {status: error} envelope and stops the stream. The returned channel is
// closed on completion; sends select on ctx so an abandoned consumer never
// leaks the producer goroutine.
func (r *Registry) Execute(
	ctx context.Context,
	agentName, toolName string,
	args map[string]any,
	conversation []core.ContextEntry,
) <-chan Envelope {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool panicked", "tool", toolName, "agent", agentName, "panic", rec)
				emitEnvelope(ctx, out, Envelope{
					Status: EnvelopeError,
					Error:  fmt.Sprintf("unexpected error during tool execution: %v", rec),
				})
			}
		}()

		t, err := r.Resolve(ctx, agentName, toolName)
		if err != nil {
			r.logger.Error("tool resolution failed", "tool", toolName, "agent", agentName, "error", err)
			emitEnvelope(ctx, out, Envelope{Status: EnvelopeError, Error: err.Error()})
			return
		}

		for ev := range t.Run(ctx, args, conversation) {
			if ev.Type == core.ToolEventError {
				emitEnvelope(ctx, out, Envelope{Status: EnvelopeError, Error: ev.Error})
				return
			}
			if !emitEnvelope(ctx, out, Envelope{Status: EnvelopeSuccess, Data: ev}) {
				return
			}
		}
	}()
	return out
}

// emitEnvelope sends ev unless the context is done. Reports whether the send
// happened.
func emitEnvelope(ctx context.Context, out chan<- Envelope, ev Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
