package core

import "errors"

// Error taxonomy shared across layers. Callers match with errors.Is; layers
// add context via fmt.Errorf("...: %w", err).
var (
	// ErrMissingOwner is returned when a chat must be created but no owner
	// identity was supplied. Fatal to the run.
	ErrMissingOwner = errors.New("owner is required to create a new chat")

	// ErrChatNotFound is returned by Store.GetChat for unknown ids. The
	// pipeline recovers by falling through to chat creation when an owner is
	// present.
	ErrChatNotFound = errors.New("chat not found")

	// ErrAgentNotFound is returned when an agent name resolves to nothing,
	// either in storage or in the loaded catalog snapshot.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrToolNotAuthorized covers both a missing agent/tool grant and an
	// inactive tool. Terminal for the dispatch attempt, never retried.
	ErrToolNotAuthorized = errors.New("agent does not have permission to use tool or tool is inactive")

	// ErrToolNotRegistered is returned when a granted tool name has no
	// registered implementation factory.
	ErrToolNotRegistered = errors.New("tool not found or could not be instantiated")
)
