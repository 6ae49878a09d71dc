package core

import "context"

// MemoryStore provides conversational recall scoped by chat and owner.
// Implementations swallow their own internal failures: AddMessage never
// reports an error to the caller and RelevantHistory returns an empty slice
// on internal failure. The pipeline therefore never branches on memory
// errors; a failed recall degrades to an empty history.
type MemoryStore interface {
	// AddMessage records one role-tagged message for later recall.
	// Best-effort; failures are logged by the implementation.
	AddMessage(ctx context.Context, chatID, role, content, userID string)

	// RelevantHistory returns up to limit prior entries relevant to query,
	// ordered oldest first. Empty on any internal failure.
	RelevantHistory(ctx context.Context, chatID, query, userID string, limit int) []ContextEntry
}
