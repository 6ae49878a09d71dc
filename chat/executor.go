package chat

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/catalog"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/tool"
)

// noTextPlaceholder replaces an assistant message whose tool stream completed
// without producing any text.
const noTextPlaceholder = "(Action produced no text content)"

// ActionEventType discriminates the events emitted while executing one action.
type ActionEventType string

const (
	// ActionChunk carries one incremental piece of assistant text.
	ActionChunk ActionEventType = "message_chunk"
	// ActionSaved confirms the assistant message was persisted. It is the
	// terminal event of a successful action.
	ActionSaved ActionEventType = "message_saved"
	// ActionFailed is the terminal event of a failed action.
	ActionFailed ActionEventType = "error"
)

// ActionEvent is one event in the stream produced by Executor.Execute.
type ActionEvent struct {
	Type    ActionEventType
	Content string
	Message *core.MessageView
	Err     string
}

// Executor runs a single planned action: it resolves the agent, dispatches
// the tool, relays text chunks and persists the accumulated assistant message.
type Executor struct {
	store    core.Store
	catalog  *catalog.Catalog
	registry *tool.Registry
	logger   logging.Logger
}

// NewExecutor creates an Executor over the given collaborators.
func NewExecutor(store core.Store, cat *catalog.Catalog, registry *tool.Registry, logger logging.Logger) *Executor {
	return &Executor{
		store:    store,
		catalog:  cat,
		registry: registry,
		logger:   logging.OrNoOp(logger),
	}
}

// Execute runs action against chat and streams ActionEvents. The stream ends
// with exactly one terminal event, ActionSaved or ActionFailed, except when
// ctx is cancelled mid-run. The caller's conversation slice is read, never
// mutated.
func (e *Executor) Execute(
	ctx context.Context,
	message string,
	action core.Action,
	chat *core.Chat,
	conversation []core.ContextEntry,
) <-chan ActionEvent {
	out := make(chan ActionEvent)
	go func() {
		defer close(out)

		agent, ok := e.catalog.Find(action.AgentName)
		if !ok {
			e.logger.Error("agent not found", "agent", action.AgentName)
			sendActionEvent(ctx, out, ActionEvent{
				Type: ActionFailed,
				Err:  fmt.Sprintf("Agent %s not found", action.AgentName),
			})
			return
		}

		args := make(map[string]any, len(action.Parameters)+1)
		for k, v := range action.Parameters {
			args[k] = v
		}
		if _, ok := args["message"]; !ok {
			args["message"] = message
		}

		// Cancel the dispatch as soon as this action is over so the registry
		// goroutine never outlives it.
		toolCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var accumulated []byte
		for env := range e.registry.Execute(toolCtx, action.AgentName, action.ActionType, args, conversation) {
			if env.Status == tool.EnvelopeError {
				e.logger.Error("tool error",
					"tool", action.ActionType,
					"agent", action.AgentName,
					"error", env.Error)
				sendActionEvent(ctx, out, ActionEvent{Type: ActionFailed, Err: env.Error})
				return
			}
			if env.Data.Type == core.ToolEventChunk && env.Data.Content != "" {
				accumulated = append(accumulated, env.Data.Content...)
				if !sendActionEvent(ctx, out, ActionEvent{Type: ActionChunk, Content: env.Data.Content}) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		content := string(accumulated)
		if content == "" {
			e.logger.Warn("tool produced no text content",
				"tool", action.ActionType,
				"agent", action.AgentName)
			content = noTextPlaceholder
		}

		saved, err := e.store.CreateMessage(ctx, core.NewMessage{
			ChatID:  chat.ID,
			AgentID: agent.ID,
			Content: content,
			Role:    "assistant",
			Type:    "text",
			Metadata: map[string]any{
				"action_type": action.ActionType,
				"agent_name":  action.AgentName,
				"explanation": action.Explanation,
			},
		})
		if err != nil {
			e.logger.Error("failed to save assistant message",
				"chat_id", chat.ID,
				"agent", action.AgentName,
				"error", err)
			sendActionEvent(ctx, out, ActionEvent{Type: ActionFailed, Err: err.Error()})
			return
		}

		view := saved.View()
		view.AgentName = agent.Name
		view.AgentAvatar = agent.Avatar
		view.ActionExplanation = action.Explanation
		sendActionEvent(ctx, out, ActionEvent{Type: ActionSaved, Message: &view})
	}()
	return out
}

// sendActionEvent sends ev unless the context is done. Reports whether the
// send happened.
func sendActionEvent(ctx context.Context, out chan<- ActionEvent, ev ActionEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
