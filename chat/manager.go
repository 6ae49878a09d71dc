// Package chat implements the orchestration pipeline: it turns one inbound
// user message into a stream of progress events covering chat resolution,
// history recall, intention recognition, planning and sequential action
// execution.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/catalog"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/intention"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/plan"
	"github.com/parleyhq/parley/tool"
)

const (
	defaultHistoryLimit = 10
	maxTitleLength      = 100
	fallbackTitleWords  = 5
)

// actionExecutor runs one planned action and streams its events. Satisfied by
// *Executor; an interface so pipeline tests can script the action stream.
type actionExecutor interface {
	Execute(ctx context.Context, message string, action core.Action, chat *core.Chat, conversation []core.ContextEntry) <-chan ActionEvent
}

// Manager coordinates the full message pipeline. It is safe for concurrent
// use; each ProcessMessage call runs independently on its own context slice.
type Manager struct {
	store        core.Store
	memory       core.MemoryStore
	catalog      *catalog.Catalog
	recognizer   *intention.Recognizer
	planner      *plan.Planner
	executor     actionExecutor
	model        model.Model
	logger       logging.Logger
	historyLimit int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logging.OrNoOp(l) }
}

// WithHistoryLimit caps how many recalled entries seed the conversation
// context.
func WithHistoryLimit(limit int) ManagerOption {
	return func(m *Manager) {
		if limit > 0 {
			m.historyLimit = limit
		}
	}
}

// NewManager wires a Manager from its collaborators. The model is used for
// intention recognition, planning and chat title generation.
func NewManager(
	store core.Store,
	mem core.MemoryStore,
	cat *catalog.Catalog,
	registry *tool.Registry,
	m model.Model,
	opts ...ManagerOption,
) *Manager {
	mgr := &Manager{
		store:        store,
		memory:       mem,
		catalog:      cat,
		model:        m,
		logger:       logging.NoOpLogger{},
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	mgr.recognizer = intention.NewRecognizer(m, mgr.logger)
	mgr.planner = plan.NewPlanner(m, mgr.logger)
	mgr.executor = NewExecutor(store, cat, registry, mgr.logger)
	return mgr
}

// ProcessMessage runs the pipeline for one user message and returns the
// progress event stream. chatID may be empty to start a new chat; owner is
// required in that case. The stream always ends with exactly one done event,
// preceded by a fatal_error event when the run failed, unless ctx is
// cancelled mid-run. The returned channel is closed after the done event.
func (m *Manager) ProcessMessage(ctx context.Context, message, chatID, owner string) <-chan core.ProgressEvent {
	out := make(chan core.ProgressEvent)
	go func() {
		defer close(out)
		if err := m.run(ctx, out, message, chatID, owner); err != nil {
			m.logger.Error("message processing failed", "chat_id", chatID, "error", err)
			if !sendEvent(ctx, out, core.NewFatalErrorEvent(err.Error())) {
				return
			}
			sendEvent(ctx, out, core.NewDoneEvent(nil))
		}
	}()
	return out
}

// run executes the pipeline, emitting events on out. On success it emits the
// done event itself and returns nil; any returned error is fatal and the
// caller emits the fatal_error/done pair.
func (m *Manager) run(ctx context.Context, out chan<- core.ProgressEvent, message, chatID, owner string) error {
	if !sendEvent(ctx, out, core.NewStatusEvent("Initializing chat...")) {
		return nil
	}
	chat, err := m.getOrCreateChat(ctx, chatID, owner, message)
	if err != nil {
		return err
	}
	if chatID == "" {
		// The user message lands right after this event, so the count the
		// client sees is already one.
		if !sendEvent(ctx, out, core.NewChatCreatedEvent(chat.Summary(1))) {
			return nil
		}
	}

	if !sendEvent(ctx, out, core.NewStatusEvent("Retrieving relevant history...")) {
		return nil
	}
	history := m.memory.RelevantHistory(ctx, chat.ID, message, owner, m.historyLimit)
	if !sendEvent(ctx, out, core.NewHistoryRetrievedEvent(len(history))) {
		return nil
	}
	m.logger.Info("retrieved relevant history", "chat_id", chat.ID, "count", len(history))

	if !sendEvent(ctx, out, core.NewStatusEvent("Saving user message...")) {
		return nil
	}
	userMsg, err := m.store.CreateMessage(ctx, core.NewMessage{
		ChatID:  chat.ID,
		Content: message,
		Role:    "user",
		Type:    "text",
	})
	if err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}
	if !sendEvent(ctx, out, core.NewUserMessageSavedEvent(userMsg.View())) {
		return nil
	}
	m.memory.AddMessage(ctx, chat.ID, "user", message, owner)

	conversation := make([]core.ContextEntry, 0, len(history)+1)
	conversation = append(conversation, history...)
	conversation = append(conversation, core.ContextEntry{Role: "user", Content: message})

	if !sendEvent(ctx, out, core.NewStatusEvent("Recognizing intention...")) {
		return nil
	}
	intent, err := m.recognizer.Recognize(ctx, message, conversation)
	if err != nil {
		return err
	}
	if !sendEvent(ctx, out, core.NewIntentionRecognizedEvent(intent)) {
		return nil
	}

	if !sendEvent(ctx, out, core.NewStatusEvent("Generating action plan...")) {
		return nil
	}
	actions, err := m.planner.CreatePlan(ctx, intent, m.catalog.Agents(), conversation)
	if err != nil {
		return err
	}
	if !sendEvent(ctx, out, core.NewPlanGeneratedEvent(actions)) {
		return nil
	}

	if !sendEvent(ctx, out, core.NewStatusEvent(fmt.Sprintf("Executing %d actions...", len(actions)))) {
		return nil
	}
	var assistantMessages []core.MessageView
	for i, action := range actions {
		if !sendEvent(ctx, out, core.NewActionStartedEvent(i, action.AgentName, action.ActionType)) {
			return nil
		}

		var saved *core.MessageView
		for ev := range m.executor.Execute(ctx, message, action, chat, conversation) {
			switch ev.Type {
			case ActionChunk:
				if !sendEvent(ctx, out, core.NewMessageChunkEvent(i, action.AgentName, ev.Content)) {
					return nil
				}
			case ActionSaved:
				saved = ev.Message
				if !sendEvent(ctx, out, core.NewActionResultEvent(i, *ev.Message)) {
					return nil
				}
			case ActionFailed:
				m.logger.Error("action failed",
					"index", i,
					"agent", action.AgentName,
					"action_type", action.ActionType,
					"error", ev.Err)
				if !sendEvent(ctx, out, core.NewActionErrorEvent(i, action.AgentName, ev.Err)) {
					return nil
				}
				return fmt.Errorf("Action failed: %s", ev.Err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		if saved == nil {
			// The action terminated without a result or an error. Surface it
			// and move on to the next action.
			m.logger.Warn("action stream ended without a saved message",
				"index", i,
				"action_type", action.ActionType)
			if !sendEvent(ctx, out, core.NewActionErrorEvent(i, action.AgentName, "Action stream ended unexpectedly")) {
				return nil
			}
			continue
		}

		assistantMessages = append(assistantMessages, *saved)
		conversation = append(conversation, core.ContextEntry{
			Role: "assistant",
			Content: fmt.Sprintf("agent: %s\nagent action: %s\nagent explanation: %s\nagent result: %s",
				action.AgentName, action.ActionType, action.Explanation, saved.Content),
		})
	}

	if combined := combineContents(assistantMessages); combined != "" {
		if !sendEvent(ctx, out, core.NewStatusEvent("Saving assistant responses to memory...")) {
			return nil
		}
		m.memory.AddMessage(ctx, chat.ID, "assistant", combined, owner)
	}

	var last *core.MessageView
	if n := len(assistantMessages); n > 0 {
		last = &assistantMessages[n-1]
	}
	sendEvent(ctx, out, core.NewDoneEvent(last))
	return nil
}

// getOrCreateChat resolves chatID or creates a new chat. A stale chatID falls
// through to creation when an owner is available; creating without an owner
// fails with ErrMissingOwner. Title generation only happens for genuinely new
// chats, where firstMessage is the inbound user message.
func (m *Manager) getOrCreateChat(ctx context.Context, chatID, owner, firstMessage string) (*core.Chat, error) {
	if chatID != "" {
		chat, err := m.store.GetChat(ctx, chatID)
		if err == nil {
			m.logger.Info("retrieved existing chat", "chat_id", chatID)
			return chat, nil
		}
		if !errors.Is(err, core.ErrChatNotFound) {
			return nil, err
		}
		m.logger.Warn("chat not found, creating a new one", "chat_id", chatID)
		firstMessage = ""
	}

	if owner == "" {
		m.logger.Error("attempted to create chat without owner")
		return nil, core.ErrMissingOwner
	}

	title := "New Chat"
	if firstMessage != "" {
		title = m.generateTitle(ctx, firstMessage)
	}
	chat, err := m.store.CreateChat(ctx, title, owner)
	if err != nil {
		return nil, err
	}
	m.logger.Info("created new chat", "chat_id", chat.ID, "title", title)
	return chat, nil
}

// generateTitle asks the model for a short chat title, falling back to the
// first words of the message when the model fails or returns nothing.
func (m *Manager) generateTitle(ctx context.Context, message string) string {
	prompt := fmt.Sprintf("Generate a very short, concise title (max 5 words) for a chat based on this first user message: \n\nUser Message: %q\n\nTitle:", message)
	content, err := model.Complete(ctx, m.model, model.Request{
		Messages: []core.ContextEntry{{Role: "user", Content: prompt}},
	})
	if err != nil {
		m.logger.Error("title generation failed", "error", err)
		return fallbackTitle(message)
	}

	title := strings.ReplaceAll(strings.TrimSpace(content), `"`, "")
	if title == "" {
		m.logger.Warn("model returned an empty title, using fallback")
		return fallbackTitle(message)
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	m.logger.Info("generated chat title", "title", title)
	return title
}

func fallbackTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > fallbackTitleWords {
		words = words[:fallbackTitleWords]
	}
	return strings.Join(words, " ") + "..."
}

func combineContents(messages []core.MessageView) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// sendEvent sends ev unless the context is done. Reports whether the send
// happened.
func sendEvent(ctx context.Context, out chan<- core.ProgressEvent, ev core.ProgressEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
