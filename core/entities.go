package core

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for chats, messages and agents.
func NewID() string { return uuid.NewString() }

// ContextEntry is one role-tagged element of a conversation context.
// A context slice is owned by exactly one pipeline run: it is seeded from
// retrieved history plus the new user message and grown monotonically with
// one synthesized entry per completed action. It is never shared across runs.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a persisted conversation container.
type Chat struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Owner       string         `json:"owner"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ChatSummary is the public projection of a chat used in listings and in the
// chat_created progress event.
type ChatSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Message is a persisted chat message. Messages are immutable after creation.
type Message struct {
	ID        string         `json:"id"`
	ChatID    string         `json:"chat_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Content   string         `json:"content"`
	Role      string         `json:"role"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MessageView is the public shape of a saved message as surfaced by progress
// events and listing endpoints, enriched with agent display fields.
type MessageView struct {
	ID                string         `json:"id"`
	ChatID            string         `json:"chat_id"`
	Content           string         `json:"content"`
	Role              string         `json:"role"`
	Type              string         `json:"type"`
	AgentID           string         `json:"agent_id,omitempty"`
	AgentName         string         `json:"agent_name,omitempty"`
	AgentAvatar       string         `json:"agent_avatar,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         string         `json:"created_at"`
	ActionExplanation string         `json:"action_explanation,omitempty"`
}

// Agent is a named persona with a whitelist of authorized tools, loaded from
// storage at startup and held in an immutable catalog snapshot.
type Agent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Avatar      string         `json:"avatar,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Tools       []ToolSpec     `json:"tools"`
}

// ToolSpec describes one tool authorized for an agent: the catalog record plus
// the per-grant configuration applied before dispatch.
type ToolSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	FunctionName string         `json:"function_name,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// ToolGrant is the resolved authorization link between an agent and a tool.
type ToolGrant struct {
	AgentID   string         `json:"agent_id"`
	AgentName string         `json:"agent_name"`
	ToolName  string         `json:"tool_name"`
	Config    map[string]any `json:"config,omitempty"`
}

// Action is one planned (agent, tool, parameters) step with a human-readable
// rationale. The plan is immutable after generation; whether ActionType names
// a tool the agent is authorized to use is checked at dispatch time, not at
// planning time.
type Action struct {
	AgentName   string         `json:"agent_name"`
	ActionType  string         `json:"action_type"`
	Parameters  map[string]any `json:"parameters"`
	Explanation string         `json:"explanation"`
}

// Intention is the structured classification of a user message produced by
// the intention recognizer.
type Intention struct {
	Intent     string         `json:"intent"`
	SubIntent  string         `json:"sub_intent,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Summary returns the listing projection of a chat.
func (c *Chat) Summary(messageCount int) ChatSummary {
	return ChatSummary{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Status:       c.Status,
		MessageCount: messageCount,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// View returns the public shape of a message. Agent display fields are filled
// by the caller when the authoring agent is known.
func (m *Message) View() MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		Role:      m.Role,
		Type:      m.Type,
		AgentID:   m.AgentID,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
