package core

import "context"

// NewMessage captures the fields required to persist a message.
type NewMessage struct {
	ChatID   string
	AgentID  string
	Content  string
	Role     string
	Type     string
	Metadata map[string]any
}

// Store defines chat, message and catalog persistence. Implementations must
// provide their own concurrency safety (atomic row creation, independent read
// paths); the pipeline imposes no additional locking.
type Store interface {
	// CreateChat persists a new chat owned by owner and returns it.
	CreateChat(ctx context.Context, title, owner string) (*Chat, error)

	// GetChat returns the chat with the given id or ErrChatNotFound.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// CreateMessage persists one immutable message and returns it with id
	// and creation time assigned.
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)

	// ListChatsByOwner returns one page of an owner's chats ordered by most
	// recent update, with per-chat message counts and the unpaginated total.
	// A non-empty search term filters on title and description.
	ListChatsByOwner(ctx context.Context, owner string, page, pageSize int, search string) ([]ChatSummary, int, error)

	// ListMessagesByChat returns one page of a chat's messages in
	// chronological order within the page, plus the unpaginated total.
	// Pages are taken from the newest end, page 1 being the most recent.
	ListMessagesByChat(ctx context.Context, chatID string, page, pageSize int) ([]Message, int, error)

	// ListActiveAgents returns all active agents joined with their active
	// tools, in stable order. Used to build the catalog snapshot.
	ListActiveAgents(ctx context.Context) ([]Agent, error)

	// GetToolGrant resolves the authorization link between an agent and an
	// active tool. Returns ErrAgentNotFound when the agent does not exist and
	// ErrToolNotAuthorized when no active grant links them.
	GetToolGrant(ctx context.Context, agentName, toolName string) (*ToolGrant, error)

	// UpsertAgent creates or replaces an agent record by name, returning its id.
	UpsertAgent(ctx context.Context, agent Agent) (string, error)

	// UpsertTool creates or replaces a tool record by name, returning its id.
	UpsertTool(ctx context.Context, spec ToolSpec) (string, error)

	// GrantTool links an agent to a tool with optional per-grant config,
	// replacing any existing link.
	GrantTool(ctx context.Context, agentID, toolID string, config map[string]any) error
}
