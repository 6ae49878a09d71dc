package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// agentRecord is the internal catalog row kept by InMemoryStore.
type agentRecord struct {
	agent  core.Agent
	active bool
}

type toolRecord struct {
	spec   core.ToolSpec
	id     string
	active bool
}

type grantRecord struct {
	agentID string
	toolID  string
	config  map[string]any
}

// InMemoryStore is a process-local core.Store guarded by a RWMutex. Suitable
// for tests and development; swap for the sqlite backend in deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*core.Chat
	messages map[string][]*core.Message // chatID -> chronological messages
	agents   map[string]*agentRecord    // agentID -> record
	tools    map[string]*toolRecord     // toolID -> record
	grants   []grantRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chats:    make(map[string]*core.Chat),
		messages: make(map[string][]*core.Message),
		agents:   make(map[string]*agentRecord),
		tools:    make(map[string]*toolRecord),
	}
}

// CreateChat implements core.Store.
func (s *InMemoryStore) CreateChat(ctx context.Context, title, owner string) (*core.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	chat := &core.Chat{
		ID:        core.NewID(),
		Title:     title,
		Status:    "active",
		Owner:     owner,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chat.ID] = chat
	return cloneChat(chat), nil
}

// GetChat implements core.Store.
func (s *InMemoryStore) GetChat(ctx context.Context, id string) (*core.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, core.ErrChatNotFound
	}
	return cloneChat(chat), nil
}

// CreateMessage implements core.Store.
func (s *InMemoryStore) CreateMessage(ctx context.Context, msg core.NewMessage) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	m := &core.Message{
		ID:        core.NewID(),
		ChatID:    msg.ChatID,
		AgentID:   msg.AgentID,
		Content:   msg.Content,
		Role:      msg.Role,
		Type:      msg.Type,
		Metadata:  msg.Metadata,
		CreatedAt: now,
	}
	if m.Type == "" {
		m.Type = "text"
	}
	s.messages[m.ChatID] = append(s.messages[m.ChatID], m)
	if chat, ok := s.chats[m.ChatID]; ok {
		chat.UpdatedAt = now
	}
	out := *m
	return &out, nil
}

// ListChatsByOwner implements core.Store.
func (s *InMemoryStore) ListChatsByOwner(ctx context.Context, owner string, page, pageSize int, search string) ([]core.ChatSummary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*core.Chat
	needle := strings.ToLower(search)
	for _, chat := range s.chats {
		if chat.Owner != owner {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(chat.Title), needle) &&
			!strings.Contains(strings.ToLower(chat.Description), needle) {
			continue
		}
		matched = append(matched, chat)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	total := len(matched)
	start, end := pageBounds(page, pageSize, total)
	summaries := make([]core.ChatSummary, 0, end-start)
	for _, chat := range matched[start:end] {
		summaries = append(summaries, chat.Summary(len(s.messages[chat.ID])))
	}
	return summaries, total, nil
}

// ListMessagesByChat implements core.Store. Pages are taken from the newest
// end; messages within a page are chronological.
func (s *InMemoryStore) ListMessagesByChat(ctx context.Context, chatID string, page, pageSize int) ([]core.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	total := len(msgs)
	start, end := pageBounds(page, pageSize, total)
	// start/end index into the newest-first ordering; convert back to
	// chronological positions.
	lo, hi := total-end, total-start
	out := make([]core.Message, 0, hi-lo)
	for _, m := range msgs[lo:hi] {
		out = append(out, *m)
	}
	return out, total, nil
}

// ListActiveAgents implements core.Store.
func (s *InMemoryStore) ListActiveAgents(ctx context.Context) ([]core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var agents []core.Agent
	for _, rec := range s.agents {
		if !rec.active {
			continue
		}
		agent := rec.agent
		agent.Tools = nil
		for _, grant := range s.grants {
			if grant.agentID != agent.ID {
				continue
			}
			tool, ok := s.tools[grant.toolID]
			if !ok || !tool.active {
				continue
			}
			spec := tool.spec
			spec.Config = grant.config
			agent.Tools = append(agent.Tools, spec)
		}
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// GetToolGrant implements core.Store.
func (s *InMemoryStore) GetToolGrant(ctx context.Context, agentName, toolName string) (*core.ToolGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var agent *agentRecord
	for _, rec := range s.agents {
		if rec.agent.Name == agentName {
			agent = rec
			break
		}
	}
	if agent == nil {
		return nil, core.ErrAgentNotFound
	}
	for _, grant := range s.grants {
		if grant.agentID != agent.agent.ID {
			continue
		}
		tool, ok := s.tools[grant.toolID]
		if !ok || !tool.active || tool.spec.Name != toolName {
			continue
		}
		return &core.ToolGrant{
			AgentID:   agent.agent.ID,
			AgentName: agent.agent.Name,
			ToolName:  toolName,
			Config:    grant.config,
		}, nil
	}
	return nil, core.ErrToolNotAuthorized
}

// UpsertAgent implements core.Store.
func (s *InMemoryStore) UpsertAgent(ctx context.Context, agent core.Agent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.agents {
		if rec.agent.Name == agent.Name {
			agent.ID = id
			rec.agent = agent
			rec.active = true
			return id, nil
		}
	}
	if agent.ID == "" {
		agent.ID = core.NewID()
	}
	s.agents[agent.ID] = &agentRecord{agent: agent, active: true}
	return agent.ID, nil
}

// UpsertTool implements core.Store.
func (s *InMemoryStore) UpsertTool(ctx context.Context, spec core.ToolSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.tools {
		if rec.spec.Name == spec.Name {
			rec.spec = spec
			rec.active = true
			return id, nil
		}
	}
	id := core.NewID()
	s.tools[id] = &toolRecord{spec: spec, id: id, active: true}
	return id, nil
}

// GrantTool implements core.Store.
func (s *InMemoryStore) GrantTool(ctx context.Context, agentID, toolID string, config map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, grant := range s.grants {
		if grant.agentID == agentID && grant.toolID == toolID {
			s.grants[i].config = config
			return nil
		}
	}
	s.grants = append(s.grants, grantRecord{agentID: agentID, toolID: toolID, config: config})
	return nil
}

func cloneChat(c *core.Chat) *core.Chat {
	out := *c
	return &out
}

// pageBounds clamps a 1-based page window to [0, total].
func pageBounds(page, pageSize, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}
