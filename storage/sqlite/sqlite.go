// Package sqlite provides a durable core.Store backed by SQLite via the
// pure-Go modernc.org driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleyhq/parley/core"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store implements core.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			owner TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_owner ON chats(owner)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES chats(id),
			agent_id TEXT,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'assistant',
			avatar TEXT NOT NULL DEFAULT '',
			config TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			function_name TEXT NOT NULL DEFAULT '',
			parameters TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS agent_tools (
			agent_id TEXT NOT NULL REFERENCES agents(id),
			tool_id TEXT NOT NULL REFERENCES tools(id),
			config TEXT,
			PRIMARY KEY (agent_id, tool_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// CreateChat implements core.Store.
func (s *Store) CreateChat(ctx context.Context, title, owner string) (*core.Chat, error) {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, description, status, owner, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.Title, chat.Description, chat.Status, chat.Owner, encodeJSON(chat.Metadata), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

// GetChat implements core.Store.
func (s *Store) GetChat(ctx context.Context, id string) (*core.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, owner, metadata, created_at, updated_at
		 FROM chats WHERE id = ?`, id)
	var chat core.Chat
	var metadata sql.NullString
	err := row.Scan(&chat.ID, &chat.Title, &chat.Description, &chat.Status, &chat.Owner,
		&metadata, &chat.CreatedAt, &chat.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.Metadata = decodeJSON(metadata)
	return &chat, nil
}

// CreateMessage implements core.Store.
func (s *Store) CreateMessage(ctx context.Context, msg core.NewMessage) (*core.Message, error) {
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
	var agentID any
	if m.AgentID != "" {
		agentID = m.AgentID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, agent_id, content, role, type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, agentID, m.Content, m.Role, m.Type, encodeJSON(m.Metadata), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, m.ChatID); err != nil {
		return nil, fmt.Errorf("failed to touch chat: %w", err)
	}
	return m, nil
}

// ListChatsByOwner implements core.Store.
func (s *Store) ListChatsByOwner(ctx context.Context, owner string, page, pageSize int, search string) ([]core.ChatSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	where := `owner = ?`
	args := []any{owner}
	if search != "" {
		where += ` AND (title LIKE ? OR description LIKE ?)`
		like := "%" + search + "%"
		args = append(args, like, like)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}

	query := `SELECT c.id, c.title, c.description, c.status, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id) AS message_count
		 FROM chats c WHERE ` + where + `
		 ORDER BY c.updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var items []core.ChatSummary
	for rows.Next() {
		var chat core.Chat
		var count int
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.Description, &chat.Status,
			&chat.CreatedAt, &chat.UpdatedAt, &count); err != nil {
			return nil, 0, fmt.Errorf("failed to scan chat: %w", err)
		}
		items = append(items, chat.Summary(count))
	}
	return items, total, rows.Err()
}

// ListMessagesByChat implements core.Store. Pages are taken from the newest
// end; rows within a page are returned in chronological order.
func (s *Store) ListMessagesByChat(ctx context.Context, chatID string, page, pageSize int) ([]core.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, agent_id, content, role, type, metadata, created_at
		 FROM messages WHERE chat_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		chatID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var m core.Message
		var agentID, metadata sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &agentID, &m.Content, &m.Role, &m.Type,
			&metadata, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		m.AgentID = agentID.String
		m.Metadata = decodeJSON(metadata)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	// Reverse the newest-first page into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, total, nil
}

// ListActiveAgents implements core.Store.
func (s *Store) ListActiveAgents(ctx context.Context) ([]core.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, type, avatar, config FROM agents
		 WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []core.Agent
	for rows.Next() {
		var a core.Agent
		var config sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Type, &a.Avatar, &config); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.Config = decodeJSON(config)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range agents {
		tools, err := s.agentTools(ctx, agents[i].ID)
		if err != nil {
			return nil, err
		}
		agents[i].Tools = tools
	}
	return agents, nil
}

func (s *Store) agentTools(ctx context.Context, agentID string) ([]core.ToolSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, t.description, t.function_name, t.parameters, at.config
		 FROM agent_tools at JOIN tools t ON t.id = at.tool_id
		 WHERE at.agent_id = ? AND t.is_active = 1 ORDER BY t.name`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent tools: %w", err)
	}
	defer rows.Close()

	var specs []core.ToolSpec
	for rows.Next() {
		var spec core.ToolSpec
		var params, config sql.NullString
		if err := rows.Scan(&spec.Name, &spec.Description, &spec.FunctionName, &params, &config); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		spec.Parameters = decodeJSON(params)
		spec.Config = decodeJSON(config)
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// GetToolGrant implements core.Store.
func (s *Store) GetToolGrant(ctx context.Context, agentName, toolName string) (*core.ToolGrant, error) {
	var agentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM agents WHERE name = ?`, agentName).Scan(&agentID)
	if err == sql.ErrNoRows {
		return nil, core.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}

	var config sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT at.config FROM agent_tools at
		 JOIN tools t ON t.id = at.tool_id
		 WHERE at.agent_id = ? AND t.name = ? AND t.is_active = 1`,
		agentID, toolName).Scan(&config)
	if err == sql.ErrNoRows {
		return nil, core.ErrToolNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up grant: %w", err)
	}
	return &core.ToolGrant{
		AgentID:   agentID,
		AgentName: agentName,
		ToolName:  toolName,
		Config:    decodeJSON(config),
	}, nil
}

// UpsertAgent implements core.Store.
func (s *Store) UpsertAgent(ctx context.Context, agent core.Agent) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM agents WHERE name = ?`, agent.Name).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up agent: %w", err)
	}
	if existing == "" {
		existing = agent.ID
		if existing == "" {
			existing = core.NewID()
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, type, avatar, config, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET
			description = excluded.description, type = excluded.type,
			avatar = excluded.avatar, config = excluded.config, is_active = 1`,
		existing, agent.Name, agent.Description, agent.Type, agent.Avatar, encodeJSON(agent.Config))
	if err != nil {
		return "", fmt.Errorf("failed to upsert agent: %w", err)
	}
	return existing, nil
}

// UpsertTool implements core.Store.
func (s *Store) UpsertTool(ctx context.Context, spec core.ToolSpec) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tools WHERE name = ?`, spec.Name).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up tool: %w", err)
	}
	if existing == "" {
		existing = core.NewID()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tools (id, name, description, function_name, parameters, is_active)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET
			description = excluded.description, function_name = excluded.function_name,
			parameters = excluded.parameters, is_active = 1`,
		existing, spec.Name, spec.Description, spec.FunctionName, encodeJSON(spec.Parameters))
	if err != nil {
		return "", fmt.Errorf("failed to upsert tool: %w", err)
	}
	return existing, nil
}

// GrantTool implements core.Store.
func (s *Store) GrantTool(ctx context.Context, agentID, toolID string, config map[string]any) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_tools (agent_id, tool_id, config) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id, tool_id) DO UPDATE SET config = excluded.config`,
		agentID, toolID, encodeJSON(config))
	if err != nil {
		return fmt.Errorf("failed to grant tool: %w", err)
	}
	return nil
}

func encodeJSON(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeJSON(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}
