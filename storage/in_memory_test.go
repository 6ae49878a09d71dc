package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

var _ core.Store = (*InMemoryStore)(nil)

func TestInMemoryStore_ChatLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	chat, err := store.CreateChat(ctx, "Trip planning", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, "active", chat.Status)
	assert.Equal(t, "alice", chat.Owner)

	got, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, got.ID)

	_, err = store.GetChat(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrChatNotFound)
}

func TestInMemoryStore_MessagePagination(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	chat, err := store.CreateChat(ctx, "t", "alice")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.CreateMessage(ctx, core.NewMessage{
			ChatID:  chat.ID,
			Content: fmt.Sprintf("message %d", i),
			Role:    "user",
		})
		require.NoError(t, err)
	}

	// Page 1 holds the newest messages, in chronological order within the page.
	page1, total, err := store.ListMessagesByChat(ctx, chat.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "message 3", page1[0].Content)
	assert.Equal(t, "message 4", page1[1].Content)

	page3, _, err := store.ListMessagesByChat(ctx, chat.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "message 0", page3[0].Content)

	beyond, _, err := store.ListMessagesByChat(ctx, chat.ID, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestInMemoryStore_ListChatsByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first, err := store.CreateChat(ctx, "Grocery list", "alice")
	require.NoError(t, err)
	second, err := store.CreateChat(ctx, "Weather talk", "alice")
	require.NoError(t, err)
	_, err = store.CreateChat(ctx, "Other owner", "bob")
	require.NoError(t, err)

	// Adding a message bumps UpdatedAt, so the first chat lists first.
	_, err = store.CreateMessage(ctx, core.NewMessage{ChatID: first.ID, Content: "hi", Role: "user"})
	require.NoError(t, err)

	chats, total, err := store.ListChatsByOwner(ctx, "alice", 1, 20, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
	assert.Equal(t, 1, chats[0].MessageCount)
	assert.Equal(t, second.ID, chats[1].ID)

	filtered, total, err := store.ListChatsByOwner(ctx, "alice", 1, 20, "weather")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)
}

func TestInMemoryStore_CatalogAndGrants(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	toolID, err := store.UpsertTool(ctx, core.ToolSpec{Name: "Answer", Description: "answers"})
	require.NoError(t, err)
	agentID, err := store.UpsertAgent(ctx, core.Agent{Name: "Helper", Type: "assistant"})
	require.NoError(t, err)
	require.NoError(t, store.GrantTool(ctx, agentID, toolID, map[string]any{"style": "formal"}))

	agents, err := store.ListActiveAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Len(t, agents[0].Tools, 1)
	assert.Equal(t, "Answer", agents[0].Tools[0].Name)
	assert.Equal(t, "formal", agents[0].Tools[0].Config["style"])

	grant, err := store.GetToolGrant(ctx, "Helper", "Answer")
	require.NoError(t, err)
	assert.Equal(t, agentID, grant.AgentID)
	assert.Equal(t, "formal", grant.Config["style"])

	_, err = store.GetToolGrant(ctx, "Nobody", "Answer")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	_, err = store.GetToolGrant(ctx, "Helper", "Ungranted")
	assert.ErrorIs(t, err, core.ErrToolNotAuthorized)
}

func TestInMemoryStore_UpsertAgentReplacesByName(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	id1, err := store.UpsertAgent(ctx, core.Agent{Name: "Helper", Description: "v1"})
	require.NoError(t, err)
	id2, err := store.UpsertAgent(ctx, core.Agent{Name: "Helper", Description: "v2"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	agents, err := store.ListActiveAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "v2", agents[0].Description)
}
