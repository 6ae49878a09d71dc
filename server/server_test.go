package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/catalog"
	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/storage"
	"github.com/parleyhq/parley/tool"
)

// staticTool responds to every invocation with one fixed chunk.
type staticTool struct{ reply string }

func (s *staticTool) Name() string        { return "Echo" }
func (s *staticTool) Description() string { return "echoes" }

func (s *staticTool) Run(ctx context.Context, args map[string]any, _ []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)
		out <- core.NewToolChunk(s.reply)
		out <- core.NewToolResult(nil)
	}()
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.InMemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewInMemoryStore()

	agentID, err := store.UpsertAgent(ctx, core.Agent{Name: "Helper"})
	require.NoError(t, err)
	toolID, err := store.UpsertTool(ctx, core.ToolSpec{Name: "Echo"})
	require.NoError(t, err)
	require.NoError(t, store.GrantTool(ctx, agentID, toolID, nil))

	cat := catalog.New(store, nil)
	require.NoError(t, cat.Load(ctx))

	registry := tool.NewRegistry(store, nil)
	registry.RegisterInstance(&staticTool{reply: "echoed"})

	mock := model.NewMockModel()
	mock.AddResponse("concise title", "Test Chat")
	mock.AddResponse("planning system", `[{"agent_name": "Helper", "action_type": "Echo", "explanation": "respond"}]`)
	mock.AddResponse("", `{"intent": "query", "confidence": 0.9}`)

	manager := chat.NewManager(store, memory.NewInMemoryStore(nil), cat, registry, mock)
	srv := New(":0", manager)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func readSSE(t *testing.T, body *bufio.Scanner) []core.ProgressEvent {
	t.Helper()
	var events []core.ProgressEvent
	for body.Scan() {
		line := body.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev core.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestServer_ProcessMessageSSE(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		strings.NewReader(`{"message": "hello", "owner": "alice"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, bufio.NewScanner(resp.Body))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, core.EventDone, last.Type)
	require.NotNil(t, last.Data.LastAssistantMessage)
	assert.Equal(t, "echoed", last.Data.LastAssistantMessage.Content)

	var sawChatCreated bool
	for _, ev := range events {
		if ev.Data.Step == core.StepChatCreated {
			sawChatCreated = true
			assert.Equal(t, "Test Chat", ev.Data.Chat.Title)
		}
	}
	assert.True(t, sawChatCreated)
}

func TestServer_InvalidRequestStillSpeaksSSE(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 2)
	assert.Equal(t, core.StepFatalError, events[0].Data.Step)
	assert.Equal(t, core.EventDone, events[1].Type)
}

func TestServer_MissingMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"owner": "alice"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	events := readSSE(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 2)
	assert.Contains(t, events[0].Data.Error, "message is required")
}

func TestServer_ListChats(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := store.CreateChat(ctx, title, "alice")
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/chat/list/alice?page=1&page_size=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Items      []core.ChatSummary `json:"items"`
		Total      int                `json:"total"`
		Page       int                `json:"page"`
		PageSize   int                `json:"page_size"`
		TotalPages int                `json:"total_pages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.TotalPages)
}

func TestServer_ListMessages(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	chatRec, err := store.CreateChat(ctx, "t", "alice")
	require.NoError(t, err)
	for _, content := range []string{"one", "two"} {
		_, err := store.CreateMessage(ctx, core.NewMessage{ChatID: chatRec.ID, Content: content, Role: "user"})
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/chat/" + chatRec.ID + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Items []core.MessageView `json:"items"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "one", page.Items[0].Content)
}

func TestServer_UnknownGetRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/chat/only-one-segment")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
