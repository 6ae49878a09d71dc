package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/model"
)

const (
	testIntentionJSON = `{"intent": "query", "sub_intent": "information", "parameters": {}, "confidence": 0.9}`
)

// pipelineMock keys canned replies to the three model call sites: title
// prompts mention "concise title", planning prompts mention "planning
// system", and intention calls see the raw user input last.
func pipelineMock(userMessage, planJSON string) *model.MockModel {
	mock := model.NewMockModel()
	mock.AddResponse("concise title", `"Daily Plan"`)
	mock.AddResponse("planning system", planJSON)
	mock.AddResponse(userMessage, testIntentionJSON)
	return mock
}

func echoTool() *scriptedTool {
	return &scriptedTool{name: "Echo", events: []core.ToolEvent{
		core.NewToolChunk("a"),
		core.NewToolChunk("b"),
		core.NewToolChunk("c"),
		core.NewToolResult(nil),
	}}
}

func newTestManager(t *testing.T, f *fixture, mock *model.MockModel, mem core.MemoryStore) *Manager {
	t.Helper()
	if mem == nil {
		mem = memory.NewInMemoryStore(nil)
	}
	return NewManager(f.store, mem, f.catalog, f.registry, mock)
}

func drainProgress(ch <-chan core.ProgressEvent) []core.ProgressEvent {
	var out []core.ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func steps(events []core.ProgressEvent) []core.Step {
	out := make([]core.Step, 0, len(events))
	for _, ev := range events {
		if ev.Type == core.EventProgress {
			out = append(out, ev.Data.Step)
		}
	}
	return out
}

func findStep(events []core.ProgressEvent, step core.Step) (core.ProgressEvent, bool) {
	for _, ev := range events {
		if ev.Type == core.EventProgress && ev.Data.Step == step {
			return ev, true
		}
	}
	return core.ProgressEvent{}, false
}

func countDone(events []core.ProgressEvent) int {
	n := 0
	for _, ev := range events {
		if ev.IsDone() {
			n++
		}
	}
	return n
}

func TestProcessMessage_NewChatFullPipeline(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("plan my day",
		`[{"agent_name": "Helper", "action_type": "Echo", "parameters": {}, "explanation": "respond"}]`)
	mem := memory.NewInMemoryStore(nil)
	mgr := newTestManager(t, f, mock, mem)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "plan my day", "", "alice"))
	require.NotEmpty(t, events)

	// Exactly one done event, and it is last.
	assert.Equal(t, 1, countDone(events))
	assert.True(t, events[len(events)-1].IsDone())

	created, ok := findStep(events, core.StepChatCreated)
	require.True(t, ok)
	require.NotNil(t, created.Data.Chat)
	assert.Equal(t, "Daily Plan", created.Data.Chat.Title)
	assert.Equal(t, 1, created.Data.Chat.MessageCount)

	retrieved, ok := findStep(events, core.StepHistoryRetrieved)
	require.True(t, ok)
	require.NotNil(t, retrieved.Data.Count)
	assert.Zero(t, *retrieved.Data.Count)

	userSaved, ok := findStep(events, core.StepUserMessageSaved)
	require.True(t, ok)
	require.NotNil(t, userSaved.Data.UserMessage)
	assert.Equal(t, "plan my day", userSaved.Data.UserMessage.Content)
	assert.Equal(t, "user", userSaved.Data.UserMessage.Role)

	recognized, ok := findStep(events, core.StepIntentionRecognized)
	require.True(t, ok)
	require.NotNil(t, recognized.Data.Intention)
	assert.Equal(t, "query", recognized.Data.Intention.Intent)

	planned, ok := findStep(events, core.StepPlanGenerated)
	require.True(t, ok)
	require.Len(t, planned.Data.Actions, 1)
	assert.Equal(t, "Echo", planned.Data.Actions[0].ActionType)

	started, ok := findStep(events, core.StepActionStarted)
	require.True(t, ok)
	require.NotNil(t, started.Data.Index)
	assert.Zero(t, *started.Data.Index)
	assert.Equal(t, "Helper", started.Data.AgentName)

	var chunks []string
	for _, ev := range events {
		if ev.Type == core.EventProgress && ev.Data.Step == core.StepMessageChunk {
			chunks = append(chunks, ev.Data.Content)
		}
	}
	assert.Equal(t, "abc", strings.Join(chunks, ""))

	result, ok := findStep(events, core.StepActionResult)
	require.True(t, ok)
	require.NotNil(t, result.Data.Result)
	assert.Equal(t, "abc", result.Data.Result.Content)
	assert.Equal(t, "Helper", result.Data.Result.AgentName)

	done := events[len(events)-1]
	require.NotNil(t, done.Data.LastAssistantMessage)
	assert.Equal(t, "abc", done.Data.LastAssistantMessage.Content)

	// Both the user message and the combined assistant response landed in
	// memory for recall in later runs.
	history := mem.RelevantHistory(context.Background(), created.Data.Chat.ID, "plan", "alice", 10)
	assert.Len(t, history, 2)
}

func TestProcessMessage_EmptyPlan(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("just chatting", `[]`)
	mgr := newTestManager(t, f, mock, nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "just chatting", "", "alice"))

	planned, ok := findStep(events, core.StepPlanGenerated)
	require.True(t, ok)
	assert.NotNil(t, planned.Data.Actions)
	assert.Empty(t, planned.Data.Actions)

	_, ok = findStep(events, core.StepActionStarted)
	assert.False(t, ok)
	_, ok = findStep(events, core.StepFatalError)
	assert.False(t, ok)

	done := events[len(events)-1]
	require.True(t, done.IsDone())
	assert.Nil(t, done.Data.LastAssistantMessage)
}

func TestProcessMessage_UnknownAgentFailsFast(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("do something", `[
		{"agent_name": "Ghost", "action_type": "Echo", "explanation": "first"},
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "second"}
	]`)
	mgr := newTestManager(t, f, mock, nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "do something", "", "alice"))

	actionErr, ok := findStep(events, core.StepActionError)
	require.True(t, ok)
	assert.Equal(t, "Agent Ghost not found", actionErr.Data.Error)
	require.NotNil(t, actionErr.Data.Index)
	assert.Zero(t, *actionErr.Data.Index)

	fatal, ok := findStep(events, core.StepFatalError)
	require.True(t, ok)
	assert.Contains(t, fatal.Data.Error, "Agent Ghost not found")

	// The second action never starts.
	for _, ev := range events {
		if ev.Data.Step == core.StepActionStarted {
			assert.Zero(t, *ev.Data.Index)
		}
	}

	assert.Equal(t, 1, countDone(events))
	assert.True(t, events[len(events)-1].IsDone())
}

func TestProcessMessage_ToolErrorFailsFastMidPlan(t *testing.T) {
	flaky := &scriptedTool{name: "Flaky", events: []core.ToolEvent{
		core.NewToolChunk("x"),
		core.NewToolError("backend unavailable"),
	}}
	f := newFixture(t, echoTool(), flaky)
	mock := pipelineMock("multi step", `[
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "one"},
		{"agent_name": "Helper", "action_type": "Flaky", "explanation": "two"},
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "three"}
	]`)
	mgr := newTestManager(t, f, mock, nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "multi step", "", "alice"))

	// First action completes.
	result, ok := findStep(events, core.StepActionResult)
	require.True(t, ok)
	assert.Zero(t, *result.Data.Index)

	// Second action fails and the run turns fatal.
	actionErr, ok := findStep(events, core.StepActionError)
	require.True(t, ok)
	assert.Equal(t, 1, *actionErr.Data.Index)
	assert.Equal(t, "backend unavailable", actionErr.Data.Error)

	_, ok = findStep(events, core.StepFatalError)
	assert.True(t, ok)

	// The third action never starts.
	var startedIndexes []int
	for _, ev := range events {
		if ev.Data.Step == core.StepActionStarted {
			startedIndexes = append(startedIndexes, *ev.Data.Index)
		}
	}
	assert.Equal(t, []int{0, 1}, startedIndexes)

	assert.Equal(t, 1, countDone(events))
	assert.True(t, events[len(events)-1].IsDone())
}

// stalledExecutor ends the first action's stream with no terminal event and
// delegates the rest to the real executor.
type stalledExecutor struct {
	real  actionExecutor
	calls int
}

func (s *stalledExecutor) Execute(ctx context.Context, message string, action core.Action, chat *core.Chat, conversation []core.ContextEntry) <-chan ActionEvent {
	s.calls++
	if s.calls == 1 {
		out := make(chan ActionEvent, 1)
		out <- ActionEvent{Type: ActionChunk, Content: "partial"}
		close(out)
		return out
	}
	return s.real.Execute(ctx, message, action, chat, conversation)
}

func TestProcessMessage_StreamEndingWithoutResultIsTolerated(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("two attempts", `[
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "one"},
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "two"}
	]`)
	mgr := newTestManager(t, f, mock, nil)
	mgr.executor = &stalledExecutor{real: mgr.executor}

	events := drainProgress(mgr.ProcessMessage(context.Background(), "two attempts", "", "alice"))

	// The truncated first action yields a non-fatal action_error.
	actionErr, ok := findStep(events, core.StepActionError)
	require.True(t, ok)
	assert.Zero(t, *actionErr.Data.Index)
	assert.Equal(t, "Action stream ended unexpectedly", actionErr.Data.Error)
	_, ok = findStep(events, core.StepFatalError)
	assert.False(t, ok)

	// The second action still runs to completion.
	result, ok := findStep(events, core.StepActionResult)
	require.True(t, ok)
	assert.Equal(t, 1, *result.Data.Index)
	assert.Equal(t, "abc", result.Data.Result.Content)

	assert.Equal(t, 1, countDone(events))
	done := events[len(events)-1]
	require.True(t, done.IsDone())
	require.NotNil(t, done.Data.LastAssistantMessage)
	assert.Equal(t, "abc", done.Data.LastAssistantMessage.Content)
}

func TestProcessMessage_MissingOwnerIsFatal(t *testing.T) {
	f := newFixture(t, echoTool())
	mgr := newTestManager(t, f, model.NewMockModel(), nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "hello", "", ""))

	fatal, ok := findStep(events, core.StepFatalError)
	require.True(t, ok)
	assert.Contains(t, fatal.Data.Error, core.ErrMissingOwner.Error())

	assert.Equal(t, 1, countDone(events))
	assert.True(t, events[len(events)-1].IsDone())
}

func TestProcessMessage_StaleChatIDFallsThroughToCreate(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("resume chat", `[]`)
	mgr := newTestManager(t, f, mock, nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "resume chat", "stale-id", "alice"))

	// Creation after a stale id is silent: no chat_created event, and the
	// replacement chat gets the stock title.
	_, ok := findStep(events, core.StepChatCreated)
	assert.False(t, ok)
	_, ok = findStep(events, core.StepFatalError)
	assert.False(t, ok)
	assert.True(t, events[len(events)-1].IsDone())

	chats, total, err := f.store.ListChatsByOwner(context.Background(), "alice", 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "New Chat", chats[0].Title)
}

func TestProcessMessage_ExistingChatAccumulatesContext(t *testing.T) {
	recorder := &scriptedTool{name: "Recorder", events: []core.ToolEvent{
		core.NewToolChunk("noted"),
		core.NewToolResult(nil),
	}}
	f := newFixture(t, echoTool(), recorder)
	mock := pipelineMock("chain actions", `[
		{"agent_name": "Helper", "action_type": "Echo", "explanation": "produce abc"},
		{"agent_name": "Helper", "action_type": "Recorder", "explanation": "use it"}
	]`)
	mgr := newTestManager(t, f, mock, nil)

	chat, err := f.store.CreateChat(context.Background(), "existing", "alice")
	require.NoError(t, err)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "chain actions", chat.ID, "alice"))

	_, ok := findStep(events, core.StepChatCreated)
	assert.False(t, ok, "no chat_created for an existing chat")
	_, ok = findStep(events, core.StepFatalError)
	require.False(t, ok)

	// The second action sees the synthesized summary of the first.
	require.Len(t, recorder.gotConversations, 1)
	conversation := recorder.gotConversations[0]
	require.NotEmpty(t, conversation)
	last := conversation[len(conversation)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Contains(t, last.Content, "agent: Helper")
	assert.Contains(t, last.Content, "agent action: Echo")
	assert.Contains(t, last.Content, "agent explanation: produce abc")
	assert.Contains(t, last.Content, "agent result: abc")
}

func TestProcessMessage_ModelFailureIsFatalAfterChatCreation(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := model.NewMockModel()
	mock.FailWith(errors.New("connection refused"))
	mgr := newTestManager(t, f, mock, nil)

	events := drainProgress(mgr.ProcessMessage(context.Background(), "hi there", "", "alice"))

	// Title generation degrades to the fallback, so the chat still exists.
	created, ok := findStep(events, core.StepChatCreated)
	require.True(t, ok)
	assert.Equal(t, "hi there...", created.Data.Chat.Title)

	// Intention recognition cannot degrade; the run turns fatal.
	fatal, ok := findStep(events, core.StepFatalError)
	require.True(t, ok)
	assert.Contains(t, fatal.Data.Error, "intention recognition failed")

	assert.Equal(t, 1, countDone(events))
	assert.True(t, events[len(events)-1].IsDone())
}

func TestProcessMessage_CancelledContextStopsStream(t *testing.T) {
	f := newFixture(t, echoTool())
	mock := pipelineMock("plan my day", `[]`)
	mgr := newTestManager(t, f, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := mgr.ProcessMessage(ctx, "plan my day", "", "alice")
	<-ch
	cancel()

	// The channel closes without blocking once the consumer walks away.
	for range ch {
	}
}

func TestGenerateTitle(t *testing.T) {
	f := newFixture(t)

	t.Run("strips quotes and trims", func(t *testing.T) {
		mock := model.NewMockModel()
		mock.AddResponse("concise title", "  \"Weekend Trip Plans\"  ")
		mgr := newTestManager(t, f, mock, nil)
		assert.Equal(t, "Weekend Trip Plans", mgr.generateTitle(context.Background(), "help me plan a weekend trip"))
	})

	t.Run("caps length", func(t *testing.T) {
		mock := model.NewMockModel()
		mock.AddResponse("concise title", strings.Repeat("long ", 40))
		mgr := newTestManager(t, f, mock, nil)
		assert.Len(t, mgr.generateTitle(context.Background(), "anything"), maxTitleLength)
	})

	t.Run("falls back on model failure", func(t *testing.T) {
		mock := model.NewMockModel()
		mock.FailWith(errors.New("down"))
		mgr := newTestManager(t, f, mock, nil)
		got := mgr.generateTitle(context.Background(), "one two three four five six seven")
		assert.Equal(t, "one two three four five...", got)
	})
}

func TestCombineContents(t *testing.T) {
	views := []core.MessageView{
		{Content: "first"},
		{Content: ""},
		{Content: "second"},
	}
	assert.Equal(t, "first\nsecond", combineContents(views))
	assert.Empty(t, combineContents(nil))
}
