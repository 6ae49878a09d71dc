package core

// EventType discriminates the outer progress event union.
type EventType string

const (
	// EventProgress carries one pipeline step update.
	EventProgress EventType = "progress"
	// EventDone terminates every run, success or failure. Exactly one done
	// event is emitted per run and it is always the last event.
	EventDone EventType = "done"
)

// Step discriminates the nested progress payload.
type Step string

const (
	StepStatus              Step = "status"
	StepChatCreated         Step = "chat_created"
	StepHistoryRetrieved    Step = "history_retrieved"
	StepUserMessageSaved    Step = "user_message_saved"
	StepIntentionRecognized Step = "intention_recognized"
	StepPlanGenerated       Step = "plan_generated"
	StepActionStarted       Step = "action_started"
	StepMessageChunk        Step = "message_chunk"
	StepActionResult        Step = "action_result"
	StepActionError         Step = "action_error"
	StepFatalError          Step = "fatal_error"
)

// ProgressData is the nested payload of a progress event. Fields are optional
// pointers / zero values so absence can be distinguished per step; only the
// fields relevant to the Step discriminator are populated.
type ProgressData struct {
	Step                 Step         `json:"step,omitempty"`
	Message              string       `json:"message,omitempty"`
	Chat                 *ChatSummary `json:"chat,omitempty"`
	Count                *int         `json:"count,omitempty"`
	UserMessage          *MessageView `json:"user_message,omitempty"`
	Intention            *Intention   `json:"intention,omitempty"`
	Actions              []Action     `json:"actions,omitzero"`
	Index                *int         `json:"index,omitempty"`
	AgentName            string       `json:"agent_name,omitempty"`
	ActionType           string       `json:"action_type,omitempty"`
	Content              string       `json:"content,omitempty"`
	Result               *MessageView `json:"result,omitempty"`
	Error                string       `json:"error,omitempty"`
	LastAssistantMessage *MessageView `json:"last_assistant_message,omitempty"`
}

// ProgressEvent is the unit streamed by the orchestration pipeline to its
// caller. It is a tagged union: Type selects progress vs done, Data.Step
// selects the progress variant. Treat emitted events as immutable.
type ProgressEvent struct {
	Type EventType    `json:"type"`
	Data ProgressData `json:"data"`
}

// NewStatusEvent reports a human-readable progress note.
func NewStatusEvent(message string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepStatus, Message: message}}
}

// NewChatCreatedEvent carries the full summary of a freshly created chat.
// Emitted only when the chat did not exist before this run.
func NewChatCreatedEvent(chat ChatSummary) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepChatCreated, Chat: &chat}}
}

// NewHistoryRetrievedEvent reports how many prior entries were recalled.
func NewHistoryRetrievedEvent(count int) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepHistoryRetrieved, Count: &count}}
}

// NewUserMessageSavedEvent confirms persistence of the inbound user message.
func NewUserMessageSavedEvent(msg MessageView) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepUserMessageSaved, UserMessage: &msg}}
}

// NewIntentionRecognizedEvent forwards the recognizer output verbatim.
func NewIntentionRecognizedEvent(intention Intention) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepIntentionRecognized, Intention: &intention}}
}

// NewPlanGeneratedEvent carries the ordered action list. An empty plan is
// valid and produces zero action events.
func NewPlanGeneratedEvent(actions []Action) ProgressEvent {
	if actions == nil {
		actions = []Action{}
	}
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepPlanGenerated, Actions: actions}}
}

// NewActionStartedEvent marks the start of the action at the given plan index.
func NewActionStartedEvent(index int, agentName, actionType string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{
		Step: StepActionStarted, Index: &index, AgentName: agentName, ActionType: actionType,
	}}
}

// NewMessageChunkEvent relays one streamed content fragment, tagged with the
// action index so clients can target the message under construction.
func NewMessageChunkEvent(index int, agentName, content string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{
		Step: StepMessageChunk, Index: &index, AgentName: agentName, Content: content,
	}}
}

// NewActionResultEvent confirms that the action's composed message was saved.
func NewActionResultEvent(index int, result MessageView) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepActionResult, Index: &index, Result: &result}}
}

// NewActionErrorEvent reports a failed action at the given index.
func NewActionErrorEvent(index int, agentName, errMsg string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{
		Step: StepActionError, Index: &index, AgentName: agentName, Error: errMsg,
	}}
}

// NewFatalErrorEvent surfaces an uncaught pipeline fault. It is always
// followed by a done event so the caller never hangs.
func NewFatalErrorEvent(errMsg string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Data: ProgressData{Step: StepFatalError, Error: errMsg}}
}

// NewDoneEvent terminates the run, carrying the last assistant message when
// at least one action succeeded.
func NewDoneEvent(last *MessageView) ProgressEvent {
	return ProgressEvent{Type: EventDone, Data: ProgressData{LastAssistantMessage: last}}
}

// IsDone reports whether this is the terminal event of a run.
func (e ProgressEvent) IsDone() bool { return e.Type == EventDone }
