// Package intention classifies user messages into structured intentions via
// an LLM call with a constrained JSON response format.
package intention

// Primary intention types.
const (
	IntentQuery         = "query"
	IntentAction        = "action"
	IntentFeedback      = "feedback"
	IntentClarification = "clarification"
	IntentGreeting      = "greeting"
	IntentUnknown       = "unknown"
)

// Query sub-intentions.
const (
	QueryInformation = "information"
	QueryExplanation = "explanation"
	QueryComparison  = "comparison"
	QueryStatus      = "status"
)

// Action sub-intentions.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionExecute  = "execute"
	ActionSchedule = "schedule"
)
