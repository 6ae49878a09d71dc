package intention

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
)

const systemPrompt = `You are an advanced intention recognition system. Your task is to analyze user input and determine their intention.

Given:
1. User's current input
2. Conversation history (if available)

Analyze the information and extract the primary intention, any sub-intentions, and relevant parameters.

Primary intentions must be one of the following:
- query: User wants information
- action: User wants to perform an action
- feedback: User is providing feedback
- clarification: User is asking for clarification
- greeting: User is greeting the system
- unknown: Intention couldn't be determined

For query intentions, sub-intentions can be: information, explanation, comparison, status.
For action intentions, sub-intentions can be: create, update, delete, execute, schedule.

Return your analysis in JSON with this structure:
{"intent": "string", "sub_intent": "string", "parameters": {}, "confidence": 0.0}

Be precise and accurate. If the intention is unclear, use unknown with an appropriate confidence score. Return only the JSON object.`

// Recognizer identifies the user's intention from input and history.
type Recognizer struct {
	model  model.Model
	logger logging.Logger
}

// NewRecognizer creates a Recognizer backed by m.
func NewRecognizer(m model.Model, logger logging.Logger) *Recognizer {
	return &Recognizer{model: m, logger: logging.OrNoOp(logger)}
}

// Recognize classifies userInput given the conversation history. An LLM
// transport failure is returned as an error (fatal to the run); unparseable
// model output degrades to an unknown intention.
func (r *Recognizer) Recognize(ctx context.Context, userInput string, history []core.ContextEntry) (core.Intention, error) {
	messages := make([]core.ContextEntry, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, core.ContextEntry{Role: "user", Content: userInput})

	content, err := model.Complete(ctx, r.model, model.Request{
		System:   systemPrompt,
		Messages: messages,
	})
	if err != nil {
		return core.Intention{}, fmt.Errorf("intention recognition failed: %w", err)
	}

	intention := parseIntention(content)
	r.logger.Info("intention recognized", "intent", intention.Intent, "confidence", intention.Confidence)
	return intention, nil
}

// parseIntention extracts the JSON object from possibly fenced model output.
// Malformed output yields an unknown intention rather than an error.
func parseIntention(content string) core.Intention {
	raw := extractJSONObject(content)
	var parsed struct {
		Intent     string         `json:"intent"`
		SubIntent  string         `json:"sub_intent"`
		Parameters map[string]any `json:"parameters"`
		Confidence float64        `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Intent == "" {
		return core.Intention{Intent: IntentUnknown, Confidence: 0}
	}
	return core.Intention{
		Intent:     parsed.Intent,
		SubIntent:  parsed.SubIntent,
		Parameters: parsed.Parameters,
		Confidence: parsed.Confidence,
	}
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}
