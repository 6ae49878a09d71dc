// Package plan turns a recognized intention into an ordered list of actions
// over the available agents and their tools.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
)

// Planner generates action plans from intentions via an LLM call.
type Planner struct {
	model  model.Model
	logger logging.Logger
}

// NewPlanner creates a Planner backed by m.
func NewPlanner(m model.Model, logger logging.Logger) *Planner {
	return &Planner{model: m, logger: logging.OrNoOp(logger)}
}

// CreatePlan produces the ordered action list for one user message. An LLM
// transport failure is returned as an error (fatal to the run); unparseable
// model output degrades to an empty plan, and malformed individual action
// entries are skipped.
func (p *Planner) CreatePlan(
	ctx context.Context,
	intention core.Intention,
	agents []core.Agent,
	conversation []core.ContextEntry,
) ([]core.Action, error) {
	message := ""
	if n := len(conversation); n > 0 {
		message = conversation[n-1].Content
	}
	prompt := planningPrompt(intention, agents, message)

	content, err := model.Complete(ctx, p.model, model.Request{
		Messages: []core.ContextEntry{{Role: "system", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	actions := p.parseActions(content)
	p.logger.Info("plan generated", "actions", len(actions))
	return actions, nil
}

func planningPrompt(intention core.Intention, agents []core.Agent, message string) string {
	var agentLines []string
	for _, agent := range agents {
		toolNames := make([]string, 0, len(agent.Tools))
		for _, tool := range agent.Tools {
			toolNames = append(toolNames, tool.Name)
		}
		agentLines = append(agentLines, fmt.Sprintf(
			"Agent %s: %s\nAvailable tools: %s",
			agent.Name, agent.Description, strings.Join(toolNames, ", ")))
	}
	intentionJSON, _ := json.Marshal(intention)

	return fmt.Sprintf(`As an advanced planning system, analyze the user's message to determine the appropriate response strategy.
Given the following:

User Message: %s

Recognized Intention:
%s

Available Agents and their Tools:
%s

For simple daily life questions (greetings, basic facts, simple preferences), use a single action with a direct response tool.

For complex tasks that require decision making or deeper analysis, break down the task into specific actions considering what information needs to be gathered, what analysis needs to be performed, and how to synthesize the final response.

Return the plan as a JSON array of actions. Each action must have:
- agent_name: The name of the agent to perform the action
- action_type: The tool to use. ATTENTION: action_type must be one of the agent's tools
- parameters: Any parameters needed for the action
- explanation: A brief explanation of why you chose this action

Do not return any other text than the JSON array of actions.`,
		message, string(intentionJSON), strings.Join(agentLines, "\n"))
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\n?(.*?)\n?```")

// extractJSONArray strips markdown fences and slices from the first '[' to
// the last ']'.
func extractJSONArray(text string) string {
	text = fenceRe.ReplaceAllString(text, "$1")
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

func (p *Planner) parseActions(content string) []core.Action {
	raw := extractJSONArray(content)
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		p.logger.Error("failed to parse plan JSON", "error", err)
		return []core.Action{}
	}

	actions := make([]core.Action, 0, len(entries))
	for _, entry := range entries {
		action, err := parseAction(entry)
		if err != nil {
			p.logger.Error("skipping malformed action", "error", err)
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

func parseAction(entry map[string]json.RawMessage) (core.Action, error) {
	var action core.Action
	if raw, ok := entry["agent_name"]; ok {
		if err := json.Unmarshal(raw, &action.AgentName); err != nil {
			return core.Action{}, err
		}
	}
	if raw, ok := entry["action_type"]; ok {
		if err := json.Unmarshal(raw, &action.ActionType); err != nil {
			return core.Action{}, err
		}
	}
	if action.AgentName == "" || action.ActionType == "" {
		return core.Action{}, fmt.Errorf("action missing agent_name or action_type")
	}
	if raw, ok := entry["parameters"]; ok {
		if err := json.Unmarshal(raw, &action.Parameters); err != nil {
			return core.Action{}, err
		}
	}
	if action.Parameters == nil {
		action.Parameters = map[string]any{}
	}
	if raw, ok := entry["explanation"]; ok {
		if err := json.Unmarshal(raw, &action.Explanation); err != nil {
			return core.Action{}, err
		}
	}
	return action, nil
}
