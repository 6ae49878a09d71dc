package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/parleyhq/parley/core"
	"gopkg.in/yaml.v3"
)

// SeedFile declares agents, tools and grants to import into storage at
// startup. Import is idempotent: records are upserted by name and grants
// replace prior configuration.
type SeedFile struct {
	Tools  []SeedTool  `yaml:"tools"`
	Agents []SeedAgent `yaml:"agents"`
}

// SeedTool is one tool catalog record.
type SeedTool struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	FunctionName string         `yaml:"function_name"`
	Parameters   map[string]any `yaml:"parameters"`
}

// SeedAgent is one agent record plus its tool grants.
type SeedAgent struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Type        string         `yaml:"type"`
	Avatar      string         `yaml:"avatar"`
	Config      map[string]any `yaml:"config"`
	Tools       []SeedGrant    `yaml:"tools"`
}

// SeedGrant links an agent to a tool with optional per-grant configuration.
type SeedGrant struct {
	Name   string         `yaml:"name"`
	Config map[string]any `yaml:"config"`
}

// SeedFromFile parses the YAML seed at path and imports it into store.
func SeedFromFile(ctx context.Context, store core.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	return Seed(ctx, store, seed)
}

// Seed imports the declared catalog into store.
func Seed(ctx context.Context, store core.Store, seed SeedFile) error {
	toolIDs := make(map[string]string, len(seed.Tools))
	for _, tool := range seed.Tools {
		id, err := store.UpsertTool(ctx, core.ToolSpec{
			Name:         tool.Name,
			Description:  tool.Description,
			FunctionName: tool.FunctionName,
			Parameters:   tool.Parameters,
		})
		if err != nil {
			return fmt.Errorf("failed to seed tool %s: %w", tool.Name, err)
		}
		toolIDs[tool.Name] = id
	}

	for _, agent := range seed.Agents {
		agentType := agent.Type
		if agentType == "" {
			agentType = "assistant"
		}
		agentID, err := store.UpsertAgent(ctx, core.Agent{
			Name:        agent.Name,
			Description: agent.Description,
			Type:        agentType,
			Avatar:      agent.Avatar,
			Config:      agent.Config,
		})
		if err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", agent.Name, err)
		}
		for _, grant := range agent.Tools {
			toolID, ok := toolIDs[grant.Name]
			if !ok {
				return fmt.Errorf("agent %s references unknown tool %s", agent.Name, grant.Name)
			}
			if err := store.GrantTool(ctx, agentID, toolID, grant.Config); err != nil {
				return fmt.Errorf("failed to grant %s to %s: %w", grant.Name, agent.Name, err)
			}
		}
	}
	return nil
}
