package tool

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// AnalyzeTool performs an LLM-driven analysis (summary, keywords, sentiment,
// ...) over provided data or text, streaming the result.
type AnalyzeTool struct {
	model model.Model
}

// NewAnalyzeTool creates an AnalyzeTool backed by m.
func NewAnalyzeTool(m model.Model) *AnalyzeTool {
	return &AnalyzeTool{model: m}
}

// Name implements Tool.
func (t *AnalyzeTool) Name() string { return "Analyze" }

// Description implements Tool.
func (t *AnalyzeTool) Description() string {
	return "Analyze provided data or text: extract key information, summarize, or assess sentiment"
}

// Run implements Tool.
func (t *AnalyzeTool) Run(ctx context.Context, args map[string]any, conversation []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		data := stringArg(args, "data", "")
		if data == "" {
			data = stringArg(args, "message", "")
		}
		analysisType := stringArg(args, "analysis_type", "summary")
		instructions := stringArg(args, "instructions", "")

		system := fmt.Sprintf("You are an expert data analyst. Your task is to perform '%s' analysis on the provided data.", analysisType)
		if instructions != "" {
			system += fmt.Sprintf(" Follow these specific instructions: %s", instructions)
		}
		system += "\nProvide only the analysis result without any explanations or markdown formatting. Start directly with the result."

		messages := make([]core.ContextEntry, 0, len(conversation)+1)
		messages = append(messages, conversation...)
		messages = append(messages, core.ContextEntry{
			Role:    "user",
			Content: fmt.Sprintf("Analyze the following data:\n\n---\n%s\n---", data),
		})

		if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Performing '%s' analysis...", analysisType))) {
			return
		}

		var produced bool
		respCh, errCh := t.model.Generate(ctx, model.Request{
			System:   system,
			Messages: messages,
			Stream:   true,
		})
		for resp := range respCh {
			if resp.Partial && resp.Content != "" {
				produced = true
				if !emit(ctx, out, core.NewToolChunk(resp.Content)) {
					return
				}
			}
		}
		if err := <-errCh; err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("analysis failed: %v", err)))
			return
		}
		if !produced {
			emit(ctx, out, core.NewToolError("no analysis result received from the model"))
			return
		}
		emit(ctx, out, core.NewToolResult(map[string]any{"analysis_type": analysisType}))
	}()
	return out
}
