package tool

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// AnswerTool answers the user's question directly, streaming the model's
// response as content chunks.
type AnswerTool struct {
	model model.Model
}

// NewAnswerTool creates an AnswerTool backed by m.
func NewAnswerTool(m model.Model) *AnswerTool {
	return &AnswerTool{model: m}
}

// Name implements Tool.
func (t *AnswerTool) Name() string { return "Answer" }

// Description implements Tool.
func (t *AnswerTool) Description() string {
	return "Answer the user's question directly with a clear and accurate response"
}

// Run implements Tool.
func (t *AnswerTool) Run(ctx context.Context, args map[string]any, conversation []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		query := queryArg(args)
		format := stringArg(args, "format", "text")
		style := stringArg(args, "style", "professional")

		system := fmt.Sprintf("You are a %s assistant. ", style)
		switch format {
		case "markdown":
			system += "Format your response in markdown. "
		case "html":
			system += "Format your response in HTML. "
		}
		switch style {
		case "concise":
			system += "Be brief and to the point. "
		case "detailed":
			system += "Provide comprehensive and detailed explanations. "
		case "friendly":
			system += "Use a warm and conversational tone. "
		}

		messages := make([]core.ContextEntry, 0, len(conversation)+1)
		messages = append(messages, conversation...)
		messages = append(messages, core.ContextEntry{Role: "user", Content: query})

		respCh, errCh := t.model.Generate(ctx, model.Request{
			System:   system,
			Messages: messages,
			Stream:   true,
		})
		for resp := range respCh {
			if resp.Partial && resp.Content != "" {
				if !emit(ctx, out, core.NewToolChunk(resp.Content)) {
					return
				}
			}
		}
		if err := <-errCh; err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to get answer: %v", err)))
			return
		}
		emit(ctx, out, core.NewToolResult(map[string]any{"format": format, "style": style}))
	}()
	return out
}
