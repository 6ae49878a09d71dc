package tool

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

const defaultCodeOutputDir = "generated_code"

// codeExtensions maps a language name to the file extension generated code is
// saved under. Unknown languages fall back to txt.
var codeExtensions = map[string]string{
	"python": "py", "javascript": "js", "typescript": "ts",
	"java": "java", "c++": "cpp", "go": "go", "rust": "rs",
	"php": "php", "html": "html", "css": "css", "shell": "sh",
	"bash": "sh", "sql": "sql", "markdown": "md",
}

// CodeWriterTool generates code with an LLM, streams it and saves the result
// to a file under its output directory.
type CodeWriterTool struct {
	model     model.Model
	outputDir string
}

// NewCodeWriterTool creates a CodeWriterTool backed by m.
func NewCodeWriterTool(m model.Model) *CodeWriterTool {
	return &CodeWriterTool{model: m, outputDir: defaultCodeOutputDir}
}

// Name implements Tool.
func (t *CodeWriterTool) Name() string { return "CodeWriter" }

// Description implements Tool.
func (t *CodeWriterTool) Description() string {
	return "Write code in a variety of programming languages and save it to a file"
}

// Run implements Tool.
func (t *CodeWriterTool) Run(ctx context.Context, args map[string]any, conversation []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		language := stringArg(args, "language", "")
		task := stringArg(args, "task", "")
		if task == "" {
			task = stringArg(args, "message", "")
		}
		if language == "" || task == "" {
			emit(ctx, out, core.NewToolError("both a language and a task are required"))
			return
		}
		codeStyle := stringArg(args, "code_style", "standard")

		if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("output directory %q is not usable: %v", t.outputDir, err)))
			return
		}

		system := fmt.Sprintf("You are an expert %s programmer.\nYour task is to write clean, efficient, and well-documented %s code following %s style guidelines.\nProvide only the code without any explanations or markdown formatting. Start directly with the code.",
			language, language, codeStyle)

		messages := make([]core.ContextEntry, 0, len(conversation)+1)
		messages = append(messages, conversation...)
		messages = append(messages, core.ContextEntry{
			Role:    "user",
			Content: fmt.Sprintf("Write %s code to %s. Be thorough and handle edge cases.", language, task),
		})

		if !emit(ctx, out, core.NewToolStatus("Generating code...")) {
			return
		}

		var code strings.Builder
		respCh, errCh := t.model.Generate(ctx, model.Request{
			System:   system,
			Messages: messages,
			Stream:   true,
		})
		for resp := range respCh {
			if resp.Partial && resp.Content != "" {
				code.WriteString(resp.Content)
				if !emit(ctx, out, core.NewToolChunk(resp.Content)) {
					return
				}
			}
		}
		if err := <-errCh; err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("code generation failed: %v", err)))
			return
		}
		if code.Len() == 0 {
			emit(ctx, out, core.NewToolError("no code content received from the model"))
			return
		}

		if !emit(ctx, out, core.NewToolStatus("Code generation complete. Saving file...")) {
			return
		}

		path := filepath.Join(t.outputDir, codeFilename(language, task))
		if err := os.WriteFile(path, []byte(code.String()), 0o644); err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to save generated code to file: %v", err)))
			return
		}

		emit(ctx, out, core.NewToolResult(map[string]any{
			"status":     "success",
			"language":   language,
			"task":       task,
			"code_style": codeStyle,
			"file_path":  path,
		}))
	}()
	return out
}

// codeFilename derives a stable, filesystem-safe name from the language and
// the first words of the task.
func codeFilename(language, task string) string {
	part := task
	if len(part) > 20 {
		part = part[:20]
	}
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, part)

	h := fnv.New32a()
	_, _ = h.Write([]byte(task))

	lang := strings.ToLower(language)
	ext, ok := codeExtensions[lang]
	if !ok {
		ext = "txt"
	}
	return fmt.Sprintf("%s_%s_%d.%s", lang, safe, h.Sum32()%10000, ext)
}
