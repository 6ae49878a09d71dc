package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func TestCodeWriterTool_StreamsAndSavesFile(t *testing.T) {
	mock := newStreamingMock("def add(a, b):\n    return a + b\n")
	writer := NewCodeWriterTool(mock)
	writer.outputDir = t.TempDir()

	var events []core.ToolEvent
	for ev := range writer.Run(context.Background(), map[string]any{"language": "python", "task": "add two numbers"}, nil) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, core.ToolEventStatus, events[0].Type)
	assert.Equal(t, "Generating code...", events[0].Note)

	var code strings.Builder
	for _, ev := range events {
		if ev.Type == core.ToolEventChunk {
			code.WriteString(ev.Content)
		}
	}
	assert.Equal(t, "def add(a, b):\n    return a + b\n", code.String())

	last := events[len(events)-1]
	require.Equal(t, core.ToolEventResult, last.Type)
	assert.Equal(t, "success", last.Result["status"])
	assert.Equal(t, "python", last.Result["language"])

	path, ok := last.Result["file_path"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "python_add_two_numbers_"))
	assert.Equal(t, ".py", filepath.Ext(path))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, code.String(), string(saved))
}

func TestCodeWriterTool_MissingLanguage(t *testing.T) {
	writer := NewCodeWriterTool(newStreamingMock("irrelevant"))
	writer.outputDir = t.TempDir()

	var events []core.ToolEvent
	for ev := range writer.Run(context.Background(), map[string]any{"task": "add two numbers"}, nil) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, core.ToolEventError, events[0].Type)
	assert.Contains(t, events[0].Error, "language")
}

func TestCodeFilename(t *testing.T) {
	name := codeFilename("C++", "sort a large file quickly")
	assert.True(t, strings.HasPrefix(name, "c++_sort_a_large_file_qu"))
	assert.True(t, strings.HasSuffix(name, ".cpp"))

	// Same task, same name.
	assert.Equal(t, name, codeFilename("C++", "sort a large file quickly"))

	assert.True(t, strings.HasSuffix(codeFilename("cobol", "payroll"), ".txt"))
}
