package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoSuchToolListsAvailableTools(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "file_read", group: PowerGroup})
	r.Register(&stubTool{name: "no_such_tool", group: HelpersGroup})
	tool := NewNoSuchTool(r)

	res, err := tool.Execute(context.Background(), map[string]any{"tool_name": "read_file"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "'read_file'")
	assert.Contains(t, res.Content, "power---file_read")
	// The helper group itself is not advertised to the model
	assert.NotContains(t, res.Content, "helpers---no_such_tool")
}

func TestInvalidToolArguments(t *testing.T) {
	tool := NewInvalidToolArgumentsTool()

	res, err := tool.Execute(context.Background(), map[string]any{
		"tool_name": "power---file_edit",
		"tool_args": `{"file_path": 12}`,
		"error":     "file_path: is required",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "'power---file_edit'")
	assert.Contains(t, res.Content, `{"file_path": 12}`)
	assert.Contains(t, res.Content, "file_path: is required")
}

func TestSearchToolRanksFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "settings.go", "func SaveSettings() {}\nfunc LoadSettings() {}\n")
	writeTestFile(t, dir, "render.go", "func Render() {}\n")
	tool := NewSearchTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"query": "save settings"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "settings.go")
	assert.NotContains(t, res.Content, "render.go")
}

func TestSearchToolNoResults(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n")
	tool := NewSearchTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"query": "quantum flux capacitor"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "No code found matching query")
}
