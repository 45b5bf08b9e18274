package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadBasic(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "notes.txt", "line one\nline two\n")
	tool := NewFileReadTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": "notes.txt"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "line one")
	assert.Contains(t, res.Content, "line two")
}

func TestFileReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "notes.txt", "a\nb\nc\nd\n")
	tool := NewFileReadTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "notes.txt",
		"offset":    3,
		"limit":     1,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "c")
	assert.NotContains(t, res.Content, "b\n")
	assert.NotContains(t, res.Content, "d")
}

func TestFileReadNotFound(t *testing.T) {
	tool := NewFileReadTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": "ghost.txt"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "file not found: ghost.txt", res.Error)
}

func TestFileReadBinaryRejected(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "image.png", "not really a png")
	tool := NewFileReadTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": "image.png"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "binary")
}

func TestFileReadEmpty(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "empty.txt", "")
	tool := NewFileReadTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": "empty.txt"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "File 'empty.txt' is empty.", res.Content)
}
