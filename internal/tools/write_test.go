package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriteOverwrite(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "out.txt",
		"content":   "hello",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// Overwrite replaces the existing content entirely
	res, err = tool.Execute(context.Background(), map[string]any{
		"file_path": "out.txt",
		"content":   "replaced",
		"mode":      WriteModeOverwrite,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, _ = os.ReadFile(filepath.Join(dir, "out.txt"))
	assert.Equal(t, "replaced", string(data))
}

func TestFileWriteCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "a/b/c.txt",
		"content":   "nested",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestFileWriteAppend(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	_, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "log.txt",
		"content":   "one\n",
	})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "log.txt",
		"content":   "two\n",
		"mode":      WriteModeAppend,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "appended")

	data, _ := os.ReadFile(filepath.Join(dir, "log.txt"))
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestFileWriteCreateOnly(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": "new.txt",
		"content":   "fresh",
		"mode":      WriteModeCreateOnly,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// Second create_only against the same path must refuse
	res, err = tool.Execute(context.Background(), map[string]any{
		"file_path": "new.txt",
		"content":   "clobber",
		"mode":      WriteModeCreateOnly,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "file 'new.txt' already exists (mode: create_only)", res.Error)

	data, _ := os.ReadFile(filepath.Join(dir, "new.txt"))
	assert.Equal(t, "fresh", string(data))
}

func TestFileWriteValidate(t *testing.T) {
	tool := NewFileWriteTool(t.TempDir())

	err := tool.Validate(map[string]any{"content": "x"})
	assert.Error(t, err)

	err = tool.Validate(map[string]any{"file_path": "f.txt", "content": "x", "mode": "truncate"})
	assert.Error(t, err)

	err = tool.Validate(map[string]any{"file_path": "f.txt", "content": "x", "mode": WriteModeAppend})
	assert.NoError(t, err)
}

func TestFileWriteApprovalPrompt(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir)

	text, _ := tool.ApprovalPrompt(map[string]any{"file_path": "x.txt", "content": "y", "mode": WriteModeAppend})
	assert.Equal(t, "Approve appending to file 'x.txt'?", text)

	text, subject := tool.ApprovalPrompt(map[string]any{"file_path": "x.txt", "content": "y"})
	assert.Equal(t, "Approve overwriting or creating file 'x.txt'?", text)
	assert.NotEmpty(t, subject)
}
