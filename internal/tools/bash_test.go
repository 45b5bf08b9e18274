package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBashSimpleCommand(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "hello")
}

func TestBashNonZeroExitIsNotAnError(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo oops >&2; exit 3"})
	require.NoError(t, err)
	// The run continues on command failure; the exit code is data
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "STDERR")
	assert.Contains(t, res.Content, "Exit code: 3")

	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, data["exit_code"])
}

func TestBashWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := NewBashTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"command": "pwd"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, dir)
}

func TestBashTimeout(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{
		"command":    "sleep 5",
		"timeout_ms": 100,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestBashEnvIsSanitized(t *testing.T) {
	t.Setenv("SECRET_TOKEN", "hunter2")
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{"command": "env"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotContains(t, res.Content, "hunter2")
	assert.Contains(t, res.Content, "PATH=")
}

func TestBashValidate(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	assert.Error(t, tool.Validate(map[string]any{}))
	assert.Error(t, tool.Validate(map[string]any{"command": "ls", "timeout_ms": -1}))
	assert.NoError(t, tool.Validate(map[string]any{"command": "ls"}))
}
