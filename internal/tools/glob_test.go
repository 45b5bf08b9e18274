package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobMatchesRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0755))
	writeTestFile(t, dir, "main.go", "package main")
	writeTestFile(t, filepath.Join(dir, "pkg"), "a.go", "package pkg")
	writeTestFile(t, filepath.Join(dir, "pkg", "sub"), "b.go", "package sub")
	writeTestFile(t, dir, "readme.md", "docs")
	tool := NewGlobTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "main.go")
	assert.Contains(t, res.Content, filepath.Join("pkg", "a.go"))
	assert.Contains(t, res.Content, filepath.Join("pkg", "sub", "b.go"))
	assert.NotContains(t, res.Content, "readme.md")
}

func TestGlobIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor"), 0755))
	writeTestFile(t, dir, "main.go", "package main")
	writeTestFile(t, filepath.Join(dir, "vendor"), "dep.go", "package dep")
	tool := NewGlobTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"pattern": "**/*.go",
		"ignore":  []any{"vendor/**"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "main.go")
	assert.NotContains(t, res.Content, "dep.go")
}

func TestGlobNoMatches(t *testing.T) {
	tool := NewGlobTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{"pattern": "*.rs"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "No files found matching pattern '*.rs'.", res.Content)
}

func TestGlobValidateRejectsBadPattern(t *testing.T) {
	tool := NewGlobTool(t.TempDir())
	assert.Error(t, tool.Validate(map[string]any{"pattern": "[unclosed"}))
	assert.NoError(t, tool.Validate(map[string]any{"pattern": "**/*.go"}))
}
