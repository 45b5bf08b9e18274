package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrepFindsMatches(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.go", "package main\n\nfunc HandleRequest() {}\n")
	writeTestFile(t, dir, "b.go", "package main\n\nfunc handleResponse() {}\n")
	tool := NewGrepTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_pattern": "*.go",
		"search_term":  "handle",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	// Case-insensitive by default
	assert.Contains(t, res.Content, "a.go:3")
	assert.Contains(t, res.Content, "b.go:3")
}

func TestGrepCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.go", "Alpha\nalpha\n")
	tool := NewGrepTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_pattern":   "*.go",
		"search_term":    "Alpha",
		"case_sensitive": true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "a.go:1")
	assert.NotContains(t, res.Content, "a.go:2")
}

func TestGrepContextLines(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "one\ntwo\nthree\nfour\n")
	tool := NewGrepTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_pattern":  "*.txt",
		"search_term":   "three",
		"context_lines": 1,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "two")
	assert.Contains(t, res.Content, "three")
	assert.Contains(t, res.Content, "four")
	assert.NotContains(t, res.Content, "one")
}

func TestGrepNoMatches(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.go", "package main\n")
	tool := NewGrepTool(dir)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_pattern": "*.go",
		"search_term":  "zzz_not_here",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "No matches found")
}

func TestGrepNoFiles(t *testing.T) {
	tool := NewGrepTool(t.TempDir())

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_pattern": "*.rs",
		"search_term":  "fn",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "No files found matching pattern '*.rs'.", res.Content)
}

func TestGrepValidate(t *testing.T) {
	tool := NewGrepTool(t.TempDir())
	assert.Error(t, tool.Validate(map[string]any{"file_pattern": "*.go", "search_term": "(bad"}))
	assert.Error(t, tool.Validate(map[string]any{"search_term": "ok"}))
	assert.NoError(t, tool.Validate(map[string]any{"file_pattern": "*.go", "search_term": "ok"}))
}
