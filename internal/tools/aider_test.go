package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/project"
)

// mockProject is a test double for project.Project.
type mockProject struct {
	baseDir      string
	contextFiles []project.ContextFile
	answer       project.Answer
	askErr       error
	questions    []project.Question
	logLevels    []string
	responses    []project.PromptResponse
	sendErr      error
	sentPrompts  []string
}

func (m *mockProject) BaseDir() string            { return m.baseDir }
func (m *mockProject) Settings() *config.Settings { return nil }
func (m *mockProject) ContextFiles() []project.ContextFile {
	return m.contextFiles
}

func (m *mockProject) AddContextFile(file project.ContextFile) (bool, error) {
	for _, f := range m.contextFiles {
		if f.Path == file.Path {
			return false, nil
		}
	}
	m.contextFiles = append(m.contextFiles, file)
	return true, nil
}

func (m *mockProject) DropContextFile(path string) {
	for i, f := range m.contextFiles {
		if f.Path == path {
			m.contextFiles = append(m.contextFiles[:i], m.contextFiles[i+1:]...)
			return
		}
	}
}

func (m *mockProject) ContextMessages() []*genai.Content      { return nil }
func (m *mockProject) RepoMap() string                        { return "" }
func (m *mockProject) AddToolMessage(msg project.ToolMessage) {}
func (m *mockProject) ProcessResponseMessage(msg project.ResponseMessage) string {
	return msg.ID
}

func (m *mockProject) AskQuestion(ctx context.Context, q project.Question) (project.Answer, error) {
	m.questions = append(m.questions, q)
	return m.answer, m.askErr
}

func (m *mockProject) AddLogMessage(level, text string) {
	m.logLevels = append(m.logLevels, level)
}

func (m *mockProject) SendPrompt(ctx context.Context, prompt string, clearContext bool) ([]project.PromptResponse, error) {
	m.sentPrompts = append(m.sentPrompts, prompt)
	return m.responses, m.sendErr
}

func (m *mockProject) TotalCost() float64   { return 0 }
func (m *mockProject) AddCost(cost float64) {}

func TestGetContextFiles(t *testing.T) {
	p := &mockProject{
		contextFiles: []project.ContextFile{
			{Path: "main.go"},
			{Path: "docs/spec.txt", ReadOnly: true},
		},
	}
	tool := NewGetContextFilesTool(p)

	res, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "main.go", entries[0]["path"])
	assert.Equal(t, true, entries[1]["readOnly"])
}

func TestAddContextFileExisting(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main")
	p := &mockProject{baseDir: dir}
	tool := NewAddContextFileTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"path": "main.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Added file: main.go", res.Content)
	// No question asked for a file that already exists
	assert.Empty(t, p.questions)
}

func TestAddContextFileDuplicate(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main")
	p := &mockProject{
		baseDir:      dir,
		contextFiles: []project.ContextFile{{Path: "main.go"}},
	}
	tool := NewAddContextFileTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"path": "main.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Not added - file 'main.go' was already in the context.", res.Content)
}

func TestAddContextFileCreateOnApproval(t *testing.T) {
	dir := t.TempDir()
	p := &mockProject{baseDir: dir, answer: project.Answer{Answer: "y"}}
	tool := NewAddContextFileTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"path": "new/file.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Added file: new/file.go", res.Content)

	require.Len(t, p.questions, 1)
	assert.Equal(t, "File 'new/file.go' does not exist. Create it?", p.questions[0].Text)
	assert.FileExists(t, filepath.Join(dir, "new", "file.go"))
}

func TestAddContextFileDeclineCreate(t *testing.T) {
	dir := t.TempDir()
	p := &mockProject{baseDir: dir, answer: project.Answer{Answer: "n"}}
	tool := NewAddContextFileTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"path": "ghost.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "File 'ghost.go' does not exist and was not created.", res.Content)

	_, statErr := os.Stat(filepath.Join(dir, "ghost.go"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, p.contextFiles)
}

func TestDropContextFile(t *testing.T) {
	p := &mockProject{contextFiles: []project.ContextFile{{Path: "main.go"}}}
	tool := NewDropContextFileTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"path": "main.go"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Dropped file: main.go", res.Content)
	assert.Empty(t, p.contextFiles)
}

func TestRunPromptCollectsResponses(t *testing.T) {
	p := &mockProject{
		responses: []project.PromptResponse{
			{Content: "Changed handler.", EditedFiles: []string{"handler.go", "main.go"}},
			{Content: "Updated tests.", EditedFiles: []string{"handler.go"}},
		},
	}
	tool := NewRunPromptTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"prompt": "fix the handler"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "Changed handler.")
	assert.Contains(t, res.Content, "Updated tests.")

	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	// Edited files are deduplicated across responses
	assert.Equal(t, []string{"handler.go", "main.go"}, data["edited_files"])

	assert.Equal(t, []string{"fix the handler"}, p.sentPrompts)
	assert.Equal(t, []string{"loading"}, p.logLevels)
}

func TestRunPromptError(t *testing.T) {
	p := &mockProject{sendErr: errors.New("subprocess unavailable")}
	tool := NewRunPromptTool(p)

	res, err := tool.Execute(context.Background(), map[string]any{"prompt": "do it"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "subprocess unavailable")
}

func TestRunPromptApprovalPrompt(t *testing.T) {
	tool := NewRunPromptTool(&mockProject{})

	text, subject := tool.ApprovalPrompt(map[string]any{"prompt": "refactor everything"})
	assert.Equal(t, "Approve prompt to run in Aider?", text)
	assert.Equal(t, "refactor everything", subject)
}
