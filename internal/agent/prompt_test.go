package agent

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"

	"deskagent/internal/project"
)

func TestSystemPromptDefaultRole(t *testing.T) {
	p := newTestProject(t)
	a := NewPromptAssembler(p)

	got := a.SystemPrompt(&p.settings.Agent)
	assert.Contains(t, got, "highly skilled software engineer")
	assert.Contains(t, got, "# System Information")
	assert.Contains(t, got, "Operating System: "+runtime.GOOS)
	assert.Contains(t, got, "Current Working Directory: "+p.baseDir)
	assert.NotContains(t, got, "## Custom User Instructions")
}

func TestSystemPromptOverridesAndInstructions(t *testing.T) {
	p := newTestProject(t)
	p.settings.Agent.SystemPrompt = "You are a terse reviewer."
	p.settings.Agent.CustomInstructions = "Always answer in French."
	a := NewPromptAssembler(p)

	got := a.SystemPrompt(&p.settings.Agent)
	assert.Contains(t, got, "You are a terse reviewer.")
	assert.NotContains(t, got, "highly skilled software engineer")
	assert.Contains(t, got, "## Custom User Instructions\n\nAlways answer in French.")
}

func TestMessagesEndsWithPrompt(t *testing.T) {
	p := newTestProject(t)
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "fix the bug")
	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, genai.RoleUser, last.Role)
	assert.Equal(t, "fix the bug", last.Parts[0].Text)
}

func TestMessagesContextFilePairs(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.baseDir, "ref.go"), []byte("package ref"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(p.baseDir, "main.go"), []byte("package main"), 0644))
	p.contextFiles = []project.ContextFile{
		{Path: "ref.go", ReadOnly: true},
		{Path: "main.go"},
	}
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "go")
	require.Len(t, messages, 5)

	assert.Contains(t, messages[0].Parts[0].Text, "READ ONLY files")
	assert.Contains(t, messages[0].Parts[0].Text, "File: ref.go\n```\npackage ref\n```\n\n")
	assert.Equal(t, genai.RoleModel, messages[1].Role)
	assert.Equal(t, readOnlyFilesAck, messages[1].Parts[0].Text)

	assert.Contains(t, messages[2].Parts[0].Text, "can be edited")
	assert.Contains(t, messages[2].Parts[0].Text, "File: main.go")
	assert.Equal(t, editableFilesAck, messages[3].Parts[0].Text)
}

func TestMessagesSkipsBinaryAndMissingFiles(t *testing.T) {
	p := newTestProject(t)
	p.contextFiles = []project.ContextFile{
		{Path: "logo.png"},
		{Path: "ghost.go"},
	}
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "go")
	// Only the prompt itself survives
	require.Len(t, messages, 1)
}

func TestMessagesContextFilesDisabled(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.baseDir, "main.go"), []byte("package main"), 0644))
	p.contextFiles = []project.ContextFile{{Path: "main.go"}}
	p.settings.Agent.IncludeContextFiles = false
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "go")
	require.Len(t, messages, 1)
}

func TestMessagesRepoMapPair(t *testing.T) {
	p := newTestProject(t)
	p.repoMap = "main.go:\n  func main"
	p.settings.Agent.IncludeRepoMap = true
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "go")
	require.Len(t, messages, 3)
	assert.Equal(t, repoMapPrefix+p.repoMap, messages[0].Parts[0].Text)
	assert.Equal(t, repoMapAck, messages[1].Parts[0].Text)

	// An empty repo map suppresses the pair even when enabled
	p.repoMap = ""
	messages = a.Messages(&p.settings.Agent, "go")
	require.Len(t, messages, 1)
}

func TestMessagesIncludeHistory(t *testing.T) {
	p := newTestProject(t)
	p.history = []*genai.Content{
		userText("earlier question"),
		modelText("earlier answer"),
	}
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "follow up")
	require.Len(t, messages, 3)
	assert.Equal(t, "earlier question", messages[0].Parts[0].Text)
	assert.Equal(t, "earlier answer", messages[1].Parts[0].Text)
}

func TestMessagesRepoMapPrecedesHistory(t *testing.T) {
	p := newTestProject(t)
	p.repoMap = "main.go:\n  func main"
	p.settings.Agent.IncludeRepoMap = true
	p.history = []*genai.Content{
		userText("earlier question"),
		modelText("earlier answer"),
	}
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "follow up")
	require.Len(t, messages, 5)
	assert.Equal(t, repoMapPrefix+p.repoMap, messages[0].Parts[0].Text)
	assert.Equal(t, repoMapAck, messages[1].Parts[0].Text)
	assert.Equal(t, "earlier question", messages[2].Parts[0].Text)
	assert.Equal(t, "earlier answer", messages[3].Parts[0].Text)
	assert.Equal(t, "follow up", messages[4].Parts[0].Text)
}

func TestMessagesLabelAbsolutePathsRelative(t *testing.T) {
	p := newTestProject(t)
	abs := filepath.Join(p.baseDir, "pkg", "util.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte("package util"), 0644))
	p.contextFiles = []project.ContextFile{{Path: abs}}
	a := NewPromptAssembler(p)

	messages := a.Messages(&p.settings.Agent, "go")
	require.Len(t, messages, 3)
	assert.Contains(t, messages[0].Parts[0].Text, "File: "+filepath.Join("pkg", "util.go")+"\n")
	assert.NotContains(t, messages[0].Parts[0].Text, "File: "+abs)
}
