package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	name  string
	group string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Group() string       { return s.group }
func (s *stubTool) Description() string { return "stub" }

func (s *stubTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: Qualify(s.group, s.name), Description: "stub"}
}

func (s *stubTool) Validate(args map[string]any) error { return nil }

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	return NewSuccessResult("ok"), nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "file_read", group: PowerGroup})

	tool, ok := r.Get("power---file_read")
	require.True(t, ok)
	assert.Equal(t, "file_read", tool.Name())

	_, ok = r.Get("power---missing")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	first := &stubTool{name: "bash", group: PowerGroup}
	second := &stubTool{name: "bash", group: PowerGroup}
	r.Register(first)
	r.Register(second)

	tool, ok := r.Get("power---bash")
	require.True(t, ok)
	assert.Same(t, second, tool.(*stubTool))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryResolveSuffix(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "file_read", group: PowerGroup})
	r.Register(&stubTool{name: "run_prompt", group: AiderGroup})

	qualified, ok := r.ResolveSuffix("run_prompt")
	require.True(t, ok)
	assert.Equal(t, "aider---run_prompt", qualified)

	_, ok = r.ResolveSuffix("nonexistent")
	assert.False(t, ok)
}

func TestRegistryVisibleNamesExcludesHelpers(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "file_read", group: PowerGroup})
	r.Register(&stubTool{name: "no_such_tool", group: HelpersGroup})
	r.Register(&stubTool{name: "add_context_file", group: AiderGroup})

	visible := r.VisibleNames()
	assert.Equal(t, []string{"aider---add_context_file", "power---file_read"}, visible)

	all := r.Names()
	assert.Len(t, all, 3)
}

func TestRegistryDeclarationsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "grep", group: PowerGroup})
	r.Register(&stubTool{name: "bash", group: PowerGroup})
	r.Register(&stubTool{name: "run_prompt", group: AiderGroup})

	decls := r.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "aider---run_prompt", decls[0].Name)
	assert.Equal(t, "power---bash", decls[1].Name)
	assert.Equal(t, "power---grep", decls[2].Name)
}

func TestRegistryGenaiTools(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.GenaiTools())

	r.Register(&stubTool{name: "glob", group: PowerGroup})
	bundles := r.GenaiTools()
	require.Len(t, bundles, 1)
	assert.Len(t, bundles[0].FunctionDeclarations, 1)
}
