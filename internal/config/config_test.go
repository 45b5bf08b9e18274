package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, s.Agent.MaxIterations)
	assert.True(t, s.Agent.UseAiderTools)
	assert.True(t, s.Agent.UsePowerTools)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	s := DefaultSettings()
	s.Providers["main"] = ProviderConfig{
		Kind:   ProviderGemini,
		Model:  "gemini-2.0-flash",
		APIKey: "k-123",
	}
	s.Agent.ActiveProvider = "main"
	s.Agent.MinTimeBetweenToolCalls = 2 * time.Second
	s.Agent.ToolApprovals = map[string]Approval{
		"power---bash": ApprovalAsk,
		"power---glob": ApprovalAlways,
	}
	s.MCPServers["files"] = MCPServerConfig{
		Command: "mcp-files",
		Args:    []string{"--root", "${projectDir}"},
	}
	require.NoError(t, s.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, s.Providers, loaded.Providers)
	assert.Equal(t, s.Agent, loaded.Agent)
	assert.Equal(t, s.MCPServers, loaded.MCPServers)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DESKAGENT_TEST_KEY", "secret-from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
providers:
  main:
    kind: anthropic
    model: claude-sonnet-4-5
    api_key: ${DESKAGENT_TEST_KEY}
agent:
  active_provider: main
  max_iterations: 5
  max_tokens: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	s, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", s.Providers["main"].APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	s := DefaultSettings()
	s.Agent.MaxIterations = 0
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.Agent.ActiveProvider = "ghost"
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.Agent.ToolApprovals = map[string]Approval{"power---bash": "sometimes"}
	assert.Error(t, s.Validate())
}

func TestApprovalForDefaultsToAlways(t *testing.T) {
	a := AgentConfig{ToolApprovals: map[string]Approval{"power---bash": ApprovalAsk}}
	assert.Equal(t, ApprovalAsk, a.ApprovalFor("power---bash"))
	assert.Equal(t, ApprovalAlways, a.ApprovalFor("power---glob"))
}

func TestDisabledLookups(t *testing.T) {
	a := AgentConfig{
		DisabledServers: []string{"files"},
		DisabledTools:   []string{"files---delete"},
	}
	assert.True(t, a.IsServerDisabled("files"))
	assert.False(t, a.IsServerDisabled("web"))
	assert.True(t, a.IsToolDisabled("files---delete"))
	assert.False(t, a.IsToolDisabled("files---read"))
}
