package config

import (
	"fmt"
	"time"
)

// Approval is the stored approval policy for a qualified tool name.
type Approval string

const (
	ApprovalAlways Approval = "always"
	ApprovalNever  Approval = "never"
	ApprovalAsk    Approval = "ask"
)

// ProviderKind identifies a supported model provider.
type ProviderKind string

const (
	ProviderGemini           ProviderKind = "gemini"
	ProviderVertex           ProviderKind = "vertex"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderDeepseek         ProviderKind = "deepseek"
	ProviderOpenAICompatible ProviderKind = "openai-compatible"
	ProviderOllama           ProviderKind = "ollama"
)

// ProviderConfig holds the connection settings for one provider.
// Which fields are mandatory depends on the kind; llm.NewModel validates.
type ProviderConfig struct {
	Kind    ProviderKind `yaml:"kind"`
	Model   string       `yaml:"model"`
	APIKey  string       `yaml:"api_key,omitempty"`
	BaseURL string       `yaml:"base_url,omitempty"`

	// Vertex only. Credentials come from the ambient Google credential
	// chain, never from the config file.
	Project  string `yaml:"project,omitempty"`
	Location string `yaml:"location,omitempty"`
}

// MCPServerConfig holds the launch settings for a single MCP server.
// String fields support ${projectDir} interpolation at connect time.
type MCPServerConfig struct {
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// AgentConfig holds the per-run behavior settings of the agent.
type AgentConfig struct {
	ActiveProvider string `yaml:"active_provider"`

	MaxIterations           int           `yaml:"max_iterations"`
	MaxTokens               int           `yaml:"max_tokens"`
	MinTimeBetweenToolCalls time.Duration `yaml:"min_time_between_tool_calls"`

	IncludeContextFiles bool `yaml:"include_context_files"`
	IncludeRepoMap      bool `yaml:"include_repo_map"`
	UseAiderTools       bool `yaml:"use_aider_tools"`
	UsePowerTools       bool `yaml:"use_power_tools"`

	SystemPrompt       string `yaml:"system_prompt,omitempty"`
	CustomInstructions string `yaml:"custom_instructions,omitempty"`

	// Keyed by qualified tool name (group---name).
	ToolApprovals map[string]Approval `yaml:"tool_approvals,omitempty"`

	DisabledServers []string `yaml:"disabled_servers,omitempty"`
	DisabledTools   []string `yaml:"disabled_tools,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// Settings is the root configuration document.
type Settings struct {
	Providers  map[string]ProviderConfig  `yaml:"providers"`
	Agent      AgentConfig                `yaml:"agent"`
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Logging    LoggingConfig              `yaml:"logging"`
}

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Providers: map[string]ProviderConfig{},
		Agent: AgentConfig{
			ActiveProvider:          "",
			MaxIterations:           20,
			MaxTokens:               8192,
			MinTimeBetweenToolCalls: 0,
			IncludeContextFiles:     true,
			IncludeRepoMap:          false,
			UseAiderTools:           true,
			UsePowerTools:           true,
			ToolApprovals:           map[string]Approval{},
		},
		MCPServers: map[string]MCPServerConfig{},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// Validate checks structural settings that do not depend on a provider kind.
func (s *Settings) Validate() error {
	if s.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", s.Agent.MaxIterations)
	}
	if s.Agent.MaxTokens < 1 {
		return fmt.Errorf("agent.max_tokens must be at least 1, got %d", s.Agent.MaxTokens)
	}
	if s.Agent.MinTimeBetweenToolCalls < 0 {
		return fmt.Errorf("agent.min_time_between_tool_calls must not be negative")
	}
	if s.Agent.ActiveProvider != "" {
		if _, ok := s.Providers[s.Agent.ActiveProvider]; !ok {
			return fmt.Errorf("agent.active_provider %q has no entry under providers", s.Agent.ActiveProvider)
		}
	}
	for name, a := range s.Agent.ToolApprovals {
		switch a {
		case ApprovalAlways, ApprovalNever, ApprovalAsk:
		default:
			return fmt.Errorf("tool approval for %q must be always, never or ask, got %q", name, a)
		}
	}
	return nil
}

// ActiveProvider resolves the configured active provider.
func (s *Settings) ActiveProvider() (ProviderConfig, error) {
	name := s.Agent.ActiveProvider
	if name == "" {
		return ProviderConfig{}, fmt.Errorf("no active provider configured")
	}
	p, ok := s.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("active provider %q has no entry under providers", name)
	}
	return p, nil
}

// IsServerDisabled reports whether the named MCP server is disabled.
func (a *AgentConfig) IsServerDisabled(name string) bool {
	for _, s := range a.DisabledServers {
		if s == name {
			return true
		}
	}
	return false
}

// IsToolDisabled reports whether the qualified tool name is disabled.
func (a *AgentConfig) IsToolDisabled(qualified string) bool {
	for _, t := range a.DisabledTools {
		if t == qualified {
			return true
		}
	}
	return false
}

// ApprovalFor returns the stored approval policy for a qualified tool
// name. Tools without a stored policy are approved; destructive tools
// prompt regardless through their own mandatory approval marker.
func (a *AgentConfig) ApprovalFor(qualified string) Approval {
	if v, ok := a.ToolApprovals[qualified]; ok {
		return v
	}
	return ApprovalAlways
}
