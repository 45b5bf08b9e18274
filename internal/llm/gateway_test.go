package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskagent/internal/config"
)

func TestNewModelValidatesMandatoryFields(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		wantErr string
	}{
		{
			name:    "missing model name",
			cfg:     config.ProviderConfig{Kind: config.ProviderGemini, APIKey: "k"},
			wantErr: "model name is required",
		},
		{
			name:    "gemini without key",
			cfg:     config.ProviderConfig{Kind: config.ProviderGemini, Model: "gemini-2.0-flash"},
			wantErr: "Gemini API key is required",
		},
		{
			name:    "vertex without project",
			cfg:     config.ProviderConfig{Kind: config.ProviderVertex, Model: "gemini-2.0-flash", Location: "us-central1"},
			wantErr: "project is required",
		},
		{
			name:    "vertex without location",
			cfg:     config.ProviderConfig{Kind: config.ProviderVertex, Model: "gemini-2.0-flash", Project: "p"},
			wantErr: "location is required",
		},
		{
			name:    "anthropic without key",
			cfg:     config.ProviderConfig{Kind: config.ProviderAnthropic, Model: "claude-sonnet-4-5"},
			wantErr: "Anthropic API key is required",
		},
		{
			name:    "deepseek without key",
			cfg:     config.ProviderConfig{Kind: config.ProviderDeepseek, Model: "deepseek-chat"},
			wantErr: "DeepSeek API key is required",
		},
		{
			name:    "openai-compatible without base URL",
			cfg:     config.ProviderConfig{Kind: config.ProviderOpenAICompatible, Model: "m", APIKey: "k"},
			wantErr: "Base URL is required",
		},
		{
			name:    "openai-compatible without key",
			cfg:     config.ProviderConfig{Kind: config.ProviderOpenAICompatible, Model: "m", BaseURL: "https://api.example.com/v1"},
			wantErr: "API key is required",
		},
		{
			name:    "unknown kind",
			cfg:     config.ProviderConfig{Kind: "bedrock", Model: "m"},
			wantErr: "unsupported provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(ctx, tt.cfg, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewModelBuildsCompatibleHandles(t *testing.T) {
	ctx := context.Background()

	m, err := NewModel(ctx, config.ProviderConfig{
		Kind:   config.ProviderAnthropic,
		Model:  "claude-sonnet-4-5",
		APIKey: "k",
	}, Options{MaxTokens: 4096})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", m.ModelID())
	assert.Equal(t, FamilyAnthropic, m.Family())

	m, err = NewModel(ctx, config.ProviderConfig{
		Kind:    config.ProviderOpenAICompatible,
		Model:   "glm-4.6",
		APIKey:  "k",
		BaseURL: "https://api.example.com/v1/",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenAI, m.Family())

	m, err = NewModel(ctx, config.ProviderConfig{
		Kind:  config.ProviderOllama,
		Model: "qwen2.5-coder",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FamilyOllama, m.Family())
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyGemini, FamilyOf(config.ProviderGemini))
	assert.Equal(t, FamilyGemini, FamilyOf(config.ProviderVertex))
	assert.Equal(t, FamilyAnthropic, FamilyOf(config.ProviderDeepseek))
	assert.Equal(t, FamilyOllama, FamilyOf(config.ProviderOllama))
	assert.Equal(t, FamilyOpenAI, FamilyOf(config.ProviderOpenAICompatible))
}

func TestIsCredentialError(t *testing.T) {
	assert.True(t, IsCredentialError(assertErr("invalid API key provided")))
	assert.True(t, IsCredentialError(assertErr("could not load default credentials")))
	assert.True(t, IsCredentialError(assertErr("HTTP 401 Unauthorized")))
	assert.False(t, IsCredentialError(assertErr("connection refused")))
	assert.False(t, IsCredentialError(nil))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
