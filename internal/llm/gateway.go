package llm

import (
	"context"
	"fmt"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

// Options carries the run-level generation settings applied to every
// model the gateway creates. Temperature is intentionally not an option
// and is pinned to zero for deterministic tool use.
type Options struct {
	MaxTokens int32
}

// NewModel builds a model handle for the given provider config. The
// switch over provider kinds is exhaustive; an unknown kind is an error,
// never a silent default.
func NewModel(ctx context.Context, p config.ProviderConfig, opts Options) (Model, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	if p.Model == "" {
		return nil, fmt.Errorf("model name is required for %s provider", p.Kind)
	}

	logging.Debug("creating model", "kind", p.Kind, "model", p.Model)

	switch p.Kind {
	case config.ProviderGemini:
		if p.APIKey == "" {
			return nil, fmt.Errorf("Gemini API key is required in settings or GEMINI_API_KEY environment variable")
		}
		return newGeminiModel(ctx, p, opts)

	case config.ProviderVertex:
		if p.Project == "" {
			return nil, fmt.Errorf("Google Cloud project is required for Vertex provider")
		}
		if p.Location == "" {
			return nil, fmt.Errorf("Google Cloud location is required for Vertex provider")
		}
		// Credentials resolve through the ambient Google credential chain.
		return newGeminiModel(ctx, p, opts)

	case config.ProviderAnthropic:
		if p.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is required in settings or ANTHROPIC_API_KEY environment variable")
		}
		return newAnthropicModel(p, opts)

	case config.ProviderDeepseek:
		if p.APIKey == "" {
			return nil, fmt.Errorf("DeepSeek API key is required in settings or DEEPSEEK_API_KEY environment variable")
		}
		return newAnthropicModel(p, opts)

	case config.ProviderOpenAICompatible:
		if p.BaseURL == "" {
			return nil, fmt.Errorf("Base URL is required for OpenAI-compatible provider")
		}
		if p.APIKey == "" {
			return nil, fmt.Errorf("API key is required for OpenAI-compatible provider")
		}
		return newOpenAIModel(p, opts)

	case config.ProviderOllama:
		return newOllamaModel(p, opts)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", p.Kind)
	}
}

// FamilyOf maps a provider kind to its schema dialect family without
// building a model.
func FamilyOf(kind config.ProviderKind) Family {
	switch kind {
	case config.ProviderGemini, config.ProviderVertex:
		return FamilyGemini
	case config.ProviderAnthropic, config.ProviderDeepseek:
		return FamilyAnthropic
	case config.ProviderOllama:
		return FamilyOllama
	default:
		return FamilyOpenAI
	}
}
