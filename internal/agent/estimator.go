package agent

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/llm"
	"deskagent/internal/logging"
	"deskagent/internal/project"
	"deskagent/internal/tools"
)

// TokenEstimator sizes the message budget a run would consume before
// starting it. Estimates never fail; when counting is impossible the
// estimate is 0.
type TokenEstimator struct {
	project project.Project
}

// NewTokenEstimator creates an estimator bound to a project.
func NewTokenEstimator(p project.Project) *TokenEstimator {
	return &TokenEstimator{project: p}
}

// Estimate counts the tokens of the exact content a run with this
// prompt would send: system prompt, assembled messages, and the tool
// declarations rendered as a synthetic message. Falls back to a
// character heuristic when the provider cannot count, and to 0 when
// nothing can be assembled.
func (e *TokenEstimator) Estimate(ctx context.Context, model llm.Model, registry *tools.Registry, agentCfg *config.AgentConfig, prompt string) int {
	assembler := NewPromptAssembler(e.project)

	contents := []*genai.Content{
		userText(assembler.SystemPrompt(agentCfg)),
	}
	contents = append(contents, assembler.Messages(agentCfg, prompt)...)

	if descriptor := toolsDescriptor(registry); descriptor != "" {
		contents = append(contents, userText(descriptor))
	}

	if model != nil {
		count, err := model.CountTokens(ctx, contents)
		if err == nil {
			return int(count)
		}
		logging.Debug("provider token count failed, falling back to estimate", "error", err)
	}

	return heuristicTokens(contents)
}

// toolsDescriptor renders the declarations into one text block, since
// counting endpoints take messages, not tool schemas.
func toolsDescriptor(registry *tools.Registry) string {
	if registry == nil {
		return ""
	}

	var b strings.Builder
	for _, decl := range registry.Declarations() {
		b.WriteString(decl.Name)
		b.WriteString(": ")
		b.WriteString(decl.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// heuristicTokens approximates four characters per token.
func heuristicTokens(contents []*genai.Content) int {
	chars := 0
	for _, content := range contents {
		if content == nil {
			continue
		}
		for _, part := range content.Parts {
			if part != nil {
				chars += len(part.Text)
			}
		}
	}
	return chars / 4
}
