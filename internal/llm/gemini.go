package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

// geminiModel serves both the Gemini API (key auth) and the Vertex
// backend (project and location with ambient credentials).
type geminiModel struct {
	client            *genai.Client
	model             string
	genConfig         *genai.GenerateContentConfig
	tools             []*genai.Tool
	systemInstruction string
	maxRetries        int
	retryDelay        time.Duration
}

func newGeminiModel(ctx context.Context, p config.ProviderConfig, opts Options) (Model, error) {
	clientConfig := &genai.ClientConfig{}
	switch p.Kind {
	case config.ProviderVertex:
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = p.Project
		clientConfig.Location = p.Location
	default:
		clientConfig.Backend = genai.BackendGeminiAPI
		clientConfig.APIKey = p.APIKey
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &geminiModel{
		client: client,
		model:  p.Model,
		genConfig: &genai.GenerateContentConfig{
			Temperature:     Ptr(float32(0)),
			MaxOutputTokens: opts.MaxTokens,
		},
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (m *geminiModel) ModelID() string { return m.model }

func (m *geminiModel) Family() Family { return FamilyGemini }

func (m *geminiModel) SetTools(tools []*genai.Tool) { m.tools = tools }

func (m *geminiModel) SetSystemInstruction(instruction string) {
	m.systemInstruction = instruction
}

func (m *geminiModel) Close() error {
	// The genai client has no explicit close.
	return nil
}

// sanitizeContents drops empty parts so every content sent to the API
// has at least one of text, function call, or function response.
func sanitizeContents(contents []*genai.Content) []*genai.Content {
	var result []*genai.Content
	for _, content := range contents {
		if content == nil {
			continue
		}
		var validParts []*genai.Part
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil || part.FunctionResponse != nil || part.Text != "" || part.InlineData != nil {
				validParts = append(validParts, part)
			}
		}
		if len(validParts) == 0 {
			validParts = []*genai.Part{genai.NewPartFromText(" ")}
		}
		result = append(result, &genai.Content{Role: content.Role, Parts: validParts})
	}
	if len(result) == 0 {
		result = []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(" ")},
		}}
	}
	return result
}

func (m *geminiModel) StreamChat(ctx context.Context, history []*genai.Content) (*StreamingResponse, error) {
	contents := sanitizeContents(history)

	var lastErr error
	maxDelay := 30 * time.Second
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(m.retryDelay, attempt-1, maxDelay)
			logging.Info("retrying Gemini request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := m.doStream(ctx, contents)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		logging.Warn("Gemini request failed, will retry", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", m.maxRetries, lastErr)
}

func (m *geminiModel) doStream(ctx context.Context, contents []*genai.Content) (*StreamingResponse, error) {
	cfg := *m.genConfig
	if m.systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(m.systemInstruction, genai.RoleUser)
	}
	if len(m.tools) > 0 {
		cfg.Tools = m.tools
	}

	iter := m.client.Models.GenerateContentStream(ctx, m.model, contents, &cfg)

	chunks := make(chan ResponseChunk, 10)
	go func() {
		defer close(chunks)
		for resp, err := range iter {
			if ctx.Err() != nil {
				select {
				case chunks <- ResponseChunk{Error: ctx.Err(), Done: true}:
				default:
				}
				return
			}
			if err != nil {
				select {
				case chunks <- ResponseChunk{Error: err, Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if resp == nil {
				return
			}

			chunk := convertGeminiResponse(resp)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return &StreamingResponse{Chunks: chunks}, nil
}

// convertGeminiResponse converts one streamed response to a chunk.
func convertGeminiResponse(resp *genai.GenerateContentResponse) ResponseChunk {
	chunk := ResponseChunk{}

	if resp.UsageMetadata != nil {
		chunk.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		chunk.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		chunk.Done = true
		return chunk
	}

	candidate := resp.Candidates[0]
	chunk.FinishReason = candidate.FinishReason

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				chunk.Reasoning += part.Text
				continue
			}
			if part.Text != "" {
				chunk.Text += part.Text
			}
			if part.FunctionCall != nil {
				chunk.FunctionCalls = append(chunk.FunctionCalls, part.FunctionCall)
			}
		}
	}

	if candidate.FinishReason != "" {
		chunk.Done = true
	}
	return chunk
}

func (m *geminiModel) CountTokens(ctx context.Context, contents []*genai.Content) (int32, error) {
	resp, err := m.client.Models.CountTokens(ctx, m.model, sanitizeContents(contents), nil)
	if err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}
