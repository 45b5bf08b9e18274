package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

// ollamaModel implements Model for local or remote Ollama servers.
type ollamaModel struct {
	client            *api.Client
	model             string
	maxTokens         int32
	tools             []*genai.Tool
	systemInstruction string
	maxRetries        int
	retryDelay        time.Duration
	mu                sync.RWMutex
}

// authTransport adds an Authorization header for remote servers.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

func newOllamaModel(p config.ProviderConfig, opts Options) (Model, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	if p.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: p.APIKey}
	}

	return &ollamaModel{
		client:     api.NewClient(parsed, httpClient),
		model:      p.Model,
		maxTokens:  opts.MaxTokens,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (m *ollamaModel) ModelID() string { return m.model }

func (m *ollamaModel) Family() Family { return FamilyOllama }

func (m *ollamaModel) SetTools(tools []*genai.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
}

func (m *ollamaModel) SetSystemInstruction(instruction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemInstruction = instruction
}

func (m *ollamaModel) Close() error { return nil }

func (m *ollamaModel) CountTokens(_ context.Context, contents []*genai.Content) (int32, error) {
	return EstimateTokens(contents), nil
}

func (m *ollamaModel) StreamChat(ctx context.Context, history []*genai.Content) (*StreamingResponse, error) {
	m.mu.RLock()
	req := &api.ChatRequest{
		Model:    m.model,
		Messages: convertHistoryToOllama(history, m.systemInstruction),
		Stream:   Ptr(true),
		Options: map[string]any{
			"num_predict": m.maxTokens,
			"temperature": 0,
		},
	}
	if len(m.tools) > 0 {
		req.Tools = convertToolsToOllama(m.tools)
	}
	m.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(m.retryDelay, attempt-1, 30*time.Second)
			logging.Info("retrying Ollama request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := m.doStream(ctx, req)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !m.isRetryable(err) {
			return nil, m.wrapError(err)
		}
		logging.Warn("Ollama request failed, will retry", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", m.maxRetries, m.wrapError(lastErr))
}

func (m *ollamaModel) doStream(ctx context.Context, req *api.ChatRequest) (*StreamingResponse, error) {
	chunks := make(chan ResponseChunk, 10)
	go func() {
		defer close(chunks)

		err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunk := ResponseChunk{Text: resp.Message.Content}
			for i, tc := range resp.Message.ToolCalls {
				chunk.FunctionCalls = append(chunk.FunctionCalls, toolCallToGenai(tc, i))
			}
			if resp.Done {
				chunk.Done = true
				chunk.FinishReason = genai.FinishReasonStop
				chunk.InputTokens = resp.PromptEvalCount
				chunk.OutputTokens = resp.EvalCount
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			select {
			case chunks <- ResponseChunk{Error: m.wrapError(err), Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return &StreamingResponse{Chunks: chunks}, nil
}

func (m *ollamaModel) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return IsRetryable(err)
}

// wrapError turns common failures into messages a user can act on.
func (m *ollamaModel) wrapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") {
		return fmt.Errorf("Ollama server is not running (start it with: ollama serve): %w", err)
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return fmt.Errorf("model %q is not installed (pull it with: ollama pull %s): %w", m.model, m.model, err)
	}
	if strings.Contains(errStr, "model") && strings.Contains(errStr, "not found") {
		return fmt.Errorf("model %q is not installed (pull it with: ollama pull %s): %w", m.model, m.model, err)
	}
	return err
}

func convertHistoryToOllama(history []*genai.Content, systemInstruction string) []api.Message {
	messages := make([]api.Message, 0, len(history)+1)
	if systemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemInstruction})
	}

	for _, content := range history {
		var role string
		switch content.Role {
		case genai.RoleUser:
			role = "user"
		case genai.RoleModel:
			role = "assistant"
		default:
			role = string(content.Role)
		}

		var textParts []string
		var toolCalls []api.ToolCall
		var toolResults []api.Message
		for _, part := range content.Parts {
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, toolCallFromGenai(part.FunctionCall))
			}
			if part.FunctionResponse != nil {
				toolResults = append(toolResults, api.Message{
					Role:       "tool",
					Content:    functionResponseText(part.FunctionResponse.Response),
					ToolName:   part.FunctionResponse.Name,
					ToolCallID: part.FunctionResponse.ID,
				})
			}
		}

		if len(textParts) > 0 || len(toolCalls) > 0 {
			messages = append(messages, api.Message{
				Role:      role,
				Content:   strings.Join(textParts, "\n"),
				ToolCalls: toolCalls,
			})
		}
		messages = append(messages, toolResults...)
	}
	return messages
}

func toolCallToGenai(tc api.ToolCall, index int) *genai.FunctionCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
		if tc.Function.Index > 0 {
			id = fmt.Sprintf("call_%d", tc.Function.Index)
		}
	}
	return &genai.FunctionCall{
		ID:   id,
		Name: tc.Function.Name,
		Args: tc.Function.Arguments.ToMap(),
	}
}

func toolCallFromGenai(fc *genai.FunctionCall) api.ToolCall {
	args := api.NewToolCallFunctionArguments()
	for k, v := range fc.Args {
		args.Set(k, v)
	}
	return api.ToolCall{
		ID: fc.ID,
		Function: api.ToolCallFunction{
			Name:      fc.Name,
			Arguments: args,
		},
	}
}

func convertToolsToOllama(tools []*genai.Tool) []api.Tool {
	out := make([]api.Tool, 0)
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			params := api.ToolFunctionParameters{
				Type:       "object",
				Properties: api.NewToolPropertiesMap(),
			}
			if decl.Parameters != nil {
				params.Required = decl.Parameters.Required
				for name, propSchema := range decl.Parameters.Properties {
					prop := api.ToolProperty{Description: propSchema.Description}
					if propSchema.Type != "" {
						prop.Type = api.PropertyType{strings.ToLower(string(propSchema.Type))}
					}
					if len(propSchema.Enum) > 0 {
						enumVals := make([]any, len(propSchema.Enum))
						for i, v := range propSchema.Enum {
							enumVals[i] = v
						}
						prop.Enum = enumVals
					}
					params.Properties.Set(name, prop)
				}
			}
			out = append(out, api.Tool{
				Type: "function",
				Function: api.ToolFunction{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  params,
				},
			})
		}
	}
	return out
}
