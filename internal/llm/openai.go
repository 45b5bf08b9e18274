package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

// openaiModel implements Model for chat-completions compatible servers.
// The base URL points at the API root, for example
// https://openrouter.ai/api/v1.
type openaiModel struct {
	apiKey            string
	baseURL           string
	model             string
	maxTokens         int32
	httpClient        *http.Client
	tools             []*genai.Tool
	systemInstruction string
	maxRetries        int
	retryDelay        time.Duration
	mu                sync.RWMutex
}

func newOpenAIModel(p config.ProviderConfig, opts Options) (Model, error) {
	baseURL := strings.TrimSuffix(p.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL %q: must start with http:// or https://", p.BaseURL)
	}
	return &openaiModel{
		apiKey:     p.APIKey,
		baseURL:    baseURL,
		model:      p.Model,
		maxTokens:  opts.MaxTokens,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (m *openaiModel) ModelID() string { return m.model }

func (m *openaiModel) Family() Family { return FamilyOpenAI }

func (m *openaiModel) SetTools(tools []*genai.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
}

func (m *openaiModel) SetSystemInstruction(instruction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemInstruction = instruction
}

func (m *openaiModel) Close() error {
	if transport, ok := m.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

func (m *openaiModel) CountTokens(_ context.Context, contents []*genai.Content) (int32, error) {
	return EstimateTokens(contents), nil
}

func (m *openaiModel) StreamChat(ctx context.Context, history []*genai.Content) (*StreamingResponse, error) {
	m.mu.RLock()
	requestBody := map[string]any{
		"model":          m.model,
		"messages":       convertHistoryToOpenAI(history, m.systemInstruction),
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
		"temperature":    0,
		"max_tokens":     m.maxTokens,
	}
	if len(m.tools) > 0 {
		requestBody["tools"] = convertToolsToOpenAI(m.tools)
	}
	m.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(m.retryDelay, attempt-1, 30*time.Second)
			logging.Info("retrying request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := m.doStream(ctx, requestBody)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		logging.Warn("request failed, will retry", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", m.maxRetries, lastErr)
}

func (m *openaiModel) doStream(ctx context.Context, requestBody map[string]any) (*StreamingResponse, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}
		resp.Body.Close()
		logging.Warn("openai-compatible API error", "status", resp.StatusCode, "body", string(body))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	chunks := make(chan ResponseChunk, 10)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		acc := newOpenAIAccumulator()

		for scanner.Scan() {
			if ctx.Err() != nil {
				chunks <- ResponseChunk{Error: ctx.Err(), Done: true}
				return
			}
			line := scanner.Text()
			data, found := strings.CutPrefix(line, "data: ")
			if !found {
				data, found = strings.CutPrefix(line, "data:")
			}
			if !found {
				continue
			}
			if data == "[DONE]" {
				final := ResponseChunk{
					FunctionCalls: acc.finish(),
					Done:          true,
					FinishReason:  acc.finishReason,
					InputTokens:   acc.inputTokens,
					OutputTokens:  acc.outputTokens,
				}
				chunks <- final
				return
			}

			var event openaiStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				logging.Warn("failed to parse SSE event", "error", err)
				continue
			}
			if event.Error != nil {
				chunks <- ResponseChunk{
					Error: fmt.Errorf("API error: %s", event.Error.Message),
					Done:  true,
				}
				return
			}

			chunk := acc.consume(&event)
			if chunk.Text != "" || chunk.Reasoning != "" {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case chunks <- ResponseChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
			return
		}
		// Stream ended without a [DONE] marker; flush what we have.
		chunks <- ResponseChunk{
			FunctionCalls: acc.finish(),
			Done:          true,
			FinishReason:  acc.finishReason,
			InputTokens:   acc.inputTokens,
			OutputTokens:  acc.outputTokens,
		}
	}()

	return &StreamingResponse{Chunks: chunks}, nil
}

type openaiStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// openaiAccumulator assembles tool calls streamed as indexed argument
// fragments.
type openaiAccumulator struct {
	calls        map[int]*openaiToolCall
	finishReason genai.FinishReason
	inputTokens  int
	outputTokens int
}

type openaiToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newOpenAIAccumulator() *openaiAccumulator {
	return &openaiAccumulator{calls: make(map[int]*openaiToolCall)}
}

func (a *openaiAccumulator) consume(event *openaiStreamEvent) ResponseChunk {
	chunk := ResponseChunk{}
	if event.Usage != nil {
		a.inputTokens = event.Usage.PromptTokens
		a.outputTokens = event.Usage.CompletionTokens
	}
	if len(event.Choices) == 0 {
		return chunk
	}
	choice := event.Choices[0]
	chunk.Text = choice.Delta.Content
	chunk.Reasoning = choice.Delta.ReasoningContent

	for _, tc := range choice.Delta.ToolCalls {
		call := a.calls[tc.Index]
		if call == nil {
			call = &openaiToolCall{}
			a.calls[tc.Index] = call
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		call.args.WriteString(tc.Function.Arguments)
	}

	switch choice.FinishReason {
	case "":
	case "length":
		a.finishReason = genai.FinishReasonMaxTokens
	default:
		a.finishReason = genai.FinishReasonStop
	}
	return chunk
}

func (a *openaiAccumulator) finish() []*genai.FunctionCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]*genai.FunctionCall, 0, len(indexes))
	for _, i := range indexes {
		call := a.calls[i]
		args := map[string]any{}
		if raw := call.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				logging.Error("tool args JSON unmarshal failed", "error", err, "tool", call.name)
				args = map[string]any{}
			}
		}
		id := call.id
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out = append(out, &genai.FunctionCall{ID: id, Name: call.name, Args: args})
	}
	return out
}

func convertHistoryToOpenAI(history []*genai.Content, systemInstruction string) []map[string]any {
	messages := make([]map[string]any, 0, len(history)+1)
	if systemInstruction != "" {
		messages = append(messages, map[string]any{"role": "system", "content": systemInstruction})
	}

	for _, content := range history {
		switch content.Role {
		case genai.RoleModel:
			msg := map[string]any{"role": "assistant"}
			var textParts []string
			var toolCalls []map[string]any
			for _, part := range content.Parts {
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
				if part.FunctionCall != nil {
					argsJSON, _ := json.Marshal(part.FunctionCall.Args)
					toolCalls = append(toolCalls, map[string]any{
						"id":   part.FunctionCall.ID,
						"type": "function",
						"function": map[string]any{
							"name":      part.FunctionCall.Name,
							"arguments": string(argsJSON),
						},
					})
				}
			}
			msg["content"] = strings.Join(textParts, "\n")
			if len(toolCalls) > 0 {
				msg["tool_calls"] = toolCalls
			}
			messages = append(messages, msg)

		case genai.RoleUser:
			var textParts []string
			for _, part := range content.Parts {
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
				// Tool results become dedicated tool-role messages.
				if part.FunctionResponse != nil {
					callID := part.FunctionResponse.ID
					if callID == "" {
						callID = part.FunctionResponse.Name
					}
					messages = append(messages, map[string]any{
						"role":         "tool",
						"tool_call_id": callID,
						"content":      functionResponseText(part.FunctionResponse.Response),
					})
				}
			}
			if len(textParts) > 0 {
				messages = append(messages, map[string]any{
					"role":    "user",
					"content": strings.Join(textParts, "\n"),
				})
			}
		}
	}
	return messages
}

func convertToolsToOpenAI(tools []*genai.Tool) []map[string]any {
	out := make([]map[string]any, 0)
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			out = append(out, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        decl.Name,
					"description": decl.Description,
					"parameters":  schemaToJSON(decl.Parameters),
				},
			})
		}
	}
	return out
}
