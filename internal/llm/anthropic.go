package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"deskagent/internal/config"
	"deskagent/internal/logging"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	deepseekDefaultBaseURL  = "https://api.deepseek.com/anthropic"
	anthropicVersion        = "2023-06-01"
)

// anthropicModel implements Model for Anthropic and Anthropic-compatible
// message APIs (DeepSeek exposes one).
type anthropicModel struct {
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

func newAnthropicModel(p config.ProviderConfig, opts Options) (Model, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		if p.Kind == config.ProviderDeepseek {
			baseURL = deepseekDefaultBaseURL
		} else {
			baseURL = anthropicDefaultBaseURL
		}
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL %q: must start with http:// or https://", baseURL)
	}

	return &anthropicModel{
		apiKey:     p.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      p.Model,
		maxTokens:  opts.MaxTokens,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

func (m *anthropicModel) ModelID() string { return m.model }

func (m *anthropicModel) Family() Family { return FamilyAnthropic }

func (m *anthropicModel) SetTools(tools []*genai.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
}

func (m *anthropicModel) SetSystemInstruction(instruction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemInstruction = instruction
}

func (m *anthropicModel) Close() error {
	if transport, ok := m.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// CountTokens estimates tokens by character count; the compatible APIs
// have no dedicated count endpoint usable across vendors.
func (m *anthropicModel) CountTokens(_ context.Context, contents []*genai.Content) (int32, error) {
	return EstimateTokens(contents), nil
}

// EstimateTokens approximates a token count from serialized content
// length at roughly four characters per token.
func EstimateTokens(contents []*genai.Content) int32 {
	totalChars := 0
	for _, content := range contents {
		totalChars += 16 // role and framing overhead
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			totalChars += len(part.Text)
			if part.FunctionCall != nil {
				totalChars += len(part.FunctionCall.Name) + 40
				if argsJSON, err := json.Marshal(part.FunctionCall.Args); err == nil {
					totalChars += len(argsJSON)
				}
			}
			if part.FunctionResponse != nil {
				totalChars += len(part.FunctionResponse.Name) + 40
				if respJSON, err := json.Marshal(part.FunctionResponse.Response); err == nil {
					totalChars += len(respJSON)
				}
			}
		}
	}
	return int32(totalChars / 4)
}

func (m *anthropicModel) StreamChat(ctx context.Context, history []*genai.Content) (*StreamingResponse, error) {
	m.mu.RLock()
	requestBody := map[string]any{
		"model":       m.model,
		"max_tokens":  m.maxTokens,
		"messages":    convertHistoryToAnthropic(history),
		"stream":      true,
		"temperature": 0,
	}
	if m.systemInstruction != "" {
		requestBody["system"] = m.systemInstruction
	}
	if len(m.tools) > 0 {
		requestBody["tools"] = convertToolsToAnthropic(m.tools)
	}
	m.mu.RUnlock()

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(m.retryDelay, attempt-1, 30*time.Second)
			logging.Info("retrying request", "attempt", attempt, "delay", delay, "last_status", lastStatus)
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

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			lastStatus = httpErr.StatusCode
		}
		if !IsRetryable(err) {
			return nil, err
		}
		logging.Warn("request failed, will retry", "attempt", attempt, "error", err, "status", lastStatus)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", m.maxRetries, lastErr)
}

func (m *anthropicModel) doStream(ctx context.Context, requestBody map[string]any) (*StreamingResponse, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := m.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

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
		logging.Warn("anthropic API error", "status", resp.StatusCode, "body", string(body))
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
		acc := &anthropicAccumulator{}

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
				chunks <- ResponseChunk{FunctionCalls: acc.completedCalls, Done: true}
				return
			}

			var event map[string]any
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				logging.Warn("failed to parse SSE event", "error", err)
				continue
			}
			if errObj, ok := event["error"].(map[string]any); ok {
				errCode, _ := errObj["type"].(string)
				errMsg, _ := errObj["message"].(string)
				chunks <- ResponseChunk{
					Error: fmt.Errorf("API error (%s): %s", errCode, errMsg),
					Done:  true,
				}
				return
			}

			chunk := processAnthropicEvent(event, acc)
			if chunk.Text != "" || chunk.Reasoning != "" || chunk.Done || len(chunk.FunctionCalls) > 0 {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case chunks <- ResponseChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return &StreamingResponse{Chunks: chunks}, nil
}

// anthropicAccumulator tracks tool call and thinking state across SSE
// events.
type anthropicAccumulator struct {
	currentToolID    string
	currentToolName  string
	currentToolInput strings.Builder
	currentBlockType string
	completedCalls   []*genai.FunctionCall
	inputTokens      int
	outputTokens     int
}

func processAnthropicEvent(event map[string]any, acc *anthropicAccumulator) ResponseChunk {
	chunk := ResponseChunk{}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "message_start":
		if msg, ok := event["message"].(map[string]any); ok {
			if usage, ok := msg["usage"].(map[string]any); ok {
				if v, ok := usage["input_tokens"].(float64); ok {
					acc.inputTokens = int(v)
				}
			}
		}

	case "content_block_start":
		if contentBlock, ok := event["content_block"].(map[string]any); ok {
			blockType, _ := contentBlock["type"].(string)
			acc.currentBlockType = blockType
			if blockType == "tool_use" {
				acc.currentToolID, _ = contentBlock["id"].(string)
				acc.currentToolName, _ = contentBlock["name"].(string)
				acc.currentToolInput.Reset()
			}
		}

	case "content_block_delta":
		if delta, ok := event["delta"].(map[string]any); ok {
			deltaType, _ := delta["type"].(string)
			switch deltaType {
			case "thinking_delta":
				chunk.Reasoning, _ = delta["thinking"].(string)
			case "text_delta":
				chunk.Text, _ = delta["text"].(string)
			case "input_json_delta":
				if partialJSON, ok := delta["partial_json"].(string); ok {
					acc.currentToolInput.WriteString(partialJSON)
				}
			}
		}

	case "content_block_stop":
		if acc.currentToolID != "" && acc.currentToolName != "" {
			args := map[string]any{}
			if inputJSON := acc.currentToolInput.String(); inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &args); err != nil {
					logging.Error("tool args JSON unmarshal failed",
						"error", err, "tool", acc.currentToolName)
					args = map[string]any{}
				}
			}
			acc.completedCalls = append(acc.completedCalls, &genai.FunctionCall{
				ID:   acc.currentToolID,
				Name: acc.currentToolName,
				Args: args,
			})
			acc.currentToolID = ""
			acc.currentToolName = ""
			acc.currentToolInput.Reset()
		}
		acc.currentBlockType = ""

	case "message_delta":
		if usage, ok := event["usage"].(map[string]any); ok {
			if v, ok := usage["output_tokens"].(float64); ok {
				acc.outputTokens = int(v)
			}
		}
		if delta, ok := event["delta"].(map[string]any); ok {
			if stopReason, ok := delta["stop_reason"].(string); ok {
				chunk.Done = true
				chunk.InputTokens = acc.inputTokens
				chunk.OutputTokens = acc.outputTokens
				switch stopReason {
				case "max_tokens":
					chunk.FinishReason = genai.FinishReasonMaxTokens
				default:
					chunk.FinishReason = genai.FinishReasonStop
				}
				chunk.FunctionCalls = acc.completedCalls
			}
		}

	case "message_stop":
		chunk.Done = true
		chunk.InputTokens = acc.inputTokens
		chunk.OutputTokens = acc.outputTokens
		chunk.FunctionCalls = acc.completedCalls

	case "error":
		if errData, ok := event["error"].(map[string]any); ok {
			errType, _ := errData["type"].(string)
			errMsg, _ := errData["message"].(string)
			chunk.Error = fmt.Errorf("API error: %s - %s", errType, errMsg)
			chunk.Done = true
		}
	}

	return chunk
}

// convertHistoryToAnthropic converts neutral history to the messages
// wire format.
func convertHistoryToAnthropic(history []*genai.Content) []map[string]any {
	messages := make([]map[string]any, 0, len(history))
	for _, content := range history {
		switch content.Role {
		case genai.RoleUser:
			messages = append(messages, buildAnthropicUserMessage(content.Parts))
		case genai.RoleModel:
			messages = append(messages, buildAnthropicAssistantMessage(content.Parts))
		}
	}
	return messages
}

func functionResponseText(resp map[string]any) string {
	if resp == nil {
		return "Operation completed"
	}
	if errStr, ok := resp["error"].(string); ok && errStr != "" {
		return "Error: " + errStr
	}
	if content, ok := resp["content"].(string); ok && content != "" {
		return content
	}
	if data, ok := resp["data"]; ok {
		if jsonBytes, err := json.Marshal(data); err == nil {
			return string(jsonBytes)
		}
	}
	return "Operation completed"
}

func buildAnthropicUserMessage(parts []*genai.Part) map[string]any {
	content := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		if part.Text != "" {
			content = append(content, map[string]any{"type": "text", "text": part.Text})
		}
		if part.FunctionResponse != nil {
			toolUseID := part.FunctionResponse.ID
			if toolUseID == "" {
				toolUseID = part.FunctionResponse.Name
			}
			content = append(content, map[string]any{
				"type":        "tool_result",
				"tool_use_id": toolUseID,
				"content":     functionResponseText(part.FunctionResponse.Response),
			})
		}
	}
	if len(content) == 0 {
		content = append(content, map[string]any{"type": "text", "text": "Continue."})
	}
	return map[string]any{"role": "user", "content": content}
}

func buildAnthropicAssistantMessage(parts []*genai.Part) map[string]any {
	content := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		if part.Text != "" {
			content = append(content, map[string]any{"type": "text", "text": part.Text})
		}
		if part.FunctionCall != nil {
			content = append(content, map[string]any{
				"type":  "tool_use",
				"id":    part.FunctionCall.ID,
				"name":  part.FunctionCall.Name,
				"input": part.FunctionCall.Args,
			})
		}
	}
	return map[string]any{"role": "assistant", "content": content}
}

// schemaToJSON converts a genai.Schema to plain JSON Schema. genai uses
// uppercase type names; the wire format wants lowercase.
func schemaToJSON(schema *genai.Schema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	result := make(map[string]any)
	if schema.Type != "" {
		result["type"] = strings.ToLower(string(schema.Type))
	}
	if schema.Description != "" {
		result["description"] = schema.Description
	}
	if len(schema.Enum) > 0 {
		result["enum"] = schema.Enum
	}
	if len(schema.Properties) > 0 {
		props := make(map[string]any)
		for name, propSchema := range schema.Properties {
			props[name] = schemaToJSON(propSchema)
		}
		result["properties"] = props
	}
	if len(schema.Required) > 0 {
		result["required"] = schema.Required
	}
	if schema.Items != nil {
		result["items"] = schemaToJSON(schema.Items)
	}
	return result
}

func convertToolsToAnthropic(tools []*genai.Tool) []map[string]any {
	out := make([]map[string]any, 0)
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			out = append(out, map[string]any{
				"name":         decl.Name,
				"description":  decl.Description,
				"input_schema": schemaToJSON(decl.Parameters),
			})
		}
	}
	return out
}
