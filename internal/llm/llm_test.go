package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestCollectAccumulatesStream(t *testing.T) {
	ch := make(chan ResponseChunk, 4)
	ch <- ResponseChunk{Text: "Hello "}
	ch <- ResponseChunk{Text: "world", Reasoning: "thinking..."}
	ch <- ResponseChunk{
		FunctionCalls: []*genai.FunctionCall{{ID: "c1", Name: "power---glob"}},
		Done:          true,
		FinishReason:  genai.FinishReasonStop,
		InputTokens:   100,
		OutputTokens:  20,
	}
	close(ch)

	resp, err := (&StreamingResponse{Chunks: ch}).Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, "thinking...", resp.Reasoning)
	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, genai.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 100, resp.InputTokens)
	assert.Equal(t, 20, resp.OutputTokens)
}

func TestCollectReturnsStreamError(t *testing.T) {
	ch := make(chan ResponseChunk, 2)
	ch <- ResponseChunk{Text: "partial"}
	ch <- ResponseChunk{Error: assertErr("boom"), Done: true}
	close(ch)

	_, err := (&StreamingResponse{Chunks: ch}).Collect()
	require.Error(t, err)
	assert.EqualError(t, err, "boom")
}

func TestResponseContent(t *testing.T) {
	r := &Response{
		Text: "doing it",
		FunctionCalls: []*genai.FunctionCall{
			{ID: "c1", Name: "power---file_read", Args: map[string]any{"filePath": "a.go"}},
		},
	}
	content := r.Content()
	assert.Equal(t, genai.RoleModel, content.Role)
	require.Len(t, content.Parts, 2)
	assert.Equal(t, "doing it", content.Parts[0].Text)
	assert.Equal(t, "power---file_read", content.Parts[1].FunctionCall.Name)

	empty := (&Response{}).Content()
	require.Len(t, empty.Parts, 1)
	assert.NotEmpty(t, empty.Parts[0].Text)
}

func TestEstimateTokensNeverNegative(t *testing.T) {
	assert.Zero(t, EstimateTokens(nil))

	contents := []*genai.Content{
		genai.NewContentFromText("four characters per token, roughly", genai.RoleUser),
		{Role: genai.RoleModel, Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "aider---run_prompt", Args: map[string]any{"prompt": "do things"}}},
		}},
	}
	assert.Greater(t, EstimateTokens(contents), int32(0))
}

func TestPricingLongestPrefixMatch(t *testing.T) {
	assert.Equal(t, 3.0, PricingFor("claude-sonnet-4-5").InputPerMTok)
	assert.Equal(t, 0.30, PricingFor("gemini-2.5-flash").InputPerMTok)
	assert.Equal(t, Pricing{}, PricingFor("qwen2.5-coder:7b"))

	cost := PricingFor("deepseek-chat").Cost(1_000_000, 0)
	assert.InDelta(t, 0.27, cost, 1e-9)
}

func TestSanitizeContentsNeverEmpty(t *testing.T) {
	out := sanitizeContents(nil)
	require.Len(t, out, 1)
	require.NotEmpty(t, out[0].Parts)

	out = sanitizeContents([]*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: ""}}},
		nil,
		{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "keep me"}, nil}},
	})
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].Parts)
	require.Len(t, out[1].Parts, 1)
	assert.Equal(t, "keep me", out[1].Parts[0].Text)
}

func TestConvertHistoryToAnthropic(t *testing.T) {
	history := []*genai.Content{
		genai.NewContentFromText("read the file", genai.RoleUser),
		{Role: genai.RoleModel, Parts: []*genai.Part{
			{Text: "on it"},
			{FunctionCall: &genai.FunctionCall{ID: "toolu_1", Name: "power---file_read", Args: map[string]any{"filePath": "a.go"}}},
		}},
		{Role: genai.RoleUser, Parts: []*genai.Part{
			{FunctionResponse: &genai.FunctionResponse{ID: "toolu_1", Name: "power---file_read", Response: map[string]any{"content": "package main"}}},
		}},
	}

	messages := convertHistoryToAnthropic(history)
	require.Len(t, messages, 3)

	assistant := messages[1]
	assert.Equal(t, "assistant", assistant["role"])
	blocks := assistant["content"].([]map[string]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "tool_use", blocks[1]["type"])
	assert.Equal(t, "toolu_1", blocks[1]["id"])

	result := messages[2]["content"].([]map[string]any)
	require.Len(t, result, 1)
	assert.Equal(t, "tool_result", result[0]["type"])
	assert.Equal(t, "toolu_1", result[0]["tool_use_id"])
	assert.Equal(t, "package main", result[0]["content"])
}

func TestConvertHistoryToOpenAIMovesToolResults(t *testing.T) {
	history := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{
			{FunctionResponse: &genai.FunctionResponse{ID: "call_1", Name: "power---bash", Response: map[string]any{"error": "exit status 1"}}},
			{Text: "keep going"},
		}},
	}

	messages := convertHistoryToOpenAI(history, "be terse")
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "tool", messages[1]["role"])
	assert.Equal(t, "call_1", messages[1]["tool_call_id"])
	assert.Equal(t, "Error: exit status 1", messages[1]["content"])
	assert.Equal(t, "user", messages[2]["role"])
}

func TestOpenAIAccumulatorAssemblesIndexedCalls(t *testing.T) {
	acc := newOpenAIAccumulator()

	feed := func(raw string) {
		var ev openaiStreamEvent
		require.NoError(t, jsonUnmarshal(raw, &ev))
		acc.consume(&ev)
	}

	feed(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"power---glob","arguments":"{\"pat"}}]}}]}`)
	feed(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"tern\":\"**/*.go\"}"}}]}}]}`)
	feed(`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)

	calls := acc.finish()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, "power---glob", calls[0].Name)
	assert.Equal(t, "**/*.go", calls[0].Args["pattern"])
	assert.Equal(t, 10, acc.inputTokens)
	assert.Equal(t, 5, acc.outputTokens)
}

func TestProcessAnthropicEventToolFlow(t *testing.T) {
	acc := &anthropicAccumulator{}

	processAnthropicEvent(map[string]any{
		"type": "content_block_start",
		"content_block": map[string]any{
			"type": "tool_use", "id": "toolu_9", "name": "aider---add_context_file",
		},
	}, acc)
	processAnthropicEvent(map[string]any{
		"type":  "content_block_delta",
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `{"path":"main.go"}`},
	}, acc)
	processAnthropicEvent(map[string]any{"type": "content_block_stop"}, acc)

	final := processAnthropicEvent(map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "tool_use"},
		"usage": map[string]any{"output_tokens": float64(12)},
	}, acc)

	assert.True(t, final.Done)
	require.Len(t, final.FunctionCalls, 1)
	assert.Equal(t, "toolu_9", final.FunctionCalls[0].ID)
	assert.Equal(t, "main.go", final.FunctionCalls[0].Args["path"])
	assert.Equal(t, 12, final.OutputTokens)
}

func jsonUnmarshal(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
