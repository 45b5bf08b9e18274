package llm

import (
	"context"

	"google.golang.org/genai"
)

// Family groups provider kinds by the tool-schema dialect they accept.
// Connector tool schemas are normalized per family before being handed
// to a model.
type Family string

const (
	FamilyGemini    Family = "gemini"
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
	FamilyOllama    Family = "ollama"
)

// Model is a handle to one configured provider model. Conversation
// history uses genai.Content as the neutral currency regardless of the
// underlying wire format.
type Model interface {
	// StreamChat sends the full conversation history and returns a
	// streaming response.
	StreamChat(ctx context.Context, history []*genai.Content) (*StreamingResponse, error)

	// SetTools sets the tools available for function calling.
	SetTools(tools []*genai.Tool)

	// SetSystemInstruction sets the system-level instruction, passed via
	// the provider's native system parameter rather than as a message.
	SetSystemInstruction(instruction string)

	// CountTokens counts tokens for the given contents.
	CountTokens(ctx context.Context, contents []*genai.Content) (int32, error)

	// ModelID returns the model identifier.
	ModelID() string

	// Family returns the schema dialect family of the provider.
	Family() Family

	// Close releases the underlying connection.
	Close() error
}

// StreamingResponse represents a streaming response from a model.
type StreamingResponse struct {
	// Chunks receives response chunks until the stream completes.
	Chunks <-chan ResponseChunk
}

// ResponseChunk is a single chunk in a streaming response.
type ResponseChunk struct {
	// Text contains any answer text in this chunk.
	Text string

	// Reasoning contains extended thinking content, when the provider
	// streams it separately.
	Reasoning string

	// FunctionCalls contains any tool calls in this chunk.
	FunctionCalls []*genai.FunctionCall

	// Error contains any error that occurred mid-stream.
	Error error

	// Done indicates the final chunk.
	Done bool

	// FinishReason indicates why the response finished.
	FinishReason genai.FinishReason

	// InputTokens from usage metadata, if reported.
	InputTokens int

	// OutputTokens from usage metadata, if reported.
	OutputTokens int
}

// Response is a fully collected model response.
type Response struct {
	Text          string
	Reasoning     string
	FunctionCalls []*genai.FunctionCall
	FinishReason  genai.FinishReason
	InputTokens   int
	OutputTokens  int
}

// Collect drains the stream into a single Response.
func (sr *StreamingResponse) Collect() (*Response, error) {
	resp := &Response{}
	for chunk := range sr.Chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		resp.Text += chunk.Text
		resp.Reasoning += chunk.Reasoning
		resp.FunctionCalls = append(resp.FunctionCalls, chunk.FunctionCalls...)
		if chunk.Done {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.InputTokens > 0 {
			resp.InputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			resp.OutputTokens += chunk.OutputTokens
		}
	}
	return resp, nil
}

// Complete sends the history and collects the full response. Used where
// a non-streaming reply is enough, such as tool-call repair replays.
func Complete(ctx context.Context, m Model, history []*genai.Content) (*Response, error) {
	sr, err := m.StreamChat(ctx, history)
	if err != nil {
		return nil, err
	}
	return sr.Collect()
}

// Content returns the parts of a response rendered as a model-role
// content for appending to history.
func (r *Response) Content() *genai.Content {
	var parts []*genai.Part
	if r.Text != "" {
		parts = append(parts, genai.NewPartFromText(r.Text))
	}
	for _, fc := range r.FunctionCalls {
		parts = append(parts, &genai.Part{FunctionCall: fc})
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(" "))
	}
	return &genai.Content{Role: genai.RoleModel, Parts: parts}
}

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}
