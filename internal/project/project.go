// Package project defines the host contract the agent runs against.
// A Project supplies settings and context, receives streamed responses
// and tool lifecycle notifications, and answers interactive questions.
package project

import (
	"context"

	"google.golang.org/genai"

	"deskagent/internal/config"
)

// ContextFile is a file tracked in the coding-assistant context.
type ContextFile struct {
	Path     string
	ReadOnly bool
}

// Question is an interactive prompt raised to the user mid-run.
// Subject carries supporting detail (serialized arguments, a diff
// preview, the prompt text) rendered below the question.
type Question struct {
	Text          string
	Subject       string
	DefaultAnswer string
	Key           string
}

// Answer is the user's response to a Question. Answer holds the chosen
// shortkey ("y", "n", "a", "r"), Input any free text the user typed.
type Answer struct {
	Answer string
	Input  string
}

// UsageReport carries per-step token usage and cost accounting.
type UsageReport struct {
	SentTokens     int32
	ReceivedTokens int32
	MessageCost    float64
	TotalCost      float64
}

// ResponseMessage is one streamed assistant update. Unfinished messages
// carry incremental text, the finished message for a step carries the
// full formatted content plus usage.
type ResponseMessage struct {
	ID       string
	Content  string
	Finished bool
	Usage    *UsageReport
}

// ToolMessage reports a tool call's lifecycle to the host. It is sent
// once when the call is requested (Result empty) and again when the
// result is known.
type ToolMessage struct {
	ID         string
	ServerName string
	ToolName   string
	Args       map[string]any
	Result     string
	Usage      *UsageReport
}

// PromptResponse is one completed response from the pair-programming
// subprocess, including the files it edited.
type PromptResponse struct {
	MessageID   string
	Content     string
	EditedFiles []string
}

// Project is the host a run executes against.
type Project interface {
	// BaseDir returns the project root directory.
	BaseDir() string

	// Settings returns the current settings snapshot.
	Settings() *config.Settings

	// ContextFiles returns the files currently in the assistant context.
	ContextFiles() []ContextFile

	// AddContextFile adds a file to the context. Returns false when the
	// file was already present.
	AddContextFile(file ContextFile) (bool, error)

	// DropContextFile removes a file from the context.
	DropContextFile(path string)

	// ContextMessages returns the accumulated conversation history.
	ContextMessages() []*genai.Content

	// RepoMap returns the repository map text, or empty when unavailable.
	RepoMap() string

	// AddToolMessage notifies the host of a tool call's lifecycle.
	AddToolMessage(msg ToolMessage)

	// AskQuestion suspends until the user answers.
	AskQuestion(ctx context.Context, q Question) (Answer, error)

	// ProcessResponseMessage streams a partial or final assistant
	// message and returns the message id for follow-up updates.
	ProcessResponseMessage(msg ResponseMessage) string

	// AddLogMessage posts a non-blocking status or diagnostic line.
	// An empty text with level "loading" signals ongoing processing.
	AddLogMessage(level, text string)

	// SendPrompt delegates a natural-language task to the
	// pair-programming subprocess and returns its responses.
	SendPrompt(ctx context.Context, prompt string, clearContext bool) ([]PromptResponse, error)

	// TotalCost returns the accumulated agent cost for this project.
	TotalCost() float64

	// AddCost adds a step's cost to the running total.
	AddCost(cost float64)
}
