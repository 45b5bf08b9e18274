package tools

import (
	"context"

	"google.golang.org/genai"
)

// GroupSeparator joins a tool group (or server) name with a local tool
// name into a qualified name, e.g. "power---file_edit".
const GroupSeparator = "---"

// Tool group names for the built-in tool sets.
const (
	AiderGroup   = "aider"
	PowerGroup   = "power"
	HelpersGroup = "helpers"
)

// Tool defines the interface for all tools. Name returns the bare
// local name; the registry qualifies it with the group name.
type Tool interface {
	// Name returns the local name of the tool within its group.
	Name() string

	// Group returns the tool group or server name.
	Group() string

	// Description returns a human-readable description.
	Description() string

	// Declaration returns the function declaration for this tool. The
	// declaration name must be the qualified name.
	Declaration() *genai.FunctionDeclaration

	// Validate validates the arguments before execution.
	Validate(args map[string]any) error

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ApprovalPrompter is implemented by tools whose execution always
// requires interactive approval. The returned text is the question
// shown to the user, subject the supporting detail (diff preview,
// command line, prompt text).
type ApprovalPrompter interface {
	ApprovalPrompt(args map[string]any) (text, subject string)
}

// Qualify joins a group and a local tool name into a qualified name.
func Qualify(group, name string) string {
	return group + GroupSeparator + name
}

// SplitQualified splits a qualified name into group and local name.
// Names without a separator come back with an empty group.
func SplitQualified(qualified string) (group, name string) {
	for i := 0; i+len(GroupSeparator) <= len(qualified); i++ {
		if qualified[i:i+len(GroupSeparator)] == GroupSeparator {
			return qualified[:i], qualified[i+len(GroupSeparator):]
		}
	}
	return "", qualified
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	// Content is the main result content (usually text).
	Content string

	// Data contains structured data if applicable.
	Data any

	// Error contains an error message if the tool failed.
	Error string

	// Success indicates if the tool executed successfully.
	Success bool
}

// NewSuccessResult creates a successful tool result.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{
		Content: content,
		Success: true,
	}
}

// NewSuccessResultWithData creates a successful tool result with additional data.
func NewSuccessResultWithData(content string, data any) ToolResult {
	return ToolResult{
		Content: content,
		Data:    data,
		Success: true,
	}
}

// NewErrorResult creates a failed tool result.
func NewErrorResult(errMsg string) ToolResult {
	return ToolResult{
		Error:   errMsg,
		Success: false,
	}
}

// ToMap converts the result to a map for a function response part.
func (r ToolResult) ToMap() map[string]any {
	result := make(map[string]any)

	if r.Success {
		result["success"] = true
		if r.Content != "" {
			result["content"] = r.Content
		}
		if r.Data != nil {
			result["data"] = r.Data
		}
	} else {
		result["success"] = false
		result["error"] = r.Error
	}

	return result
}

// ValidationError represents a tool argument validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetInt extracts an integer argument from the args map.
func GetInt(args map[string]any, key string) (int, bool) {
	val, ok := args[key]
	if !ok {
		return 0, false
	}
	// Model providers may return numbers as float64
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetIntDefault extracts an integer argument with a default value.
func GetIntDefault(args map[string]any, key string, defaultVal int) int {
	if val, ok := GetInt(args, key); ok {
		return val
	}
	return defaultVal
}

// GetBool extracts a boolean argument from the args map.
func GetBool(args map[string]any, key string) (bool, bool) {
	val, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetBoolDefault extracts a boolean argument with a default value.
func GetBoolDefault(args map[string]any, key string, defaultVal bool) bool {
	if val, ok := GetBool(args, key); ok {
		return val
	}
	return defaultVal
}

// GetStringSlice extracts a string list argument from the args map.
func GetStringSlice(args map[string]any, key string) ([]string, bool) {
	val, ok := args[key]
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
