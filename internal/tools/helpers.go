package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// NoSuchTool answers a model's call to a tool that does not exist.
// The agent substitutes this tool for the unknown one so the model
// gets a corrective message instead of a hard failure.
type NoSuchTool struct {
	registry *Registry
}

func NewNoSuchTool(registry *Registry) *NoSuchTool {
	return &NoSuchTool{registry: registry}
}

func (t *NoSuchTool) Name() string {
	return "no_such_tool"
}

func (t *NoSuchTool) Group() string {
	return HelpersGroup
}

func (t *NoSuchTool) Description() string {
	return "Reports that a requested tool does not exist and lists the available tools."
}

func (t *NoSuchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tool_name": {
					Type:        genai.TypeString,
					Description: "The name of the tool that was requested but does not exist.",
				},
			},
			Required: []string{"tool_name"},
		},
	}
}

func (t *NoSuchTool) Validate(args map[string]any) error {
	if _, ok := GetString(args, "tool_name"); !ok {
		return NewValidationError("tool_name", "is required")
	}
	return nil
}

func (t *NoSuchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	toolName, _ := GetString(args, "tool_name")
	available := strings.Join(t.registry.VisibleNames(), ", ")

	return NewSuccessResult(fmt.Sprintf(
		"Error: You attempted to use a tool named '%s', but no such tool is available (maybe a typo?). "+
			"Try again with different tool from the list of available tools: %s. "+
			"Make sure you use the tool name exactly as it appears in the list with server name prefix %s and tool name.",
		toolName, available, GroupSeparator)), nil
}

// InvalidToolArgumentsTool answers a tool call whose arguments failed
// validation, echoing the schema error back so the model can retry.
type InvalidToolArgumentsTool struct{}

func NewInvalidToolArgumentsTool() *InvalidToolArgumentsTool {
	return &InvalidToolArgumentsTool{}
}

func (t *InvalidToolArgumentsTool) Name() string {
	return "invalid_tool_arguments"
}

func (t *InvalidToolArgumentsTool) Group() string {
	return HelpersGroup
}

func (t *InvalidToolArgumentsTool) Description() string {
	return "Reports that a tool was called with invalid arguments."
}

func (t *InvalidToolArgumentsTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tool_name": {
					Type:        genai.TypeString,
					Description: "The name of the tool that was called.",
				},
				"tool_args": {
					Type:        genai.TypeString,
					Description: "The arguments the tool was called with, serialized.",
				},
				"error": {
					Type:        genai.TypeString,
					Description: "The validation error.",
				},
			},
			Required: []string{"tool_name"},
		},
	}
}

func (t *InvalidToolArgumentsTool) Validate(args map[string]any) error {
	if _, ok := GetString(args, "tool_name"); !ok {
		return NewValidationError("tool_name", "is required")
	}
	return nil
}

func (t *InvalidToolArgumentsTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	toolName, _ := GetString(args, "tool_name")
	toolArgs := GetStringDefault(args, "tool_args", "{}")
	errText := GetStringDefault(args, "error", "unknown error")

	return NewSuccessResult(fmt.Sprintf(
		"Error: You attempted to use the tool '%s' with invalid arguments: %s. The error was: %s. "+
			"Please check the tool's schema and try again with corrected arguments.",
		toolName, toolArgs, errText)), nil
}
