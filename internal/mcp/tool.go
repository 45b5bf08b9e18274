package mcp

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"deskagent/internal/llm"
	"deskagent/internal/tools"
)

// MCPTool exposes one server tool through the agent tool registry.
// Its group is the server name, so the qualified name is
// serverName---toolName.
type MCPTool struct {
	client      *Client
	serverName  string
	toolName    string
	description string
	inputSchema *JSONSchema
	declaration *genai.FunctionDeclaration
}

// NewMCPTool wraps a server tool. The declaration schema is normalized
// for the given provider family once, at wrap time.
func NewMCPTool(client *Client, serverName string, info *ToolInfo, family llm.Family) *MCPTool {
	return &MCPTool{
		client:      client,
		serverName:  serverName,
		toolName:    info.Name,
		description: info.Description,
		inputSchema: info.InputSchema,
		declaration: ConvertToolDeclaration(serverName, info, family),
	}
}

func (t *MCPTool) Name() string {
	return t.toolName
}

func (t *MCPTool) Group() string {
	return t.serverName
}

func (t *MCPTool) Description() string {
	return t.description
}

func (t *MCPTool) Declaration() *genai.FunctionDeclaration {
	return t.declaration
}

// Validate checks required fields and basic types against the
// server-advertised input schema.
func (t *MCPTool) Validate(args map[string]any) error {
	if t.inputSchema == nil {
		return nil
	}

	for _, required := range t.inputSchema.Required {
		if _, ok := args[required]; !ok {
			return tools.NewValidationError(required, "is required")
		}
	}

	for name, schema := range t.inputSchema.Properties {
		if val, ok := args[name]; ok {
			if err := validateValue(name, val, schema); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateValue(name string, val any, schema *JSONSchema) error {
	if schema == nil || val == nil {
		return nil
	}

	switch schema.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return tools.NewValidationError(name, "must be a string")
		}
	case "number", "integer":
		switch val.(type) {
		case int, int64, float64:
		default:
			return tools.NewValidationError(name, "must be a number")
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return tools.NewValidationError(name, "must be a boolean")
		}
	case "array":
		switch val.(type) {
		case []any, []string:
		default:
			return tools.NewValidationError(name, "must be an array")
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return tools.NewValidationError(name, "must be an object")
		}
	}

	return nil
}

// Execute calls the server tool and renders its content blocks.
func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	if t.client == nil || !t.client.IsInitialized() {
		return tools.NewErrorResult(fmt.Sprintf("MCP server '%s' is not connected", t.serverName)), nil
	}

	result, err := t.client.CallTool(ctx, t.toolName, args)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("MCP call failed: %s", err)), nil
	}

	content := formatContentBlocks(result.Content)
	if result.IsError {
		return tools.NewErrorResult(content), nil
	}
	return tools.NewSuccessResult(content), nil
}

func formatContentBlocks(blocks []*ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case "image":
			parts = append(parts, fmt.Sprintf("[Image: %s]", block.MIMEType))
		case "resource":
			parts = append(parts, fmt.Sprintf("[Resource: %s]", block.URI))
		default:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n")
}
