package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deskagent/internal/llm"
)

func TestMCPToolValidate(t *testing.T) {
	tool := NewMCPTool(nil, "github", &ToolInfo{
		Name: "create_issue",
		InputSchema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"title":  {Type: "string"},
				"labels": {Type: "array"},
				"draft":  {Type: "boolean"},
			},
			Required: []string{"title"},
		},
	}, llm.FamilyGemini)

	assert.Error(t, tool.Validate(map[string]any{}))
	assert.Error(t, tool.Validate(map[string]any{"title": 42}))
	assert.Error(t, tool.Validate(map[string]any{"title": "bug", "draft": "yes"}))
	assert.NoError(t, tool.Validate(map[string]any{"title": "bug"}))
	assert.NoError(t, tool.Validate(map[string]any{"title": "bug", "labels": []any{"p1"}, "draft": true}))
}

func TestMCPToolQualifiedIdentity(t *testing.T) {
	tool := NewMCPTool(nil, "github", &ToolInfo{Name: "list_issues"}, llm.FamilyGemini)

	assert.Equal(t, "list_issues", tool.Name())
	assert.Equal(t, "github", tool.Group())
	assert.Equal(t, "github---list_issues", tool.Declaration().Name)
}

func TestFormatContentBlocks(t *testing.T) {
	assert.Equal(t, "(no output)", formatContentBlocks(nil))

	out := formatContentBlocks([]*ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "image", MIMEType: "image/png"},
		{Type: "resource", URI: "file:///tmp/x"},
	})
	assert.Equal(t, "first\n[Image: image/png]\n[Resource: file:///tmp/x]", out)
}
