package mcp

import (
	"google.golang.org/genai"

	"deskagent/internal/llm"
	"deskagent/internal/tools"
)

// NormalizeSchema returns a copy of the schema adjusted for the given
// provider family. The input is never mutated. A nil schema normalizes
// to an empty object schema so every tool has callable parameters.
func NormalizeSchema(schema *JSONSchema, family llm.Family) *JSONSchema {
	if schema == nil {
		return &JSONSchema{Type: "object", Properties: map[string]*JSONSchema{}}
	}

	out := normalizeNode(schema, family)
	if out.Type == "" && len(out.Properties) > 0 {
		out.Type = "object"
	}
	if out.Type == "object" && len(out.Properties) == 0 {
		// Gemini rejects object schemas with no properties
		if family == llm.FamilyGemini {
			out.Properties = map[string]*JSONSchema{
				"unused": {Type: "string", Description: "Unused parameter, leave empty."},
			}
		}
	}
	return out
}

func normalizeNode(schema *JSONSchema, family llm.Family) *JSONSchema {
	out := &JSONSchema{
		Type:        schema.Type,
		Description: schema.Description,
		Required:    append([]string(nil), schema.Required...),
		Enum:        append([]string(nil), schema.Enum...),
		Format:      schema.Format,
		Default:     schema.Default,
		AnyOf:       normalizeList(schema.AnyOf, family),
		OneOf:       normalizeList(schema.OneOf, family),
		AllOf:       normalizeList(schema.AllOf, family),
	}

	if family == llm.FamilyGemini {
		// Gemini rejects defaults and most string formats
		out.Default = nil
		if out.Type == "string" && out.Format != "enum" && out.Format != "date-time" {
			out.Format = ""
		}
		// A node whose type lives in its composition members is left
		// untyped; coercing it would shadow the alternatives
		if out.Type == "" && len(out.AnyOf)+len(out.OneOf)+len(out.AllOf) == 0 {
			out.Type = "string"
		}
	}

	if schema.Items != nil {
		out.Items = normalizeNode(schema.Items, family)
	}
	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*JSONSchema, len(schema.Properties))
		for name, prop := range schema.Properties {
			out.Properties[name] = normalizeNode(prop, family)
		}
	}

	return out
}

func normalizeList(nodes []*JSONSchema, family llm.Family) []*JSONSchema {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]*JSONSchema, len(nodes))
	for i, node := range nodes {
		out[i] = normalizeNode(node, family)
	}
	return out
}

// ConvertSchemaToGenai converts a normalized JSON schema to the genai
// declaration schema.
func ConvertSchemaToGenai(schema *JSONSchema) *genai.Schema {
	if schema == nil {
		return nil
	}
	schema = flattenAllOf(schema)

	out := &genai.Schema{Description: schema.Description}

	// genai expresses alternatives only as any-of, so one-of maps onto
	// the same keyword
	for _, variant := range schema.AnyOf {
		out.AnyOf = append(out.AnyOf, ConvertSchemaToGenai(variant))
	}
	for _, variant := range schema.OneOf {
		out.AnyOf = append(out.AnyOf, ConvertSchemaToGenai(variant))
	}
	if len(out.AnyOf) > 0 && schema.Type == "" {
		return out
	}

	switch schema.Type {
	case "string":
		out.Type = genai.TypeString
		if len(schema.Enum) > 0 {
			out.Enum = schema.Enum
		}
		out.Format = schema.Format
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
		if schema.Items != nil {
			out.Items = ConvertSchemaToGenai(schema.Items)
		}
	case "object":
		out.Type = genai.TypeObject
		if len(schema.Properties) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
			for name, prop := range schema.Properties {
				out.Properties[name] = ConvertSchemaToGenai(prop)
			}
		}
		out.Required = schema.Required
	default:
		out.Type = genai.TypeString
	}

	return out
}

// flattenAllOf folds all-of members into the parent node. genai has no
// all-of keyword, so the members' constraints are merged: the parent's
// own fields win, properties are unioned, required lists concatenated.
func flattenAllOf(schema *JSONSchema) *JSONSchema {
	if len(schema.AllOf) == 0 {
		return schema
	}

	merged := &JSONSchema{
		Type:        schema.Type,
		Description: schema.Description,
		Required:    append([]string(nil), schema.Required...),
		Enum:        schema.Enum,
		Format:      schema.Format,
		Items:       schema.Items,
		AnyOf:       schema.AnyOf,
		OneOf:       schema.OneOf,
	}
	merged.Properties = make(map[string]*JSONSchema, len(schema.Properties))
	for name, prop := range schema.Properties {
		merged.Properties[name] = prop
	}

	for _, member := range schema.AllOf {
		member = flattenAllOf(member)
		if merged.Type == "" {
			merged.Type = member.Type
		}
		if merged.Items == nil {
			merged.Items = member.Items
		}
		for name, prop := range member.Properties {
			if _, exists := merged.Properties[name]; !exists {
				merged.Properties[name] = prop
			}
		}
		for _, req := range member.Required {
			if !containsString(merged.Required, req) {
				merged.Required = append(merged.Required, req)
			}
		}
	}

	if len(merged.Properties) == 0 {
		merged.Properties = nil
	}
	return merged
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ConvertToolDeclaration builds the function declaration for a server
// tool, qualified with the server name.
func ConvertToolDeclaration(serverName string, info *ToolInfo, family llm.Family) *genai.FunctionDeclaration {
	if info == nil {
		return nil
	}
	return &genai.FunctionDeclaration{
		Name:        tools.Qualify(serverName, info.Name),
		Description: info.Description,
		Parameters:  ConvertSchemaToGenai(NormalizeSchema(info.InputSchema, family)),
	}
}
