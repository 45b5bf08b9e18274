package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"deskagent/internal/project"
)

// GetContextFilesTool lists the files currently in the aider context.
type GetContextFilesTool struct {
	project project.Project
}

func NewGetContextFilesTool(p project.Project) *GetContextFilesTool {
	return &GetContextFilesTool{project: p}
}

func (t *GetContextFilesTool) Name() string {
	return "get_context_files"
}

func (t *GetContextFilesTool) Group() string {
	return AiderGroup
}

func (t *GetContextFilesTool) Description() string {
	return "Gets the list of files currently in the aider context, with their read-only status."
}

func (t *GetContextFilesTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}

func (t *GetContextFilesTool) Validate(args map[string]any) error {
	return nil
}

func (t *GetContextFilesTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	files := t.project.ContextFiles()

	type fileEntry struct {
		Path     string `json:"path"`
		ReadOnly bool   `json:"readOnly"`
	}
	entries := make([]fileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, fileEntry{Path: f.Path, ReadOnly: f.ReadOnly})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error listing context files: %s", err)), nil
	}
	return NewSuccessResult(string(data)), nil
}

// AddContextFileTool adds a file to the aider context. When the file
// does not exist the user is asked whether to create it.
type AddContextFileTool struct {
	project project.Project
}

func NewAddContextFileTool(p project.Project) *AddContextFileTool {
	return &AddContextFileTool{project: p}
}

func (t *AddContextFileTool) Name() string {
	return "add_context_file"
}

func (t *AddContextFileTool) Group() string {
	return AiderGroup
}

func (t *AddContextFileTool) Description() string {
	return "Adds a file to the aider context so it can be referenced or edited. Use read_only for files that must not be modified."
}

func (t *AddContextFileTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {
					Type:        genai.TypeString,
					Description: "The path of the file to add, relative to the project root.",
				},
				"read_only": {
					Type:        genai.TypeBoolean,
					Description: "Whether the file should be added as read-only. Default: false.",
				},
			},
			Required: []string{"path"},
		},
	}
}

func (t *AddContextFileTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return NewValidationError("path", "is required")
	}
	return nil
}

func (t *AddContextFileTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	path, _ := GetString(args, "path")
	readOnly := GetBoolDefault(args, "read_only", false)

	absPath := resolvePath(t.project.BaseDir(), path)
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		answer, askErr := t.project.AskQuestion(ctx, project.Question{
			Text:          fmt.Sprintf("File '%s' does not exist. Create it?", path),
			Key:           "tool_aider_add_context_file_create_file",
			DefaultAnswer: "y",
		})
		if askErr != nil {
			return NewErrorResult(fmt.Sprintf("error asking to create file: %s", askErr)), nil
		}
		if answer.Answer != "y" && answer.Answer != "a" {
			return NewSuccessResult(fmt.Sprintf("File '%s' does not exist and was not created.", path)), nil
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return NewErrorResult(fmt.Sprintf("error creating directory for '%s': %s", path, err)), nil
		}
		if err := os.WriteFile(absPath, nil, 0644); err != nil {
			return NewErrorResult(fmt.Sprintf("error creating file '%s': %s", path, err)), nil
		}
	}

	added, err := t.project.AddContextFile(project.ContextFile{Path: path, ReadOnly: readOnly})
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error adding file '%s' to context: %s", path, err)), nil
	}
	if !added {
		return NewSuccessResult(fmt.Sprintf("Not added - file '%s' was already in the context.", path)), nil
	}
	return NewSuccessResult(fmt.Sprintf("Added file: %s", path)), nil
}

// DropContextFileTool removes a file from the aider context.
type DropContextFileTool struct {
	project project.Project
}

func NewDropContextFileTool(p project.Project) *DropContextFileTool {
	return &DropContextFileTool{project: p}
}

func (t *DropContextFileTool) Name() string {
	return "drop_context_file"
}

func (t *DropContextFileTool) Group() string {
	return AiderGroup
}

func (t *DropContextFileTool) Description() string {
	return "Removes a file from the aider context."
}

func (t *DropContextFileTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {
					Type:        genai.TypeString,
					Description: "The path of the file to drop from the context.",
				},
			},
			Required: []string{"path"},
		},
	}
}

func (t *DropContextFileTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return NewValidationError("path", "is required")
	}
	return nil
}

func (t *DropContextFileTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	path, _ := GetString(args, "path")
	t.project.DropContextFile(path)
	return NewSuccessResult(fmt.Sprintf("Dropped file: %s", path)), nil
}

// RunPromptTool hands a prompt off to the aider coding engine, which
// can edit the files in the context. This is the only aider tool that
// mutates the repository, so it always requires interactive approval.
type RunPromptTool struct {
	project project.Project
}

func NewRunPromptTool(p project.Project) *RunPromptTool {
	return &RunPromptTool{project: p}
}

func (t *RunPromptTool) Name() string {
	return "run_prompt"
}

func (t *RunPromptTool) Group() string {
	return AiderGroup
}

func (t *RunPromptTool) Description() string {
	return "Runs a natural language prompt in Aider, which implements the requested changes by editing the files in the context. Add the relevant files to the context before using this tool."
}

func (t *RunPromptTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"prompt": {
					Type:        genai.TypeString,
					Description: "The natural language prompt describing the changes to implement.",
				},
			},
			Required: []string{"prompt"},
		},
	}
}

func (t *RunPromptTool) Validate(args map[string]any) error {
	prompt, ok := GetString(args, "prompt")
	if !ok || strings.TrimSpace(prompt) == "" {
		return NewValidationError("prompt", "is required")
	}
	return nil
}

func (t *RunPromptTool) ApprovalPrompt(args map[string]any) (string, string) {
	prompt, _ := GetString(args, "prompt")
	return "Approve prompt to run in Aider?", prompt
}

func (t *RunPromptTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	prompt, _ := GetString(args, "prompt")

	responses, err := t.project.SendPrompt(ctx, prompt, true)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error running prompt: %s", err)), nil
	}

	// Signal the host that the agent is thinking again after aider finishes
	defer t.project.AddLogMessage("loading", "")

	var contents []string
	editedSet := make(map[string]struct{})
	var editedFiles []string
	for _, resp := range responses {
		if resp.Content != "" {
			contents = append(contents, resp.Content)
		}
		for _, file := range resp.EditedFiles {
			if _, seen := editedSet[file]; !seen {
				editedSet[file] = struct{}{}
				editedFiles = append(editedFiles, file)
			}
		}
	}

	content := strings.Join(contents, "\n\n")
	if content == "" {
		content = "Prompt executed with no response content."
	}
	return NewSuccessResultWithData(content, map[string]any{
		"edited_files": editedFiles,
	}), nil
}
