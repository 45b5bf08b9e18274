package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/genai"
)

// File write modes.
const (
	WriteModeOverwrite  = "overwrite"
	WriteModeAppend     = "append"
	WriteModeCreateOnly = "create_only"
)

// FileWriteTool writes content to a file in one of three modes:
// overwrite (create or replace), append (create or extend) and
// create_only (fail when the target exists).
type FileWriteTool struct {
	baseDir string
}

// NewFileWriteTool creates a new FileWriteTool instance.
func NewFileWriteTool(baseDir string) *FileWriteTool {
	return &FileWriteTool{baseDir: baseDir}
}

func (t *FileWriteTool) Name() string {
	return "file_write"
}

func (t *FileWriteTool) Group() string {
	return PowerGroup
}

func (t *FileWriteTool) Description() string {
	return "Writes content to a specified file. Can create a new file, overwrite an existing file, or append to an existing file."
}

func (t *FileWriteTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"file_path": {
					Type:        genai.TypeString,
					Description: "The path to the file to be written (relative to the project root).",
				},
				"content": {
					Type:        genai.TypeString,
					Description: "The content to write to the file.",
				},
				"mode": {
					Type:        genai.TypeString,
					Description: "Mode of writing: 'overwrite' (overwrites or creates), 'append' (appends or creates), 'create_only' (creates if not exists, fails if exists). Default: 'overwrite'.",
					Enum:        []string{WriteModeOverwrite, WriteModeAppend, WriteModeCreateOnly},
				},
			},
			Required: []string{"file_path", "content"},
		},
	}
}

func (t *FileWriteTool) Validate(args map[string]any) error {
	filePath, ok := GetString(args, "file_path")
	if !ok || filePath == "" {
		return NewValidationError("file_path", "is required")
	}
	if _, ok := GetString(args, "content"); !ok {
		return NewValidationError("content", "is required")
	}

	mode := GetStringDefault(args, "mode", WriteModeOverwrite)
	switch mode {
	case WriteModeOverwrite, WriteModeAppend, WriteModeCreateOnly:
	default:
		return NewValidationError("mode", fmt.Sprintf("must be one of %s, %s, %s", WriteModeOverwrite, WriteModeAppend, WriteModeCreateOnly))
	}
	return nil
}

// ApprovalPrompt makes file writes require interactive approval. The
// subject shows a diff against the current content for overwrites and
// the appended text for appends.
func (t *FileWriteTool) ApprovalPrompt(args map[string]any) (string, string) {
	filePath, _ := GetString(args, "file_path")
	content, _ := GetString(args, "content")
	mode := GetStringDefault(args, "mode", WriteModeOverwrite)

	var text string
	switch mode {
	case WriteModeAppend:
		text = fmt.Sprintf("Approve appending to file '%s'?", filePath)
	case WriteModeCreateOnly:
		text = fmt.Sprintf("Approve creating file '%s'?", filePath)
	default:
		text = fmt.Sprintf("Approve overwriting or creating file '%s'?", filePath)
	}

	var subject string
	if mode == WriteModeOverwrite {
		old, err := os.ReadFile(resolvePath(t.baseDir, filePath))
		if err != nil {
			old = nil
		}
		subject = DiffPreview(filePath, string(old), content)
	} else {
		subject = content
	}
	return text, subject
}

func (t *FileWriteTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	filePath, _ := GetString(args, "file_path")
	content, _ := GetString(args, "content")
	mode := GetStringDefault(args, "mode", WriteModeOverwrite)

	absPath := resolvePath(t.baseDir, filePath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
	}

	switch mode {
	case WriteModeCreateOnly:
		f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				return NewErrorResult(fmt.Sprintf("file '%s' already exists (mode: create_only)", filePath)), nil
			}
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		if err := f.Close(); err != nil {
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		return NewSuccessResult(fmt.Sprintf("Successfully wrote to '%s' (created).", filePath)), nil

	case WriteModeAppend:
		f, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		if err := f.Close(); err != nil {
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		return NewSuccessResult(fmt.Sprintf("Successfully appended to '%s'.", filePath)), nil

	default:
		if err := AtomicWrite(absPath, []byte(content), 0644); err != nil {
			return NewErrorResult(fmt.Sprintf("error writing to file '%s': %s", filePath, err)), nil
		}
		return NewSuccessResult(fmt.Sprintf("Successfully wrote to '%s' (overwritten/created).", filePath)), nil
	}
}
