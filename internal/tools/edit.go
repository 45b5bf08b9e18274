package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// FileEditTool performs an atomic search/replace within a file. The
// search term is either a literal string or a regular expression and
// replaces the first match or all matches.
type FileEditTool struct {
	baseDir string
}

// NewFileEditTool creates a new FileEditTool instance.
func NewFileEditTool(baseDir string) *FileEditTool {
	return &FileEditTool{baseDir: baseDir}
}

func (t *FileEditTool) Name() string {
	return "file_edit"
}

func (t *FileEditTool) Group() string {
	return PowerGroup
}

func (t *FileEditTool) Description() string {
	return "Atomically finds and replaces a specific string or pattern within a specified file. This tool is useful for making targeted changes to file content."
}

func (t *FileEditTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"file_path": {
					Type:        genai.TypeString,
					Description: "The path to the file to be edited (relative to the project root).",
				},
				"search_term": {
					Type:        genai.TypeString,
					Description: "The string or regular expression to find in the file.",
				},
				"replacement_text": {
					Type:        genai.TypeString,
					Description: "The string to replace the search_term with.",
				},
				"is_regex": {
					Type:        genai.TypeBoolean,
					Description: "Whether the search_term should be treated as a regular expression. Default: false.",
				},
				"replace_all": {
					Type:        genai.TypeBoolean,
					Description: "Whether to replace all occurrences or just the first one. Default: false.",
				},
			},
			Required: []string{"file_path", "search_term", "replacement_text"},
		},
	}
}

func (t *FileEditTool) Validate(args map[string]any) error {
	filePath, ok := GetString(args, "file_path")
	if !ok || filePath == "" {
		return NewValidationError("file_path", "is required")
	}

	searchTerm, ok := GetString(args, "search_term")
	if !ok || searchTerm == "" {
		return NewValidationError("search_term", "is required")
	}

	if _, ok := GetString(args, "replacement_text"); !ok {
		return NewValidationError("replacement_text", "is required")
	}

	if GetBoolDefault(args, "is_regex", false) {
		if _, err := regexp.Compile(searchTerm); err != nil {
			return NewValidationError("search_term", fmt.Sprintf("invalid regex: %s", err))
		}
	}
	return nil
}

// ApprovalPrompt makes file edits require interactive approval with
// the search and replacement shown as the subject.
func (t *FileEditTool) ApprovalPrompt(args map[string]any) (string, string) {
	filePath, _ := GetString(args, "file_path")
	searchTerm, _ := GetString(args, "search_term")
	replacement, _ := GetString(args, "replacement_text")

	text := fmt.Sprintf("Approve editing file '%s'?", filePath)
	subject := fmt.Sprintf("Search: %s\nReplace: %s", searchTerm, replacement)
	return text, subject
}

func (t *FileEditTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	filePath, _ := GetString(args, "file_path")
	searchTerm, _ := GetString(args, "search_term")
	replacement, _ := GetString(args, "replacement_text")
	isRegex := GetBoolDefault(args, "is_regex", false)
	replaceAll := GetBoolDefault(args, "replace_all", false)

	absPath := resolvePath(t.baseDir, filePath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(fmt.Sprintf("file '%s' not found", filePath)), nil
		}
		return NewErrorResult(fmt.Sprintf("error editing file '%s': %s", filePath, err)), nil
	}

	if looksBinary(data) {
		return NewErrorResult(fmt.Sprintf("cannot edit binary file: %s", filePath)), nil
	}

	content := string(data)
	var modified string

	if isRegex {
		re, err := regexp.Compile(searchTerm)
		if err != nil {
			return NewErrorResult(fmt.Sprintf("invalid regex pattern: %s", err)), nil
		}
		if replaceAll {
			modified = re.ReplaceAllString(content, replacement)
		} else {
			// Replace first match only
			if loc := re.FindStringIndex(content); loc != nil {
				modified = content[:loc[0]] + re.ReplaceAllString(content[loc[0]:loc[1]], replacement) + content[loc[1]:]
			} else {
				modified = content
			}
		}
	} else {
		if replaceAll {
			modified = strings.ReplaceAll(content, searchTerm, replacement)
		} else {
			modified = strings.Replace(content, searchTerm, replacement, 1)
		}
	}

	if modified == content {
		return NewSuccessResult(fmt.Sprintf("Warning: Search term '%s' did not result in changes in '%s'. File content remains the same.", searchTerm, filePath)), nil
	}

	if err := AtomicWrite(absPath, []byte(modified), 0644); err != nil {
		return NewErrorResult(fmt.Sprintf("error editing file '%s': %s", filePath, err)), nil
	}

	return NewSuccessResult(fmt.Sprintf("Successfully edited '%s'.", filePath)), nil
}
