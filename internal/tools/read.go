package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

const (
	// maxReadLines caps the number of lines returned per call.
	maxReadLines = 2000
	// maxLineLen truncates pathologically long lines.
	maxLineLen = 2000
)

// resolvePath makes a path absolute against the project root and
// cleans it. Absolute paths pass through unchanged.
func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}

// RelPath renders a path relative to the project root when it lies
// inside it.
func RelPath(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// FileReadTool reads a file and returns its contents without adding it
// to the assistant context.
type FileReadTool struct {
	baseDir string
}

// NewFileReadTool creates a new FileReadTool instance.
func NewFileReadTool(baseDir string) *FileReadTool {
	return &FileReadTool{baseDir: baseDir}
}

func (t *FileReadTool) Name() string {
	return "file_read"
}

func (t *FileReadTool) Group() string {
	return PowerGroup
}

func (t *FileReadTool) Description() string {
	return "Reads and returns the content of a specified file. Useful for inspecting file contents without adding them to the assistant context. Use offset and limit for large files."
}

func (t *FileReadTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"file_path": {
					Type:        genai.TypeString,
					Description: "The path to the file to be read (relative to the project root).",
				},
				"offset": {
					Type:        genai.TypeInteger,
					Description: "The line number to start reading from (1-indexed). Optional.",
				},
				"limit": {
					Type:        genai.TypeInteger,
					Description: "The maximum number of lines to read. Optional, defaults to 2000.",
				},
			},
			Required: []string{"file_path"},
		},
	}
}

func (t *FileReadTool) Validate(args map[string]any) error {
	filePath, ok := GetString(args, "file_path")
	if !ok || filePath == "" {
		return NewValidationError("file_path", "is required")
	}
	return nil
}

func (t *FileReadTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	filePath, _ := GetString(args, "file_path")
	offset := GetIntDefault(args, "offset", 1)
	limit := GetIntDefault(args, "limit", maxReadLines)

	if offset < 1 {
		offset = 1
	}
	if limit <= 0 || limit > maxReadLines {
		limit = maxReadLines
	}

	absPath := resolvePath(t.baseDir, filePath)

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(fmt.Sprintf("file not found: %s", filePath)), nil
		}
		return NewErrorResult(fmt.Sprintf("error accessing file: %s", err)), nil
	}
	if info.IsDir() {
		return NewErrorResult(fmt.Sprintf("%s is a directory, not a file", filePath)), nil
	}
	if IsBinaryPath(absPath) {
		return NewErrorResult(fmt.Sprintf("cannot read binary file: %s", filePath)), nil
	}

	file, err := os.Open(absPath)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error opening file: %s", err)), nil
	}
	defer file.Close()

	var builder strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	linesRead := 0
	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if linesRead >= limit {
			break
		}

		line := scanner.Text()
		if len(line) > maxLineLen {
			line = line[:maxLineLen] + "..."
		}
		builder.WriteString(line)
		builder.WriteString("\n")
		linesRead++
	}
	if err := scanner.Err(); err != nil {
		return NewErrorResult(fmt.Sprintf("error reading file: %s", err)), nil
	}

	content := builder.String()
	if content == "" {
		if offset > 1 && lineNum > 0 {
			return NewSuccessResult(fmt.Sprintf("(offset %d is beyond end of file, file has %d lines)", offset, lineNum)), nil
		}
		return NewSuccessResult(fmt.Sprintf("File '%s' is empty.", filePath)), nil
	}

	return NewSuccessResult(fmt.Sprintf("File content of '%s':\n\n%s", filePath, content)), nil
}
